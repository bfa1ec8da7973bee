package pagehost

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/page"
	"github.com/fpang/ai-virtual-tryon/internal/picker"
	"github.com/fpang/ai-virtual-tryon/internal/viewer"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
)

// Runtime is a page context running in its own process, bridged to the
// control surface's bus through the websocket gateway. It satisfies
// picker.Poster so the selection agent can report upstream over the wire.
type Runtime struct {
	dispatcher
	conn *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan bus.Message
}

// Connect dials the control surface's agent endpoint and builds the
// agents for doc.
func Connect(ctx context.Context, url string, doc *page.Document) (*Runtime, error) {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to reach control surface at %s: %w", url, err)
	}

	r := &Runtime{
		conn:    conn,
		pending: make(map[string]chan bus.Message),
	}
	r.picker = picker.New(r, doc)
	r.viewer = viewer.New(doc)

	log.Info().Str("url", url).Msg("Connected to control surface")
	return r, nil
}

// Run reads frames until the connection drops or ctx is cancelled.
// Control frames activate the picker; protocol messages go through the
// context's dispatch function, with replies written back on the wire.
func (r *Runtime) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		r.conn.Close()
	}()

	for {
		_, data, err := r.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("connection to control surface lost: %w", err)
		}

		var env bus.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Err(err).Msg("Dropping malformed frame")
			continue
		}

		switch env.Kind {
		case bus.EnvelopeControl:
			if env.Control == bus.ControlInjectPicker {
				r.picker.Activate()
			}
		case bus.EnvelopeMessage:
			if env.Message == nil {
				continue
			}
			msg := *env.Message
			if msg.ReplyTo != "" {
				r.resolvePending(msg)
				continue
			}
			if reply := r.dispatch(msg); reply != nil {
				r.writeMessage(*reply)
			}
		}
	}
}

// Request implements picker.Poster over the websocket: write the message,
// wait for the correlated reply until ctx expires.
func (r *Runtime) Request(ctx context.Context, msg bus.Message) (bus.Message, error) {
	replyCh := make(chan bus.Message, 1)
	r.mu.Lock()
	r.pending[msg.ID] = replyCh
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.pending, msg.ID)
		r.mu.Unlock()
	}()

	if err := r.writeMessage(msg); err != nil {
		return bus.Message{}, bus.ErrContextUnavailable
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return bus.Message{}, bus.ErrNoReply
	}
}

// Close tears down the connection.
func (r *Runtime) Close() error {
	return r.conn.Close()
}

func (r *Runtime) resolvePending(msg bus.Message) {
	r.mu.Lock()
	replyCh := r.pending[msg.ReplyTo]
	delete(r.pending, msg.ReplyTo)
	r.mu.Unlock()
	if replyCh != nil {
		replyCh <- msg
	}
}

func (r *Runtime) writeMessage(msg bus.Message) error {
	data, err := json.Marshal(bus.Envelope{Kind: bus.EnvelopeMessage, Message: &msg})
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return r.conn.WriteMessage(websocket.TextMessage, data)
}
