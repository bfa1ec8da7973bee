package bus

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Envelope kinds on the websocket wire. Control frames exist because code
// injection is a privilege of the dispatcher context, not part of the
// page-message protocol.
const (
	EnvelopeMessage = "message"
	EnvelopeControl = "control"

	// ControlInjectPicker asks the remote page runtime to activate its
	// picker agent against the current document.
	ControlInjectPicker = "inject-picker"
)

// Envelope frames bus messages and control commands on the websocket.
type Envelope struct {
	Kind    string   `json:"kind"`
	Control string   `json:"control,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// writeTimeout bounds a single websocket write.
const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The control surface binds to localhost; remote page runtimes
		// attach from file/extension origins that carry no stable Origin.
		return true
	},
}

// Gateway bridges a remote page runtime into the bus over a websocket.
// The remote context is attached on connect and detached on disconnect, so
// a navigated-away page simply becomes an unavailable context.
type Gateway struct {
	bus *Bus

	mu   sync.Mutex
	conn *websocket.Conn

	// writeMu serializes writes; gorilla/websocket supports one
	// concurrent writer per connection.
	writeMu sync.Mutex
}

// NewGateway creates a gateway bridging connections into b.
func NewGateway(b *Bus) *Gateway {
	return &Gateway{bus: b}
}

// ServeHTTP upgrades the connection and attaches the remote context as
// ContextPage. A newer connection replaces an older one, matching a page
// reload.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to upgrade agent connection")
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("Page runtime attached")

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	ep := &endpoint{
		id: ContextPage,
		deliver: func(msg Message) bool {
			return g.writeEnvelope(conn, Envelope{Kind: EnvelopeMessage, Message: &msg})
		},
		close: func() { conn.Close() },
	}
	g.bus.register(ep)

	// Read pump. Runs on the request goroutine until the peer goes away.
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Debug().Err(err).Msg("Dropping malformed agent frame")
			continue
		}
		if env.Kind != EnvelopeMessage || env.Message == nil {
			continue
		}
		g.bus.Route(*env.Message)
	}

	g.mu.Lock()
	stale := g.conn == conn
	if stale {
		g.conn = nil
	}
	g.mu.Unlock()
	if stale {
		g.bus.Detach(ContextPage)
	}
	conn.Close()
	log.Info().Str("remote", r.RemoteAddr).Msg("Page runtime detached")
}

// InjectPicker sends the picker-activation control frame to the attached
// page runtime. Fails with ErrContextUnavailable when no runtime is
// attached; the caller rolls its transition back.
func (g *Gateway) InjectPicker(ctx context.Context) error {
	g.mu.Lock()
	conn := g.conn
	g.mu.Unlock()
	if conn == nil {
		return ErrContextUnavailable
	}

	if !g.writeEnvelope(conn, Envelope{Kind: EnvelopeControl, Control: ControlInjectPicker}) {
		return ErrContextUnavailable
	}
	return nil
}

func (g *Gateway) writeEnvelope(conn *websocket.Conn, env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		return false
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}
