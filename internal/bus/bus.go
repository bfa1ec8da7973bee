// Package bus implements the typed, asynchronous message channel between
// the workflow's execution contexts: the sidebar control surface and the
// host-page agent context.
//
// The channel is at-most-once with no delivery-order guarantee across
// channels and no timeout primitive of its own. A message addressed at an
// absent context fails immediately; a request whose reply never arrives
// fails when the caller's context deadline expires. Both outcomes are
// definite failures from the sender's point of view — exactly the contract
// the orchestrator's liveness probing is built on.
//
// Contexts attach in-process (a mailbox goroutine runs their dispatch
// handler one message at a time, preserving run-to-completion semantics
// within the context) or remotely through the websocket gateway.
package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var (
	// ErrContextUnavailable reports that the target context is not
	// attached to the bus.
	ErrContextUnavailable = errors.New("bus: target context unavailable")

	// ErrNoReply reports that a request went unanswered before the
	// caller's deadline.
	ErrNoReply = errors.New("bus: no reply")
)

// Handler is a context's single dispatch function. It returns the reply to
// deliver, or nil for messages that expect none, including unrecognized
// types, which are ignored without error.
type Handler func(msg Message) *Message

// mailboxSize bounds queued deliveries per context. A full mailbox drops
// the message: the bus promises at most one delivery, not delivery.
const mailboxSize = 32

// endpoint is one attached context.
type endpoint struct {
	id      ContextID
	deliver func(Message) bool
	close   func()
}

// Bus routes messages between attached contexts and correlates replies.
type Bus struct {
	mu       sync.Mutex
	contexts map[ContextID]*endpoint
	pending  map[string]chan Message
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		contexts: make(map[ContextID]*endpoint),
		pending:  make(map[string]chan Message),
	}
}

// Attach registers an in-process context under id. Its handler runs on a
// dedicated mailbox goroutine, one message at a time. Attaching over an
// existing id replaces it, matching a reloaded page context.
func (b *Bus) Attach(id ContextID, handler Handler) {
	mailbox := make(chan Message, mailboxSize)
	done := make(chan struct{})

	ep := &endpoint{
		id: id,
		deliver: func(msg Message) bool {
			select {
			case mailbox <- msg:
				return true
			case <-done:
				return false
			default:
				log.Warn().Str("context", string(id)).Str("type", string(msg.Type)).Msg("Mailbox full, dropping message")
				return false
			}
		},
		close: func() { close(done) },
	}
	b.register(ep)

	go func() {
		for {
			select {
			case msg := <-mailbox:
				if reply := handler(msg); reply != nil {
					b.Route(*reply)
				}
			case <-done:
				return
			}
		}
	}()
}

// register installs an endpoint, closing any previous one under the same
// id. The websocket gateway builds its own endpoints on top of this.
func (b *Bus) register(ep *endpoint) {
	b.mu.Lock()
	prev := b.contexts[ep.id]
	b.contexts[ep.id] = ep
	b.mu.Unlock()
	if prev != nil {
		prev.close()
	}
	log.Debug().Str("context", string(ep.id)).Msg("Context attached to bus")
}

// Detach removes a context. Messages addressed at it afterwards fail with
// ErrContextUnavailable.
func (b *Bus) Detach(id ContextID) {
	b.mu.Lock()
	ep := b.contexts[id]
	delete(b.contexts, id)
	b.mu.Unlock()
	if ep != nil {
		ep.close()
		log.Debug().Str("context", string(id)).Msg("Context detached from bus")
	}
}

// Attached reports whether a context is currently reachable.
func (b *Bus) Attached(id ContextID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.contexts[id]
	return ok
}

// Send delivers a message without waiting for a reply. It fails only when
// the target context is absent or unreachable; nothing is retried.
func (b *Bus) Send(msg Message) error {
	b.mu.Lock()
	ep := b.contexts[msg.To]
	b.mu.Unlock()

	if ep == nil || !ep.deliver(msg) {
		return ErrContextUnavailable
	}
	return nil
}

// Request delivers a message and waits for its reply until ctx expires.
// Absence of the target is an immediate failure; an expired wait returns
// ErrNoReply. Each request is answered at most once; late replies after
// the deadline are dropped.
func (b *Bus) Request(ctx context.Context, msg Message) (Message, error) {
	replyCh := make(chan Message, 1)

	b.mu.Lock()
	ep := b.contexts[msg.To]
	if ep == nil {
		b.mu.Unlock()
		return Message{}, ErrContextUnavailable
	}
	b.pending[msg.ID] = replyCh
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, msg.ID)
		b.mu.Unlock()
	}()

	if !ep.deliver(msg) {
		return Message{}, ErrContextUnavailable
	}

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return Message{}, errors.Join(ErrNoReply, ctx.Err())
	}
}

// Route dispatches a message emitted by an attached context: replies are
// matched against pending requests, everything else is forwarded to its
// target. Unroutable messages are dropped silently — the bus guarantees
// nothing about delivery.
func (b *Bus) Route(msg Message) {
	if msg.ReplyTo != "" {
		b.mu.Lock()
		replyCh := b.pending[msg.ReplyTo]
		delete(b.pending, msg.ReplyTo)
		b.mu.Unlock()
		if replyCh != nil {
			replyCh <- msg
			return
		}
		// No local waiter: the requester lives in another process (a
		// remote picker awaiting its ack), so forward the reply to its
		// target context instead.
	}
	if err := b.Send(msg); err != nil {
		log.Debug().Str("type", string(msg.Type)).Str("to", string(msg.To)).Msg("Dropped unroutable message")
	}
}
