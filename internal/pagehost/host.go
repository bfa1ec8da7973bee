// Package pagehost wires the on-page agents into the message channel.
//
// Each page context has exactly one dispatch function: a tagged switch
// over the protocol's message types routing CANCEL_SELECTION to the
// picker and PING / SHOW_FULL_SCREEN_IMAGE to the viewer. Unrecognized
// types yield no reply and no error.
//
// The host runs either in-process (attached straight to the bus, used by
// the embedded demo page and the tests) or as a remote runtime connected
// to the control surface over a websocket (see Runtime).
package pagehost

import (
	"context"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/page"
	"github.com/fpang/ai-virtual-tryon/internal/picker"
	"github.com/fpang/ai-virtual-tryon/internal/viewer"
)

// dispatcher is the page context's single dispatch function over the
// protocol table. Shared between the in-process host and the remote
// runtime so both contexts route identically.
type dispatcher struct {
	picker *picker.Agent
	viewer *viewer.Agent
}

func (d *dispatcher) dispatch(msg bus.Message) *bus.Message {
	switch msg.Type {
	case bus.TypePing:
		reply := msg.Ack(bus.StatusPong)
		return &reply

	case bus.TypeShowFullScreenImage:
		var payload bus.ShowImagePayload
		if err := msg.DecodePayload(&payload); err != nil || payload.Src == "" {
			return nil
		}
		d.viewer.Show(payload.Src)
		reply := msg.Ack("modal shown")
		return &reply

	case bus.TypeCancelSelection:
		d.picker.Cancel()
		reply := msg.Ack("cleaned up")
		return &reply

	default:
		// Unrecognized message types are ignored.
		return nil
	}
}

// Host is a page context attached in-process to the bus.
type Host struct {
	dispatcher
	bus *bus.Bus
}

// Attach builds the agents for doc and attaches the page context to b.
func Attach(b *bus.Bus, doc *page.Document) *Host {
	h := &Host{
		dispatcher: dispatcher{
			picker: picker.New(b, doc),
			viewer: viewer.New(doc),
		},
		bus: b,
	}
	b.Attach(bus.ContextPage, h.dispatch)
	return h
}

// InjectPicker activates the selection agent against the current
// document. It satisfies the orchestrator's injector dependency.
func (h *Host) InjectPicker(ctx context.Context) error {
	h.picker.Activate()
	return nil
}

// Detach removes the page context from the bus, equivalent to the host
// page navigating away.
func (h *Host) Detach() {
	h.bus.Detach(bus.ContextPage)
}
