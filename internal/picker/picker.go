// Package picker implements the on-page selection agent.
//
// On activation it scans the host document for eligible images and lays a
// same-sized overlay over each one. A click on an overlay is terminal: it
// tears everything down and reports exactly one selection upstream.
// Everything the agent adds or mutates on the untrusted page is recorded
// and fully reversed on every exit path — selection, cancellation, and
// re-scan.
package picker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/page"
)

const (
	// MinImageSize is the minimum intrinsic width and height, in
	// device-independent pixels, for an image to be selectable.
	MinImageSize = 200

	// OverlayClass marks overlay elements. Unique to avoid colliding
	// with host-page class names.
	OverlayClass = "ai-try-on-ext-overlay"

	// ackTimeout bounds the wait for the orchestrator's selection ack.
	ackTimeout = 2 * time.Second
)

// Poster delivers messages toward the orchestrator's context. The bus
// satisfies it in-process; the remote runtime client satisfies it over the
// websocket.
type Poster interface {
	Request(ctx context.Context, msg bus.Message) (bus.Message, error)
}

// forcedPosition records a container whose position the agent forced to
// "relative", with the prior inline value for exact restoration.
type forcedPosition struct {
	container *page.Element
	prior     string
	hadInline bool
}

// candidate is one eligible image and the overlay it owns.
type candidate struct {
	image   *page.Element
	overlay *page.Element
}

// Agent is the selection agent for one host document.
type Agent struct {
	poster Poster
	doc    *page.Document

	mu         sync.Mutex
	candidates []candidate
	forced     []forcedPosition
	selected   bool
}

// New creates a picker agent operating on doc, reporting selections
// through poster.
func New(poster Poster, doc *page.Document) *Agent {
	return &Agent{poster: poster, doc: doc}
}

// Activate scans the document and overlays every eligible image. Any
// overlays from a previous activation are removed first; re-activation is
// always a full rescan, never an incremental diff. Returns the number of
// selectable images found.
func (a *Agent) Activate() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cleanupLocked()
	a.selected = false

	for _, img := range a.doc.Images() {
		if img.NaturalWidth < MinImageSize || img.NaturalHeight < MinImageSize {
			continue
		}
		if !img.HasOffsetParent() {
			continue
		}
		container := img.Parent()
		if container == nil {
			continue
		}

		// The overlay is a sibling, not a child, of the image, so its
		// geometry is computed from the image's rendered box rather
		// than inherited. The container must establish a positioning
		// context; force it only when it doesn't already.
		if container.Style("position") == "static" {
			prior, hadInline := container.InlineStyle("position")
			a.forced = append(a.forced, forcedPosition{container: container, prior: prior, hadInline: hadInline})
			container.SetStyle("position", "relative")
		}

		overlay := &page.Element{
			Tag:          "div",
			Class:        OverlayClass,
			OffsetTop:    img.OffsetTop,
			OffsetLeft:   img.OffsetLeft,
			OffsetWidth:  img.OffsetWidth,
			OffsetHeight: img.OffsetHeight,
		}
		overlay.SetStyle("position", "absolute")
		overlay.SetStyle("cursor", "pointer")

		src := img.Src
		overlay.OnClick(func(ev *page.ClickEvent) {
			ev.StopPropagation()
			a.handleSelection(src)
		}, true)

		container.AppendChild(overlay)
		a.candidates = append(a.candidates, candidate{image: img, overlay: overlay})
	}

	count := len(a.candidates)
	log.Info().Int("selectable", count).Msg("Picker activated")
	return count
}

// Cancel tears down all overlays without sending a selection. Invoking it
// when nothing is active is a no-op.
func (a *Agent) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanupLocked()
	log.Debug().Msg("Picker selection cancelled")
}

// handleSelection is the terminal single-click path: remove every overlay,
// then report the one selected source URL upstream.
func (a *Agent) handleSelection(src string) {
	a.mu.Lock()
	if a.selected {
		// A second overlay click raced the teardown; selection already
		// reported.
		a.mu.Unlock()
		return
	}
	a.selected = true
	a.cleanupLocked()
	a.mu.Unlock()

	log.Info().Str("url", src).Msg("Image selected")

	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	msg := bus.NewMessage(bus.ContextPage, bus.ContextSidebar, bus.TypeImageSelected, bus.ImageSelectedPayload{URL: src})
	if _, err := a.poster.Request(ctx, msg); err != nil {
		// The page side can do nothing more; the orchestrator treats
		// a missing selection as a still-open picking mode.
		log.Warn().Err(err).Msg("Selection message was not acknowledged")
	}
}

// cleanupLocked reverses every mutation of the host page: overlays are
// removed (including strays from an interrupted prior run) and forced
// positions restored exactly.
func (a *Agent) cleanupLocked() {
	for _, overlay := range a.doc.ElementsByClass(OverlayClass) {
		overlay.Detach()
	}
	for _, f := range a.forced {
		if f.hadInline {
			f.container.SetStyle("position", f.prior)
		} else {
			f.container.RemoveStyle("position")
		}
	}
	a.candidates = nil
	a.forced = nil
}
