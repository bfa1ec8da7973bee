// Package viewer implements the passive on-page display agent: a single
// full-screen overlay that dims the host page and centers one image.
package viewer

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fpang/ai-virtual-tryon/internal/page"
)

// OverlayID identifies the overlay element. Fixed and collision-resistant
// so repeated show requests replace the instance instead of stacking.
const OverlayID = "ai-try-on-ext-fullscreen-modal"

// Agent is the display agent for one host document.
type Agent struct {
	mu  sync.Mutex
	doc *page.Document
}

// New creates a viewer agent operating on doc.
func New(doc *page.Document) *Agent {
	return &Agent{doc: doc}
}

// Show displays src full-screen. Any existing overlay instance is removed
// first, so the operation is idempotent and at most one overlay exists.
func (a *Agent) Show(src string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if existing := a.doc.ElementByID(OverlayID); existing != nil {
		existing.Detach()
	}

	modal := &page.Element{Tag: "div", ID: OverlayID}
	modal.SetStyle("position", "fixed")
	modal.SetStyle("top", "0")
	modal.SetStyle("left", "0")
	modal.SetStyle("width", "100vw")
	modal.SetStyle("height", "100vh")
	modal.SetStyle("background-color", "rgba(0, 0, 0, 0.8)")
	modal.SetStyle("z-index", "2147483647")
	modal.SetStyle("cursor", "pointer")

	image := &page.Element{Tag: "img", Src: src}
	image.SetStyle("max-width", "90%")
	image.SetStyle("max-height", "90%")
	image.SetStyle("object-fit", "contain")
	image.SetStyle("cursor", "default")

	// Background click closes; a click on the image itself must not.
	modal.OnClick(func(ev *page.ClickEvent) { modal.Detach() }, false)
	image.OnClick(func(ev *page.ClickEvent) { ev.StopPropagation() }, false)

	modal.AppendChild(image)
	a.doc.Body().AppendChild(modal)

	log.Debug().Int("src_length", len(src)).Msg("Full-screen overlay shown")
}
