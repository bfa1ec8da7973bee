package picker

import (
	"context"
	"testing"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/page"
)

// capturePoster records every selection message it receives.
type capturePoster struct {
	messages []bus.Message
	fail     bool
}

func (p *capturePoster) Request(ctx context.Context, msg bus.Message) (bus.Message, error) {
	if p.fail {
		return bus.Message{}, bus.ErrContextUnavailable
	}
	p.messages = append(p.messages, msg)
	return msg.Ack("ok"), nil
}

// testDocument builds a host page with a mix of eligible and ineligible
// images.
func testDocument() *page.Document {
	doc := page.NewDocument()

	eligible := &page.Element{Tag: "div"}
	eligible.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/garment.png",
		NaturalWidth: 640, NaturalHeight: 800,
		OffsetTop: 10, OffsetLeft: 20, OffsetWidth: 320, OffsetHeight: 400,
	})
	doc.Body().AppendChild(eligible)

	tiny := &page.Element{Tag: "div"}
	tiny.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/icon.png",
		NaturalWidth: 32, NaturalHeight: 32,
	})
	doc.Body().AppendChild(tiny)

	wideButShort := &page.Element{Tag: "div"}
	wideButShort.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/banner.png",
		NaturalWidth: 900, NaturalHeight: 120,
	})
	doc.Body().AppendChild(wideButShort)

	hidden := &page.Element{Tag: "div", Hidden: true}
	hidden.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/lazy.png",
		NaturalWidth: 640, NaturalHeight: 640,
	})
	doc.Body().AppendChild(hidden)

	return doc
}

func TestActivateEligibility(t *testing.T) {
	doc := testDocument()
	agent := New(&capturePoster{}, doc)

	count := agent.Activate()
	if count != 1 {
		t.Fatalf("expected exactly 1 selectable image, got %d", count)
	}

	overlays := doc.ElementsByClass(OverlayClass)
	if len(overlays) != 1 {
		t.Fatalf("expected 1 overlay, got %d", len(overlays))
	}

	overlay := overlays[0]
	if overlay.OffsetTop != 10 || overlay.OffsetLeft != 20 || overlay.OffsetWidth != 320 || overlay.OffsetHeight != 400 {
		t.Errorf("overlay geometry not copied from the image box: %+v", overlay)
	}
}

func TestActivateForcesAndRestoresPosition(t *testing.T) {
	doc := testDocument()
	container := doc.Images()[0].Parent()
	agent := New(&capturePoster{}, doc)

	agent.Activate()
	if container.Style("position") != "relative" {
		t.Error("static container should be forced to relative")
	}

	agent.Cancel()
	if container.Style("position") != "static" {
		t.Errorf("position not restored, got %q", container.Style("position"))
	}
	if _, hadInline := container.InlineStyle("position"); hadInline {
		t.Error("inline position should be removed, not set back to a value")
	}
}

func TestActivateLeavesPositionedContainerAlone(t *testing.T) {
	doc := page.NewDocument()
	container := &page.Element{Tag: "div"}
	container.SetStyle("position", "absolute")
	container.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/g.png",
		NaturalWidth: 400, NaturalHeight: 400,
	})
	doc.Body().AppendChild(container)

	agent := New(&capturePoster{}, doc)
	agent.Activate()

	if container.Style("position") != "absolute" {
		t.Errorf("non-static container must not be touched, got %q", container.Style("position"))
	}
}

func TestClickIsTerminal(t *testing.T) {
	doc := page.NewDocument()
	for i := 0; i < 3; i++ {
		container := &page.Element{Tag: "div"}
		container.AppendChild(&page.Element{
			Tag: "img", Src: "https://x/g.png",
			NaturalWidth: 400, NaturalHeight: 400,
		})
		doc.Body().AppendChild(container)
	}

	poster := &capturePoster{}
	agent := New(poster, doc)
	if n := agent.Activate(); n != 3 {
		t.Fatalf("expected 3 overlays, got %d", n)
	}

	overlays := doc.ElementsByClass(OverlayClass)
	doc.Click(overlays[1])

	if len(doc.ElementsByClass(OverlayClass)) != 0 {
		t.Error("click must remove all overlays, not just the clicked one")
	}
	if len(poster.messages) != 1 {
		t.Fatalf("expected exactly 1 selection message, got %d", len(poster.messages))
	}

	var payload bus.ImageSelectedPayload
	if err := poster.messages[0].DecodePayload(&payload); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if payload.URL != "https://x/g.png" {
		t.Errorf("unexpected selection url: %s", payload.URL)
	}

	// Further clicks on already-removed overlays must not send again.
	doc.Click(overlays[0])
	doc.Click(overlays[1])
	if len(poster.messages) != 1 {
		t.Errorf("selection reported %d times", len(poster.messages))
	}
}

func TestClickStopsPropagationToHostPage(t *testing.T) {
	doc := page.NewDocument()
	container := &page.Element{Tag: "div"}
	container.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/g.png",
		NaturalWidth: 400, NaturalHeight: 400,
	})
	doc.Body().AppendChild(container)

	hostClicked := false
	container.OnClick(func(ev *page.ClickEvent) { hostClicked = true }, false)

	agent := New(&capturePoster{}, doc)
	agent.Activate()
	doc.Click(doc.ElementsByClass(OverlayClass)[0])

	if hostClicked {
		t.Error("overlay click leaked to the host page")
	}
}

func TestCancelWithoutActivationIsNoop(t *testing.T) {
	doc := testDocument()
	agent := New(&capturePoster{}, doc)
	agent.Cancel() // must not panic or mutate anything

	if len(doc.ElementsByClass(OverlayClass)) != 0 {
		t.Error("cancel on inactive agent created overlays")
	}
}

func TestReactivationRescansFromScratch(t *testing.T) {
	doc := testDocument()
	agent := New(&capturePoster{}, doc)

	agent.Activate()
	first := doc.ElementsByClass(OverlayClass)

	// Host page mutates between activations: a new eligible image appears.
	container := &page.Element{Tag: "div"}
	container.AppendChild(&page.Element{
		Tag: "img", Src: "https://x/new.png",
		NaturalWidth: 500, NaturalHeight: 500,
	})
	doc.Body().AppendChild(container)

	count := agent.Activate()
	if count != 2 {
		t.Fatalf("rescan should find 2 images, got %d", count)
	}
	overlays := doc.ElementsByClass(OverlayClass)
	if len(overlays) != 2 {
		t.Fatalf("expected 2 overlays after rescan, got %d", len(overlays))
	}
	for _, old := range first {
		if old.Parent() != nil {
			t.Error("stale overlay from previous activation still attached")
		}
	}
}

func TestSelectionSurvivesMissingAck(t *testing.T) {
	doc := testDocument()
	poster := &capturePoster{fail: true}
	agent := New(poster, doc)
	agent.Activate()

	// Must not panic; cleanup still happens even when the orchestrator
	// context is unreachable.
	doc.Click(doc.ElementsByClass(OverlayClass)[0])
	if len(doc.ElementsByClass(OverlayClass)) != 0 {
		t.Error("cleanup skipped when ack failed")
	}
}
