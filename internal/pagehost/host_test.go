package pagehost

import (
	"context"
	"testing"
	"time"

	"github.com/fpang/ai-virtual-tryon/internal/bus"
	"github.com/fpang/ai-virtual-tryon/internal/page"
	"github.com/fpang/ai-virtual-tryon/internal/picker"
	"github.com/fpang/ai-virtual-tryon/internal/viewer"
)

func newTestDocument() *page.Document {
	doc := page.NewDocument()
	doc.Body().AppendChild(&page.Element{
		Tag: "img", Src: "https://shop.example/jacket.jpg",
		NaturalWidth: 640, NaturalHeight: 480,
		OffsetWidth: 640, OffsetHeight: 480,
	})
	return doc
}

func request(t *testing.T, b *bus.Bus, msgType bus.MessageType, payload any) bus.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := b.Request(ctx, bus.NewMessage(bus.ContextSidebar, bus.ContextPage, msgType, payload))
	if err != nil {
		t.Fatalf("Request(%s): %v", msgType, err)
	}
	return reply
}

func TestPingAnswersPong(t *testing.T) {
	b := bus.New()
	Attach(b, newTestDocument())

	reply := request(t, b, bus.TypePing, nil)
	var status bus.StatusPayload
	if err := reply.DecodePayload(&status); err != nil {
		t.Fatalf("decode reply: %v", err)
	}
	if status.Status != bus.StatusPong {
		t.Errorf("ping reply status = %q, want %q", status.Status, bus.StatusPong)
	}
}

func TestShowFullScreenImageBuildsOverlay(t *testing.T) {
	b := bus.New()
	doc := newTestDocument()
	Attach(b, doc)

	request(t, b, bus.TypeShowFullScreenImage, bus.ShowImagePayload{Src: "data:image/jpeg;base64,AAAA"})

	modal := doc.ElementByID(viewer.OverlayID)
	if modal == nil {
		t.Fatal("overlay not present after SHOW_FULL_SCREEN_IMAGE")
	}
	children := modal.Children()
	if len(children) != 1 || children[0].Src != "data:image/jpeg;base64,AAAA" {
		t.Errorf("overlay image child = %+v", children)
	}
}

func TestShowFullScreenImageWithoutSrcIgnored(t *testing.T) {
	b := bus.New()
	doc := newTestDocument()
	Attach(b, doc)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msg := bus.NewMessage(bus.ContextSidebar, bus.ContextPage, bus.TypeShowFullScreenImage, bus.ShowImagePayload{})
	if _, err := b.Request(ctx, msg); err == nil {
		t.Fatal("expected no reply for empty src")
	}
	if doc.ElementByID(viewer.OverlayID) != nil {
		t.Error("overlay built for empty src")
	}
}

func TestCancelSelectionCleansUpOverlays(t *testing.T) {
	b := bus.New()
	doc := newTestDocument()
	h := Attach(b, doc)

	if err := h.InjectPicker(context.Background()); err != nil {
		t.Fatalf("InjectPicker: %v", err)
	}
	if n := len(doc.ElementsByClass(picker.OverlayClass)); n != 1 {
		t.Fatalf("overlays after inject = %d, want 1", n)
	}

	request(t, b, bus.TypeCancelSelection, nil)
	if n := len(doc.ElementsByClass(picker.OverlayClass)); n != 0 {
		t.Errorf("overlays after cancel = %d, want 0", n)
	}
}

func TestUnrecognizedTypeYieldsNoReply(t *testing.T) {
	b := bus.New()
	Attach(b, newTestDocument())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	msg := bus.NewMessage(bus.ContextSidebar, bus.ContextPage, bus.MessageType("REFRESH_EVERYTHING"), nil)
	if _, err := b.Request(ctx, msg); err == nil {
		t.Fatal("expected timeout for unrecognized message type")
	}
}

func TestSelectionReachesSidebar(t *testing.T) {
	b := bus.New()
	selected := make(chan string, 1)
	b.Attach(bus.ContextSidebar, func(msg bus.Message) *bus.Message {
		if msg.Type != bus.TypeImageSelected {
			return nil
		}
		var payload bus.ImageSelectedPayload
		if err := msg.DecodePayload(&payload); err != nil {
			t.Errorf("decode selection: %v", err)
			return nil
		}
		selected <- payload.URL
		reply := msg.Ack("received")
		return &reply
	})

	doc := newTestDocument()
	h := Attach(b, doc)
	if err := h.InjectPicker(context.Background()); err != nil {
		t.Fatalf("InjectPicker: %v", err)
	}

	overlays := doc.ElementsByClass(picker.OverlayClass)
	if len(overlays) != 1 {
		t.Fatalf("overlays = %d, want 1", len(overlays))
	}
	doc.Click(overlays[0])

	select {
	case url := <-selected:
		if url != "https://shop.example/jacket.jpg" {
			t.Errorf("selected url = %q", url)
		}
	case <-time.After(time.Second):
		t.Fatal("selection never reached the sidebar context")
	}
}

func TestDetachMakesContextUnreachable(t *testing.T) {
	b := bus.New()
	h := Attach(b, newTestDocument())
	h.Detach()

	err := b.Send(bus.NewMessage(bus.ContextSidebar, bus.ContextPage, bus.TypePing, nil))
	if err == nil {
		t.Fatal("expected send to fail after detach")
	}
}
