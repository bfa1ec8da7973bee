package viewer

import (
	"testing"

	"github.com/fpang/ai-virtual-tryon/internal/page"
)

func TestShowCreatesSingleOverlay(t *testing.T) {
	doc := page.NewDocument()
	agent := New(doc)

	agent.Show("data:image/jpeg;base64,AAAA")

	modal := doc.ElementByID(OverlayID)
	if modal == nil {
		t.Fatal("overlay not created")
	}
	if len(modal.Children()) != 1 || modal.Children()[0].Src != "data:image/jpeg;base64,AAAA" {
		t.Error("overlay does not contain the requested image")
	}
}

func TestShowReplacesExistingOverlay(t *testing.T) {
	doc := page.NewDocument()
	agent := New(doc)

	agent.Show("data:image/jpeg;base64,FIRST")
	agent.Show("data:image/jpeg;base64,SECOND")

	count := 0
	for _, el := range doc.Body().Children() {
		if el.ID == OverlayID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 overlay, got %d", count)
	}
	modal := doc.ElementByID(OverlayID)
	if modal.Children()[0].Src != "data:image/jpeg;base64,SECOND" {
		t.Error("overlay was not replaced with the new image")
	}
}

func TestBackgroundClickCloses(t *testing.T) {
	doc := page.NewDocument()
	agent := New(doc)
	agent.Show("data:image/jpeg;base64,AAAA")

	doc.Click(doc.ElementByID(OverlayID))
	if doc.ElementByID(OverlayID) != nil {
		t.Error("background click should close the overlay")
	}
}

func TestImageClickDoesNotClose(t *testing.T) {
	doc := page.NewDocument()
	agent := New(doc)
	agent.Show("data:image/jpeg;base64,AAAA")

	modal := doc.ElementByID(OverlayID)
	doc.Click(modal.Children()[0])
	if doc.ElementByID(OverlayID) == nil {
		t.Error("click on the image must not close the overlay")
	}
}
