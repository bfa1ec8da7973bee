package page

import "testing"

func TestHasOffsetParent(t *testing.T) {
	doc := NewDocument()
	container := &Element{Tag: "div"}
	img := &Element{Tag: "img"}
	container.AppendChild(img)
	doc.Body().AppendChild(container)

	if !img.HasOffsetParent() {
		t.Error("attached visible image should have an offset parent")
	}

	container.Hidden = true
	if img.HasOffsetParent() {
		t.Error("image under a hidden ancestor should have no offset parent")
	}
	container.Hidden = false

	img.Hidden = true
	if img.HasOffsetParent() {
		t.Error("hidden image should have no offset parent")
	}
	img.Hidden = false

	container.Detach()
	if img.HasOffsetParent() {
		t.Error("detached image should have no offset parent")
	}
}

func TestClickBubblesUntilStopped(t *testing.T) {
	doc := NewDocument()
	outer := &Element{Tag: "div"}
	inner := &Element{Tag: "div"}
	outer.AppendChild(inner)
	doc.Body().AppendChild(outer)

	var order []string
	outer.OnClick(func(ev *ClickEvent) { order = append(order, "outer") }, false)
	inner.OnClick(func(ev *ClickEvent) { order = append(order, "inner") }, false)

	doc.Click(inner)
	if len(order) != 2 || order[0] != "inner" || order[1] != "outer" {
		t.Errorf("expected inner then outer, got %v", order)
	}

	order = nil
	inner.OnClick(func(ev *ClickEvent) {
		order = append(order, "inner")
		ev.StopPropagation()
	}, false)
	doc.Click(inner)
	if len(order) != 1 || order[0] != "inner" {
		t.Errorf("propagation not stopped, got %v", order)
	}
}

func TestOnceHandlerDisarms(t *testing.T) {
	doc := NewDocument()
	el := &Element{Tag: "div"}
	doc.Body().AppendChild(el)

	fired := 0
	el.OnClick(func(ev *ClickEvent) { fired++ }, true)

	doc.Click(el)
	doc.Click(el)
	if fired != 1 {
		t.Errorf("once handler fired %d times", fired)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	data := []byte(`{
		"elements": [
			{
				"tag": "div",
				"styles": {"position": "absolute"},
				"children": [
					{"tag": "img", "src": "https://x/a.png", "naturalWidth": 640, "naturalHeight": 480, "offsetWidth": 320, "offsetHeight": 240}
				]
			},
			{"tag": "img", "src": "https://x/b.png", "hidden": true}
		]
	}`)

	doc, err := ParseSnapshot(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	images := doc.Images()
	if len(images) != 2 {
		t.Fatalf("expected 2 images, got %d", len(images))
	}
	if images[0].Src != "https://x/a.png" || images[0].NaturalWidth != 640 {
		t.Errorf("first image fields wrong: %+v", images[0])
	}
	if images[0].Parent().Style("position") != "absolute" {
		t.Errorf("style not carried over")
	}
	if !images[1].Hidden {
		t.Error("hidden flag not carried over")
	}

	if _, err := ParseSnapshot([]byte("{nope")); err == nil {
		t.Error("expected error for malformed snapshot")
	}
}
