// Package page models the untrusted host document the agents operate on.
//
// The model is a snapshot of what a page runtime serializes across the
// process boundary: an element tree carrying the attributes the agents
// need — image sources, intrinsic sizes, offset geometry, computed
// position and visibility — plus click dispatch with DOM-style bubbling.
// It deliberately models nothing else; host-page layout is untrusted and
// the agents must not depend on it beyond these properties.
package page

// Element is one node of the host document. Geometry fields mirror the
// DOM offset properties: the rendered box relative to the containing
// block, in page pixels.
type Element struct {
	Tag   string
	ID    string
	Class string

	// Src and the natural dimensions are meaningful for "img" elements.
	Src           string
	NaturalWidth  int
	NaturalHeight int

	// Offset geometry of the rendered box.
	OffsetTop    int
	OffsetLeft   int
	OffsetWidth  int
	OffsetHeight int

	// Hidden marks display:none. A hidden element (or a descendant of
	// one) has no offset parent.
	Hidden bool

	parent   *Element
	children []*Element

	styles  map[string]string
	onClick func(*ClickEvent)
	once    bool
	fired   bool
}

// Document is the element tree of one host page.
type Document struct {
	body *Element
}

// NewDocument creates a document with an empty body.
func NewDocument() *Document {
	return &Document{body: &Element{Tag: "body"}}
}

// Body returns the document's root container.
func (d *Document) Body() *Element {
	return d.body
}

// Parent returns the element's parent, or nil for the body and for
// detached elements.
func (e *Element) Parent() *Element {
	return e.parent
}

// AppendChild attaches child as the element's last child, detaching it
// from any previous parent first.
func (e *Element) AppendChild(child *Element) {
	child.Detach()
	child.parent = e
	e.children = append(e.children, child)
}

// Detach removes the element from its parent, if any.
func (e *Element) Detach() {
	p := e.parent
	if p == nil {
		return
	}
	for i, c := range p.children {
		if c == e {
			p.children = append(p.children[:i], p.children[i+1:]...)
			break
		}
	}
	e.parent = nil
}

// Children returns the element's direct children.
func (e *Element) Children() []*Element {
	return e.children
}

// Style returns the computed value of a style property. Unset "position"
// computes to "static", matching the DOM default.
func (e *Element) Style(name string) string {
	if v, ok := e.styles[name]; ok {
		return v
	}
	if name == "position" {
		return "static"
	}
	return ""
}

// InlineStyle returns the inline value of a style property and whether
// one is set at all. Callers that force a property and must restore it
// exactly use this to distinguish "unset" from "set to the default".
func (e *Element) InlineStyle(name string) (string, bool) {
	v, ok := e.styles[name]
	return v, ok
}

// SetStyle sets an inline style property.
func (e *Element) SetStyle(name, value string) {
	if e.styles == nil {
		e.styles = make(map[string]string)
	}
	e.styles[name] = value
}

// RemoveStyle clears an inline style property, reverting it to the
// computed default.
func (e *Element) RemoveStyle(name string) {
	delete(e.styles, name)
}

// HasOffsetParent reports whether the element participates in layout:
// attached to the document, not hidden, and under no hidden ancestor.
// This is the visibility test the picker's eligibility rule uses.
func (e *Element) HasOffsetParent() bool {
	if e.parent == nil {
		return false
	}
	for n := e; n != nil; n = n.parent {
		if n.Hidden {
			return false
		}
		if n.parent == nil {
			return n.Tag == "body"
		}
	}
	return false
}

// OnClick installs the element's click handler. With once set, the
// handler disarms itself before its first invocation.
func (e *Element) OnClick(handler func(*ClickEvent), once bool) {
	e.onClick = handler
	e.once = once
	e.fired = false
}

// --- Document queries ---

// Images returns every img element in document order.
func (d *Document) Images() []*Element {
	var images []*Element
	d.walk(d.body, func(e *Element) {
		if e.Tag == "img" {
			images = append(images, e)
		}
	})
	return images
}

// ElementsByClass returns every element carrying the given class, in
// document order.
func (d *Document) ElementsByClass(class string) []*Element {
	var matches []*Element
	d.walk(d.body, func(e *Element) {
		if e.Class == class {
			matches = append(matches, e)
		}
	})
	return matches
}

// ElementByID returns the first element with the given id, or nil.
func (d *Document) ElementByID(id string) *Element {
	var match *Element
	d.walk(d.body, func(e *Element) {
		if match == nil && e.ID == id {
			match = e
		}
	})
	return match
}

func (d *Document) walk(e *Element, visit func(*Element)) {
	visit(e)
	// Children may be mutated by visit; walk a copy.
	children := make([]*Element, len(e.children))
	copy(children, e.children)
	for _, c := range children {
		d.walk(c, visit)
	}
}

// --- Click dispatch ---

// ClickEvent is a click being dispatched through the tree.
type ClickEvent struct {
	// Target is the element originally clicked.
	Target *Element

	stopped bool
}

// StopPropagation prevents the event from bubbling to ancestors.
func (ev *ClickEvent) StopPropagation() {
	ev.stopped = true
}

// Click dispatches a click on the target element, bubbling to ancestors
// until stopped. Handlers installed as once fire at most one time.
func (d *Document) Click(target *Element) {
	ev := &ClickEvent{Target: target}
	for n := target; n != nil && !ev.stopped; n = n.parent {
		handler := n.onClick
		if handler == nil {
			continue
		}
		if n.once {
			if n.fired {
				continue
			}
			n.fired = true
		}
		handler(ev)
	}
}
