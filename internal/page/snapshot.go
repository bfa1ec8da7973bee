package page

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the serialized form of a host document as a page runtime
// ships it across the process boundary.
type Snapshot struct {
	Elements []ElementSnapshot `json:"elements"`
}

// ElementSnapshot is one serialized element. Children nest.
type ElementSnapshot struct {
	Tag           string            `json:"tag"`
	ID            string            `json:"id,omitempty"`
	Class         string            `json:"class,omitempty"`
	Src           string            `json:"src,omitempty"`
	NaturalWidth  int               `json:"naturalWidth,omitempty"`
	NaturalHeight int               `json:"naturalHeight,omitempty"`
	OffsetTop     int               `json:"offsetTop,omitempty"`
	OffsetLeft    int               `json:"offsetLeft,omitempty"`
	OffsetWidth   int               `json:"offsetWidth,omitempty"`
	OffsetHeight  int               `json:"offsetHeight,omitempty"`
	Hidden        bool              `json:"hidden,omitempty"`
	Styles        map[string]string `json:"styles,omitempty"`
	Children      []ElementSnapshot `json:"children,omitempty"`
}

// FromSnapshot builds a Document from its serialized form.
func FromSnapshot(snap Snapshot) *Document {
	doc := NewDocument()
	for _, es := range snap.Elements {
		doc.body.AppendChild(buildElement(es))
	}
	return doc
}

// ParseSnapshot builds a Document from serialized JSON.
func ParseSnapshot(data []byte) (*Document, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("malformed document snapshot: %w", err)
	}
	return FromSnapshot(snap), nil
}

func buildElement(es ElementSnapshot) *Element {
	e := &Element{
		Tag:           es.Tag,
		ID:            es.ID,
		Class:         es.Class,
		Src:           es.Src,
		NaturalWidth:  es.NaturalWidth,
		NaturalHeight: es.NaturalHeight,
		OffsetTop:     es.OffsetTop,
		OffsetLeft:    es.OffsetLeft,
		OffsetWidth:   es.OffsetWidth,
		OffsetHeight:  es.OffsetHeight,
		Hidden:        es.Hidden,
	}
	for name, value := range es.Styles {
		e.SetStyle(name, value)
	}
	for _, child := range es.Children {
		e.AppendChild(buildElement(child))
	}
	return e
}
