package pptx

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/gnemet/SlideClean/internal/xmltree"
)

// MasterKind tells layouts and masters apart.
type MasterKind string

const (
	KindLayout MasterKind = "layout"
	KindMaster MasterKind = "master"
)

// Master is a slide layout or slide master used by the deck.
type Master struct {
	deck *Deck
	path string
	kind MasterKind
}

// Path is the part path.
func (m *Master) Path() string { return m.path }

// Kind reports whether this is a layout or a master.
func (m *Master) Kind() MasterKind { return m.kind }

// Shapes returns the top-level shapes of the layout or master.
func (m *Master) Shapes() ([]Shape, error) {
	p, err := m.deck.part(m.path)
	if err != nil {
		return nil, err
	}
	tree := xmltree.Path(p.root(), nsP, "cSld", "spTree")
	if tree == nil {
		return nil, fmt.Errorf("%s: no shape tree", m.path)
	}
	return shapesOf(p, tree), nil
}

// RemoveDecorations removes pictures and autoshapes that are not
// placeholders, which is where theme artwork lives. Placeholders are kept
// because slides inherit their position and text styles, and text boxes
// are kept because they carry footer and copyright text. It returns the
// number of shapes removed.
func (m *Master) RemoveDecorations() (int, error) {
	shapes, err := m.Shapes()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, sh := range shapes {
		var base baseShape
		switch v := sh.(type) {
		case *PictureShape:
			base = v.baseShape
		case *TextShape:
			base = v.baseShape
		case *OtherShape:
			if v.el.Tag != "sp" {
				continue
			}
			base = v.baseShape
		}
		if _, ph := base.Placeholder(); ph || isTextBox(base.el) {
			continue
		}
		xmltree.Remove(base.el)
		base.part.touch()
		removed++
	}
	return removed, nil
}

func isTextBox(sp *etree.Element) bool {
	c := xmltree.Path(sp, nsP, "nvSpPr", "cNvSpPr")
	return xmltree.AttrValue(c, "", "txBox", "0") == "1"
}
