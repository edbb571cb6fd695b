package pptx

import (
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/gnemet/SlideClean/internal/xmltree"
)

// Box is a shape's bounding box in EMU.
type Box struct {
	X, Y, CX, CY int64
}

// Shape is one top-level element of a slide's shape tree: a *TextShape,
// a *PictureShape or an *OtherShape.
type Shape interface {
	ID() int
	Name() string
	Element() *etree.Element
	// Box returns the shape's own transform, if it has one.
	Box() (Box, bool)
}

type baseShape struct {
	el   *etree.Element
	part *xmlPart
}

func (b baseShape) Element() *etree.Element { return b.el }

// cNvPr finds the non-visual properties of any shape kind: p:nvSpPr,
// p:nvPicPr, p:nvGrpSpPr, p:nvCxnSpPr and p:nvGraphicFramePr all carry it.
func (b baseShape) cNvPr() *etree.Element {
	for _, nv := range b.el.ChildElements() {
		if strings.HasPrefix(nv.Tag, "nv") && strings.HasSuffix(nv.Tag, "Pr") {
			return xmltree.Child(nv, nsP, "cNvPr")
		}
	}
	return nil
}

func (b baseShape) nvPr() *etree.Element {
	for _, nv := range b.el.ChildElements() {
		if strings.HasPrefix(nv.Tag, "nv") && strings.HasSuffix(nv.Tag, "Pr") {
			return xmltree.Child(nv, nsP, "nvPr")
		}
	}
	return nil
}

func (b baseShape) ID() int {
	id, _ := strconv.Atoi(b.cNvPr().NotNil().SelectAttrValue("id", "0"))
	return id
}

func (b baseShape) Name() string {
	return b.cNvPr().NotNil().SelectAttrValue("name", "")
}

// Placeholder returns the placeholder type of the shape and whether it is a
// placeholder at all. Untyped placeholders are body placeholders.
func (b baseShape) Placeholder() (string, bool) {
	ph := xmltree.Child(b.nvPr(), nsP, "ph")
	if ph == nil {
		return "", false
	}
	return ph.SelectAttrValue("type", "body"), true
}

func (b baseShape) Box() (Box, bool) {
	xfrm := xmltree.Child(xmltree.Child(b.el, nsP, "spPr"), nsA, "xfrm")
	if xfrm == nil {
		xfrm = xmltree.Child(b.el, nsP, "xfrm")
	}
	off := xmltree.Child(xfrm, nsA, "off")
	ext := xmltree.Child(xfrm, nsA, "ext")
	if off == nil || ext == nil {
		return Box{}, false
	}
	num := func(e *etree.Element, key string) int64 {
		v, _ := strconv.ParseInt(e.SelectAttrValue(key, "0"), 10, 64)
		return v
	}
	return Box{X: num(off, "x"), Y: num(off, "y"), CX: num(ext, "cx"), CY: num(ext, "cy")}, true
}

// TextShape is an autoshape or text box with a text body.
type TextShape struct{ baseShape }

// PictureShape is an embedded picture.
type PictureShape struct{ baseShape }

// OtherShape is any other shape-tree element: groups, connectors, graphic
// frames, and autoshapes without text.
type OtherShape struct{ baseShape }

func shapesOf(p *xmlPart, tree *etree.Element) []Shape {
	if tree == nil {
		return nil
	}
	var out []Shape
	for _, c := range tree.ChildElements() {
		if c.NamespaceURI() != nsP {
			continue
		}
		b := baseShape{el: c, part: p}
		switch c.Tag {
		case "nvGrpSpPr", "grpSpPr", "extLst":
			continue
		case "sp":
			if xmltree.Child(c, nsP, "txBody") != nil {
				out = append(out, &TextShape{b})
				continue
			}
		case "pic":
			out = append(out, &PictureShape{b})
			continue
		}
		out = append(out, &OtherShape{b})
	}
	return out
}

// Paragraphs returns the paragraphs of the text body.
func (t *TextShape) Paragraphs() []*Paragraph {
	body := xmltree.Child(t.el, nsP, "txBody")
	var out []*Paragraph
	for _, p := range xmltree.Children(body, nsA, "p") {
		out = append(out, &Paragraph{el: p, part: t.part})
	}
	return out
}

// Runs returns every run of every paragraph in order.
func (t *TextShape) Runs() []*Run {
	var out []*Run
	for _, p := range t.Paragraphs() {
		out = append(out, p.Runs()...)
	}
	return out
}

// Text returns the shape text with paragraphs joined by newlines.
func (t *TextShape) Text() string {
	paras := t.Paragraphs()
	lines := make([]string, len(paras))
	for i, p := range paras {
		lines[i] = p.Text()
	}
	return strings.Join(lines, "\n")
}

// EmbedID returns the relationship id of the embedded image, or "" for
// linked pictures.
func (p *PictureShape) EmbedID() string {
	blip := xmltree.Child(xmltree.Child(p.el, nsP, "blipFill"), nsA, "blip")
	return xmltree.AttrValue(blip, nsR, "embed", "")
}

// Paragraph is one a:p of a text body.
type Paragraph struct {
	el   *etree.Element
	part *xmlPart
}

// Runs returns the text runs of the paragraph. Fields and breaks are not
// runs.
func (p *Paragraph) Runs() []*Run {
	var out []*Run
	for _, r := range xmltree.Children(p.el, nsA, "r") {
		out = append(out, &Run{el: r, part: p.part})
	}
	return out
}

// Text concatenates runs, fields and line breaks as a reader shows them.
func (p *Paragraph) Text() string {
	var sb strings.Builder
	for _, c := range p.el.ChildElements() {
		switch {
		case xmltree.Is(c, nsA, "r"), xmltree.Is(c, nsA, "fld"):
			sb.WriteString(xmltree.Child(c, nsA, "t").NotNil().Text())
		case xmltree.Is(c, nsA, "br"):
			sb.WriteString("\v")
		}
	}
	return sb.String()
}
