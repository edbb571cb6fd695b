package pptx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/gnemet/SlideClean/internal/opc"
	"github.com/gnemet/SlideClean/internal/settings"
	"github.com/gnemet/SlideClean/internal/xmltree"
)

// Child order of p:cSld and of the slide root.
var (
	cSldOrder  = []string{"bg", "spTree", "custDataLst", "controls", "extLst"}
	slideOrder = []string{"cSld", "clrMapOvr", "transition", "timing", "extLst"}
)

// Slide is one slide at its position in the deck.
type Slide struct {
	deck  *Deck
	index int
	path  string
}

// Index is the 1-based position of the slide.
func (s *Slide) Index() int { return s.index }

// Path is the slide's part path.
func (s *Slide) Path() string { return s.path }

// Loaded reports whether the slide part has been parsed.
func (s *Slide) Loaded() bool { return s.deck.parsed(s.path) }

func (s *Slide) part() (*xmlPart, error) { return s.deck.part(s.path) }

func (s *Slide) spTree() (*xmlPart, *etree.Element, error) {
	p, err := s.part()
	if err != nil {
		return nil, nil, err
	}
	tree := xmltree.Path(p.root(), nsP, "cSld", "spTree")
	if tree == nil {
		return nil, nil, fmt.Errorf("slide %d: no shape tree", s.index)
	}
	return p, tree, nil
}

// Shapes returns the top-level shapes of the slide in z-order.
func (s *Slide) Shapes() ([]Shape, error) {
	p, tree, err := s.spTree()
	if err != nil {
		return nil, err
	}
	return shapesOf(p, tree), nil
}

// LayoutPath returns the layout part the slide is based on.
func (s *Slide) LayoutPath() (string, error) {
	return s.deck.target(s.path, opc.RelTypeSlideLayout)
}

// RemoveShapes detaches shapes from the slide tree. Animation timing that
// targets a removed shape is dropped with it so the slide stays readable.
// Relationships and media parts are never touched.
func (s *Slide) RemoveShapes(shapes ...Shape) (int, error) {
	p, tree, err := s.spTree()
	if err != nil {
		return 0, err
	}
	ids := make(map[string]bool)
	removed := 0
	for _, sh := range shapes {
		el := sh.Element()
		if el.Parent() != tree {
			continue
		}
		if id := sh.ID(); id > 0 {
			ids[strconv.Itoa(id)] = true
		}
		tree.RemoveChild(el)
		removed++
	}
	if removed == 0 {
		return 0, nil
	}
	p.touch()
	if timingTargets(p.root(), ids) {
		removeTiming(p.root())
		s.deck.logger.Debug("timing dropped with removed shapes", "slide", s.index)
	}
	return removed, nil
}

// timingTargets reports whether the slide's animations refer to any of ids.
func timingTargets(root *etree.Element, ids map[string]bool) bool {
	timing := xmltree.Child(root, nsP, "timing")
	if timing == nil || len(ids) == 0 {
		return false
	}
	for _, tgt := range xmltree.Descendants(timing, nsP, "spTgt") {
		if ids[tgt.SelectAttrValue("spid", "")] {
			return true
		}
	}
	for _, bld := range xmltree.Descendants(timing, nsP, "bldP") {
		if ids[bld.SelectAttrValue("spid", "")] {
			return true
		}
	}
	return false
}

// InsertTextShapeBefore adds a text box at box holding text and places it
// directly before ref in z-order. Each line of text becomes one run; lines
// are separated by line breaks inside a single paragraph.
func (s *Slide) InsertTextShapeBefore(ref Shape, box Box, text string) (*TextShape, error) {
	p, tree, err := s.spTree()
	if err != nil {
		return nil, err
	}
	id := nextShapeID(tree)
	sp := buildTextBox(p.root(), id, box, text)

	if ref != nil && ref.Element().Parent() == tree {
		tree.InsertChildAt(ref.Element().Index(), sp)
	} else {
		insertShape(tree, sp)
	}
	p.touch()
	return &TextShape{baseShape{el: sp, part: p}}, nil
}

// insertShape appends before a trailing p:extLst, which must stay last.
func insertShape(tree, sp *etree.Element) {
	if ext := xmltree.Child(tree, nsP, "extLst"); ext != nil {
		tree.InsertChildAt(ext.Index(), sp)
		return
	}
	tree.AddChild(sp)
}

func nextShapeID(tree *etree.Element) int {
	maxID := 0
	for _, c := range xmltree.Descendants(tree, nsP, "cNvPr") {
		if v, err := strconv.Atoi(c.SelectAttrValue("id", "")); err == nil && v > maxID {
			maxID = v
		}
	}
	return maxID + 1
}

func buildTextBox(scope *etree.Element, id int, box Box, text string) *etree.Element {
	el := func(ns, local string) *etree.Element { return xmltree.NewElement(scope, ns, local) }
	add := func(parent *etree.Element, ns, local string) *etree.Element {
		c := el(ns, local)
		parent.AddChild(c)
		return c
	}

	sp := el(nsP, "sp")
	nv := add(sp, nsP, "nvSpPr")
	cNvPr := add(nv, nsP, "cNvPr")
	cNvPr.CreateAttr("id", strconv.Itoa(id))
	cNvPr.CreateAttr("name", fmt.Sprintf("TextBox %d", id-1))
	add(nv, nsP, "cNvSpPr").CreateAttr("txBox", "1")
	add(nv, nsP, "nvPr")

	spPr := add(sp, nsP, "spPr")
	xfrm := add(spPr, nsA, "xfrm")
	off := add(xfrm, nsA, "off")
	off.CreateAttr("x", strconv.FormatInt(box.X, 10))
	off.CreateAttr("y", strconv.FormatInt(box.Y, 10))
	ext := add(xfrm, nsA, "ext")
	ext.CreateAttr("cx", strconv.FormatInt(box.CX, 10))
	ext.CreateAttr("cy", strconv.FormatInt(box.CY, 10))
	geom := add(spPr, nsA, "prstGeom")
	geom.CreateAttr("prst", "rect")
	add(geom, nsA, "avLst")
	add(spPr, nsA, "noFill")

	body := add(sp, nsP, "txBody")
	bodyPr := add(body, nsA, "bodyPr")
	bodyPr.CreateAttr("wrap", "square")
	bodyPr.CreateAttr("rtlCol", "0")
	add(bodyPr, nsA, "spAutoFit")
	add(body, nsA, "lstStyle")
	para := add(body, nsA, "p")

	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i > 0 {
			add(para, nsA, "br")
		}
		r := add(para, nsA, "r")
		rPr := add(r, nsA, "rPr")
		rPr.CreateAttr("lang", "en-US")
		rPr.CreateAttr("dirty", "0")
		add(r, nsA, "t").SetText(line)
	}
	return sp
}

// BackgroundKind names the fill a slide background uses.
type BackgroundKind string

const (
	BackgroundNone      BackgroundKind = "none"
	BackgroundSolid     BackgroundKind = "solid"
	BackgroundGradient  BackgroundKind = "gradient"
	BackgroundPicture   BackgroundKind = "picture"
	BackgroundPattern   BackgroundKind = "pattern"
	BackgroundReference BackgroundKind = "reference"
)

// Background describes the slide's own background fill. Kind none means the
// slide inherits it from its layout.
type Background struct {
	Kind  BackgroundKind
	Color settings.RGB
}

// Background reads the slide's background fill descriptor.
func (s *Slide) Background() (Background, error) {
	p, err := s.part()
	if err != nil {
		return Background{}, err
	}
	bg := xmltree.Path(p.root(), nsP, "cSld", "bg")
	if bg == nil {
		return Background{Kind: BackgroundNone}, nil
	}
	if xmltree.Child(bg, nsP, "bgRef") != nil {
		return Background{Kind: BackgroundReference}, nil
	}
	bgPr := xmltree.Child(bg, nsP, "bgPr")
	switch {
	case xmltree.Child(bgPr, nsA, "solidFill") != nil:
		out := Background{Kind: BackgroundSolid}
		if clr := xmltree.Child(xmltree.Child(bgPr, nsA, "solidFill"), nsA, "srgbClr"); clr != nil {
			out.Color, _ = settings.ParseRGB(clr.SelectAttrValue("val", ""))
		}
		return out, nil
	case xmltree.Child(bgPr, nsA, "gradFill") != nil:
		return Background{Kind: BackgroundGradient}, nil
	case xmltree.Child(bgPr, nsA, "blipFill") != nil:
		return Background{Kind: BackgroundPicture}, nil
	case xmltree.Child(bgPr, nsA, "pattFill") != nil:
		return Background{Kind: BackgroundPattern}, nil
	}
	return Background{Kind: BackgroundNone}, nil
}

// SetSolidBackground replaces whatever background the slide has, including
// an inherited one, with a solid fill. It reports whether the slide changed.
func (s *Slide) SetSolidBackground(c settings.RGB) (bool, error) {
	p, err := s.part()
	if err != nil {
		return false, err
	}
	cSld := xmltree.Child(p.root(), nsP, "cSld")
	if cSld == nil {
		return false, fmt.Errorf("slide %d: no common slide data", s.index)
	}
	bg := xmltree.Child(cSld, nsP, "bg")
	if isSolidBackground(bg, c) {
		return false, nil
	}
	if bg != nil {
		cSld.RemoveChild(bg)
	}

	root := p.root()
	bg = xmltree.NewElement(root, nsP, "bg")
	bgPr := xmltree.NewElement(root, nsP, "bgPr")
	fill := xmltree.NewElement(root, nsA, "solidFill")
	clr := xmltree.NewElement(root, nsA, "srgbClr")
	clr.CreateAttr("val", c.Hex())
	fill.AddChild(clr)
	bgPr.AddChild(fill)
	bgPr.AddChild(xmltree.NewElement(root, nsA, "effectLst"))
	bg.AddChild(bgPr)
	xmltree.InsertOrdered(cSld, bg, cSldOrder)
	p.touch()
	return true, nil
}

func isSolidBackground(bg *etree.Element, c settings.RGB) bool {
	bgPr := xmltree.Child(bg, nsP, "bgPr")
	if bgPr == nil {
		return false
	}
	kids := bgPr.ChildElements()
	if len(kids) != 2 || !xmltree.Is(kids[0], nsA, "solidFill") || !xmltree.Is(kids[1], nsA, "effectLst") {
		return false
	}
	return isSolidColor(kids[0], c)
}

// isSolidColor reports whether fill is exactly <a:solidFill><a:srgbClr val=c/>.
func isSolidColor(fill *etree.Element, c settings.RGB) bool {
	kids := fill.ChildElements()
	if len(kids) != 1 || !xmltree.Is(kids[0], nsA, "srgbClr") || len(kids[0].ChildElements()) != 0 {
		return false
	}
	return strings.EqualFold(kids[0].SelectAttrValue("val", ""), c.Hex())
}

// RemoveTiming drops the slide's animation timing and transition. It
// reports whether anything was removed.
func (s *Slide) RemoveTiming() (bool, error) {
	p, err := s.part()
	if err != nil {
		return false, err
	}
	if !removeTiming(p.root()) {
		return false, nil
	}
	p.touch()
	return true, nil
}

func removeTiming(root *etree.Element) bool {
	changed := false
	for _, c := range root.ChildElements() {
		switch {
		case xmltree.Is(c, nsP, "timing"), xmltree.Is(c, nsP, "transition"):
			root.RemoveChild(c)
			changed = true
		case c.Tag == "AlternateContent" && wrapsTransition(c):
			root.RemoveChild(c)
			changed = true
		}
	}
	return changed
}

// wrapsTransition matches the markup-compatibility wrapper newer writers
// put around p:transition.
func wrapsTransition(ac *etree.Element) bool {
	for _, branch := range ac.ChildElements() {
		for _, c := range branch.ChildElements() {
			if xmltree.Is(c, nsP, "transition") || xmltree.Is(c, nsP, "timing") {
				return true
			}
		}
	}
	return false
}

// ResetColorMap makes the slide follow its master's colour mapping. It
// reports whether the slide had its own override.
func (s *Slide) ResetColorMap() (bool, error) {
	p, err := s.part()
	if err != nil {
		return false, err
	}
	root := p.root()
	ovr := xmltree.Child(root, nsP, "clrMapOvr")
	if ovr != nil {
		kids := ovr.ChildElements()
		if len(kids) == 1 && xmltree.Is(kids[0], nsA, "masterClrMapping") {
			return false, nil
		}
		root.RemoveChild(ovr)
	}
	ovr = xmltree.NewElement(root, nsP, "clrMapOvr")
	ovr.AddChild(xmltree.NewElement(root, nsA, "masterClrMapping"))
	xmltree.InsertOrdered(root, ovr, slideOrder)
	p.touch()
	return true, nil
}

// Notes returns the slide's speaker notes, or nil when it has none.
func (s *Slide) Notes() (*Notes, error) {
	target, err := s.deck.target(s.path, opc.RelTypeNotesSlide)
	if err != nil || target == "" {
		return nil, err
	}
	if !s.deck.store.Has(target) {
		return nil, nil
	}
	p, err := s.deck.part(target)
	if err != nil {
		return nil, err
	}
	return &Notes{part: p}, nil
}

// Notes is a speaker-notes page.
type Notes struct {
	part *xmlPart
}

// Path is the notes part path.
func (n *Notes) Path() string { return n.part.path }

// TextShapes returns the text-bearing shapes of the notes page, skipping the
// slide image placeholder.
func (n *Notes) TextShapes() []*TextShape {
	tree := xmltree.Path(n.part.root(), nsP, "cSld", "spTree")
	var out []*TextShape
	for _, sh := range shapesOf(n.part, tree) {
		if ts, ok := sh.(*TextShape); ok {
			out = append(out, ts)
		}
	}
	return out
}

// Text returns the notes text, one line per paragraph.
func (n *Notes) Text() string {
	var lines []string
	for _, ts := range n.TextShapes() {
		if t := strings.TrimSpace(ts.Text()); t != "" {
			lines = append(lines, t)
		}
	}
	return strings.Join(lines, "\n")
}
