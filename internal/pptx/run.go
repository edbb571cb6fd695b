package pptx

import (
	"strconv"

	"github.com/beevik/etree"
	"github.com/gnemet/SlideClean/internal/settings"
	"github.com/gnemet/SlideClean/internal/xmltree"
)

// Child order of a:rPr. Fill kinds share one slot.
var rPrOrder = []string{
	"ln",
	"noFill", "solidFill", "gradFill", "blipFill", "pattFill", "grpFill",
	"effectLst", "effectDag", "highlight",
	"uLnTx", "uLn", "uFillTx", "uFill",
	"latin", "ea", "cs", "sym",
	"hlinkClick", "hlinkMouseOver", "rtl", "extLst",
}

var fillKinds = []string{"noFill", "solidFill", "gradFill", "blipFill", "pattFill", "grpFill"}

// Run is one a:r: a stretch of text with uniform character formatting.
// Setters only touch the part when the value actually changes.
type Run struct {
	el   *etree.Element
	part *xmlPart
}

func (r *Run) rPr() *etree.Element { return xmltree.Child(r.el, nsA, "rPr") }

func (r *Run) ensureRPr() *etree.Element {
	return xmltree.Ensure(r.el, nsA, "rPr", []string{"rPr", "t"})
}

func (r *Run) attr(key string) (string, bool) {
	a := xmltree.Attr(r.rPr(), "", key)
	if a == nil {
		return "", false
	}
	return a.Value, true
}

func (r *Run) setAttr(key, value string) {
	if v, ok := r.attr(key); ok && v == value {
		return
	}
	xmltree.SetAttr(r.ensureRPr(), "", key, value)
	r.part.touch()
}

// Text returns the run text.
func (r *Run) Text() string {
	return xmltree.Child(r.el, nsA, "t").NotNil().Text()
}

// SetText replaces the run text.
func (r *Run) SetText(text string) {
	if r.Text() == text {
		return
	}
	t := xmltree.Ensure(r.el, nsA, "t", []string{"rPr", "t"})
	t.SetText(text)
	r.part.touch()
}

// FontFamily returns the Latin typeface override.
func (r *Run) FontFamily() (string, bool) {
	latin := xmltree.Child(r.rPr(), nsA, "latin")
	if latin == nil {
		return "", false
	}
	return latin.SelectAttrValue("typeface", ""), true
}

// SetFontFamily sets the Latin typeface.
func (r *Run) SetFontFamily(family string) {
	if f, ok := r.FontFamily(); ok && f == family {
		return
	}
	latin := xmltree.Ensure(r.ensureRPr(), nsA, "latin", rPrOrder)
	latin.CreateAttr("typeface", family)
	r.part.touch()
}

// Size returns the font size in 1/100 pt.
func (r *Run) Size() (int, bool) {
	return r.intAttr("sz")
}

// SetSize sets the font size in 1/100 pt.
func (r *Run) SetSize(sz int) { r.setAttr("sz", strconv.Itoa(sz)) }

// Bold reports whether the run is explicitly bold.
func (r *Run) Bold() bool {
	v, _ := r.attr("b")
	return v == "1" || v == "true"
}

// SetBold sets the bold flag explicitly, overriding inherited styles.
func (r *Run) SetBold(bold bool) {
	if bold {
		r.setAttr("b", "1")
		return
	}
	r.setAttr("b", "0")
}

// Underline reports whether the run is underlined.
func (r *Run) Underline() bool {
	v, ok := r.attr("u")
	return ok && v != "none"
}

// Spacing returns the character spacing in 1/100 pt.
func (r *Run) Spacing() (int, bool) {
	return r.intAttr("spc")
}

// SetSpacing sets the character spacing in 1/100 pt.
func (r *Run) SetSpacing(spc int) { r.setAttr("spc", strconv.Itoa(spc)) }

// Color returns the run colour when it is an explicit sRGB solid fill.
func (r *Run) Color() (settings.RGB, bool) {
	clr := xmltree.Child(xmltree.Child(r.rPr(), nsA, "solidFill"), nsA, "srgbClr")
	if clr == nil {
		return settings.RGB{}, false
	}
	c, err := settings.ParseRGB(clr.SelectAttrValue("val", ""))
	return c, err == nil
}

// SetColor makes the run a solid sRGB fill, replacing any other fill.
func (r *Run) SetColor(c settings.RGB) {
	rPr := r.rPr()
	if fill := xmltree.Child(rPr, nsA, "solidFill"); fill != nil && isSolidColor(fill, c) && countFills(rPr) == 1 {
		return
	}
	rPr = r.ensureRPr()
	for _, kind := range fillKinds {
		for _, f := range xmltree.Children(rPr, nsA, kind) {
			rPr.RemoveChild(f)
		}
	}
	fill := xmltree.NewElement(rPr, nsA, "solidFill")
	clr := xmltree.NewElement(rPr, nsA, "srgbClr")
	clr.CreateAttr("val", c.Hex())
	fill.AddChild(clr)
	xmltree.InsertOrdered(rPr, fill, rPrOrder)
	r.part.touch()
}

func countFills(rPr *etree.Element) int {
	n := 0
	for _, kind := range fillKinds {
		n += len(xmltree.Children(rPr, nsA, kind))
	}
	return n
}

func (r *Run) intAttr(key string) (int, bool) {
	v, ok := r.attr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
