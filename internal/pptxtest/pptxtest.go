// Package pptxtest builds small presentation containers for tests.
package pptxtest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

// XML namespaces used by the fixtures.
const (
	NsP    = "http://schemas.openxmlformats.org/presentationml/2006/main"
	NsA    = "http://schemas.openxmlformats.org/drawingml/2006/main"
	NsR    = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
	relNs  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/"
	pkgRel = "http://schemas.openxmlformats.org/package/2006/relationships"

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	nsDecl    = `xmlns:a="` + NsA + `" xmlns:r="` + NsR + `" xmlns:p="` + NsP + `"`
)

// Builder assembles a presentation container.
type Builder struct {
	slides []*SlideBuilder
	media  map[string][]byte
	order  []string
}

// SlideBuilder configures one slide.
type SlideBuilder struct {
	shapes []string
	bg     string
	tail   string
	images [][2]string
	notes  []string
	b      *Builder
}

// New returns an empty builder. A deck always carries one master, one
// layout and one theme.
func New() *Builder {
	b := &Builder{media: make(map[string][]byte)}
	b.addMedia("logo.png", SolidPNG(4, 4, color.Black))
	return b
}

func (b *Builder) addMedia(name string, data []byte) {
	if _, ok := b.media[name]; !ok {
		b.order = append(b.order, name)
	}
	b.media[name] = data
}

// Slide appends a slide made of the given shape XML fragments.
func (b *Builder) Slide(shapes ...string) *SlideBuilder {
	s := &SlideBuilder{shapes: shapes, b: b}
	b.slides = append(b.slides, s)
	return s
}

// Image adds ppt/media/name and a relationship rID from the slide to it.
func (s *SlideBuilder) Image(rID, name string, data []byte) *SlideBuilder {
	s.b.addMedia(name, data)
	s.images = append(s.images, [2]string{rID, name})
	return s
}

// Slide appends another slide to the same deck.
func (s *SlideBuilder) Slide(shapes ...string) *SlideBuilder { return s.b.Slide(shapes...) }

// Bytes packages the deck the slide belongs to.
func (s *SlideBuilder) Bytes(t testing.TB) []byte { return s.b.Bytes(t) }

// Background sets a raw <p:bg> element.
func (s *SlideBuilder) Background(raw string) *SlideBuilder {
	s.bg = raw
	return s
}

// Tail appends raw XML after <p:clrMapOvr>, e.g. <p:timing>.
func (s *SlideBuilder) Tail(raw string) *SlideBuilder {
	s.tail = raw
	return s
}

// Notes attaches a notes slide holding one paragraph per entry.
func (s *SlideBuilder) Notes(paras ...string) *SlideBuilder {
	s.notes = paras
	return s
}

// TextBox returns a text shape with one single-run paragraph per entry.
func TextBox(id int, name string, paras ...string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, id, escape(name))
	fmt.Fprintf(&sb, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="914400" cy="457200"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>`, id*1000, id*1000)
	sb.WriteString(`<p:txBody><a:bodyPr wrap="square"/><a:lstStyle/>`)
	for _, p := range paras {
		fmt.Fprintf(&sb, `<a:p><a:r><a:rPr lang="en-US" sz="1800" spc="120" dirty="0"/><a:t>%s</a:t></a:r></a:p>`, escape(p))
	}
	sb.WriteString(`</p:txBody></p:sp>`)
	return sb.String()
}

// Picture returns a picture shape embedding rID at the given box (EMU).
func Picture(id int, name, rID string, x, y, cx, cy int64) string {
	return fmt.Sprintf(`<p:pic><p:nvPicPr><p:cNvPr id="%d" name="%s"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`+
		`<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`+
		`<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`,
		id, escape(name), rID, x, y, cx, cy)
}

// Connector returns a shape with no text body.
func Connector(id int) string {
	return fmt.Sprintf(`<p:cxnSp><p:nvCxnSpPr><p:cNvPr id="%d" name="Connector %d"/><p:cNvCxnSpPr/><p:nvPr/></p:nvCxnSpPr><p:spPr><a:prstGeom prst="line"><a:avLst/></a:prstGeom></p:spPr></p:cxnSp>`, id, id)
}

// SolidPNG encodes a w×h PNG filled with c, white when c is nil.
func SolidPNG(w, h int, c color.Color) []byte {
	if c == nil {
		c = color.White
	}
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

// SlidePath returns the part path of the 1-based slide n.
func SlidePath(n int) string { return fmt.Sprintf("ppt/slides/slide%d.xml", n) }

// Bytes packages the deck.
func (b *Builder) Bytes(t testing.TB) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, content string, method uint16) {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: method})
		if err != nil {
			t.Fatalf("Failed to create %s in zip: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}

	write("[Content_Types].xml", b.contentTypes(), zip.Deflate)
	write("_rels/.rels", rels(
		rel{"rId1", "officeDocument", "ppt/presentation.xml"},
		rel{"rId2", "metadata/core-properties", "docProps/core.xml"},
	), zip.Deflate)
	write("docProps/core.xml", xmlHeader+`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/"><dc:title>Fixture</dc:title></cp:coreProperties>`, zip.Deflate)
	write("ppt/presentation.xml", b.presentation(), zip.Deflate)
	write("ppt/_rels/presentation.xml.rels", b.presentationRels(), zip.Deflate)

	write("ppt/slideMasters/slideMaster1.xml", masterXML, zip.Deflate)
	write("ppt/slideMasters/_rels/slideMaster1.xml.rels", rels(
		rel{"rId1", "slideLayout", "../slideLayouts/slideLayout1.xml"},
		rel{"rId2", "theme", "../theme/theme1.xml"},
		rel{"rId3", "image", "../media/logo.png"},
	), zip.Deflate)
	write("ppt/slideLayouts/slideLayout1.xml", layoutXML, zip.Deflate)
	write("ppt/slideLayouts/_rels/slideLayout1.xml.rels", rels(
		rel{"rId1", "slideMaster", "../slideMasters/slideMaster1.xml"},
	), zip.Deflate)
	write("ppt/theme/theme1.xml", themeXML, zip.Deflate)

	for i, s := range b.slides {
		n := i + 1
		write(SlidePath(n), s.xml(), zip.Deflate)
		slideRels := []rel{{"rId1", "slideLayout", "../slideLayouts/slideLayout1.xml"}}
		for _, img := range s.images {
			slideRels = append(slideRels, rel{img[0], "image", "../media/" + img[1]})
		}
		if len(s.notes) > 0 {
			slideRels = append(slideRels, rel{"rIdNotes", "notesSlide", fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
			write(fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", n), notesXML(s.notes), zip.Deflate)
			write(fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", n), rels(
				rel{"rId1", "slide", fmt.Sprintf("../slides/slide%d.xml", n)},
			), zip.Deflate)
		}
		write(fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), rels(slideRels...), zip.Deflate)
	}

	for _, name := range b.order {
		write("ppt/media/"+name, string(b.media[name]), zip.Store)
	}

	if err := zw.Close(); err != nil {
		t.Fatalf("Failed to close zip writer: %v", err)
	}
	return buf.Bytes()
}

func (b *Builder) contentTypes() string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	sb.WriteString(`<Default Extension="png" ContentType="image/png"/>`)
	sb.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)
	sb.WriteString(`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`)
	sb.WriteString(`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`)
	for i, s := range b.slides {
		fmt.Fprintf(&sb, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>`, i+1)
		if len(s.notes) > 0 {
			fmt.Fprintf(&sb, `<Override PartName="/ppt/notesSlides/notesSlide%d.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.notesSlide+xml"/>`, i+1)
		}
	}
	sb.WriteString(`</Types>`)
	return sb.String()
}

func (b *Builder) presentation() string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<p:presentation ` + nsDecl + `>`)
	sb.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rIdMaster"/></p:sldMasterIdLst>`)
	sb.WriteString(`<p:sldIdLst>`)
	for i := range b.slides {
		fmt.Fprintf(&sb, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+1)
	}
	sb.WriteString(`</p:sldIdLst><p:sldSz cx="9144000" cy="6858000"/><p:notesSz cx="6858000" cy="9144000"/></p:presentation>`)
	return sb.String()
}

func (b *Builder) presentationRels() string {
	list := []rel{
		{"rIdMaster", "slideMaster", "slideMasters/slideMaster1.xml"},
		{"rIdTheme", "theme", "theme/theme1.xml"},
	}
	for i := range b.slides {
		list = append(list, rel{fmt.Sprintf("rId%d", i+1), "slide", fmt.Sprintf("slides/slide%d.xml", i+1)})
	}
	return rels(list...)
}

func (s *SlideBuilder) xml() string {
	return xmlHeader + `<p:sld ` + nsDecl + `><p:cSld>` + s.bg +
		`<p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
		strings.Join(s.shapes, "") +
		`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` + s.tail + `</p:sld>`
}

func notesXML(paras []string) string {
	var sb strings.Builder
	sb.WriteString(xmlHeader + `<p:notes ` + nsDecl + `><p:cSld><p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>`)
	sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Slide Image Placeholder 1"/><p:cNvSpPr/><p:nvPr><p:ph type="sldImg"/></p:nvPr></p:nvSpPr><p:spPr/></p:sp>`)
	sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="3" name="Notes Placeholder 2"/><p:cNvSpPr/><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>`)
	for _, p := range paras {
		fmt.Fprintf(&sb, `<a:p><a:r><a:rPr lang="nl-NL"/><a:t>%s</a:t></a:r></a:p>`, escape(p))
	}
	sb.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld></p:notes>`)
	return sb.String()
}

type rel struct {
	id, kind, target string
}

func rels(list ...rel) string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	sb.WriteString(`<Relationships xmlns="` + pkgRel + `">`)
	for _, r := range list {
		kind := relNs + r.kind
		if r.kind == "metadata/core-properties" {
			kind = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"
		}
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, kind, r.target)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}

var masterXML = xmlHeader + `<p:sldMaster ` + nsDecl + `><p:cSld>` +
	`<p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg>` +
	`<p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title Placeholder 1"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/><a:p><a:r><a:rPr lang="en-US"/><a:t>Click to edit Master title style</a:t></a:r></a:p></p:txBody></p:sp>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="7" name="Decoration Band"/><p:cNvSpPr/><p:nvPr userDrawn="1"/></p:nvSpPr><p:spPr><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:sp>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="10" name="Copyright"/><p:cNvSpPr txBox="1"/><p:nvPr userDrawn="1"/></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/><a:p><a:r><a:rPr lang="en-US"/><a:t>Copyright Example Ltd</a:t></a:r></a:p></p:txBody></p:sp>` +
	`<p:pic><p:nvPicPr><p:cNvPr id="8" name="Logo"/><p:cNvPicPr/><p:nvPr userDrawn="1"/></p:nvPicPr><p:blipFill><a:blip r:embed="rId3"/></p:blipFill><p:spPr/></p:pic>` +
	`</p:spTree></p:cSld><p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst></p:sldMaster>`

var layoutXML = xmlHeader + `<p:sldLayout ` + nsDecl + ` type="title" preserve="1"><p:cSld name="Title Slide">` +
	`<p:spTree><p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr><p:grpSpPr/>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="ctrTitle"/></p:nvPr></p:nvSpPr><p:spPr/></p:sp>` +
	`<p:sp><p:nvSpPr><p:cNvPr id="9" name="Layout Stripe"/><p:cNvSpPr/><p:nvPr userDrawn="1"/></p:nvSpPr><p:spPr><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:sp>` +
	`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sldLayout>`

var themeXML = xmlHeader + `<a:theme xmlns:a="` + NsA + `" name="Office Theme"><a:themeElements><a:clrScheme name="Office"/><a:fontScheme name="Office"/><a:fmtScheme name="Office"/></a:themeElements></a:theme>`
