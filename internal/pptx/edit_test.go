package pptx

import (
	"strings"
	"testing"

	"github.com/gnemet/SlideClean/internal/pptxtest"
	"github.com/gnemet/SlideClean/internal/settings"
	"github.com/gnemet/SlideClean/internal/xmltree"
)

func TestRunSettersMarkDirtyOnlyOnChange(t *testing.T) {
	data := pptxtest.New().Slide(pptxtest.TextBox(2, "Body", "text")).Bytes(t)
	d, ws := openDeck(t, data)

	shapes, _ := d.Slide(1).Shapes()
	run := shapes[0].(*TextShape).Runs()[0]

	if sz, ok := run.Size(); !ok || sz != 1800 {
		t.Errorf("Expected size 1800, got %d %v", sz, ok)
	}
	if spc, ok := run.Spacing(); !ok || spc != 120 {
		t.Errorf("Expected spacing 120, got %d %v", spc, ok)
	}

	run.SetSize(1800)
	run.SetSpacing(120)
	if len(d.Dirty()) != 0 {
		t.Fatalf("Expected no dirty parts after no-op setters, got %v", d.Dirty())
	}

	run.SetBold(true)
	run.SetSize(2400)
	run.SetSpacing(0)
	run.SetColor(settings.MustRGB("#112233"))
	run.SetFontFamily("Verdana")

	if !run.Bold() {
		t.Error("Expected bold")
	}
	if c, ok := run.Color(); !ok || c.Hex() != "112233" {
		t.Errorf("Unexpected colour %v %v", c, ok)
	}
	if f, ok := run.FontFamily(); !ok || f != "Verdana" {
		t.Errorf("Unexpected font %q %v", f, ok)
	}

	written, err := d.Flush()
	if err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if len(written) != 1 || written[0] != pptxtest.SlidePath(1) {
		t.Errorf("Unexpected flushed parts %v", written)
	}
	if !ws.Dirty(pptxtest.SlidePath(1)) {
		t.Error("Expected workspace part to be dirty after Flush")
	}
	if again, _ := d.Flush(); len(again) != 0 {
		t.Errorf("Expected second Flush to write nothing, wrote %v", again)
	}

	out, _ := ws.ReadPart(pptxtest.SlidePath(1))
	if !strings.Contains(string(out), `sz="2400" spc="0" dirty="0" b="1"`) {
		t.Errorf("Unexpected run properties in %s", out)
	}
}

func TestSetColorReplacesOtherFills(t *testing.T) {
	slide := `<p:sld xmlns:p="` + pptxtest.NsP + `" xmlns:a="` + pptxtest.NsA + `"><p:cSld><p:spTree>` +
		`<p:sp><p:nvSpPr><p:cNvPr id="2" name="T"/><p:cNvSpPr/><p:nvPr/></p:nvSpPr><p:spPr/><p:txBody><a:bodyPr/>` +
		`<a:p><a:r><a:rPr u="sng"><a:ln w="1"/><a:gradFill/><a:latin typeface="X"/></a:rPr><a:t>u</a:t></a:r></a:p>` +
		`<a:p><a:r><a:t>bare</a:t></a:r></a:p>` +
		`</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
	store := newMemStore("ppt/slides/slide1.xml", slide)
	d, err := Open(store)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	shapes, _ := d.Slide(1).Shapes()
	runs := shapes[0].(*TextShape).Runs()
	if !runs[0].Underline() {
		t.Error("Expected underline")
	}
	for _, r := range runs {
		r.SetColor(settings.RGB{B: 255})
	}

	var tags []string
	for _, c := range runs[0].rPr().ChildElements() {
		tags = append(tags, c.Tag)
	}
	if got := strings.Join(tags, ","); got != "ln,solidFill,latin" {
		t.Errorf("Unexpected rPr children %s", got)
	}

	bare := runs[1].el.ChildElements()
	if len(bare) != 2 || !xmltree.Is(bare[0], pptxtest.NsA, "rPr") || !xmltree.Is(bare[1], pptxtest.NsA, "t") {
		t.Errorf("Expected created rPr before t")
	}
}

func TestInsertTextShapeBefore(t *testing.T) {
	data := pptxtest.New().
		Slide(
			pptxtest.TextBox(2, "Title", "Heading"),
			pptxtest.Picture(7, "Scan", "rId2", 10, 20, 30, 40),
			pptxtest.Connector(3),
		).
		Image("rId2", "image1.png", pptxtest.SolidPNG(2, 2, nil)).
		Bytes(t)
	d, _ := openDeck(t, data)
	slide := d.Slide(1)
	shapes, _ := slide.Shapes()
	pic := shapes[1]
	box, _ := pic.Box()

	ts, err := slide.InsertTextShapeBefore(pic, box, "Line one\nLine two")
	if err != nil {
		t.Fatalf("InsertTextShapeBefore failed: %v", err)
	}
	if ts.ID() != 8 {
		t.Errorf("Expected id 8, got %d", ts.ID())
	}
	if got, _ := ts.Box(); got != box {
		t.Errorf("Expected box %+v, got %+v", box, got)
	}
	if ts.Text() != "Line one\vLine two" {
		t.Errorf("Unexpected text %q", ts.Text())
	}
	if n := len(ts.Runs()); n != 2 {
		t.Errorf("Expected 2 runs, got %d", n)
	}

	shapes, _ = slide.Shapes()
	if len(shapes) != 4 || shapes[1].ID() != 8 || shapes[2].ID() != 7 {
		t.Errorf("Expected new shape directly before the picture")
	}
}

func TestRemoveShapesDropsTimingThatTargetsThem(t *testing.T) {
	timing := `<p:timing><p:tnLst><p:par><p:cTn id="1"><p:childTnLst><p:par><p:cTn id="2"><p:stCondLst><p:cond delay="0"/></p:stCondLst>` +
		`<p:childTnLst><p:set><p:cBhvr><p:cTn id="3"/><p:tgtEl><p:spTgt spid="3"/></p:tgtEl></p:cBhvr></p:set></p:childTnLst></p:cTn></p:par>` +
		`</p:childTnLst></p:cTn></p:par></p:tnLst></p:timing>`
	data := pptxtest.New().
		Slide(pptxtest.TextBox(2, "Keep", "a"), pptxtest.TextBox(3, "Drop", "b")).
		Tail(timing).
		Bytes(t)
	d, _ := openDeck(t, data)
	slide := d.Slide(1)
	shapes, _ := slide.Shapes()

	n, err := slide.RemoveShapes(shapes[1])
	if err != nil || n != 1 {
		t.Fatalf("RemoveShapes = %d, %v", n, err)
	}
	p, _ := slide.part()
	if xmltree.Child(p.root(), pptxtest.NsP, "timing") != nil {
		t.Error("Expected timing targeting the removed shape to be dropped")
	}
	shapes, _ = slide.Shapes()
	if len(shapes) != 1 || shapes[0].Name() != "Keep" {
		t.Errorf("Unexpected remaining shapes")
	}

	if n, _ := slide.RemoveShapes(); n != 0 {
		t.Errorf("Expected nothing removed, got %d", n)
	}
}

func TestSetSolidBackground(t *testing.T) {
	grad := `<p:bg><p:bgPr><a:gradFill><a:gsLst><a:gs pos="0"><a:srgbClr val="000000"/></a:gs></a:gsLst></a:gradFill><a:effectLst/></p:bgPr></p:bg>`
	data := pptxtest.New().
		Slide(pptxtest.TextBox(2, "A", "a")).Background(grad).
		Slide(pptxtest.TextBox(2, "B", "b")).
		Bytes(t)
	d, _ := openDeck(t, data)
	white := settings.RGB{R: 255, G: 255, B: 255}

	for _, s := range d.Slides() {
		before, _ := s.Background()
		changed, err := s.SetSolidBackground(white)
		if err != nil || !changed {
			t.Fatalf("slide %d: SetSolidBackground = %v, %v", s.Index(), changed, err)
		}
		after, _ := s.Background()
		if after.Kind != BackgroundSolid || after.Color != white {
			t.Errorf("slide %d: expected solid white, got %+v (was %+v)", s.Index(), after, before)
		}
		if changed, _ := s.SetSolidBackground(white); changed {
			t.Errorf("slide %d: expected second call to be a no-op", s.Index())
		}
		p, _ := s.part()
		cSld := xmltree.Child(p.root(), pptxtest.NsP, "cSld")
		if first := cSld.ChildElements()[0]; first.Tag != "bg" {
			t.Errorf("slide %d: expected bg first in cSld, got %s", s.Index(), first.Tag)
		}
	}
	if bg, _ := d.Slide(1).Background(); bg.Kind != BackgroundSolid {
		t.Errorf("Expected gradient to be replaced")
	}
}

func TestRemoveTimingAndColorMap(t *testing.T) {
	data := pptxtest.New().
		Slide(pptxtest.TextBox(2, "A", "a")).
		Tail(`<p:transition spd="slow"/><p:timing/>`).
		Bytes(t)
	d, _ := openDeck(t, data)
	s := d.Slide(1)

	if removed, err := s.RemoveTiming(); err != nil || !removed {
		t.Fatalf("RemoveTiming = %v, %v", removed, err)
	}
	if removed, _ := s.RemoveTiming(); removed {
		t.Error("Expected second RemoveTiming to be a no-op")
	}
	if changed, _ := s.ResetColorMap(); changed {
		t.Error("Fixture already follows the master colour map")
	}
}

func TestResetColorMapReplacesOverride(t *testing.T) {
	slide := `<p:sld xmlns:p="` + pptxtest.NsP + `" xmlns:a="` + pptxtest.NsA + `"><p:cSld><p:spTree/></p:cSld>` +
		`<p:clrMapOvr><a:overrideClrMapping bg1="dk1" tx1="lt1"/></p:clrMapOvr><p:timing/></p:sld>`
	store := newMemStore("ppt/slides/slide1.xml", slide)
	d, _ := Open(store)
	if changed, err := d.Slide(1).ResetColorMap(); err != nil || !changed {
		t.Fatalf("ResetColorMap = %v, %v", changed, err)
	}
	d.Flush()
	out := string(store.data["ppt/slides/slide1.xml"])
	if !strings.Contains(out, `</p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr><p:timing/>`) {
		t.Errorf("Unexpected output %s", out)
	}
}

func TestMastersAndDecorations(t *testing.T) {
	data := pptxtest.New().Slide().Slide().Bytes(t)
	d, _ := openDeck(t, data)

	masters, err := d.Masters()
	if err != nil {
		t.Fatalf("Masters failed: %v", err)
	}
	if len(masters) != 2 {
		t.Fatalf("Expected layout and master, got %d", len(masters))
	}
	if masters[0].Kind() != KindLayout || masters[1].Kind() != KindMaster {
		t.Errorf("Unexpected kinds %s %s", masters[0].Kind(), masters[1].Kind())
	}

	want := map[string]int{
		"ppt/slideLayouts/slideLayout1.xml": 1,
		"ppt/slideMasters/slideMaster1.xml": 2,
	}
	for _, m := range masters {
		n, err := m.RemoveDecorations()
		if err != nil {
			t.Fatalf("RemoveDecorations(%s) failed: %v", m.Path(), err)
		}
		if n != want[m.Path()] {
			t.Errorf("%s: expected %d removed, got %d", m.Path(), want[m.Path()], n)
		}
		shapes, _ := m.Shapes()
		for _, sh := range shapes {
			if sh.Name() == "Copyright" {
				continue
			}
			if _, ph := sh.(interface{ Placeholder() (string, bool) }).Placeholder(); !ph {
				t.Errorf("%s: non-placeholder %q survived", m.Path(), sh.Name())
			}
		}
	}

	shapes, _ := masters[1].Shapes()
	var names []string
	for _, sh := range shapes {
		names = append(names, sh.Name())
	}
	if got := strings.Join(names, ","); got != "Title Placeholder 1,Copyright" {
		t.Errorf("Expected the master text box kept, got %s", got)
	}
}

func TestNotesAndOutline(t *testing.T) {
	data := pptxtest.New().
		Slide(pptxtest.TextBox(2, "Body", "Hello")).Notes("first note", "second note").
		Slide().
		Bytes(t)
	d, _ := openDeck(t, data)

	notes, err := d.Slide(1).Notes()
	if err != nil || notes == nil {
		t.Fatalf("Notes = %v, %v", notes, err)
	}
	if notes.Text() != "first note\nsecond note" {
		t.Errorf("Unexpected notes text %q", notes.Text())
	}
	if n, _ := d.Slide(2).Notes(); n != nil {
		t.Error("Expected no notes on slide 2")
	}

	outline, err := d.Outline()
	if err != nil {
		t.Fatalf("Outline failed: %v", err)
	}
	if len(outline) != 2 {
		t.Fatalf("Expected 2 slides, got %d", len(outline))
	}
	first := outline[0]
	if first.Text != "Hello" || first.Notes != "first note\nsecond note" {
		t.Errorf("Unexpected outline %+v", first)
	}
	if len(first.Shapes) != 1 || first.Shapes[0].Type != "other" || first.Shapes[0].Runs[0].Size != 18 {
		t.Errorf("Unexpected shapes %+v", first.Shapes)
	}
	if len(d.Dirty()) != 0 {
		t.Error("Outline must not modify parts")
	}
}
