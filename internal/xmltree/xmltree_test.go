package xmltree

import (
	"strings"
	"testing"
)

const slideDoc = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<pml:sld xmlns:d="http://schemas.openxmlformats.org/drawingml/2006/main" xmlns:rel="http://schemas.openxmlformats.org/officeDocument/2006/relationships" xmlns:pml="http://schemas.openxmlformats.org/presentationml/2006/main"><pml:cSld><pml:spTree><pml:sp><pml:txBody><d:p><d:r><d:rPr sz="1200"/><d:t>Hi</d:t></d:r></d:p></pml:txBody></pml:sp><pml:pic><pml:blipFill><d:blip rel:embed="rId2"/></pml:blipFill></pml:pic></pml:spTree></pml:cSld></pml:sld>`

func TestLookupsIgnorePrefixes(t *testing.T) {
	doc, err := Parse([]byte(slideDoc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	root := doc.Root()
	if !Is(root, NsPresentation, "sld") {
		t.Fatalf("Expected sld root, got %s", root.FullTag())
	}
	tree := Path(root, NsPresentation, "cSld", "spTree")
	if tree == nil {
		t.Fatal("Expected spTree")
	}
	if n := len(Children(tree, NsPresentation, "sp")); n != 1 {
		t.Errorf("Expected 1 sp, got %d", n)
	}
	runs := Descendants(root, NsDrawing, "r")
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	blip := Descendants(root, NsDrawing, "blip")[0]
	if got := AttrValue(blip, NsRelationships, "embed", ""); got != "rId2" {
		t.Errorf("Expected embed rId2, got %q", got)
	}
	if got := QName(tree, NsDrawing, "t"); got != "d:t" {
		t.Errorf("Expected d:t, got %s", got)
	}
}

func TestNewElementDeclaresUnboundNamespace(t *testing.T) {
	doc, err := Parse([]byte(`<root xmlns="urn:x"/>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	el := NewElement(doc.Root(), NsDrawing, "t")
	doc.Root().AddChild(el)
	if el.FullTag() != "a:t" {
		t.Errorf("Expected a:t, got %s", el.FullTag())
	}
	if el.NamespaceURI() != NsDrawing {
		t.Errorf("Expected declared namespace, got %q", el.NamespaceURI())
	}

	def := NewElement(doc.Root(), "urn:x", "child")
	if def.FullTag() != "child" {
		t.Errorf("Expected unprefixed child in default namespace, got %s", def.FullTag())
	}
}

func TestInsertOrdered(t *testing.T) {
	doc, err := Parse([]byte(`<a:rPr xmlns:a="` + NsDrawing + `"><a:ln/><a:latin typeface="X"/><a:extLst/></a:rPr>`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	order := []string{"ln", "solidFill", "effectLst", "latin", "ea", "extLst"}
	Ensure(doc.Root(), NsDrawing, "solidFill", order)
	Ensure(doc.Root(), NsDrawing, "ea", order)
	Ensure(doc.Root(), NsDrawing, "latin", order)

	var tags []string
	for _, c := range doc.Root().ChildElements() {
		tags = append(tags, c.Tag)
	}
	if got := strings.Join(tags, ","); got != "ln,solidFill,latin,ea,extLst" {
		t.Errorf("Unexpected child order %s", got)
	}
}

func TestSetAttr(t *testing.T) {
	doc, _ := Parse([]byte(`<a:rPr xmlns:a="` + NsDrawing + `" sz="1200"/>`))
	SetAttr(doc.Root(), "", "sz", "2400")
	SetAttr(doc.Root(), "", "b", "1")
	out, err := Serialize(doc)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !strings.Contains(string(out), `sz="2400"`) || !strings.Contains(string(out), `b="1"`) {
		t.Errorf("Unexpected output %s", out)
	}
}

func TestParseConvertsDeclaredCharset(t *testing.T) {
	data := append([]byte(`<?xml version="1.0" encoding="ISO-8859-1"?><t>caf`), 0xe9, '<', '/', 't', '>')
	doc, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := doc.Root().Text(); got != "café" {
		t.Errorf("Expected café, got %q", got)
	}
}

func TestParseRejectsEmpty(t *testing.T) {
	if _, err := Parse([]byte("   ")); err == nil {
		t.Error("Expected error for document without root")
	}
}
