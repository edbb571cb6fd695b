package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/gnemet/SlideClean/internal/opc"
	"github.com/gnemet/SlideClean/internal/pptxtest"
	"github.com/spf13/afero"
)

func openFixture(t *testing.T, data []byte) (*Workspace, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	ws, err := Open(data, WithFs(fs))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws, fs
}

func readZip(t *testing.T, data []byte) (names []string, contents map[string][]byte, methods map[string]uint16) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Failed to read zip: %v", err)
	}
	contents = make(map[string][]byte)
	methods = make(map[string]uint16)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("Failed to open %s: %v", f.Name, err)
		}
		b, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("Failed to read %s: %v", f.Name, err)
		}
		names = append(names, f.Name)
		contents[f.Name] = b
		methods[f.Name] = f.Method
	}
	return names, contents, methods
}

func TestOpenRejectsNonZip(t *testing.T) {
	_, err := Open([]byte("not a zip"), WithFs(afero.NewMemMapFs()))
	var ae *ArchiveError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected ArchiveError, got %v", err)
	}
}

func TestOpenRequiresManifest(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("ppt/presentation.xml")
	w.Write([]byte("<p:presentation/>"))
	zw.Close()

	_, err := Open(buf.Bytes(), WithFs(afero.NewMemMapFs()))
	if !errors.Is(err, ErrMissingManifest) {
		t.Fatalf("Expected ErrMissingManifest, got %v", err)
	}
}

func TestOpenRejectsUnsafePaths(t *testing.T) {
	for _, name := range []string{"../evil.xml", "ppt/../../evil.xml", "/abs.xml", `ppt\slides\slide1.xml`} {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			zw := zip.NewWriter(&buf)
			w, _ := zw.Create(opc.ManifestPath)
			w.Write([]byte("<Types/>"))
			w, _ = zw.Create(name)
			w.Write([]byte("x"))
			zw.Close()

			_, err := Open(buf.Bytes(), WithFs(afero.NewMemMapFs()))
			var ae *ArchiveError
			if !errors.As(err, &ae) {
				t.Fatalf("Expected ArchiveError for %q, got %v", name, err)
			}
		})
	}
}

func TestPartsPreserveEntryOrder(t *testing.T) {
	data := pptxtest.New().Slide(pptxtest.TextBox(2, "A", "a")).Bytes(t)
	ws, _ := openFixture(t, data)

	want, _, _ := readZip(t, data)
	parts := ws.Parts()
	if len(parts) != len(want) {
		t.Fatalf("Expected %d parts, got %d", len(want), len(parts))
	}
	for i, p := range parts {
		if p.Path != want[i] {
			t.Errorf("part %d: expected %s, got %s", i, want[i], p.Path)
		}
		if p.Class != opc.Classify(p.Path) {
			t.Errorf("part %s: expected class %v, got %v", p.Path, opc.Classify(p.Path), p.Class)
		}
	}
}

func TestSaveRoundTripUnmodified(t *testing.T) {
	data := pptxtest.New().
		Slide(pptxtest.TextBox(2, "A", "hello")).
		Image("rId2", "image1.png", pptxtest.SolidPNG(8, 8, nil)).
		Bytes(t)
	ws, _ := openFixture(t, data)

	out, err := ws.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	wantNames, wantContents, wantMethods := readZip(t, data)
	gotNames, gotContents, gotMethods := readZip(t, out)
	if len(gotNames) != len(wantNames) {
		t.Fatalf("Expected %d entries, got %d", len(wantNames), len(gotNames))
	}
	for i := range wantNames {
		if gotNames[i] != wantNames[i] {
			t.Errorf("entry %d: expected %s, got %s", i, wantNames[i], gotNames[i])
		}
		name := wantNames[i]
		if !bytes.Equal(gotContents[name], wantContents[name]) {
			t.Errorf("content of %s changed", name)
		}
		if gotMethods[name] != wantMethods[name] {
			t.Errorf("method of %s changed: %d -> %d", name, wantMethods[name], gotMethods[name])
		}
	}
}

func TestReplacePart(t *testing.T) {
	data := pptxtest.New().Slide(pptxtest.TextBox(2, "A", "hello")).Bytes(t)
	ws, _ := openFixture(t, data)

	slide := pptxtest.SlidePath(1)
	if err := ws.ReplacePart(slide, []byte("<p:sld/>")); err != nil {
		t.Fatalf("ReplacePart failed: %v", err)
	}
	if !ws.Dirty(slide) {
		t.Error("Expected slide to be dirty")
	}
	got, err := ws.ReadPart(slide)
	if err != nil || string(got) != "<p:sld/>" {
		t.Errorf("ReadPart = %q, %v", got, err)
	}

	out, err := ws.Save()
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	_, contents, methods := readZip(t, out)
	if string(contents[slide]) != "<p:sld/>" {
		t.Errorf("Saved slide = %q", contents[slide])
	}
	if methods[slide] != zip.Deflate {
		t.Errorf("Expected Deflate for rewritten slide, got %d", methods[slide])
	}
}

func TestReplacePartErrors(t *testing.T) {
	data := pptxtest.New().Slide().Bytes(t)
	ws, _ := openFixture(t, data)

	var nf *NotFoundError
	if err := ws.ReplacePart("ppt/slides/slide9.xml", nil); !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError, got %v", err)
	}
	for _, ro := range []string{opc.ManifestPath, "ppt/slides/_rels/slide1.xml.rels"} {
		if err := ws.ReplacePart(ro, []byte("x")); !errors.Is(err, ErrReadOnly) {
			t.Errorf("Expected ErrReadOnly for %s, got %v", ro, err)
		}
	}
	if _, err := ws.ReadPart("missing.xml"); !errors.As(err, &nf) {
		t.Errorf("Expected NotFoundError from ReadPart, got %v", err)
	}
}

func TestSaveFailsOnDanglingRelationship(t *testing.T) {
	data := pptxtest.New().
		Slide(pptxtest.Picture(2, "Picture 1", "rId2", 0, 0, 10, 10)).
		Image("rId2", "image1.png", pptxtest.SolidPNG(2, 2, nil)).
		Bytes(t)
	ws, _ := openFixture(t, data)

	if err := ws.RemovePart("ppt/media/image1.png"); err != nil {
		t.Fatalf("RemovePart failed: %v", err)
	}
	_, err := ws.Save()
	var ae *ArchiveError
	if !errors.As(err, &ae) {
		t.Fatalf("Expected ArchiveError, got %v", err)
	}
	if !errors.Is(err, ErrDangling) {
		t.Errorf("Expected ErrDangling, got %v", err)
	}
}

func TestSaveFailsOnUnregisteredPart(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create(opc.ManifestPath)
	w.Write([]byte(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/></Types>`))
	w, _ = zw.Create("ppt/slides/slide1.xml")
	w.Write([]byte(`<p:sld/>`))
	zw.Close()

	ws, _ := openFixture(t, buf.Bytes())
	if _, err := ws.Save(); !errors.Is(err, ErrUnregistered) {
		t.Fatalf("Expected ErrUnregistered, got %v", err)
	}
}

func TestExternalRelationshipsAreIgnored(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create(opc.ManifestPath)
	w.Write([]byte(`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"><Default Extension="xml" ContentType="application/xml"/></Types>`))
	w, _ = zw.Create("ppt/slides/slide1.xml")
	w.Write([]byte(`<p:sld/>`))
	w, _ = zw.Create("ppt/slides/_rels/slide1.xml.rels")
	w.Write([]byte(`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"><Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink" Target="https://example.com/x" TargetMode="External"/></Relationships>`))
	zw.Close()

	ws, _ := openFixture(t, buf.Bytes())
	if _, err := ws.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
}

func TestCloseReleasesWorkingArea(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/work", 0o755); err != nil {
		t.Fatal(err)
	}
	ws, err := Open(pptxtest.New().Slide().Bytes(t), WithFs(fs), WithTempDir("/work"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	entries, _ := afero.ReadDir(fs, "/work")
	if len(entries) != 1 {
		t.Fatalf("Expected one working area, got %d", len(entries))
	}

	if err := ws.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ws.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
	entries, _ = afero.ReadDir(fs, "/work")
	if len(entries) != 0 {
		t.Errorf("Expected working area to be removed, found %d entries", len(entries))
	}
	if _, err := ws.Save(); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed after Close, got %v", err)
	}
}

func TestOpenFailureReleasesWorkingArea(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, _ := zw.Create("ppt/slides/slide1.xml")
	w.Write([]byte(`<p:sld/>`))
	zw.Close()

	fs := afero.NewMemMapFs()
	if err := fs.MkdirAll("/work", 0o755); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(buf.Bytes(), WithFs(fs), WithTempDir("/work")); err == nil {
		t.Fatal("Expected Open to fail without manifest")
	}
	entries, _ := afero.ReadDir(fs, "/work")
	if len(entries) != 0 {
		t.Errorf("Expected no leftover working area, found %d entries", len(entries))
	}
}
