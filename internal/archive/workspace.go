// Package archive extracts a presentation container into a private working
// area, tracks edits to its parts and re-packages it.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gnemet/SlideClean/internal/opc"
	"github.com/spf13/afero"
)

// Part is one entry of the container.
type Part struct {
	Path  string
	Class opc.Classification
	Size  int64
}

type entry struct {
	file    *zip.File
	class   opc.Classification
	dir     bool
	dirty   bool
	removed bool
}

// Workspace owns the extracted parts of one container for one run.
type Workspace struct {
	fs      afero.Fs
	cleanup func() error
	entries []*entry
	index   map[string]*entry
	comment string
	logger  *slog.Logger
	closed  bool
}

type options struct {
	fs      afero.Fs
	tempDir string
	logger  *slog.Logger
}

// Option customises Open.
type Option func(*options)

// WithFs extracts into fs instead of the OS filesystem.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithTempDir sets the parent directory of the working area.
func WithTempDir(dir string) Option { return func(o *options) { o.tempDir = dir } }

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// OpenFile reads a container from disk and opens it.
func OpenFile(name string, opts ...Option) (*Workspace, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return Open(data, opts...)
}

// Open validates the container and extracts every entry into a fresh
// working area. The caller must Close the workspace.
func Open(data []byte, opts ...Option) (*Workspace, error) {
	o := options{fs: afero.NewOsFs(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ArchiveError{Op: "open", Err: err}
	}

	root, err := afero.TempDir(o.fs, o.tempDir, "slideclean_")
	if err != nil {
		return nil, fmt.Errorf("creating working area: %w", err)
	}

	ws := &Workspace{
		fs:      afero.NewBasePathFs(o.fs, root),
		cleanup: func() error { return o.fs.RemoveAll(root) },
		index:   make(map[string]*entry, len(zr.File)),
		comment: zr.Comment,
		logger:  o.logger,
	}

	if err := ws.extract(zr); err != nil {
		ws.Close()
		return nil, err
	}

	if e, ok := ws.index[opc.ManifestPath]; !ok || e.dir {
		ws.Close()
		return nil, &ArchiveError{Op: "open", Path: opc.ManifestPath, Err: ErrMissingManifest}
	}

	ws.logger.Debug("workspace opened", "entries", len(ws.entries), "root", root)
	return ws, nil
}

func (ws *Workspace) extract(zr *zip.Reader) error {
	for _, f := range zr.File {
		if err := checkEntryName(f.Name); err != nil {
			return &ArchiveError{Op: "open", Path: f.Name, Err: err}
		}
		if _, dup := ws.index[f.Name]; dup {
			return &ArchiveError{Op: "open", Path: f.Name, Err: ErrDuplicateEntry}
		}

		e := &entry{file: f, dir: strings.HasSuffix(f.Name, "/")}
		ws.entries = append(ws.entries, e)
		ws.index[f.Name] = e
		if e.dir {
			continue
		}
		e.class = opc.Classify(f.Name)

		if err := ws.extractEntry(f); err != nil {
			return &ArchiveError{Op: "extract", Path: f.Name, Err: err}
		}
	}
	return nil
}

func (ws *Workspace) extractEntry(f *zip.File) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := ws.fs.MkdirAll(path.Dir(f.Name), 0o700); err != nil {
		return err
	}
	out, err := ws.fs.OpenFile(f.Name, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func checkEntryName(name string) error {
	switch {
	case name == "", strings.HasPrefix(name, "/"), strings.Contains(name, `\`):
		return ErrUnsafePath
	}
	for _, seg := range strings.Split(strings.TrimSuffix(name, "/"), "/") {
		if seg == ".." || seg == "." || seg == "" {
			return ErrUnsafePath
		}
	}
	return nil
}

// Close releases the working area. It is safe to call more than once.
func (ws *Workspace) Close() error {
	if ws.closed {
		return nil
	}
	ws.closed = true
	return ws.cleanup()
}

// Parts lists the live parts in original entry order.
func (ws *Workspace) Parts() []Part {
	parts := make([]Part, 0, len(ws.entries))
	for _, e := range ws.entries {
		if e.dir || e.removed {
			continue
		}
		parts = append(parts, Part{Path: e.file.Name, Class: e.class, Size: int64(e.file.UncompressedSize64)})
	}
	return parts
}

// Part returns the live part at name.
func (ws *Workspace) Part(name string) (Part, bool) {
	e, ok := ws.lookup(name)
	if !ok {
		return Part{}, false
	}
	return Part{Path: e.file.Name, Class: e.class, Size: int64(e.file.UncompressedSize64)}, true
}

// Has reports whether a live part exists at name.
func (ws *Workspace) Has(name string) bool {
	_, ok := ws.lookup(name)
	return ok
}

func (ws *Workspace) lookup(name string) (*entry, bool) {
	e, ok := ws.index[name]
	if !ok || e.dir || e.removed {
		return nil, false
	}
	return e, true
}

// ReadPart returns the current bytes of a part.
func (ws *Workspace) ReadPart(name string) ([]byte, error) {
	if ws.closed {
		return nil, &ArchiveError{Op: "read", Path: name, Err: ErrClosed}
	}
	if _, ok := ws.lookup(name); !ok {
		return nil, &NotFoundError{Path: name}
	}
	data, err := afero.ReadFile(ws.fs, name)
	if err != nil {
		return nil, &ArchiveError{Op: "read", Path: name, Err: err}
	}
	return data, nil
}

// ReplacePart overwrites the content of an existing part.
func (ws *Workspace) ReplacePart(name string, data []byte) error {
	if ws.closed {
		return &ArchiveError{Op: "replace", Path: name, Err: ErrClosed}
	}
	e, ok := ws.lookup(name)
	if !ok {
		return &NotFoundError{Path: name}
	}
	if e.class.ReadOnly() {
		return &ArchiveError{Op: "replace", Path: name, Err: ErrReadOnly}
	}
	if err := afero.WriteFile(ws.fs, name, data, 0o600); err != nil {
		return &ArchiveError{Op: "replace", Path: name, Err: err}
	}
	e.dirty = true
	return nil
}

// RemovePart deletes a part from the container. Save refuses to package a
// workspace in which a relationship still points at a removed part.
func (ws *Workspace) RemovePart(name string) error {
	if ws.closed {
		return &ArchiveError{Op: "remove", Path: name, Err: ErrClosed}
	}
	e, ok := ws.lookup(name)
	if !ok {
		return &NotFoundError{Path: name}
	}
	if e.class.ReadOnly() {
		return &ArchiveError{Op: "remove", Path: name, Err: ErrReadOnly}
	}
	if err := ws.fs.Remove(name); err != nil {
		return &ArchiveError{Op: "remove", Path: name, Err: err}
	}
	e.removed = true
	return nil
}

// Dirty reports whether a part has been rewritten.
func (ws *Workspace) Dirty(name string) bool {
	e, ok := ws.index[name]
	return ok && e.dirty
}

// Modified lists rewritten or removed parts in entry order.
func (ws *Workspace) Modified() []string {
	var names []string
	for _, e := range ws.entries {
		if e.dirty || e.removed {
			names = append(names, e.file.Name)
		}
	}
	return names
}

// Verify checks the container invariants: every internal relationship
// target exists and every structural part has a declared content type.
func (ws *Workspace) Verify() error {
	manifest, err := ws.ReadPart(opc.ManifestPath)
	if err != nil {
		return &ArchiveError{Op: "verify", Path: opc.ManifestPath, Err: ErrMissingManifest}
	}
	ct, err := opc.ParseContentTypes(manifest)
	if err != nil {
		return &ArchiveError{Op: "verify", Path: opc.ManifestPath, Err: err}
	}

	for _, p := range ws.Parts() {
		switch p.Class {
		case opc.ClassStructuralXML:
			if !ct.Registered(p.Path) {
				return &ArchiveError{Op: "verify", Path: p.Path, Err: ErrUnregistered}
			}
		case opc.ClassRelationshipXML:
			if err := ws.verifyRelationships(p.Path); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ws *Workspace) verifyRelationships(relsPath string) error {
	data, err := ws.ReadPart(relsPath)
	if err != nil {
		return err
	}
	rels, err := opc.ParseRelationships(data)
	if err != nil {
		return &ArchiveError{Op: "verify", Path: relsPath, Err: err}
	}
	source := opc.SourceFor(relsPath)
	for _, rel := range rels.Relationship {
		if rel.External() {
			continue
		}
		target := opc.ResolveTarget(source, rel.Target)
		if ws.Has(target) {
			continue
		}
		if unescaped, err := url.PathUnescape(target); err == nil && ws.Has(unescaped) {
			continue
		}
		return &ArchiveError{
			Op:   "verify",
			Path: relsPath,
			Err:  fmt.Errorf("%w: %s -> %s", ErrDangling, rel.ID, target),
		}
	}
	return nil
}

// Save verifies the invariants and packages the working area. Untouched
// entries are copied with their original compressed bytes; rewritten
// entries are recompressed with their original method.
func (ws *Workspace) Save() ([]byte, error) {
	if ws.closed {
		return nil, &ArchiveError{Op: "save", Err: ErrClosed}
	}
	if err := ws.Verify(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if ws.comment != "" {
		if err := zw.SetComment(ws.comment); err != nil {
			return nil, &ArchiveError{Op: "save", Err: err}
		}
	}

	for _, e := range ws.entries {
		if e.removed {
			continue
		}
		var err error
		if e.dirty {
			err = ws.writeRewritten(zw, e)
		} else {
			err = writeRaw(zw, e.file)
		}
		if err != nil {
			return nil, &ArchiveError{Op: "save", Path: e.file.Name, Err: err}
		}
	}

	if err := zw.Close(); err != nil {
		return nil, &ArchiveError{Op: "save", Err: err}
	}
	ws.logger.Debug("workspace saved", "bytes", buf.Len(), "modified", len(ws.Modified()))
	return buf.Bytes(), nil
}

func writeRaw(zw *zip.Writer, f *zip.File) error {
	fh := f.FileHeader
	w, err := zw.CreateRaw(&fh)
	if err != nil {
		return err
	}
	if fh.Mode().IsDir() || strings.HasSuffix(fh.Name, "/") {
		return nil
	}
	r, err := f.OpenRaw()
	if err != nil {
		return err
	}
	_, err = io.Copy(w, r)
	return err
}

func (ws *Workspace) writeRewritten(zw *zip.Writer, e *entry) error {
	fh := e.file.FileHeader
	fh.CRC32 = 0
	fh.CompressedSize = 0
	fh.CompressedSize64 = 0
	fh.UncompressedSize = 0
	fh.UncompressedSize64 = 0
	fh.Extra = nil
	w, err := zw.CreateHeader(&fh)
	if err != nil {
		return err
	}
	in, err := ws.fs.Open(e.file.Name)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(w, in)
	return err
}
