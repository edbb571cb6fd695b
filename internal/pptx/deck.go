// Package pptx exposes the slides of a presentation container as a tree of
// slides, shapes, paragraphs and runs backed by the container's parts.
// Parts are parsed on first use and written back by Flush.
package pptx

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"

	"github.com/beevik/etree"
	"github.com/gnemet/SlideClean/internal/archive"
	"github.com/gnemet/SlideClean/internal/opc"
	"github.com/gnemet/SlideClean/internal/xmltree"
)

const (
	nsP = xmltree.NsPresentation
	nsA = xmltree.NsDrawing
	nsR = xmltree.NsRelationships

	defaultMainPart = "ppt/presentation.xml"
)

var slidePartRe = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// Store is the part storage a Deck reads from and writes back to.
// *archive.Workspace implements it.
type Store interface {
	Parts() []archive.Part
	Has(name string) bool
	ReadPart(name string) ([]byte, error)
	ReplacePart(name string, data []byte) error
}

type xmlPart struct {
	path  string
	doc   *etree.Document
	dirty bool
}

func (p *xmlPart) root() *etree.Element { return p.doc.Root() }

func (p *xmlPart) touch() { p.dirty = true }

// Deck is the document model of one presentation.
type Deck struct {
	store    Store
	logger   *slog.Logger
	mainPath string
	slides   []*Slide
	parts    map[string]*xmlPart
	order    []string
	rels     map[string]*opc.Relationships
	masters  []*Master
	loaded   bool
}

// Option customises Open.
type Option func(*Deck)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(d *Deck) { d.logger = l } }

// Open reads the slide order of the presentation. Slide parts themselves are
// not parsed until they are visited.
func Open(store Store, opts ...Option) (*Deck, error) {
	d := &Deck{
		store:  store,
		logger: slog.Default(),
		parts:  make(map[string]*xmlPart),
		rels:   make(map[string]*opc.Relationships),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.mainPath = d.findMainPart()
	var paths []string
	var err error
	if d.mainPath != "" {
		paths, err = d.slideOrder()
	} else {
		paths = d.slidesByName()
	}
	if err != nil {
		return nil, err
	}

	for i, p := range paths {
		if !store.Has(p) {
			return nil, &archive.NotFoundError{Path: p}
		}
		d.slides = append(d.slides, &Slide{deck: d, index: i + 1, path: p})
	}
	d.logger.Debug("deck opened", "main", d.mainPath, "slides", len(d.slides))
	return d, nil
}

func (d *Deck) findMainPart() string {
	if rels, err := d.relationships(""); err == nil {
		if rel, ok := rels.FirstOfType(opc.RelTypeOfficeDocument); ok {
			if p := opc.ResolveTarget("", rel.Target); d.store.Has(p) {
				return p
			}
		}
	}
	if d.store.Has(defaultMainPart) {
		return defaultMainPart
	}
	return ""
}

// slideOrder follows the sldIdLst of the presentation part, which is the
// order a reader shows the slides in.
func (d *Deck) slideOrder() ([]string, error) {
	main, err := d.part(d.mainPath)
	if err != nil {
		return nil, err
	}
	rels, err := d.relationships(d.mainPath)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, id := range xmltree.Children(xmltree.Child(main.root(), nsP, "sldIdLst"), nsP, "sldId") {
		rid := xmltree.AttrValue(id, nsR, "id", "")
		rel, ok := rels.ByID(rid)
		if !ok || rel.External() {
			return nil, &archive.ArchiveError{
				Op:   "open",
				Path: d.mainPath,
				Err:  fmt.Errorf("%w: slide id references unknown relationship %q", archive.ErrDangling, rid),
			}
		}
		paths = append(paths, opc.ResolveTarget(d.mainPath, rel.Target))
	}
	return paths, nil
}

// slidesByName orders slideN.xml parts numerically. It is only used when the
// container has no presentation part.
func (d *Deck) slidesByName() []string {
	type numbered struct {
		n    int
		path string
	}
	var found []numbered
	for _, p := range d.store.Parts() {
		m := slidePartRe.FindStringSubmatch(p.Path)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		found = append(found, numbered{n, p.Path})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].n < found[j].n })
	paths := make([]string, len(found))
	for i, f := range found {
		paths[i] = f.path
	}
	return paths
}

// Slides returns the slides in presentation order.
func (d *Deck) Slides() []*Slide { return d.slides }

// Slide returns the slide at 1-based position n, or nil.
func (d *Deck) Slide(n int) *Slide {
	if n < 1 || n > len(d.slides) {
		return nil
	}
	return d.slides[n-1]
}

// Masters returns the layouts and masters used by the slides, each once,
// in first-use order.
func (d *Deck) Masters() ([]*Master, error) {
	if d.loaded {
		return d.masters, nil
	}
	seen := make(map[string]bool)
	add := func(path string, kind MasterKind) {
		if path == "" || seen[path] || !d.store.Has(path) {
			return
		}
		seen[path] = true
		d.masters = append(d.masters, &Master{deck: d, path: path, kind: kind})
	}
	for _, s := range d.slides {
		layout, err := d.target(s.path, opc.RelTypeSlideLayout)
		if err != nil {
			return nil, err
		}
		add(layout, KindLayout)
		if layout == "" {
			continue
		}
		master, err := d.target(layout, opc.RelTypeSlideMaster)
		if err != nil {
			return nil, err
		}
		add(master, KindMaster)
	}
	d.loaded = true
	return d.masters, nil
}

// Media returns the bytes and part path of an image embedded in a slide.
func (d *Deck) Media(s *Slide, relID string) ([]byte, string, error) {
	rels, err := d.relationships(s.path)
	if err != nil {
		return nil, "", err
	}
	rel, ok := rels.ByID(relID)
	if !ok {
		return nil, "", fmt.Errorf("slide %d has no relationship %q", s.index, relID)
	}
	if rel.External() {
		return nil, "", fmt.Errorf("slide %d: %s links external media %s", s.index, relID, rel.Target)
	}
	target := opc.ResolveTarget(s.path, rel.Target)
	data, err := d.store.ReadPart(target)
	if err != nil {
		return nil, target, err
	}
	return data, target, nil
}

// Flush serializes every modified part back into the store and returns the
// paths written. Parts that were only read are left byte-identical.
func (d *Deck) Flush() ([]string, error) {
	var written []string
	for _, path := range d.order {
		p := d.parts[path]
		if !p.dirty {
			continue
		}
		data, err := xmltree.Serialize(p.doc)
		if err != nil {
			return written, fmt.Errorf("serializing %s: %w", path, err)
		}
		if err := d.store.ReplacePart(path, data); err != nil {
			return written, err
		}
		p.dirty = false
		written = append(written, path)
	}
	if len(written) > 0 {
		d.logger.Debug("deck flushed", "parts", len(written))
	}
	return written, nil
}

// Dirty lists parts modified since the last Flush.
func (d *Deck) Dirty() []string {
	var out []string
	for _, path := range d.order {
		if d.parts[path].dirty {
			out = append(out, path)
		}
	}
	return out
}

func (d *Deck) part(path string) (*xmlPart, error) {
	if p, ok := d.parts[path]; ok {
		return p, nil
	}
	data, err := d.store.ReadPart(path)
	if err != nil {
		return nil, err
	}
	doc, err := xmltree.Parse(data)
	if err != nil {
		return nil, &archive.ArchiveError{Op: "parse", Path: path, Err: err}
	}
	p := &xmlPart{path: path, doc: doc}
	d.parts[path] = p
	d.order = append(d.order, path)
	return p, nil
}

func (d *Deck) parsed(path string) bool {
	_, ok := d.parts[path]
	return ok
}

// relationships returns the parsed relationship part of source. A source
// without one has no relationships.
func (d *Deck) relationships(source string) (*opc.Relationships, error) {
	if r, ok := d.rels[source]; ok {
		return r, nil
	}
	relsPath := opc.RelsPathFor(source)
	r := &opc.Relationships{}
	if d.store.Has(relsPath) {
		data, err := d.store.ReadPart(relsPath)
		if err != nil {
			return nil, err
		}
		if r, err = opc.ParseRelationships(data); err != nil {
			return nil, &archive.ArchiveError{Op: "parse", Path: relsPath, Err: err}
		}
	}
	d.rels[source] = r
	return r, nil
}

// target resolves the first internal relationship of a type from source.
func (d *Deck) target(source, relType string) (string, error) {
	rels, err := d.relationships(source)
	if err != nil {
		return "", err
	}
	for _, rel := range rels.Relationship {
		if rel.HasType(relType) && !rel.External() {
			return opc.ResolveTarget(source, rel.Target), nil
		}
	}
	return "", nil
}
