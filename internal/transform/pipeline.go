// Package transform runs the cleaning steps over a deck. Each slide goes
// through dedup, formatting, OCR, background, animation and notes steps in
// that order; shapes queued for removal are removed together at the end of
// the slide. Theme cleanup runs once per deck.
package transform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/gnemet/SlideClean/internal/archive"
	"github.com/gnemet/SlideClean/internal/ocr"
	"github.com/gnemet/SlideClean/internal/pptx"
	"github.com/gnemet/SlideClean/internal/settings"
)

const (
	DefaultOCRTimeout = 30 * time.Second

	// Below this CIE76 distance text is hard to read on the background.
	minContrast = 0.25
)

// ErrNoRecognizer is returned when OCR is enabled without a recognizer.
var ErrNoRecognizer = errors.New("OCR enabled but no recognizer configured")

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRecognizer sets the OCR engine used for picture substitution.
func WithRecognizer(r ocr.Recognizer) Option { return func(p *Pipeline) { p.recognizer = r } }

// WithOCRTimeout bounds each recognition call.
func WithOCRTimeout(d time.Duration) Option { return func(p *Pipeline) { p.ocrTimeout = d } }

// WithLogger sets the logger for warnings about recovered failures.
func WithLogger(l *slog.Logger) Option { return func(p *Pipeline) { p.logger = l } }

// Pipeline applies one Settings value to decks.
type Pipeline struct {
	settings   settings.Settings
	recognizer ocr.Recognizer
	ocrTimeout time.Duration
	logger     *slog.Logger
	expander   *expander
	steps      []step
}

type step struct {
	name  string
	apply func(ctx context.Context, r *slideRun) error
}

// New validates s and builds the step list it enables.
func New(s settings.Settings, opts ...Option) (*Pipeline, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	p := &Pipeline{settings: s, ocrTimeout: DefaultOCRTimeout}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if s.EnableOCR {
		if p.recognizer == nil {
			return nil, ErrNoRecognizer
		}
		p.recognizer = ocr.WithTimeout(p.recognizer, p.ocrTimeout)
	}
	if s.ExpandAbbreviations {
		p.expander = newExpander(s.Abbreviations)
	}

	if s.RemoveDuplicates {
		p.steps = append(p.steps, step{"dedup", dedup})
	}
	p.steps = append(p.steps, step{"format", format})
	if s.EnableOCR {
		p.steps = append(p.steps, step{"ocr", recognizePictures})
	}
	p.steps = append(p.steps, step{"background", background})
	if s.RemoveAnimations {
		p.steps = append(p.steps, step{"animations", removeAnimations})
	}
	if s.ExpandAbbreviations {
		p.steps = append(p.steps, step{"notes", expandNotes})
	}
	return p, nil
}

// Steps lists the enabled per-slide steps in the order they run.
func (p *Pipeline) Steps() []string {
	names := make([]string, len(p.steps))
	for i, s := range p.steps {
		names[i] = s.name
	}
	return names
}

// Run transforms every slide of deck. Only container errors abort; any
// other failure is recorded in the report and the run continues. Changes
// stay in the deck until the caller flushes it.
func (p *Pipeline) Run(ctx context.Context, deck *pptx.Deck) (*Report, error) {
	report := &Report{}
	if p.settings.TextColor.Contrast(p.settings.BackgroundColor) < minContrast {
		p.logger.Warn("text colour is close to the background colour",
			"text", p.settings.TextColor.String(), "background", p.settings.BackgroundColor.String())
		report.note("text colour %s has low contrast against background %s",
			p.settings.TextColor, p.settings.BackgroundColor)
	}

	for _, slide := range deck.Slides() {
		report.Slides++
		if err := p.runSlide(ctx, deck, slide, report); err != nil {
			return report, err
		}
	}

	if p.settings.RemoveTheme {
		if err := p.removeTheme(deck, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

type slideRun struct {
	p      *Pipeline
	deck   *pptx.Deck
	slide  *pptx.Slide
	report *Report
	queued []pptx.Shape
	seen   map[*etree.Element]bool
}

func (r *slideRun) queue(sh pptx.Shape) {
	if r.seen[sh.Element()] {
		return
	}
	r.seen[sh.Element()] = true
	r.queued = append(r.queued, sh)
}

func (r *slideRun) isQueued(sh pptx.Shape) bool { return r.seen[sh.Element()] }

// fail records a recovered failure. Container errors are returned instead
// so the run aborts.
func (r *slideRun) fail(step string, sh pptx.Shape, err error) error {
	if isFatal(err) {
		return err
	}
	f := Failure{Slide: r.slide.Index(), Step: step, Message: err.Error(), Err: err}
	if sh != nil {
		f.Shape = sh.Name()
	}
	r.report.Failures = append(r.report.Failures, f)
	r.p.logger.Warn("transform step failed",
		"slide", f.Slide, "step", step, "shape", f.Shape, "error", err)
	return nil
}

func (p *Pipeline) runSlide(ctx context.Context, deck *pptx.Deck, slide *pptx.Slide, report *Report) error {
	r := &slideRun{p: p, deck: deck, slide: slide, report: report, seen: make(map[*etree.Element]bool)}
	for _, s := range p.steps {
		if err := s.apply(ctx, r); err != nil {
			if err := r.fail(s.name, nil, err); err != nil {
				return err
			}
		}
	}
	if len(r.queued) == 0 {
		return nil
	}
	if _, err := slide.RemoveShapes(r.queued...); err != nil {
		return r.fail("remove", nil, err)
	}
	return nil
}

func isFatal(err error) bool {
	var ae *archive.ArchiveError
	var nf *archive.NotFoundError
	return errors.As(err, &ae) || errors.As(err, &nf)
}

func dedup(_ context.Context, r *slideRun) error {
	shapes, err := r.slide.Shapes()
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, sh := range shapes {
		ts, ok := sh.(*pptx.TextShape)
		if !ok {
			continue
		}
		text := strings.TrimSpace(ts.Text())
		if seen[text] {
			r.queue(sh)
			r.report.DuplicatesRemoved++
			continue
		}
		seen[text] = true
	}
	return nil
}

func format(_ context.Context, r *slideRun) error {
	shapes, err := r.slide.Shapes()
	if err != nil {
		return err
	}
	for _, sh := range shapes {
		ts, ok := sh.(*pptx.TextShape)
		if !ok || r.isQueued(sh) {
			continue
		}
		r.report.RunsFormatted += formatRuns(ts.Runs(), r.p.settings)
	}
	return nil
}

func formatRuns(runs []*pptx.Run, s settings.Settings) int {
	for _, run := range runs {
		if s.EnableCustomFont {
			run.SetFontFamily(s.FontFamily)
			run.SetSize(s.FontSize())
		}
		run.SetBold(s.Bold)
		run.SetColor(s.TextColor)
		run.SetSpacing(s.TextSpacing)
	}
	return len(runs)
}

func recognizePictures(ctx context.Context, r *slideRun) error {
	shapes, err := r.slide.Shapes()
	if err != nil {
		return err
	}
	for _, sh := range shapes {
		pic, ok := sh.(*pptx.PictureShape)
		if !ok || r.isQueued(sh) {
			continue
		}
		if err := r.replacePicture(ctx, pic); err != nil {
			if err := r.fail("ocr", pic, err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *slideRun) replacePicture(ctx context.Context, pic *pptx.PictureShape) error {
	box, ok := pic.Box()
	if !ok {
		return fmt.Errorf("picture has no position")
	}
	data, media, err := r.deck.Media(r.slide, pic.EmbedID())
	if err != nil {
		return err
	}
	text, err := ocr.Extract(ctx, r.p.recognizer, media, data)
	if errors.Is(err, ocr.ErrNotText) {
		r.report.PicturesKept++
		return err
	}
	if err != nil {
		return err
	}

	tb, err := r.slide.InsertTextShapeBefore(pic, box, text)
	if err != nil {
		return err
	}
	formatRuns(tb.Runs(), r.p.settings)
	r.queue(pic)
	r.report.PicturesReplaced++
	return nil
}

func background(_ context.Context, r *slideRun) error {
	changed, err := r.slide.SetSolidBackground(r.p.settings.BackgroundColor)
	if changed {
		r.report.BackgroundsChanged++
	}
	return err
}

func removeAnimations(_ context.Context, r *slideRun) error {
	changed, err := r.slide.RemoveTiming()
	if changed {
		r.report.AnimationsRemoved++
	}
	return err
}

func expandNotes(_ context.Context, r *slideRun) error {
	notes, err := r.slide.Notes()
	if err != nil || notes == nil {
		return err
	}
	for _, ts := range notes.TextShapes() {
		r.report.NotesRunsExpanded += r.p.expander.ExpandShape(ts)
	}
	return nil
}

// removeTheme strips what the theme contributes visually without detaching
// the theme part: slide colour-map overrides are reset and decorative
// shapes are removed from the layouts and masters the slides use.
func (p *Pipeline) removeTheme(deck *pptx.Deck, report *Report) error {
	for _, slide := range deck.Slides() {
		changed, err := slide.ResetColorMap()
		if err != nil {
			if isFatal(err) {
				return err
			}
			p.recordDeckFailure(report, slide.Index(), "theme", err)
			continue
		}
		if changed {
			report.ColorMapsReset++
		}
	}

	masters, err := deck.Masters()
	if err != nil {
		return err
	}
	for _, m := range masters {
		n, err := m.RemoveDecorations()
		if err != nil {
			if isFatal(err) {
				return err
			}
			p.recordDeckFailure(report, 0, "theme", fmt.Errorf("%s: %w", m.Path(), err))
			continue
		}
		report.DecorationsRemoved += n
	}
	report.note("theme parts kept; %d decorations removed from %d layouts and masters", report.DecorationsRemoved, len(masters))
	return nil
}

func (p *Pipeline) recordDeckFailure(report *Report, slide int, step string, err error) {
	report.Failures = append(report.Failures, Failure{Slide: slide, Step: step, Message: err.Error(), Err: err})
	p.logger.Warn("transform step failed", "slide", slide, "step", step, "error", err)
}
