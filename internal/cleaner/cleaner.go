// Package cleaner runs one cleaning pass over a presentation: open the
// container, apply either the object-model pipeline or the raw attribute
// patcher, and save.
package cleaner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gnemet/SlideClean/internal/archive"
	"github.com/gnemet/SlideClean/internal/ocr"
	"github.com/gnemet/SlideClean/internal/patch"
	"github.com/gnemet/SlideClean/internal/pptx"
	"github.com/gnemet/SlideClean/internal/settings"
	"github.com/gnemet/SlideClean/internal/transform"
	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// Mode selects the editing strategy of a run. The two are never combined.
type Mode string

const (
	ModeObjectModel Mode = "object-model"
	ModeRawPatch    Mode = "raw-patch"
)

// ParseMode accepts the mode names and the short forms "model" and "patch".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "object-model", "model":
		return ModeObjectModel, nil
	case "raw-patch", "patch", "raw":
		return ModeRawPatch, nil
	}
	return "", fmt.Errorf("unknown mode %q (want object-model or raw-patch)", s)
}

// Options configure a run.
type Options struct {
	Mode     Mode
	Settings settings.Settings

	// Rules for raw-patch mode. Empty means DefaultRules(Settings).
	Rules []patch.Rule

	Recognizer ocr.Recognizer
	OCRTimeout time.Duration

	// Fs holds the working area and, for RunFile, the input and output
	// files. Default: the OS filesystem.
	Fs      afero.Fs
	TempDir string
	Logger  *slog.Logger
}

func (o *Options) defaults() {
	if o.Mode == "" {
		o.Mode = ModeObjectModel
	}
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// DefaultRules resets character spacing on every run property to the
// configured text spacing.
func DefaultRules(s settings.Settings) []patch.Rule {
	return []patch.Rule{{Attribute: "spc", Value: strconv.Itoa(s.TextSpacing)}}
}

// Report describes one run.
type Report struct {
	ID             string            `json:"id" yaml:"id"`
	Input          string            `json:"input,omitempty" yaml:"input,omitempty"`
	Mode           Mode              `json:"mode" yaml:"mode"`
	Started        time.Time         `json:"started" yaml:"started"`
	Duration       time.Duration     `json:"duration" yaml:"duration"`
	InputChecksum  string            `json:"input_checksum" yaml:"input_checksum"`
	OutputChecksum string            `json:"output_checksum,omitempty" yaml:"output_checksum,omitempty"`
	Modified       []string          `json:"modified" yaml:"modified"`
	Transform      *transform.Report `json:"transform,omitempty" yaml:"transform,omitempty"`
	Patch          *patch.Result     `json:"patch,omitempty" yaml:"patch,omitempty"`
}

// Failures returns the recovered failures of an object-model run.
func (r *Report) Failures() []transform.Failure {
	if r.Transform == nil {
		return nil
	}
	return r.Transform.Failures
}

// Checksum returns the hex SHA-256 of data.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Run cleans input and returns the new container. Output is all or
// nothing: on error no bytes are returned. The working area is always
// removed.
func Run(ctx context.Context, input []byte, opts Options) ([]byte, *Report, error) {
	opts.defaults()
	report := &Report{
		ID:            uuid.NewString(),
		Mode:          opts.Mode,
		Started:       time.Now(),
		InputChecksum: Checksum(input),
	}
	logger := opts.Logger.With("run", report.ID, "mode", string(opts.Mode))

	ws, err := archive.Open(input,
		archive.WithFs(opts.Fs),
		archive.WithTempDir(opts.TempDir),
		archive.WithLogger(logger))
	if err != nil {
		return nil, report, err
	}
	defer ws.Close()

	switch opts.Mode {
	case ModeObjectModel:
		err = runObjectModel(ctx, ws, opts, logger, report)
	case ModeRawPatch:
		err = runRawPatch(ws, opts, logger, report)
	default:
		err = fmt.Errorf("unknown mode %q", opts.Mode)
	}
	if err != nil {
		return nil, report, err
	}

	report.Modified = ws.Modified()
	out, err := ws.Save()
	if err != nil {
		return nil, report, err
	}
	report.OutputChecksum = Checksum(out)
	report.Duration = time.Since(report.Started)
	logger.Info("run finished",
		"modified", len(report.Modified),
		"failures", len(report.Failures()),
		"duration", report.Duration)
	return out, report, nil
}

func runObjectModel(ctx context.Context, ws *archive.Workspace, opts Options, logger *slog.Logger, report *Report) error {
	deck, err := pptx.Open(ws, pptx.WithLogger(logger))
	if err != nil {
		return err
	}
	topts := []transform.Option{transform.WithLogger(logger)}
	if opts.Recognizer != nil {
		topts = append(topts, transform.WithRecognizer(opts.Recognizer))
	}
	if opts.OCRTimeout > 0 {
		topts = append(topts, transform.WithOCRTimeout(opts.OCRTimeout))
	}
	p, err := transform.New(opts.Settings, topts...)
	if err != nil {
		return err
	}
	tr, err := p.Run(ctx, deck)
	report.Transform = tr
	if err != nil {
		return err
	}
	_, err = deck.Flush()
	return err
}

func runRawPatch(ws *archive.Workspace, opts Options, logger *slog.Logger, report *Report) error {
	rules := opts.Rules
	if len(rules) == 0 {
		rules = DefaultRules(opts.Settings)
	}
	p, err := patch.New(rules, patch.WithLogger(logger))
	if err != nil {
		return err
	}
	res, err := p.Apply(ws)
	report.Patch = &res
	return err
}

// RunFile cleans the file at in and writes the result to out. The output
// is written to a temporary file next to out and renamed into place, so a
// partial file is never visible.
func RunFile(ctx context.Context, in, out string, opts Options) (*Report, error) {
	opts.defaults()
	data, err := afero.ReadFile(opts.Fs, in)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", in, err)
	}
	result, report, err := Run(ctx, data, opts)
	report.Input = in
	if err != nil {
		return report, err
	}
	if err := writeAtomic(opts.Fs, out, result); err != nil {
		return report, err
	}
	return report, nil
}

func writeAtomic(fs afero.Fs, name string, data []byte) error {
	dir := filepath.Dir(name)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := afero.TempFile(fs, dir, ".slideclean-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := fs.Rename(tmpName, name); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("renaming to %s: %w", name, err)
	}
	return nil
}

// OutputName derives the default output path for an input: deck.pptx
// becomes deck.clean.pptx in dir, or next to the input when dir is empty.
func OutputName(input, dir string) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext) + ".clean" + ext
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, name)
}
