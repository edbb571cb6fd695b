package transform

import (
	"errors"
	"fmt"

	"github.com/gnemet/SlideClean/internal/ocr"
)

// Failure is a recovered per-slide or per-shape error. The slide or shape it
// names was left as it was.
type Failure struct {
	Slide   int    `json:"slide" yaml:"slide"`
	Shape   string `json:"shape,omitempty" yaml:"shape,omitempty"`
	Step    string `json:"step" yaml:"step"`
	Message string `json:"message" yaml:"message"`
	Err     error  `json:"-" yaml:"-"`
}

func (f Failure) Error() string {
	if f.Shape != "" {
		return fmt.Sprintf("slide %d %s %q: %s", f.Slide, f.Step, f.Shape, f.Message)
	}
	return fmt.Sprintf("slide %d %s: %s", f.Slide, f.Step, f.Message)
}

func (f Failure) Unwrap() error { return f.Err }

// Report counts what a pipeline run changed.
type Report struct {
	Slides             int       `json:"slides" yaml:"slides"`
	DuplicatesRemoved  int       `json:"duplicates_removed" yaml:"duplicates_removed"`
	RunsFormatted      int       `json:"runs_formatted" yaml:"runs_formatted"`
	PicturesReplaced   int       `json:"pictures_replaced" yaml:"pictures_replaced"`
	PicturesKept       int       `json:"pictures_kept" yaml:"pictures_kept"`
	BackgroundsChanged int       `json:"backgrounds_changed" yaml:"backgrounds_changed"`
	AnimationsRemoved  int       `json:"animations_removed" yaml:"animations_removed"`
	ColorMapsReset     int       `json:"color_maps_reset" yaml:"color_maps_reset"`
	DecorationsRemoved int       `json:"decorations_removed" yaml:"decorations_removed"`
	NotesRunsExpanded  int       `json:"notes_runs_expanded" yaml:"notes_runs_expanded"`
	Notes              []string  `json:"notes,omitempty" yaml:"notes,omitempty"`
	Failures           []Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
}

// OCRFailures returns the failures caused by text recognition.
func (r *Report) OCRFailures() []Failure {
	var out []Failure
	for _, f := range r.Failures {
		var re *ocr.RecognitionError
		if errors.As(f.Err, &re) {
			out = append(out, f)
		}
	}
	return out
}

func (r *Report) note(format string, args ...any) {
	r.Notes = append(r.Notes, fmt.Sprintf(format, args...))
}
