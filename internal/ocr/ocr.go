// Package ocr turns images embedded in slides into text. Recognition itself
// is delegated to a Recognizer; this package prepares the image, bounds the
// call in time and decides whether the result is real text.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	minTextLength = 5
	minAlphaRatio = 0.5
)

// ErrNotText is returned when recognized output does not look like text.
var ErrNotText = errors.New("recognized output is not mostly text")

// Recognizer extracts text from an encoded image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// RecognizerFunc adapts a function to Recognizer.
type RecognizerFunc func(ctx context.Context, image []byte) (string, error)

func (f RecognizerFunc) Recognize(ctx context.Context, image []byte) (string, error) {
	return f(ctx, image)
}

// RecognitionError reports a failed or unusable recognition of one image.
// It never aborts a run: the picture is kept and the failure recorded.
type RecognitionError struct {
	Media string
	Stage string // decode | recognize | filter
	Err   error
}

func (e *RecognitionError) Error() string {
	if e.Media != "" {
		return fmt.Sprintf("ocr %s %s: %v", e.Stage, e.Media, e.Err)
	}
	return fmt.Sprintf("ocr %s: %v", e.Stage, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

// IsMostlyText reports whether s is long enough and letter-heavy enough to
// be treated as genuine text: at least five characters after trimming and
// strictly more than half of them letters.
func IsMostlyText(s string) bool {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	if n < minTextLength {
		return false
	}
	alpha := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	return float64(alpha)/float64(n) > minAlphaRatio
}

// Normalize composes the text to NFC, trims trailing blanks from every line
// and drops leading and trailing empty lines.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return strings.Trim(strings.Join(lines, "\n"), "\n")
}

// Extract prepares media, recognizes it and filters the result. Every
// failure is a *RecognitionError; ErrNotText marks output that was
// recognized but rejected.
func Extract(ctx context.Context, r Recognizer, media string, data []byte) (string, error) {
	img, err := Prepare(data)
	if err != nil {
		return "", &RecognitionError{Media: media, Stage: "decode", Err: err}
	}
	text, err := r.Recognize(ctx, img)
	if err != nil {
		return "", &RecognitionError{Media: media, Stage: "recognize", Err: err}
	}
	text = Normalize(text)
	if !IsMostlyText(text) {
		return "", &RecognitionError{Media: media, Stage: "filter", Err: fmt.Errorf("%w: %q", ErrNotText, truncate(text, 40))}
	}
	return text, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "…"
}

type timeoutRecognizer struct {
	r Recognizer
	d time.Duration
}

// WithTimeout bounds every call to r. A call that does not return in time
// fails with context.DeadlineExceeded even if r ignores its context.
func WithTimeout(r Recognizer, d time.Duration) Recognizer {
	if d <= 0 {
		return r
	}
	return timeoutRecognizer{r: r, d: d}
}

func (t timeoutRecognizer) Recognize(ctx context.Context, image []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.r.Recognize(ctx, image)
		done <- result{text, err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
