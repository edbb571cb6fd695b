//go:build !ocr

package ocr

import (
	"context"
	"errors"
)

// ErrOCRNotEnabled is returned when Tesseract support was not compiled in.
var ErrOCRNotEnabled = errors.New("OCR support not enabled; rebuild with -tags ocr")

// Tesseract is unavailable in this build.
type Tesseract struct{}

// NewTesseract reports that OCR support is not compiled in.
func NewTesseract(languages ...string) (*Tesseract, error) {
	return nil, ErrOCRNotEnabled
}

// Recognize always fails with ErrOCRNotEnabled.
func (t *Tesseract) Recognize(ctx context.Context, image []byte) (string, error) {
	return "", ErrOCRNotEnabled
}
