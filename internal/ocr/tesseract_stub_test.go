//go:build !ocr

package ocr

import (
	"context"
	"errors"
	"testing"
)

func TestTesseractStub(t *testing.T) {
	tess, err := NewTesseract("eng")
	if !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("Expected ErrOCRNotEnabled, got %v", err)
	}
	if tess != nil {
		t.Error("Expected nil recognizer")
	}
	var stub *Tesseract
	if _, err := stub.Recognize(context.Background(), nil); !errors.Is(err, ErrOCRNotEnabled) {
		t.Errorf("Expected ErrOCRNotEnabled, got %v", err)
	}
}
