package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/gnemet/SlideClean/internal/ai"
	"github.com/gnemet/SlideClean/internal/ocr"
)

// Recognizer builds the OCR engine named by ocr.engine. The returned
// function releases it.
func (c *Config) Recognizer(ctx context.Context) (ocr.Recognizer, func() error, error) {
	switch strings.ToLower(c.OCR.Engine) {
	case "", "tesseract":
		t, err := ocr.NewTesseract(c.OCR.Languages...)
		if err != nil {
			return nil, nil, err
		}
		return t, func() error { return nil }, nil
	case "gemini":
		p := c.AI.Providers["gemini"]
		client, err := ai.NewClient(ctx, ai.Options{
			Key:         p.Key,
			Model:       p.Model,
			Temperature: p.Temperature,
			MaxTokens:   p.MaxTokens,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown OCR engine %q (want tesseract or gemini)", c.OCR.Engine)
}
