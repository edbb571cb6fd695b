// Package ai recognizes text in slide images with a Gemini vision model. It
// is an alternative to local Tesseract for the OCR step.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const DefaultModel = "gemini-2.5-flash"

const ocrPrompt = "Transcribe all text visible in this image exactly as written, " +
	"one line of output per line of text. Reply with the text only. " +
	"If the image contains no text, reply with an empty message."

// ErrNoKey is returned when no API key is configured.
var ErrNoKey = errors.New("gemini API key not configured")

// Options select the model and its sampling parameters.
type Options struct {
	Key         string
	Model       string
	Temperature float64
	MaxTokens   int
}

type generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Client wraps a Gemini generative model.
type Client struct {
	client *genai.Client
	model  generator
}

// NewClient connects to Gemini. The client should be closed when no longer
// needed.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Key == "" {
		return nil, ErrNoKey
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.Key))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	name := opts.Model
	if name == "" {
		name = DefaultModel
	}
	model := client.GenerativeModel(name)
	model.SetTemperature(float32(opts.Temperature))
	if opts.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(opts.MaxTokens))
	}
	return &Client{client: client, model: model}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Recognize asks the model for the text in a PNG image.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	resp, err := c.model.GenerateContent(ctx, genai.ImageData("png", image), genai.Text(ocrPrompt))
	if err != nil {
		return "", fmt.Errorf("gemini: %w", err)
	}
	return responseText(resp), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}
	return strings.TrimSpace(sb.String())
}
