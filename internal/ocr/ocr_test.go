package ocr

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"
)

func createTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("Failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

func TestIsMostlyText(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"Q4 Revenue Summary", true},
		{"...---///", false},
		{"OK", false},
		{"  Hello  ", true},
		{"12345 678", false},
		{"ab1 2", false},
		{"abc12", true},
		{"Ünïcødé", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsMostlyText(tt.in); got != tt.want {
			t.Errorf("IsMostlyText(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	in := "\n\nCafé  \r\nLine two\t\n\n"
	if got := Normalize(in); got != "Café\nLine two" {
		t.Errorf("Normalize = %q", got)
	}
}

func TestPrepareScalesSmallImages(t *testing.T) {
	out, err := Prepare(createTestPNG(t, 100, 50))
	if err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("Output is not PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dy() != 600 || b.Dx() != 1200 {
		t.Errorf("Expected 1200x600, got %dx%d", b.Dx(), b.Dy())
	}
	if _, ok := img.(*image.Gray); !ok {
		t.Errorf("Expected grayscale output, got %T", img)
	}
}

func TestPrepareRejectsGarbage(t *testing.T) {
	if _, err := Prepare([]byte("not an image")); err == nil {
		t.Error("Expected decode error")
	}
}

func TestScaledSize(t *testing.T) {
	tests := []struct{ w, h, ww, wh int }{
		{800, 700, 800, 700},
		{100, 100, 600, 600},
		{8000, 2000, 4000, 1000},
		{3000, 100, 4000, 133},
	}
	for _, tt := range tests {
		w, h := scaledSize(tt.w, tt.h)
		if w != tt.ww || h != tt.wh {
			t.Errorf("scaledSize(%d, %d) = %d, %d; want %d, %d", tt.w, tt.h, w, h, tt.ww, tt.wh)
		}
	}
}

func TestExtract(t *testing.T) {
	img := createTestPNG(t, 10, 10)
	ctx := context.Background()

	text, err := Extract(ctx, RecognizerFunc(func(context.Context, []byte) (string, error) {
		return "Q4 Revenue Summary\n", nil
	}), "ppt/media/image1.png", img)
	if err != nil || text != "Q4 Revenue Summary" {
		t.Errorf("Extract = %q, %v", text, err)
	}

	_, err = Extract(ctx, RecognizerFunc(func(context.Context, []byte) (string, error) {
		return "...---///", nil
	}), "ppt/media/image1.png", img)
	var re *RecognitionError
	if !errors.As(err, &re) || re.Stage != "filter" || !errors.Is(err, ErrNotText) {
		t.Errorf("Expected filter RecognitionError, got %v", err)
	}

	boom := errors.New("boom")
	_, err = Extract(ctx, RecognizerFunc(func(context.Context, []byte) (string, error) {
		return "", boom
	}), "ppt/media/image1.png", img)
	if !errors.As(err, &re) || re.Stage != "recognize" || !errors.Is(err, boom) {
		t.Errorf("Expected recognize RecognitionError, got %v", err)
	}

	_, err = Extract(ctx, RecognizerFunc(func(context.Context, []byte) (string, error) {
		t.Error("recognizer called for undecodable media")
		return "", nil
	}), "ppt/media/image1.emf", []byte("emf"))
	if !errors.As(err, &re) || re.Stage != "decode" {
		t.Errorf("Expected decode RecognitionError, got %v", err)
	}
}

func TestWithTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	slow := RecognizerFunc(func(context.Context, []byte) (string, error) {
		<-release
		return "late", nil
	})
	_, err := WithTimeout(slow, 20*time.Millisecond).Recognize(context.Background(), nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}

	fast := RecognizerFunc(func(context.Context, []byte) (string, error) { return "fast", nil })
	if text, err := WithTimeout(fast, time.Second).Recognize(context.Background(), nil); err != nil || text != "fast" {
		t.Errorf("Recognize = %q, %v", text, err)
	}
	if WithTimeout(fast, 0) == nil {
		t.Error("Expected recognizer for zero timeout")
	}
}
