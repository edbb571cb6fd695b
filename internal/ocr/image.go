package ocr

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Decoders for the formats slides embed.
	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	// Recognition degrades badly on small glyphs; smaller images are scaled up.
	minSide = 600
	maxSide = 4000
)

// Prepare decodes an embedded image, converts it to grayscale, scales it
// into a range recognizers handle well and re-encodes it as PNG.
func Prepare(data []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("decoding %s image: empty bounds", format)
	}

	w, h := scaledSize(b.Dx(), b.Dy())
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), nil
}

func scaledSize(w, h int) (int, int) {
	long := max(w, h)
	short := min(w, h)
	scale := 1.0
	switch {
	case short < minSide:
		scale = float64(minSide) / float64(short)
		if float64(long)*scale > maxSide {
			scale = float64(maxSide) / float64(long)
		}
	case long > maxSide:
		scale = float64(maxSide) / float64(long)
	}
	return max(1, int(float64(w)*scale+0.5)), max(1, int(float64(h)*scale+0.5))
}
