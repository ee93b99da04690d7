// Package imaging shrinks screenshot payloads before they are persisted.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png" // screenshots arrive PNG-encoded
)

// Compressor re-encodes a captured screenshot. Implementations return the new
// payload and its content type.
type Compressor interface {
	Compress(data []byte) ([]byte, string, error)
}

// JPEGCompressor converts PNG screenshots to JPEG. Full-page captures of long
// sites routinely shrink by an order of magnitude.
type JPEGCompressor struct {
	quality int
}

// NewJPEGCompressor creates a compressor with the given quality (1-100).
// Values outside the range fall back to 85.
func NewJPEGCompressor(quality int) *JPEGCompressor {
	if quality < 1 || quality > 100 {
		quality = 85
	}
	return &JPEGCompressor{quality: quality}
}

// Compress decodes the screenshot, flattens transparency onto white, and
// re-encodes as JPEG. The original payload is returned unchanged when the
// JPEG ends up larger.
func (c *JPEGCompressor) Compress(data []byte) ([]byte, string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode screenshot: %w", err)
	}

	bounds := img.Bounds()
	flat := image.NewRGBA(bounds)
	draw.Draw(flat, bounds, image.White, image.Point{}, draw.Src)
	draw.Draw(flat, bounds, img, bounds.Min, draw.Over)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flat, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	if buf.Len() >= len(data) {
		return data, "image/png", nil
	}
	return buf.Bytes(), "image/jpeg", nil
}

// NoopCompressor passes screenshots through untouched.
type NoopCompressor struct{}

// Compress returns the payload as-is.
func (NoopCompressor) Compress(data []byte) ([]byte, string, error) {
	return data, "image/png", nil
}
