package capture

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/teslashibe/go-framepace/pkg/camera"
)

// Encoder serializes a raster into a compressed image.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	MimeType() string
	Quality() float64
}

// JPEGEncoder encodes with image/jpeg at a fixed quality.
type JPEGEncoder struct {
	quality float64
	buf     bytes.Buffer
}

// NewJPEGEncoder creates an encoder; quality is in (0, 1].
func NewJPEGEncoder(quality float64) *JPEGEncoder {
	return &JPEGEncoder{quality: quality}
}

// Encode returns a fresh byte slice; the internal buffer is reused.
func (e *JPEGEncoder) Encode(img image.Image) ([]byte, error) {
	e.buf.Reset()
	cfg := camera.Config{Quality: e.quality}
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: cfg.JPEGQuality()}); err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

// MimeType returns image/jpeg.
func (e *JPEGEncoder) MimeType() string { return camera.MimeJPEG }

// Quality returns the configured quality factor.
func (e *JPEGEncoder) Quality() float64 { return e.quality }
