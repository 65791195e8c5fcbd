package webcam

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-framepace/pkg/camera"
)

// Encoder is a capture.Encoder backed by OpenCV's JPEG codec.
// It is faster than image/jpeg on the Pi-class boards the streamer runs on.
type Encoder struct {
	quality float64
}

// NewEncoder creates an OpenCV JPEG encoder; quality is in (0, 1].
func NewEncoder(quality float64) *Encoder {
	return &Encoder{quality: quality}
}

// Encode converts the raster to a Mat and encodes it.
func (e *Encoder) Encode(img image.Image) ([]byte, error) {
	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("image to mat: %w", err)
	}
	defer mat.Close()

	cfg := camera.Config{Quality: e.quality}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, cfg.JPEGQuality()})
	if err != nil {
		return nil, fmt.Errorf("imencode: %w", err)
	}
	defer buf.Close()

	src := buf.GetBytes()
	out := make([]byte, len(src))
	copy(out, src)
	return out, nil
}

// MimeType returns image/jpeg.
func (e *Encoder) MimeType() string { return camera.MimeJPEG }

// Quality returns the configured quality factor.
func (e *Encoder) Quality() float64 { return e.quality }
