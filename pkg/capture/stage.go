package capture

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-framepace/pkg/camera"
)

// Stage produces one FramePayload per call from a live stream.
// It owns a Canvas and an Encoder and is not safe for concurrent use.
type Stage struct {
	canvas  *Canvas
	encoder Encoder
	seq     uint64
	now     func() time.Time
}

// NewStage builds a stage sized from cfg. A nil encoder selects JPEGEncoder.
func NewStage(cfg camera.Config, enc Encoder) *Stage {
	if enc == nil {
		enc = NewJPEGEncoder(cfg.Quality)
	}
	return &Stage{
		canvas:  NewCanvas(cfg.Width, cfg.Height, cfg.Mirror),
		encoder: enc,
		now:     time.Now,
	}
}

// Canvas returns the stage's raster target.
func (s *Stage) Canvas() *Canvas {
	return s.canvas
}

// SetClock replaces the timestamp source used for CapturedAt.
func (s *Stage) SetClock(now func() time.Time) {
	s.now = now
}

// Capture draws the stream's current image and encodes it.
// On ErrNoFrame or an encode failure it returns an empty payload and the error;
// callers skip transmission for that tick.
func (s *Stage) Capture(stream Stream) (FramePayload, error) {
	img, err := stream.Frame()
	if err != nil {
		return FramePayload{}, err
	}
	if img == nil {
		return FramePayload{}, ErrNoFrame
	}

	s.canvas.Draw(img)
	data, err := s.encoder.Encode(s.canvas.Image())
	if err != nil {
		return FramePayload{}, fmt.Errorf("encode frame: %w", err)
	}

	s.seq++
	b := s.canvas.Bounds()
	return FramePayload{
		Data:       data,
		MimeType:   s.encoder.MimeType(),
		Quality:    s.encoder.Quality(),
		Width:      b.Dx(),
		Height:     b.Dy(),
		Seq:        s.seq,
		CapturedAt: s.now(),
	}, nil
}
