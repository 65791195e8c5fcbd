// Package capture turns the current camera image into a compressed frame payload.
//
// A Stream is a live video source handed out by an Acquirer. Each tick the
// Stage draws the stream's current image into a fixed-size off-screen Canvas
// and serializes it with an Encoder. When the source has nothing to show yet
// the Stage returns an empty payload and the caller skips the send.
package capture

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/teslashibe/go-framepace/pkg/camera"
)

var (
	// ErrNoFrame is returned when the source has no current frame (not ready yet).
	ErrNoFrame = errors.New("capture: no frame available")

	// ErrStreamStopped is returned by Frame after Stop.
	ErrStreamStopped = errors.New("capture: stream stopped")
)

// FramePayload is one encoded frame. It is immutable once produced.
type FramePayload struct {
	Data       []byte
	MimeType   string
	Quality    float64
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// Empty reports whether the payload carries no image. Empty payloads are never sent.
func (p FramePayload) Empty() bool {
	return len(p.Data) == 0
}

// Stream is a live video source.
type Stream interface {
	// Frame returns the current image. It returns ErrNoFrame when the
	// source is not producing frames yet. It must not block.
	Frame() (image.Image, error)

	// Stop releases the device (all tracks).
	// It is safe to call Stop multiple times.
	Stop() error
}

// Acquirer opens camera streams. Acquire may block until the device is ready
// or ctx is done; callers that must not block run it in a goroutine.
type Acquirer interface {
	Acquire(ctx context.Context, cfg camera.Config) (Stream, error)

	// Name returns the backend name (e.g., "gocv", "mock").
	Name() string
}
