// Package webcam acquires camera streams through OpenCV (gocv).
package webcam

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-framepace/pkg/camera"
	"github.com/teslashibe/go-framepace/pkg/capture"
)

// Acquirer opens local cameras with gocv.VideoCapture.
type Acquirer struct {
	logger *slog.Logger
}

// NewAcquirer creates a gocv-backed acquirer.
func NewAcquirer(logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Acquirer{logger: logger}
}

// Name returns "gocv".
func (a *Acquirer) Name() string { return "gocv" }

// Acquire opens the device and reads the first frame, so a device that opens
// but never delivers fails here instead of on every tick. Opening a
// V4L2/AVFoundation device cannot be interrupted; ctx is checked before and after.
func (a *Acquirer) Acquire(ctx context.Context, cfg camera.Config) (capture.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var device interface{} = cfg.Device
	if idx, ok := cfg.DeviceIndex(); ok {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("open camera %q: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %q: device not available", cfg.Device)
	}

	vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	vc.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))

	mat := gocv.NewMat()
	first, err := readImage(vc, &mat)
	if err != nil {
		mat.Close()
		vc.Close()
		return nil, fmt.Errorf("open camera %q: %w", cfg.Device, err)
	}

	if err := ctx.Err(); err != nil {
		mat.Close()
		vc.Close()
		return nil, err
	}

	a.logger.Info("camera opened",
		"device", cfg.Device,
		"width", vc.Get(gocv.VideoCaptureFrameWidth),
		"height", vc.Get(gocv.VideoCaptureFrameHeight),
		"fps", vc.Get(gocv.VideoCaptureFPS),
	)

	s := &Stream{
		vc:     vc,
		logger: a.logger,
		latest: first,
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go s.readLoop(mat)
	return s, nil
}

// readImage blocks until the device delivers the next frame.
func readImage(vc *gocv.VideoCapture, mat *gocv.Mat) (image.Image, error) {
	if ok := vc.Read(mat); !ok || mat.Empty() {
		return nil, capture.ErrNoFrame
	}
	img, err := mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

// Stream wraps an open VideoCapture. A reader goroutine keeps the newest
// frame in a slot so Frame never waits on the device.
type Stream struct {
	logger *slog.Logger
	vc     *gocv.VideoCapture

	mu      sync.Mutex
	latest  image.Image
	stopped bool

	quit   chan struct{}
	exited chan struct{}
}

// readLoop owns vc and mat until quit is closed.
func (s *Stream) readLoop(mat gocv.Mat) {
	defer close(s.exited)
	defer mat.Close()

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		img, err := readImage(s.vc, &mat)
		if err != nil {
			s.logger.Debug("camera read failed", "error", err)
			select {
			case <-s.quit:
				return
			case <-time.After(readRetryDelay):
			}
			continue
		}

		s.mu.Lock()
		s.latest = img
		s.mu.Unlock()
	}
}

// readRetryDelay paces reads while the device is not delivering frames.
const readRetryDelay = 10 * time.Millisecond

// Frame returns the newest frame read from the device.
func (s *Stream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil, capture.ErrStreamStopped
	}
	if s.latest == nil {
		return nil, capture.ErrNoFrame
	}
	return s.latest, nil
}

// Stop ends the reader and closes the device. It is safe to call Stop
// multiple times.
func (s *Stream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.latest = nil
	s.mu.Unlock()

	close(s.quit)
	<-s.exited
	if err := s.vc.Close(); err != nil {
		return fmt.Errorf("close camera: %w", err)
	}
	s.logger.Info("camera released")
	return nil
}
