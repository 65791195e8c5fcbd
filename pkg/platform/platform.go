// Package platform picks the camera backend once at startup.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-framepace/pkg/camera"
	"github.com/teslashibe/go-framepace/pkg/capture"
	"github.com/teslashibe/go-framepace/pkg/capture/webcam"
)

// Backend identifies a camera implementation.
type Backend string

const (
	// BackendAuto probes the local camera and falls back to the mock.
	BackendAuto Backend = "auto"
	BackendGoCV Backend = "gocv"
	BackendMock Backend = "mock"
)

// DefaultProbeTimeout bounds the auto-detection probe.
const DefaultProbeTimeout = 5 * time.Second

// ParseBackend converts a flag or config value into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(s); b {
	case BackendAuto, BackendGoCV, BackendMock:
		return b, nil
	case "":
		return BackendAuto, nil
	default:
		return "", fmt.Errorf("unknown camera backend %q (want auto, gocv or mock)", s)
	}
}

// AvailableBackends returns the backends that can be requested explicitly.
func AvailableBackends() []Backend {
	return []Backend{BackendGoCV, BackendMock}
}

// prober opens and immediately releases a device.
type prober func(ctx context.Context, acq capture.Acquirer, cfg camera.Config) error

func probe(ctx context.Context, acq capture.Acquirer, cfg camera.Config) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	stream, err := acq.Acquire(ctx, cfg)
	if err != nil {
		return err
	}
	return stream.Stop()
}

// Selection is the camera backend chosen at startup together with the
// encoder that suits it.
type Selection struct {
	Backend  Backend
	Acquirer capture.Acquirer
	Encoder  capture.Encoder
}

// NewAcquirer selects the camera for backend. With BackendAuto the gocv
// device named by cfg is opened once; if that fails the mock is used.
// gocv devices encode with OpenCV, the mock with image/jpeg.
func NewAcquirer(ctx context.Context, backend Backend, cfg camera.Config, logger *slog.Logger) (*Selection, error) {
	return negotiate(ctx, backend, cfg, logger, probe)
}

func negotiate(ctx context.Context, backend Backend, cfg camera.Config, logger *slog.Logger, check prober) (*Selection, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch backend {
	case BackendMock:
		logger.Info("camera backend selected", "backend", BackendMock)
		return mockSelection(cfg, logger), nil

	case BackendGoCV:
		logger.Info("camera backend selected", "backend", BackendGoCV, "device", cfg.Device)
		return gocvSelection(webcam.NewAcquirer(logger), cfg), nil

	case BackendAuto:
		acq := webcam.NewAcquirer(logger)
		if err := check(ctx, acq, cfg); err != nil {
			logger.Warn("camera not available, using test pattern",
				"device", cfg.Device, "error", err)
			return mockSelection(cfg, logger), nil
		}
		logger.Info("camera backend selected", "backend", BackendGoCV, "device", cfg.Device, "probed", true)
		return gocvSelection(acq, cfg), nil

	default:
		return nil, fmt.Errorf("unsupported backend: %s", backend)
	}
}

func mockSelection(cfg camera.Config, logger *slog.Logger) *Selection {
	return &Selection{
		Backend:  BackendMock,
		Acquirer: capture.NewMockAcquirer(logger),
		Encoder:  capture.NewJPEGEncoder(cfg.Quality),
	}
}

func gocvSelection(acq *webcam.Acquirer, cfg camera.Config) *Selection {
	return &Selection{
		Backend:  BackendGoCV,
		Acquirer: acq,
		Encoder:  webcam.NewEncoder(cfg.Quality),
	}
}
