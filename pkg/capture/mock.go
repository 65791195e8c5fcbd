package capture

import (
	"context"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-framepace/pkg/camera"
)

// MockAcquirer hands out synthetic test-pattern streams.
// It is used for CI and for running the streamer without a camera.
type MockAcquirer struct {
	logger *slog.Logger

	delay  time.Duration
	gate   <-chan struct{}
	err    error
	warmup int

	mu      sync.Mutex
	streams []*MockStream
	calls   atomic.Int64
}

// MockOption configures a MockAcquirer.
type MockOption func(*MockAcquirer)

// WithAcquireDelay makes Acquire take d before returning.
func WithAcquireDelay(d time.Duration) MockOption {
	return func(m *MockAcquirer) { m.delay = d }
}

// WithAcquireGate makes Acquire block until gate is closed (or ctx is done).
func WithAcquireGate(gate <-chan struct{}) MockOption {
	return func(m *MockAcquirer) { m.gate = gate }
}

// WithAcquireError makes Acquire fail with err, as a denied camera would.
func WithAcquireError(err error) MockOption {
	return func(m *MockAcquirer) { m.err = err }
}

// WithWarmup makes each stream report ErrNoFrame for its first n reads.
func WithWarmup(n int) MockOption {
	return func(m *MockAcquirer) { m.warmup = n }
}

// NewMockAcquirer creates a mock camera.
func NewMockAcquirer(logger *slog.Logger, opts ...MockOption) *MockAcquirer {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockAcquirer{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name returns "mock".
func (m *MockAcquirer) Name() string { return "mock" }

// Acquire returns a new test-pattern stream sized from cfg.
func (m *MockAcquirer) Acquire(ctx context.Context, cfg camera.Config) (Stream, error) {
	m.calls.Add(1)

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	s := NewMockStream(cfg.Width, cfg.Height, m.warmup)
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()

	m.logger.Debug("mock camera acquired", "width", cfg.Width, "height", cfg.Height)
	return s, nil
}

// Calls returns how many times Acquire was invoked.
func (m *MockAcquirer) Calls() int64 {
	return m.calls.Load()
}

// Streams returns every stream handed out so far.
func (m *MockAcquirer) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// MockStream renders a moving vertical bar over a gradient.
type MockStream struct {
	width, height int

	mu      sync.Mutex
	warmup  int
	frame   int
	stopped bool

	stops atomic.Int64
	reads atomic.Int64
}

// NewMockStream creates a stream that reports ErrNoFrame for its first warmup reads.
func NewMockStream(width, height, warmup int) *MockStream {
	return &MockStream{width: width, height: height, warmup: warmup}
}

// Frame renders the next pattern frame.
func (s *MockStream) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reads.Add(1)
	if s.stopped {
		return nil, ErrStreamStopped
	}
	if s.warmup > 0 {
		s.warmup--
		return nil, ErrNoFrame
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	bar := s.frame % s.width
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			c := color.RGBA{R: uint8(x * 255 / s.width), G: uint8(y * 255 / s.height), B: 96, A: 255}
			if x >= bar && x < bar+8 {
				c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	s.frame++
	return img, nil
}

// Stop marks the stream released.
func (s *MockStream) Stop() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.stops.Add(1)
	return nil
}

// Stopped reports whether Stop was called.
func (s *MockStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// StopCalls returns how many times Stop was called.
func (s *MockStream) StopCalls() int64 {
	return s.stops.Load()
}

// Reads returns how many times Frame was called.
func (s *MockStream) Reads() int64 {
	return s.reads.Load()
}
