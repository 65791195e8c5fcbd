// Package streamer runs the capture/streaming state machine.
//
// A Session is Idle until Start acquires a camera stream. While Active it
// captures, encodes and sends one frame per tick; each tick schedules the
// next one after the delay chosen by the pacing controller, so at most one
// tick is ever pending. Stop releases the stream and cancels the pending
// tick, and is safe to call while an acquisition is still in flight.
package streamer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/teslashibe/go-framepace/pkg/camera"
	"github.com/teslashibe/go-framepace/pkg/capture"
	"github.com/teslashibe/go-framepace/pkg/metrics"
	"github.com/teslashibe/go-framepace/pkg/pacing"
	"github.com/teslashibe/go-framepace/pkg/protocol"
	"github.com/teslashibe/go-framepace/pkg/transport"
)

// Phase is the session state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseActive
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseActive:
		return "active"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// AcquisitionError is reported when the camera could not be opened.
// The session stays Idle and does not retry.
type AcquisitionError struct {
	Device string
	Err    error
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("acquire camera %q: %v", e.Device, e.Err)
}

func (e *AcquisitionError) Unwrap() error {
	return e.Err
}

// StateFunc is called after every phase transition. err is non-nil only
// when a Start failed to acquire the camera.
type StateFunc func(phase Phase, err error)

// Config configures a Session.
type Config struct {
	Camera camera.Config
	Target pacing.Target
}

// DefaultConfig returns the default camera constraints at the default rate.
func DefaultConfig() Config {
	return Config{
		Camera: camera.DefaultConfig(),
		Target: pacing.DefaultTarget(),
	}
}

// Option configures optional Session collaborators.
type Option func(*Session)

// WithClock sets the time source. Default: RealClock.
func WithClock(c Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithLogger sets the logger. Default: slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithEncoder sets the frame encoder. Default: capture.JPEGEncoder.
func WithEncoder(e capture.Encoder) Option {
	return func(s *Session) { s.encoder = e }
}

// Session is one capture/streaming state machine bound to a channel.
type Session struct {
	cfg      Config
	acquirer capture.Acquirer
	channel  transport.Channel
	clock    Clock
	logger   *slog.Logger
	encoder  capture.Encoder

	mu        sync.Mutex
	phase     Phase
	acquiring bool
	epoch     uint64
	stream    capture.Stream
	stage     *capture.Stage
	pacer     *pacing.Controller
	pending   Timer

	onState StateFunc

	sent      uint64
	skipped   uint64
	dropped   uint64
	lastDelay time.Duration

	dropLog rate.Sometimes
}

// NewSession creates an Idle session.
func NewSession(cfg Config, acq capture.Acquirer, ch transport.Channel, opts ...Option) (*Session, error) {
	if acq == nil {
		return nil, errors.New("streamer: acquirer is required")
	}
	if ch == nil {
		return nil, errors.New("streamer: channel is required")
	}
	if errs := cfg.Camera.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid camera config: %v", errs)
	}
	if err := cfg.Target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pacing target: %w", err)
	}

	s := &Session{
		cfg:      cfg,
		acquirer: acq,
		channel:  ch,
		clock:    RealClock(),
		logger:   slog.Default(),
		dropLog:  rate.Sometimes{Interval: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "streamer")
	return s, nil
}

// OnStateChange sets the transition callback.
func (s *Session) OnStateChange(f StateFunc) {
	s.mu.Lock()
	s.onState = f
	s.mu.Unlock()
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start requests a camera stream and begins streaming once it arrives.
// It returns immediately; the outcome is reported through OnStateChange.
// Start while Active or while an acquisition is pending does nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.phase == PhaseActive || s.acquiring {
		s.mu.Unlock()
		return
	}
	s.acquiring = true
	s.epoch++
	epoch := s.epoch
	s.mu.Unlock()

	s.logger.Info("acquiring camera", "acquirer", s.acquirer.Name(), "device", s.cfg.Camera.Device,
		"width", s.cfg.Camera.Width, "height", s.cfg.Camera.Height)

	go s.acquire(ctx, epoch)
}

func (s *Session) acquire(ctx context.Context, epoch uint64) {
	stream, err := s.acquirer.Acquire(ctx, s.cfg.Camera)

	s.mu.Lock()
	if !s.acquiring || s.epoch != epoch {
		// Stopped while the device was opening.
		s.mu.Unlock()
		if stream != nil {
			if serr := stream.Stop(); serr != nil {
				s.logger.Warn("release late stream", "error", serr)
			}
			s.logger.Info("released camera stream that arrived after stop")
		}
		metrics.RecordAcquisition("late")
		return
	}
	s.acquiring = false

	if err != nil {
		cb := s.onState
		s.mu.Unlock()

		aerr := &AcquisitionError{Device: s.cfg.Camera.Device, Err: err}
		s.logger.Error("camera acquisition failed", "error", aerr)
		metrics.RecordAcquisition("error")
		if cb != nil {
			cb(PhaseIdle, aerr)
		}
		return
	}

	s.stream = stream
	s.phase = PhaseActive
	s.pacer = pacing.NewController(s.cfg.Target)
	s.stage = capture.NewStage(s.cfg.Camera, s.encoder)
	s.stage.SetClock(s.clock.Now)

	if nerr := s.channel.Notify(transport.EventNotify, protocol.NoticeStarted); nerr != nil {
		s.logger.Warn("start notice not delivered", "error", nerr)
	}
	s.pending = s.clock.AfterFunc(0, func() { s.tick(epoch) })
	cb := s.onState
	s.mu.Unlock()

	s.logger.Info("streaming started", "interval", s.cfg.Target.Interval)
	metrics.RecordAcquisition("ok")
	metrics.SetSessionActive(true)
	if cb != nil {
		cb(PhaseActive, nil)
	}
}

// tick captures and sends one frame, then schedules the next tick.
func (s *Session) tick(epoch uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != PhaseActive || s.epoch != epoch {
		return
	}

	payload, err := s.stage.Capture(s.stream)
	switch {
	case err != nil || payload.Empty():
		s.skipped++
		metrics.RecordFrameSkipped()
		s.logger.Debug("frame skipped", "error", err)
	default:
		if err := s.channel.SendFrame(payload); err != nil {
			s.dropped++
			metrics.RecordFrameDropped(dropReason(err))
			s.dropLog.Do(func() {
				s.logger.Warn("frame dropped", "error", err, "dropped_total", s.dropped)
			})
		} else {
			s.sent++
			metrics.RecordFrameSent(len(payload.Data))
		}
	}

	delay := s.pacer.Next(s.clock.Now())
	s.lastDelay = delay
	metrics.RecordPacingDelay(delay.Seconds())

	s.pending = s.clock.AfterFunc(delay, func() { s.tick(epoch) })
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, transport.ErrNotConnected), errors.Is(err, transport.ErrClosed):
		return metrics.ReasonNotConnected
	case errors.Is(err, transport.ErrSendBufferFull):
		return metrics.ReasonBufferFull
	default:
		return metrics.ReasonWrite
	}
}

// Stop cancels the pending tick and releases the camera stream. It is a
// no-op when Idle with no acquisition in flight. A stream that arrives
// after Stop is released without being bound.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.phase == PhaseIdle && !s.acquiring {
		s.mu.Unlock()
		return
	}
	wasActive := s.phase == PhaseActive

	s.phase = PhaseIdle
	s.acquiring = false
	s.epoch++
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	stream := s.stream
	s.stream = nil
	s.pacer = nil
	s.stage = nil
	cb := s.onState
	s.mu.Unlock()

	if stream != nil {
		if err := stream.Stop(); err != nil {
			s.logger.Warn("release camera stream", "error", err)
		}
	}
	if !wasActive {
		s.logger.Info("start canceled before camera was ready")
		return
	}

	s.logger.Info("streaming stopped")
	metrics.SetSessionActive(false)
	if cb != nil {
		cb(PhaseIdle, nil)
	}
}

// Toggle stops an Active (or starting) session and starts an Idle one.
func (s *Session) Toggle(ctx context.Context) {
	s.mu.Lock()
	busy := s.phase == PhaseActive || s.acquiring
	s.mu.Unlock()

	if busy {
		s.Stop()
	} else {
		s.Start(ctx)
	}
}

// Stats is a point-in-time view of the session.
type Stats struct {
	Phase     Phase         `json:"phase"`
	Acquiring bool          `json:"acquiring"`
	Sent      uint64        `json:"frames_sent"`
	Skipped   uint64        `json:"frames_skipped"`
	Dropped   uint64        `json:"frames_dropped"`
	LastDelay time.Duration `json:"last_delay"`
}

// Stats returns the session counters. Counters accumulate across activations.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Phase:     s.phase,
		Acquiring: s.acquiring,
		Sent:      s.sent,
		Skipped:   s.skipped,
		Dropped:   s.dropped,
		LastDelay: s.lastDelay,
	}
}
