// Package pacing decides when the next frame should be captured and sent.
//
// The controller is a PID loop over the inter-send interval: it compares the
// time that actually elapsed since the previous frame with the target interval
// and lengthens or shortens the next wait so the average rate converges on the
// target while single-tick jitter is absorbed. The integral term is an
// exponential moving average rather than an unbounded sum, which keeps a long
// backend stall from winding the loop up.
package pacing

import (
	"fmt"
	"time"
)

// Default gains and target.
const (
	DefaultFPS   = 15
	DefaultP     = 0.6
	DefaultI     = 5.0
	DefaultD     = 0.01
	DefaultDecay = 0.9
)

// Target configures the controller.
type Target struct {
	// Interval is the desired period between frames.
	Interval time.Duration `yaml:"interval" json:"interval"`

	// Gains
	P float64 `yaml:"p" json:"p"`
	I float64 `yaml:"i" json:"i"`
	D float64 `yaml:"d" json:"d"`

	// Decay is the weight kept by the integral term on each call, in [0, 1).
	Decay float64 `yaml:"decay" json:"decay"`
}

// DefaultTarget returns 15 FPS with the default gains.
func DefaultTarget() Target {
	return TargetForFPS(DefaultFPS)
}

// TargetForFPS returns the default gains with an interval of 1/fps.
func TargetForFPS(fps float64) Target {
	return Target{
		Interval: time.Duration(float64(time.Second) / fps),
		P:        DefaultP,
		I:        DefaultI,
		D:        DefaultD,
		Decay:    DefaultDecay,
	}
}

// Validate reports the first invalid field.
func (t Target) Validate() error {
	if t.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %v", t.Interval)
	}
	if t.P < 0 || t.I < 0 || t.D < 0 {
		return fmt.Errorf("gains must be non-negative, got P=%v I=%v D=%v", t.P, t.I, t.D)
	}
	if t.Decay < 0 || t.Decay >= 1 {
		return fmt.Errorf("decay must be in [0, 1), got %v", t.Decay)
	}
	return nil
}

// State is the feedback carried between calls. The zero value is the
// initial state: Last unset, no accumulated error.
type State struct {
	Last      time.Time // previous frame send, zero when unset
	Integral  float64   // smoothed error, milliseconds
	PrevError float64   // error of the previous call, milliseconds
}

// Started reports whether at least one delay has been computed.
func (s *State) Started() bool {
	return !s.Last.IsZero()
}

// NextDelay returns how long to wait before the next frame and updates state.
// The result is never negative. now should come from a monotonic clock.
func NextDelay(now time.Time, state *State, target Target) time.Duration {
	interval := ms(target.Interval)

	elapsed := interval
	if state.Started() {
		elapsed = ms(now.Sub(state.Last))
	} else {
		state.Integral = 0
		state.PrevError = 0
	}
	state.Last = now

	err := interval - elapsed
	state.Integral = state.Integral*target.Decay + err*(1-target.Decay)
	derivative := err - state.PrevError
	state.PrevError = err

	delay := interval + target.P*err + target.I*state.Integral - target.D*derivative
	if delay < 0 {
		return 0
	}
	return time.Duration(delay * float64(time.Millisecond))
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
