package pacing

import "time"

// Controller owns a State for one streaming activation.
// It is not safe for concurrent use; the streamer serializes calls.
type Controller struct {
	target Target
	state  State
	last   time.Duration
}

// NewController creates a controller with fresh state.
func NewController(target Target) *Controller {
	return &Controller{target: target}
}

// Next computes the delay before the next frame, feeding back now.
func (c *Controller) Next(now time.Time) time.Duration {
	c.last = NextDelay(now, &c.state, c.target)
	return c.last
}

// Reset discards the feedback state.
func (c *Controller) Reset() {
	c.state = State{}
	c.last = 0
}

// Target returns the configured target.
func (c *Controller) Target() Target {
	return c.target
}

// Snapshot is a read-only view of the controller.
type Snapshot struct {
	Integral  float64       `json:"integral_ms"`
	PrevError float64       `json:"prev_error_ms"`
	LastDelay time.Duration `json:"last_delay"`
	Started   bool          `json:"started"`
}

// Snapshot returns the current feedback values.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Integral:  c.state.Integral,
		PrevError: c.state.PrevError,
		LastDelay: c.last,
		Started:   c.state.Started(),
	}
}
