package pacing

import (
	"testing"
	"time"
)

func TestController_NextAndReset(t *testing.T) {
	c := NewController(target667())
	now := time.Unix(10, 0)

	if c.Snapshot().Started {
		t.Fatal("new controller should not be started")
	}

	d := c.Next(now)
	if d != c.Snapshot().LastDelay {
		t.Errorf("LastDelay = %v, want %v", c.Snapshot().LastDelay, d)
	}

	c.Next(now.Add(200 * time.Millisecond))
	if c.Snapshot().Integral >= 0 {
		t.Errorf("Integral = %v, want negative after a stall", c.Snapshot().Integral)
	}

	c.Reset()
	snap := c.Snapshot()
	if snap.Started || snap.Integral != 0 || snap.PrevError != 0 || snap.LastDelay != 0 {
		t.Errorf("Reset() left state %+v", snap)
	}

	// After reset the next call seeds again at the interval.
	d = c.Next(now.Add(time.Hour))
	if diff := d - c.Target().Interval; diff > time.Microsecond || diff < -time.Microsecond {
		t.Errorf("delay after reset = %v, want %v", d, c.Target().Interval)
	}
}
