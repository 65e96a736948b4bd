package awd

import "time"

// Clock abstracts wall-clock time so phase advancement, tick elapsed time,
// and seasonal selection are deterministic under test.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a Clock pinned to a settable instant, for tests.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the fixed clock forward.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }
