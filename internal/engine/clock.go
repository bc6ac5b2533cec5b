package engine

import "sync/atomic"

// Clock is a monotonic logical clock for the resolution log.
//
// Every resolution entry is stamped with a strictly increasing seq from this
// clock, so the log has a total order that does not depend on wall time.
// Entries are stamped by the scheduler after each barrier, in position order,
// which makes the sequence reproducible for identical input.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
