package engine

import "sync/atomic"

// Clock is the monotonic logical clock stamping trace events.
//
// Every event carries a strictly increasing seq, never a wall-clock
// time: replays and golden comparisons need identical stamps for
// identical cascades, and wall clocks cannot provide that.
//
// Thread-safety: safe for concurrent use (atomic operations), though
// the engine's episode mutex means one goroutine calls Next at a time.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest issued sequence number without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
