package engine

import "sync/atomic"

// Clock is a monotonic logical counter.
//
// The engine stamps every bulk pass with Clock.Next() as its epoch, so two
// passes over the same (tag, class) can always be told apart, and tags
// trace events with the same sequence. Wall-clock time is never used.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock starting at a specific sequence number.
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
