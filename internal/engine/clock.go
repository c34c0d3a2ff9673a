package engine

import "sync/atomic"

// Clock numbers evaluation passes. Every Reset or incremental update takes
// the next number, and errors record the pass that raised them. A manager
// and its nested managers share one clock so their passes interleave in a
// single order.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first pass is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next pass number.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last pass number handed out.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
