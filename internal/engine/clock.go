package engine

import "sync/atomic"

// Clock counts applied events. Every local mutation and every merged remote
// change takes the next revision, so readers can tell whether a snapshot is
// stale without comparing ledgers.
//
// Safe for concurrent use, though only the Run goroutine calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock at revision 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock at a given revision.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next advances the clock and returns the new revision.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the latest revision without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
