// Package clock provides validated wall-clock timestamps.
//
// The host RTC on some boards reverts to a fixed date after a power cycle or
// an NTP failure, which used to produce rows logged years in the past. Every
// timestamp is checked against the process start time: a wall clock that
// reports a moment before the process started cannot be right, so the reading
// is replaced with start time plus the monotonic elapsed time and the caller
// is told the timestamp was adjusted.
package clock

import "time"

// Clock issues timestamps validated against a monotonic reference.
type Clock struct {
	start   time.Time
	wallNow func() time.Time
	elapsed func() time.Duration
}

// New creates a Clock anchored at the current process time.
func New() *Clock {
	start := time.Now()
	return &Clock{
		start:   start,
		wallNow: time.Now,
		elapsed: func() time.Duration { return time.Since(start) },
	}
}

// newWithFuncs is the test constructor with injectable time sources.
func newWithFuncs(start time.Time, wallNow func() time.Time, elapsed func() time.Duration) *Clock {
	return &Clock{start: start, wallNow: wallNow, elapsed: elapsed}
}

// Start returns the process start time the clock is anchored at.
func (c *Clock) Start() time.Time { return c.start }

// Now returns the current timestamp. When the wall clock has regressed past
// process start, the returned timestamp is derived from the monotonic clock
// instead and adjusted reports true.
func (c *Clock) Now() (ts time.Time, adjusted bool) {
	now := c.wallNow()
	if now.Before(c.start) {
		return c.start.Add(c.elapsed()), true
	}
	return now, false
}
