// Package clock abstracts the wall clock so that envelope timestamps and
// execution times can be pinned in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current system time.
func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Stopwatch measures the time an operation takes on a Clock.
type Stopwatch struct {
	clock Clock
	start time.Time
}

// Start returns a Stopwatch running from c's current time.
func Start(c Clock) Stopwatch {
	return Stopwatch{clock: c, start: c.Now()}
}

// Started returns the time the stopwatch was started.
func (s Stopwatch) Started() time.Time {
	return s.start
}

// Now returns the current time on the underlying clock.
func (s Stopwatch) Now() time.Time {
	return s.clock.Now()
}

// Elapsed returns the time since Start. It never goes negative, even if the
// clock was moved backwards.
func (s Stopwatch) Elapsed() time.Duration {
	d := s.clock.Now().Sub(s.start)
	if d < 0 {
		return 0
	}
	return d
}

// FakeClock is a Clock under test control. Every call to Now moves it
// forward by its step, which is zero unless set with WithStep.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewFakeClock creates a FakeClock frozen at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// WithStep makes every later Now call advance the clock by d after reading it.
func (c *FakeClock) WithStep(d time.Duration) *FakeClock {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = d
	return c
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}

// Advance moves the clock by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
