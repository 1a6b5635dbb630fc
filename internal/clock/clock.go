package clock

import (
	"sync"
	"time"
)

// Clock provides the current time so timestamps can be fixed in tests
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time in UTC
type RealClock struct{}

// Now returns the current system time
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FakeClock implements Clock with a settable time
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
}

// NewFakeClock creates a FakeClock fixed at t
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{current: t}
}

// Now returns the fixed time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Set updates the fixed time
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the fixed time forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	c.mu.Unlock()
}
