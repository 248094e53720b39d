package mock

import (
	"sync"
	"time"
)

// Clock provides the time stamps a node puts into the documents it serves.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the system time.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock is a controllable Clock for tests that compare documents.
type FixedClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFixedClock creates a clock stopped at t. A zero t uses the current time.
func NewFixedClock(t time.Time) *FixedClock {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return &FixedClock{current: t}
}

// Now returns the clock's time.
func (c *FixedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}
