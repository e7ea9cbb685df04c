package timectrl

import (
	"sync"
	"time"
)

// Clock is the time source used by the planner and scheduler. Components
// depend on this abstraction rather than time.Now so tests can pin "now".
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

// Now returns time.Now in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// System returns the wall clock.
func System() Clock { return SystemClock{} }

// ManualClock is a Clock whose time only moves when told to.
type ManualClock struct {
	mu          sync.RWMutex
	currentTime time.Time
	listeners   []func(time.Time)
}

// NewManualClock constructs a clock pinned at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{currentTime: start.UTC()}
}

// Now returns the pinned time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTime
}

// SetTime moves the clock to t and notifies listeners.
func (c *ManualClock) SetTime(t time.Time) {
	c.mu.Lock()
	c.currentTime = t.UTC()
	now := c.currentTime
	listeners := append([]func(time.Time){}, c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(now)
	}
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.SetTime(c.Now().Add(d))
}

// AddListener registers a callback invoked whenever the time changes.
func (c *ManualClock) AddListener(fn func(time.Time)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}
