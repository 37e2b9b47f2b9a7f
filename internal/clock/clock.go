// Package clock provides the monotonic time source the choreography core polls.
//
// Timestamps are time.Duration values measured from the clock's epoch, so all
// deadline arithmetic stays in plain integers and never wraps.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Duration
}

// Monotonic measures elapsed time since it was created using the runtime's
// monotonic reading.
type Monotonic struct {
	epoch time.Time
}

func NewMonotonic() *Monotonic { return &Monotonic{epoch: time.Now()} }

func (m *Monotonic) Now() time.Duration { return time.Since(m.epoch) }

// Manual is a hand-driven clock for tests and offline simulation.
// The zero value starts at 0.
type Manual struct {
	mu  sync.Mutex
	now time.Duration
}

func NewManual(start time.Duration) *Manual { return &Manual{now: start} }

func (m *Manual) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set moves the clock to t. Moving backwards is ignored.
func (m *Manual) Set(t time.Duration) {
	m.mu.Lock()
	if t > m.now {
		m.now = t
	}
	m.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.now += d
	}
	return m.now
}
