package scheduler

import (
	"time"

	"animatron/internal/clock"
)

const DefaultDelayedSlots = 8

type delayedSlot struct {
	fn       func()
	deadline time.Duration
	active   bool
}

// Delayed runs one-shot callbacks after a delay.
type Delayed struct {
	clock clock.Clock
	slots []delayedSlot
	stats PoolStats
}

func NewDelayed(clk clock.Clock, capacity int) *Delayed {
	if capacity <= 0 {
		capacity = DefaultDelayedSlots
	}
	return &Delayed{clock: clk, slots: make([]delayedSlot, capacity)}
}

// Register schedules fn to run once at now+delay. A negative delay is treated
// as zero.
func (r *Delayed) Register(fn func(), delay time.Duration) error {
	if fn == nil {
		return ErrNilCallback
	}
	if delay < 0 {
		delay = 0
	}
	for i := range r.slots {
		s := &r.slots[i]
		if s.active {
			continue
		}
		s.fn = fn
		s.deadline = r.clock.Now() + delay
		s.active = true
		r.stats.Accepted++
		return nil
	}
	r.stats.Dropped++
	return ErrNoFreeSlot
}

// Poll fires every due callback exactly once, in slot order. The slot is
// released before its callback runs, so a callback may re-register.
func (r *Delayed) Poll(now time.Duration) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.active || now < s.deadline {
			continue
		}
		fn := s.fn
		s.fn = nil
		s.active = false
		r.stats.Completed++
		fn()
	}
}

// Clear drops every pending callback without running it.
func (r *Delayed) Clear() {
	for i := range r.slots {
		r.slots[i] = delayedSlot{}
	}
}

func (r *Delayed) Active() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].active {
			n++
		}
	}
	return n
}

func (r *Delayed) Cap() int { return len(r.slots) }

func (r *Delayed) Stats() PoolStats {
	st := r.stats
	st.Active = r.Active()
	st.Capacity = len(r.slots)
	return st
}
