package scheduler

import (
	"math"
	"time"

	"animatron/internal/clock"
)

const DefaultToggleSlots = 8

// maxHalfPeriodMs is the longest half period a time.Duration can hold.
const maxHalfPeriodMs = float64(math.MaxInt64 / int64(time.Millisecond))

// PinSink inverts the logical level of a digital output.
type PinSink interface {
	Invert(pin int)
}

type PinSinkFunc func(pin int)

func (f PinSinkFunc) Invert(pin int) { f(pin) }

type toggleSlot struct {
	pin       int
	remaining int
	half      time.Duration
	start     time.Duration
	nextDue   time.Duration
	active    bool
}

// Toggles drives pulse trains: each due tick inverts a pin, and the next due
// time advances by half a period from the previous due time rather than from
// the poll time.
type Toggles struct {
	clock clock.Clock
	sink  PinSink
	slots []toggleSlot
	stats PoolStats
}

func NewToggles(clk clock.Clock, sink PinSink, capacity int) *Toggles {
	if capacity <= 0 {
		capacity = DefaultToggleSlots
	}
	return &Toggles{clock: clk, sink: sink, slots: make([]toggleSlot, capacity)}
}

// HalfPeriod returns the toggle interval for hz, rounded to the millisecond,
// never below 1ms and capped at the largest representable duration.
func HalfPeriod(hz float64) time.Duration {
	ms := math.Round(1000 / (2 * hz))
	if ms < 1 {
		ms = 1
	}
	if ms > maxHalfPeriodMs {
		ms = maxHalfPeriodMs
	}
	return time.Duration(ms) * time.Millisecond
}

// Register starts a train of toggles inversions of pin at hz, beginning after
// startDelay.
func (r *Toggles) Register(pin int, hz float64, toggles int, startDelay time.Duration) error {
	if !(hz > 0) || math.IsInf(hz, 0) || 1000/(2*hz) > maxHalfPeriodMs {
		return ErrInvalidFrequency
	}
	if toggles <= 0 {
		return ErrNoToggles
	}
	if startDelay < 0 {
		startDelay = 0
	}
	for i := range r.slots {
		s := &r.slots[i]
		if s.active {
			continue
		}
		start := r.clock.Now() + startDelay
		*s = toggleSlot{
			pin:       pin,
			remaining: toggles,
			half:      HalfPeriod(hz),
			start:     start,
			nextDue:   start,
			active:    true,
		}
		r.stats.Accepted++
		return nil
	}
	r.stats.Dropped++
	return ErrNoFreeSlot
}

// Poll inverts at most once per task per call.
func (r *Toggles) Poll(now time.Duration) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.active || now < s.start || now < s.nextDue {
			continue
		}
		if r.sink != nil {
			r.sink.Invert(s.pin)
		}
		s.remaining--
		if s.nextDue > math.MaxInt64-s.half {
			s.nextDue = math.MaxInt64
		} else {
			s.nextDue += s.half
		}
		if s.remaining <= 0 {
			s.active = false
			r.stats.Completed++
		}
	}
}

// CancelPin stops every train on pin and reports how many were stopped.
func (r *Toggles) CancelPin(pin int) int {
	n := 0
	for i := range r.slots {
		s := &r.slots[i]
		if s.active && s.pin == pin {
			s.active = false
			n++
		}
	}
	r.stats.Cancelled += uint64(n)
	return n
}

func (r *Toggles) Clear() {
	for i := range r.slots {
		r.slots[i] = toggleSlot{}
	}
}

func (r *Toggles) Active() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].active {
			n++
		}
	}
	return n
}

func (r *Toggles) Cap() int { return len(r.slots) }

func (r *Toggles) Stats() PoolStats {
	st := r.stats
	st.Active = r.Active()
	st.Capacity = len(r.slots)
	return st
}
