package hw

import (
	"sync"
	"time"
)

const (
	breakerTrip     = 3
	breakerBase     = 500 * time.Millisecond
	breakerMax      = 10 * time.Second
	breakerResetAge = time.Minute
)

// breaker is a consecutive-failure circuit breaker for the serial link.
//
// After trip failures in a row it opens for an exponentially growing
// cooldown. While open, queued commands are shed: replaying a backlog of
// stale angles after the port comes back would jerk the servos.
type breaker struct {
	trip       int
	baseDelay  time.Duration
	maxDelay   time.Duration
	resetAfter time.Duration

	mu          sync.Mutex
	fails       int
	openUntil   time.Time
	lastFailure time.Time
}

func newBreaker() *breaker {
	return &breaker{
		trip:       breakerTrip,
		baseDelay:  breakerBase,
		maxDelay:   breakerMax,
		resetAfter: breakerResetAge,
	}
}

// expire forgets failures older than resetAfter. Caller holds mu.
func (b *breaker) expire(now time.Time) {
	if !b.lastFailure.IsZero() && b.resetAfter > 0 && now.Sub(b.lastFailure) > b.resetAfter {
		b.fails = 0
		b.openUntil = time.Time{}
	}
}

func (b *breaker) allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire(now)
	return b.openUntil.IsZero() || !now.Before(b.openUntil)
}

// record reports whether err tripped the breaker.
func (b *breaker) record(now time.Time, err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire(now)

	if err == nil {
		b.fails = 0
		b.openUntil = time.Time{}
		b.lastFailure = time.Time{}
		return false
	}

	b.fails++
	b.lastFailure = now
	if b.fails < b.trip {
		return false
	}

	d := b.baseDelay
	for i := 0; i < b.fails-b.trip; i++ {
		d *= 2
		if d >= b.maxDelay {
			d = b.maxDelay
			break
		}
	}
	b.openUntil = now.Add(d)
	return true
}

func (b *breaker) isOpen(now time.Time) bool {
	return !b.allow(now)
}
