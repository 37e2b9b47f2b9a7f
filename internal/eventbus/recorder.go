package eventbus

import (
	"context"
	"sync"
)

// Recorder keeps the most recent events in a fixed ring for status queries.
type Recorder struct {
	mu   sync.Mutex
	ring []Event
	next int
	full bool
}

func NewRecorder(size int) *Recorder {
	if size <= 0 {
		size = 128
	}
	return &Recorder{ring: make([]Event, size)}
}

func (r *Recorder) Add(e Event) {
	r.mu.Lock()
	r.ring[r.next] = e
	r.next = (r.next + 1) % len(r.ring)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()
}

// Recent returns up to n events, oldest first. n <= 0 returns everything held.
func (r *Recorder) Recent(n int) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := r.next
	if r.full {
		count = len(r.ring)
	}
	if n <= 0 || n > count {
		n = count
	}
	out := make([]Event, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.ring[(start+i)%len(r.ring)])
	}
	return out
}

// Run copies events from bus into the ring until ctx is done.
func (r *Recorder) Run(ctx context.Context, bus Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			r.Add(e)
		}
	}
}
