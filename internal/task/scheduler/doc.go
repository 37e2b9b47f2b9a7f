// Package scheduler provides the cooperative timing registries driven by the
// engine tick:
//   - Delayed: one-shot callbacks fired after a delay
//   - Toggles: periodic pin pulse trains with fixed-cadence timing
//   - Jobs: multi-step timelines with catch-up on late polls
//
// Every registry is a fixed-size slot pool allocated at construction. Poll
// never blocks, never sleeps and allocates nothing. A full pool drops the
// request with ErrNoFreeSlot; nothing is queued or retried.
//
// None of the types are safe for concurrent use. They are owned by a single
// polling goroutine.
package scheduler
