package motion

import "time"

// Sink receives every angle the player writes. Writes are assumed idempotent
// and non-blocking.
type Sink interface {
	WriteAngle(channel, degrees int)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(channel, degrees int)

func (f SinkFunc) WriteAngle(channel, degrees int) { f(channel, degrees) }

// Step is one keyframe: the target offset of every axis (index-aligned with
// the axis group) reached at the end of Duration.
//
// An axis beyond len(Targets), or with Hold set, keeps the previous step's
// target; on the first step it holds its current offset.
type Step struct {
	Targets  []int
	Hold     []bool
	Duration time.Duration
}

// Target returns the authored target for axis i, if any.
func (s Step) Target(i int) (int, bool) {
	if i >= len(s.Targets) || (i < len(s.Hold) && s.Hold[i]) {
		return 0, false
	}
	return s.Targets[i], true
}

// Sequence is an authored clip. It is never mutated at runtime.
type Sequence struct {
	Name  string
	Steps []Step
}

// Duration is the sum of all segment durations.
func (s Sequence) Duration() time.Duration {
	var d time.Duration
	for _, st := range s.Steps {
		d += st.Duration
	}
	return d
}

// Stats are cumulative player counters.
type Stats struct {
	Started   uint64
	Completed uint64
	Preempted uint64
	Stopped   uint64
	Frames    uint64

	// SafetyClamped counts axis-frames where the safety band flattened the
	// interpolated offset. A non-zero delta means an authored target lies
	// inside the hardware band but outside the safety band.
	SafetyClamped uint64
}

// Status is a point-in-time view of the player.
type Status struct {
	Running  bool
	Clip     string
	Segment  int
	Segments int
}
