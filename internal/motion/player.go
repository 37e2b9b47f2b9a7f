// Package motion plays keyframe sequences across an axis group without
// blocking: Start captures the segment coefficients and every Poll evaluates
// the eased position for the current time.
package motion

import (
	"time"

	"animatron/internal/axis"
	"animatron/internal/clock"
)

type Player struct {
	group *axis.Group
	sink  Sink
	clock clock.Clock

	running  bool
	seq      Sequence
	segment  int
	segStart time.Duration

	// per-axis interpolation coefficients for the current segment
	start  []int
	target []int
	delta  []int

	stats    Stats
	onFinish func(name string)
}

func NewPlayer(group *axis.Group, sink Sink, clk clock.Clock) *Player {
	n := group.Len()
	return &Player{
		group:  group,
		sink:   sink,
		clock:  clk,
		start:  make([]int, n),
		target: make([]int, n),
		delta:  make([]int, n),
	}
}

// Start plays seq from the group's current position, preempting any running
// clip. Frame 0 is applied before Start returns. It reports false only for an
// empty sequence.
func (p *Player) Start(seq Sequence) bool {
	if len(seq.Steps) == 0 {
		return false
	}
	if p.running {
		p.stats.Preempted++
		p.Stop()
	}

	p.seq = seq
	p.segment = 0
	p.group.Offsets(p.start)
	p.prepare()
	p.running = true
	p.segStart = p.clock.Now()
	p.stats.Started++

	p.Poll(p.segStart)
	return true
}

// StartIfIdle is the non-preemptive variant of Start: it refuses while a clip
// is playing.
func (p *Player) StartIfIdle(seq Sequence) bool {
	if p.running {
		return false
	}
	return p.Start(seq)
}

// Stop halts playback where it is. Axis positions are left untouched.
func (p *Player) Stop() {
	if !p.running {
		return
	}
	p.running = false
	p.stats.Stopped++
}

func (p *Player) IsBusy() bool { return p.running }

// SetOnFinish registers fn to run each time a sequence plays to its end,
// including a zero-duration sequence finishing inside Start. It is not called
// for Stop or preemption.
func (p *Player) SetOnFinish(fn func(name string)) { p.onFinish = fn }

// Poll applies the frame for now. It returns true while the clip continues
// and false when idle or when the last segment just completed.
func (p *Player) Poll(now time.Duration) bool {
	if !p.running {
		return false
	}

	step := p.seq.Steps[p.segment]
	u := 1.0
	if step.Duration > 0 {
		u = float64(now-p.segStart) / float64(step.Duration)
		if u < 0 {
			u = 0
		} else if u > 1 {
			u = 1
		}
	}
	e := Smoothstep(u)

	for i, a := range p.group.Axes() {
		candidate := int(float64(p.start[i]) + float64(p.delta[i])*e)
		safe := a.SafetyClamp(candidate)
		if safe != candidate {
			p.stats.SafetyClamped++
		}
		angle := a.SetOffset(safe)
		if p.sink != nil {
			p.sink.WriteAngle(a.Channel(), angle)
		}
	}
	p.stats.Frames++

	if u < 1 {
		return true
	}

	p.segment++
	if p.segment >= len(p.seq.Steps) {
		p.running = false
		p.stats.Completed++
		if p.onFinish != nil {
			p.onFinish(p.seq.Name)
		}
		return false
	}
	p.group.Offsets(p.start)
	p.prepare()
	p.segStart = now
	return true
}

// prepare computes target and delta for the current segment. Targets are
// clamped to the hardware band here; the safety band is applied per frame.
func (p *Player) prepare() {
	step := p.seq.Steps[p.segment]
	for i, a := range p.group.Axes() {
		if v, ok := step.Target(i); ok {
			p.target[i] = a.HardwareClamp(v)
		} else if p.segment == 0 {
			p.target[i] = p.start[i]
		}
		p.delta[i] = p.target[i] - p.start[i]
	}
}

func (p *Player) Stats() Stats { return p.stats }

func (p *Player) Status() Status {
	st := Status{Running: p.running}
	if p.running {
		st.Clip = p.seq.Name
		st.Segment = p.segment
		st.Segments = len(p.seq.Steps)
	}
	return st
}

// Smoothstep eases u in [0,1] with u²(3-2u).
func Smoothstep(u float64) float64 {
	return u * u * (3 - 2*u)
}
