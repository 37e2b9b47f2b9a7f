package scheduler

import (
	"fmt"
	"time"

	"animatron/internal/clock"
)

const DefaultJobSlots = 6

// JobStep runs Run once the job has been running for At.
type JobStep struct {
	At  time.Duration
	Run func()
}

// Job is an authored timeline. Steps must be ordered by At.
type Job struct {
	Name  string
	Steps []JobStep
}

// JobID identifies one run of a job. The zero value is never issued.
type JobID struct {
	slot int
	gen  uint64
}

func (id JobID) Valid() bool { return id.gen != 0 }

func (id JobID) String() string {
	if !id.Valid() {
		return "job:none"
	}
	return fmt.Sprintf("job:%d.%d", id.slot, id.gen)
}

type jobSlot struct {
	job    Job
	cursor int
	start  time.Duration
	gen    uint64
	active bool
}

// JobInfo describes a running job.
type JobInfo struct {
	ID      JobID
	Name    string
	Cursor  int
	Steps   int
	Elapsed time.Duration
}

// Jobs runs multi-step timelines. A late poll runs every step whose offset has
// elapsed, in order, so no step is ever skipped.
type Jobs struct {
	clock   clock.Clock
	slots   []jobSlot
	nextGen uint64
	stats   PoolStats
}

func NewJobs(clk clock.Clock, capacity int) *Jobs {
	if capacity <= 0 {
		capacity = DefaultJobSlots
	}
	return &Jobs{clock: clk, slots: make([]jobSlot, capacity)}
}

// Start begins job at now. The returned id stays valid until the job ends or
// is cancelled; a stale id never matches a recycled slot.
func (r *Jobs) Start(job Job) (JobID, error) {
	for i := range r.slots {
		s := &r.slots[i]
		if s.active {
			continue
		}
		r.nextGen++
		*s = jobSlot{
			job:    job,
			start:  r.clock.Now(),
			gen:    r.nextGen,
			active: true,
		}
		r.stats.Accepted++
		return JobID{slot: i, gen: s.gen}, nil
	}
	r.stats.Dropped++
	return JobID{}, ErrNoFreeSlot
}

// Cancel stops the job immediately; its remaining steps never run. Steps that
// already ran are not rolled back.
func (r *Jobs) Cancel(id JobID) bool {
	s := r.lookup(id)
	if s == nil {
		return false
	}
	s.active = false
	s.job = Job{}
	r.stats.Cancelled++
	return true
}

// CancelAll stops every running job and reports how many were stopped.
func (r *Jobs) CancelAll() int {
	n := 0
	for i := range r.slots {
		s := &r.slots[i]
		if s.active {
			s.active = false
			s.job = Job{}
			n++
		}
	}
	r.stats.Cancelled += uint64(n)
	return n
}

func (r *Jobs) Running(id JobID) bool { return r.lookup(id) != nil }

func (r *Jobs) Poll(now time.Duration) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.active {
			continue
		}
		gen := s.gen
		for s.cursor < len(s.job.Steps) && now >= s.start+s.job.Steps[s.cursor].At {
			step := s.job.Steps[s.cursor]
			s.cursor++
			if step.Run != nil {
				step.Run()
			}
			// The step may have cancelled this job or reused the slot.
			if !s.active || s.gen != gen {
				break
			}
		}
		if s.active && s.gen == gen && s.cursor >= len(s.job.Steps) {
			s.active = false
			s.job = Job{}
			r.stats.Completed++
		}
	}
}

func (r *Jobs) lookup(id JobID) *jobSlot {
	if !id.Valid() || id.slot < 0 || id.slot >= len(r.slots) {
		return nil
	}
	s := &r.slots[id.slot]
	if !s.active || s.gen != id.gen {
		return nil
	}
	return s
}

// List appends running jobs to dst.
func (r *Jobs) List(dst []JobInfo, now time.Duration) []JobInfo {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.active {
			continue
		}
		dst = append(dst, JobInfo{
			ID:      JobID{slot: i, gen: s.gen},
			Name:    s.job.Name,
			Cursor:  s.cursor,
			Steps:   len(s.job.Steps),
			Elapsed: now - s.start,
		})
	}
	return dst
}

func (r *Jobs) Active() int {
	n := 0
	for i := range r.slots {
		if r.slots[i].active {
			n++
		}
	}
	return n
}

func (r *Jobs) Cap() int { return len(r.slots) }

func (r *Jobs) Stats() PoolStats {
	st := r.stats
	st.Active = r.Active()
	st.Capacity = len(r.slots)
	return st
}
