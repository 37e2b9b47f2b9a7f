package scheduler

import (
	"time"

	"animatron/internal/clock"
)

// Config sets pool capacities. Zero selects the defaults (8/8/6).
type Config struct {
	DelayedSlots int
	ToggleSlots  int
	JobSlots     int
}

// Scheduler composes the three registries. They are independent of each
// other; Poll visits all of them every tick.
type Scheduler struct {
	Delayed *Delayed
	Toggles *Toggles
	Jobs    *Jobs

	clock clock.Clock
}

func New(cfg Config, clk clock.Clock, pins PinSink) *Scheduler {
	return &Scheduler{
		Delayed: NewDelayed(clk, cfg.DelayedSlots),
		Toggles: NewToggles(clk, pins, cfg.ToggleSlots),
		Jobs:    NewJobs(clk, cfg.JobSlots),
		clock:   clk,
	}
}

func (s *Scheduler) Poll(now time.Duration) {
	s.Delayed.Poll(now)
	s.Toggles.Poll(now)
	s.Jobs.Poll(now)
}

// Reset drops every pending delayed call, pulse train and job.
func (s *Scheduler) Reset() {
	s.Delayed.Clear()
	s.Toggles.Clear()
	s.Jobs.CancelAll()
}
