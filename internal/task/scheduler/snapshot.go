package scheduler

// PoolStats are per-registry counters. Dropped counts registrations refused
// because the pool was full.
type PoolStats struct {
	Active    int
	Capacity  int
	Accepted  uint64
	Dropped   uint64
	Completed uint64
	Cancelled uint64
}

type Snapshot struct {
	Delayed PoolStats
	Toggles PoolStats
	Jobs    PoolStats
	Running []JobInfo
}

func (s *Scheduler) Snapshot() Snapshot {
	return Snapshot{
		Delayed: s.Delayed.Stats(),
		Toggles: s.Toggles.Stats(),
		Jobs:    s.Jobs.Stats(),
		Running: s.Jobs.List(nil, s.clock.Now()),
	}
}
