package engine

import (
	"context"
	"time"

	"animatron/internal/task/scheduler"
)

type AxisView struct {
	Name    string `json:"name"`
	Channel int    `json:"channel"`
	Origin  int    `json:"origin"`
	Offset  int    `json:"offset"`
	Angle   int    `json:"angle"`
	Min     int    `json:"min_offset"`
	Max     int    `json:"max_offset"`
}

type MotionView struct {
	Running       bool   `json:"running"`
	Clip          string `json:"clip,omitempty"`
	Segment       int    `json:"segment"`
	Segments      int    `json:"segments"`
	Started       uint64 `json:"started"`
	Completed     uint64 `json:"completed"`
	Preempted     uint64 `json:"preempted"`
	Stopped       uint64 `json:"stopped"`
	Frames        uint64 `json:"frames"`
	SafetyClamped uint64 `json:"safety_clamped"`
}

type GateView struct {
	Window   string `json:"window"`
	Accepted uint64 `json:"accepted"`
	Rejected uint64 `json:"rejected"`
}

type PoolView struct {
	Active    int    `json:"active"`
	Capacity  int    `json:"capacity"`
	Accepted  uint64 `json:"accepted"`
	Dropped   uint64 `json:"dropped"`
	Completed uint64 `json:"completed"`
	Cancelled uint64 `json:"cancelled"`
}

type JobView struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Cursor  int    `json:"cursor"`
	Steps   int    `json:"steps"`
	Elapsed string `json:"elapsed"`
}

type SchedulerView struct {
	Delayed PoolView  `json:"delayed"`
	Toggles PoolView  `json:"toggles"`
	Jobs    PoolView  `json:"jobs"`
	Running []JobView `json:"running"`
}

type CounterView struct {
	Dispatched   uint64 `json:"dispatched"`
	Unknown      uint64 `json:"unknown"`
	Rejected     uint64 `json:"rejected"`
	SlotDropped  uint64 `json:"slot_dropped"`
	QueueDropped uint64 `json:"queue_dropped"`
	Ticks        uint64 `json:"ticks"`
}

type LibraryView struct {
	Clips  []string `json:"clips"`
	Jobs   []string `json:"jobs"`
	Scenes []string `json:"scenes"`
	Cues   int      `json:"cues"`
}

type Snapshot struct {
	Now       string            `json:"now"`
	Heartbeat time.Time         `json:"heartbeat,omitzero"`
	Axes      []AxisView        `json:"axes"`
	Motion    MotionView        `json:"motion"`
	Gate      GateView          `json:"gate"`
	Scheduler SchedulerView     `json:"scheduler"`
	Lights    map[string]string `json:"lights,omitempty"`
	Counters  CounterView       `json:"counters"`
	Library   LibraryView       `json:"library"`
}

// Snapshot is taken on the engine goroutine so it is internally consistent.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.Do(ctx, func() error {
		s = e.snapshot()
		return nil
	})
	return s, err
}

func poolView(p scheduler.PoolStats) PoolView {
	return PoolView(p)
}

func (e *Engine) snapshot() Snapshot {
	now := e.clk.Now()
	st := e.player.Stats()
	status := e.player.Status()
	acc, rej := e.gate.Counts()
	ss := e.sched.Snapshot()

	s := Snapshot{
		Now:       now.String(),
		Heartbeat: e.Heartbeat(),
		Motion: MotionView{
			Running:       status.Running,
			Clip:          status.Clip,
			Segment:       status.Segment,
			Segments:      status.Segments,
			Started:       st.Started,
			Completed:     st.Completed,
			Preempted:     st.Preempted,
			Stopped:       st.Stopped,
			Frames:        st.Frames,
			SafetyClamped: st.SafetyClamped,
		},
		Gate: GateView{Window: e.gate.Window().String(), Accepted: acc, Rejected: rej},
		Scheduler: SchedulerView{
			Delayed: poolView(ss.Delayed),
			Toggles: poolView(ss.Toggles),
			Jobs:    poolView(ss.Jobs),
			Running: make([]JobView, 0, len(ss.Running)),
		},
		Counters: CounterView{
			Dispatched:   e.n.dispatched,
			Unknown:      e.n.unknown,
			Rejected:     e.n.rejected,
			SlotDropped:  e.n.dropped,
			QueueDropped: e.qDropped.Load(),
			Ticks:        e.ticks.Load(),
		},
		Library: LibraryView{
			Clips:  e.lib.ClipNames(),
			Jobs:   e.lib.JobNames(),
			Scenes: e.lib.SceneNames(),
			Cues:   len(e.lib.Cues),
		},
	}
	for _, a := range e.axes.Axes() {
		s.Axes = append(s.Axes, AxisView{
			Name: a.Name(), Channel: a.Channel(), Origin: a.Origin(),
			Offset: a.Offset(), Angle: a.Origin() + a.Offset(),
			Min: a.MinOffset(), Max: a.MaxOffset(),
		})
	}
	for _, j := range ss.Running {
		s.Scheduler.Running = append(s.Scheduler.Running, JobView{
			ID: j.ID.String(), Name: j.Name, Cursor: j.Cursor, Steps: j.Steps, Elapsed: j.Elapsed.String(),
		})
	}
	if e.lights != nil {
		s.Lights = e.lights.State()
	}
	return s
}
