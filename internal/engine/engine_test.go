package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"animatron/internal/axis"
	"animatron/internal/choreo"
	"animatron/internal/clock"
	"animatron/internal/eventbus"
	"animatron/internal/light"
	"animatron/internal/motion"
	logx "animatron/pkg/logx"
)

const ms = time.Millisecond

const library = `
scenes:
  alarm:
    - {partition: all, mode: red_blink}
clips:
  nod:
    steps:
      - {targets: {y: -80}, duration: 600}
  snap:
    steps:
      - {targets: {y: 30}, duration: 0}
  sway:
    steps:
      - {targets: {y: 40}, duration: 400}
jobs:
  warn:
    steps:
      - {at: 0, do: scene, scene: alarm}
      - {at: 200, do: light, partition: a, mode: green_solid}
      - {at: 400, do: emit, event: warned}
  chain:
    steps:
      - {at: 600, do: clip, clip: sway}
cues:
  - {code: 1, name: greet, clip: nod}
  - {code: 2, job: warn}
  - code: 3
    pulses: [{pin: 7, hz: 1, toggles: 2}]
    delayed: [{after: 100, do: clip, clip: snap}]
  - {code: 4, clip: nod, job: chain}
`

type rig struct {
	eng    *Engine
	clk    *clock.Manual
	axes   *axis.Group
	angles map[int]int
	pins   map[int]int
	lights map[string]string
	events <-chan eventbus.Event
}

func newRig(t *testing.T) *rig {
	t.Helper()
	g, err := axis.NewGroup([]axis.Spec{
		{Name: "y", Channel: 0, Origin: 90, MinOffset: -90, MaxOffset: 90},
		{Name: "e", Channel: 1, Origin: 90, MinOffset: -20, MaxOffset: 20},
	})
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	r := &rig{clk: clock.NewManual(0), axes: g, angles: map[int]int{}, pins: map[int]int{}, lights: map[string]string{}}

	ctl, err := light.NewController(light.DefaultPartitions(), light.SinkFunc(func(p light.Partition, m light.Mode) {
		r.lights[p.Name] = m.Name
	}), logx.Nop())
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	lib, err := choreo.Parse([]byte(library), choreo.Env{Axes: g, Partitions: ctl.Partitions()})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(256)
	t.Cleanup(unsub)
	r.events = ch

	r.eng, err = New(Config{}, Deps{
		Clock:   r.clk,
		Axes:    g,
		Servo:   servoFunc(func(c, d int) { r.angles[c] = d }),
		Pins:    pinFunc(func(p int) { r.pins[p]++ }),
		Lights:  ctl,
		Bus:     bus,
		Library: lib,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

type servoFunc func(channel, degrees int)

func (f servoFunc) WriteAngle(channel, degrees int) { f(channel, degrees) }

type pinFunc func(pin int)

func (f pinFunc) Invert(pin int) { f(pin) }

func (r *rig) at(d time.Duration) {
	r.clk.Set(d)
	r.eng.Tick(r.clk.Now())
}

func (r *rig) drainTypes() []string {
	var out []string
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev.Type)
		default:
			return out
		}
	}
}

// finished returns the clip names of drained clip_finished events in order.
func (r *rig) finished() []string {
	var out []string
	for {
		select {
		case ev := <-r.events:
			if ev.Type != eventbus.TypeClipFinished {
				continue
			}
			m, _ := ev.Data.(map[string]any)
			name, _ := m["clip"].(string)
			out = append(out, name)
		default:
			return out
		}
	}
}

func has(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func TestDispatchPlaysClip(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	if err := r.eng.dispatch(1, "test"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r.at(300 * ms)
	if got := r.angles[0]; got != 50 {
		t.Fatalf("angle at 300ms = %d, want 50", got)
	}
	r.at(600 * ms)
	if got := r.angles[0]; got != 10 {
		t.Fatalf("angle at 600ms = %d, want 10", got)
	}
	types := r.drainTypes()
	for _, want := range []string{eventbus.TypeClipStarted, eventbus.TypeCueDispatched, eventbus.TypeClipFinished} {
		if !has(types, want) {
			t.Fatalf("events %v missing %s", types, want)
		}
	}
}

func TestGateRejectsRapidRetrigger(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	if err := r.eng.dispatch(1, "test"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	r.at(100 * ms)
	if err := r.eng.dispatch(1, "test"); !errors.Is(err, ErrRejected) {
		t.Fatalf("second dispatch err = %v, want ErrRejected", err)
	}
	if err := r.eng.playClip("nod", "api", true); !errors.Is(err, ErrRejected) {
		t.Fatalf("PlayClip inside window err = %v", err)
	}
	r.at(350 * ms)
	if err := r.eng.playClip("nod", "api", true); err != nil {
		t.Fatalf("PlayClip after window: %v", err)
	}
	if r.eng.n.rejected != 2 {
		t.Fatalf("rejected = %d", r.eng.n.rejected)
	}
	if !has(r.drainTypes(), eventbus.TypeTriggerRejected) {
		t.Fatal("no trigger.rejected event")
	}
}

func TestCueWithoutClipBypassesGate(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	_ = r.eng.dispatch(1, "test")
	if err := r.eng.dispatch(2, "test"); err != nil {
		t.Fatalf("job cue inside gate window: %v", err)
	}
}

func TestJobRunsActions(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	if err := r.eng.dispatch(2, "test"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r.at(0)
	if r.lights["a"] != "red_blink" || r.lights["e"] != "red_blink" {
		t.Fatalf("scene not applied: %v", r.lights)
	}
	r.at(250 * ms)
	if r.lights["a"] != "green_solid" {
		t.Fatalf("partition a = %q", r.lights["a"])
	}
	r.at(400 * ms)
	if !has(r.drainTypes(), eventbus.TypeEmit) {
		t.Fatal("emit step did not publish")
	}
	if r.eng.sched.Jobs.Active() != 0 {
		t.Fatal("job still active after last step")
	}
}

func TestRetriggerRestartsJob(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	_ = r.eng.dispatch(2, "test")
	r.at(100 * ms)
	_ = r.eng.dispatch(2, "test")
	if got := r.eng.sched.Jobs.Active(); got != 1 {
		t.Fatalf("active jobs = %d, want 1", got)
	}
	if n := r.eng.cancelJobs("warn", "test"); n != 1 {
		t.Fatalf("cancelled = %d", n)
	}
}

func TestPulsesAndDelayedClip(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	if err := r.eng.dispatch(3, "test"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r.at(0)
	if r.pins[7] != 1 {
		t.Fatalf("pin 7 toggles at 0 = %d", r.pins[7])
	}
	r.at(100 * ms)
	// The delayed clip is internal and bypasses the gate.
	if got := r.axes.At(0).Offset(); got != 30 {
		t.Fatalf("offset after delayed clip = %d, want 30", got)
	}
	r.at(500 * ms)
	if r.pins[7] != 2 {
		t.Fatalf("pin 7 toggles at 500ms = %d", r.pins[7])
	}
}

func TestUnknownCode(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	if err := r.eng.dispatch(0xBEEF, "test"); !errors.Is(err, ErrUnknownCue) {
		t.Fatalf("err = %v", err)
	}
	if !has(r.drainTypes(), eventbus.TypeCueUnknown) {
		t.Fatal("no cue.unknown event")
	}
}

func TestSafetyClampSurfaced(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	// Target the e axis, whose safety band is +-20.
	seq := motion.Sequence{Name: "wide", Steps: []motion.Step{{Targets: []int{0, 60}, Duration: 600 * ms}}}
	r.eng.startClip(seq, "test")
	r.at(600 * ms)
	if !has(r.drainTypes(), eventbus.TypeSafetyClamped) {
		t.Fatal("safety clamp not published")
	}
	if got := r.axes.At(1).Offset(); got != 20 {
		t.Fatalf("e offset = %d, want 20", got)
	}
}

func TestRunProcessesCommands(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.eng.Run(ctx) }()

	cctx, ccancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer ccancel()

	if err := r.eng.PlayClip(cctx, "nope", "api"); !errors.Is(err, ErrUnknownClip) {
		t.Fatalf("PlayClip unknown err = %v", err)
	}
	angle, err := r.eng.SetAngle(cctx, "Y", 250)
	if err != nil || angle != 180 {
		t.Fatalf("SetAngle = %d, %v", angle, err)
	}
	if _, err := r.eng.SetAngle(cctx, "q", 10); !errors.Is(err, ErrUnknownAxis) {
		t.Fatalf("SetAngle unknown axis err = %v", err)
	}
	id, err := r.eng.StartJob(cctx, "warn", "api")
	if err != nil || id == "" {
		t.Fatalf("StartJob = %q, %v", id, err)
	}
	snap, err := r.eng.Snapshot(cctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(snap.Axes) != 2 || snap.Axes[0].Angle != 180 || len(snap.Library.Clips) != 3 {
		t.Fatalf("snapshot = %+v", snap)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := r.eng.Submit(func() {}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after stop err = %v", err)
	}
	if err := r.eng.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Run err = %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	for i := 0; i < DefaultCommandQueue; i++ {
		if err := r.eng.Submit(func() {}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	if err := r.eng.Inject(1, "link"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Inject on full queue err = %v", err)
	}
}

func TestClipFinishedNamesTheFinishedClip(t *testing.T) {
	t.Parallel()
	r := newRig(t)

	if err := r.eng.dispatch(4, "test"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	// nod ends at 600ms and the chain job starts sway in the same tick.
	r.at(600 * ms)
	if got := r.finished(); len(got) != 1 || got[0] != "nod" {
		t.Fatalf("clip_finished = %v, want [nod]", got)
	}
	if st := r.eng.player.Status(); !st.Running || st.Clip != "sway" {
		t.Fatalf("player status = %+v, want sway running", st)
	}

	r.at(1000 * ms)
	if got := r.finished(); len(got) != 1 || got[0] != "sway" {
		t.Fatalf("clip_finished = %v, want [sway]", got)
	}
}

func TestZeroDurationClipReportsFinish(t *testing.T) {
	t.Parallel()
	r := newRig(t)
	if err := r.eng.dispatch(1, "test"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	r.clk.Set(600 * ms)
	// snap completes inside Start while nod completes on the same tick.
	r.eng.Tick(r.clk.Now())
	r.eng.startClip(motion.Sequence{Name: "snap", Steps: []motion.Step{{Targets: []int{30, 0}}}}, "test")
	if got := r.finished(); len(got) != 2 || got[0] != "nod" || got[1] != "snap" {
		t.Fatalf("clip_finished = %v, want [nod snap]", got)
	}
}
