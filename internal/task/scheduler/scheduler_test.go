package scheduler

import (
	"errors"
	"math"
	"testing"
	"time"

	"animatron/internal/clock"
)

const ms = time.Millisecond

func TestDelayedFiresOnceAndFreesSlot(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	r := NewDelayed(clk, 0)

	calls := 0
	if err := r.Register(func() { calls++ }, 100*ms); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Poll(99 * ms)
	if calls != 0 {
		t.Fatal("fired before deadline")
	}
	r.Poll(100 * ms)
	r.Poll(500 * ms)
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
	if r.Active() != 0 {
		t.Fatalf("active = %d after firing", r.Active())
	}
}

func TestDelayedNinthRegistrationDropped(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	r := NewDelayed(clk, DefaultDelayedSlots)

	fired := make([]int, 0, 9)
	for i := 0; i < 8; i++ {
		i := i
		if err := r.Register(func() { fired = append(fired, i) }, time.Duration(10*(i+1))*ms); err != nil {
			t.Fatalf("Register #%d: %v", i, err)
		}
	}
	err := r.Register(func() { fired = append(fired, 99) }, 0)
	if !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("9th Register err = %v, want ErrNoFreeSlot", err)
	}
	if r.Active() != 8 {
		t.Fatalf("active = %d, want 8", r.Active())
	}

	r.Poll(time.Second)
	if len(fired) != 8 {
		t.Fatalf("fired %d callbacks, want 8", len(fired))
	}
	for i, v := range fired {
		if v != i {
			t.Fatalf("fired order = %v", fired)
		}
	}
	if st := r.Stats(); st.Dropped != 1 || st.Accepted != 8 || st.Completed != 8 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestDelayedCallbackMayReRegister(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	r := NewDelayed(clk, 1)

	n := 0
	var tick func()
	tick = func() {
		n++
		if n < 3 {
			if err := r.Register(tick, 10*ms); err != nil {
				t.Errorf("re-register: %v", err)
			}
		}
	}
	_ = r.Register(tick, 10*ms)
	for now := time.Duration(0); now <= 100*ms; now += 10 * ms {
		clk.Set(now)
		r.Poll(now)
	}
	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}
}

func TestDelayedRejectsNil(t *testing.T) {
	t.Parallel()
	r := NewDelayed(clock.NewManual(0), 1)
	if err := r.Register(nil, 0); !errors.Is(err, ErrNilCallback) {
		t.Fatalf("err = %v", err)
	}
}

type pinLog struct {
	clk *clock.Manual
	at  []time.Duration
}

func (p *pinLog) Invert(int) { p.at = append(p.at, p.clk.Now()) }

func TestToggleOneHertzTwice(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	pins := &pinLog{clk: clk}
	r := NewToggles(clk, pins, 0)

	if err := r.Register(13, 1.0, 2, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for now := time.Duration(0); now <= 3*time.Second; now += 10 * ms {
		clk.Set(now)
		r.Poll(now)
	}
	if len(pins.at) != 2 {
		t.Fatalf("toggled %d times, want 2 (%v)", len(pins.at), pins.at)
	}
	if gap := pins.at[1] - pins.at[0]; gap != 500*ms {
		t.Fatalf("gap = %v, want 500ms", gap)
	}
	if r.Active() != 0 {
		t.Fatal("train still active")
	}
}

func TestToggleFixedCadence(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	pins := &pinLog{clk: clk}
	r := NewToggles(clk, pins, 0)

	// 10 Hz: half period 50ms. Poll every 30ms so polls land late.
	_ = r.Register(1, 10, 4, 100*ms)
	for now := time.Duration(0); now <= time.Second; now += 30 * ms {
		clk.Set(now)
		r.Poll(now)
	}
	// due times 100,150,200,250 -> first polls at/after: 120,150,210,270
	want := []time.Duration{120 * ms, 150 * ms, 210 * ms, 270 * ms}
	if len(pins.at) != len(want) {
		t.Fatalf("toggles at %v, want %v", pins.at, want)
	}
	for i := range want {
		if pins.at[i] != want[i] {
			t.Fatalf("toggles at %v, want %v", pins.at, want)
		}
	}
}

func TestToggleValidation(t *testing.T) {
	t.Parallel()
	r := NewToggles(clock.NewManual(0), nil, 1)
	cases := []struct {
		hz      float64
		toggles int
		want    error
	}{
		{0, 1, ErrInvalidFrequency},
		{-2, 1, ErrInvalidFrequency},
		{1e-11, 1, ErrInvalidFrequency},
		{math.SmallestNonzeroFloat64, 1, ErrInvalidFrequency},
		{1, 0, ErrNoToggles},
		{1, -1, ErrNoToggles},
	}
	for _, tc := range cases {
		if err := r.Register(0, tc.hz, tc.toggles, 0); !errors.Is(err, tc.want) {
			t.Fatalf("Register(hz=%v, n=%d) = %v, want %v", tc.hz, tc.toggles, err, tc.want)
		}
	}
	if err := r.Register(0, 1, 1, 0); err != nil {
		t.Fatalf("valid Register: %v", err)
	}
	if err := r.Register(0, 1, 1, 0); !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("full pool err = %v", err)
	}
}

func TestToggleSlowestFrequencyKeepsCadence(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	pins := &pinLog{clk: clk}
	r := NewToggles(clk, pins, 1)
	// Just above the slowest accepted rate: the half period nearly fills a
	// time.Duration and must not wrap.
	if err := r.Register(1, 6e-11, 3, time.Hour); err != nil {
		t.Fatalf("Register: %v", err)
	}
	for _, at := range []time.Duration{time.Hour, time.Hour + 10*ms, time.Hour + 20*ms, 2 * time.Hour} {
		clk.Set(at)
		r.Poll(clk.Now())
	}
	if len(pins.at) != 1 {
		t.Fatalf("toggles at %v, want exactly one", pins.at)
	}
}

func TestTogglesCancelPinCounts(t *testing.T) {
	t.Parallel()
	r := NewToggles(clock.NewManual(0), nil, 4)
	for i := 0; i < 3; i++ {
		pin := 5
		if i == 2 {
			pin = 6
		}
		if err := r.Register(pin, 1, 4, time.Second); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if n := r.CancelPin(5); n != 2 {
		t.Fatalf("CancelPin = %d, want 2", n)
	}
	st := r.Stats()
	if st.Cancelled != 2 || st.Active != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestHalfPeriod(t *testing.T) {
	t.Parallel()
	cases := []struct {
		hz   float64
		want time.Duration
	}{
		{1, 500 * ms},
		{3, 167 * ms},
		{4, 125 * ms},
		{1000, 1 * ms},
		{5000, 1 * ms},
		{1e-11, time.Duration(math.MaxInt64/int64(time.Millisecond)) * ms},
	}
	for _, tc := range cases {
		if got := HalfPeriod(tc.hz); got != tc.want {
			t.Fatalf("HalfPeriod(%v) = %v, want %v", tc.hz, got, tc.want)
		}
	}
}

func TestJobCatchUp(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(1000 * ms)
	r := NewJobs(clk, 0)

	var order []int
	step := func(i int) func() { return func() { order = append(order, i) } }
	id, err := r.Start(Job{Name: "air", Steps: []JobStep{
		{At: 0, Run: step(0)},
		{At: 100 * ms, Run: step(1)},
		{At: 200 * ms, Run: step(2)},
	}})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	r.Poll(1250 * ms)
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("order = %v, want [0 1 2]", order)
	}
	if r.Running(id) {
		t.Fatal("job still running after last step")
	}
	if r.Cancel(id) {
		t.Fatal("Cancel of finished job returned true")
	}
}

func TestJobCancel(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	r := NewJobs(clk, 0)

	ran := 0
	id, _ := r.Start(Job{Steps: []JobStep{
		{At: 0, Run: func() { ran++ }},
		{At: 100 * ms, Run: func() { ran++ }},
	}})
	r.Poll(0)
	if !r.Cancel(id) {
		t.Fatal("Cancel returned false")
	}
	r.Poll(time.Second)
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
}

func TestJobCancelFromStep(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	r := NewJobs(clk, 0)

	ran := 0
	var id JobID
	id, _ = r.Start(Job{Steps: []JobStep{
		{At: 0, Run: func() { ran++; r.Cancel(id) }},
		{At: 0, Run: func() { ran++ }},
	}})
	r.Poll(0)
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
}

func TestJobPoolExhaustionAndStaleID(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	r := NewJobs(clk, 2)

	long := Job{Steps: []JobStep{{At: time.Hour}}}
	a, _ := r.Start(long)
	b, _ := r.Start(long)
	if _, err := r.Start(long); !errors.Is(err, ErrNoFreeSlot) {
		t.Fatalf("3rd Start err = %v", err)
	}

	r.Cancel(a)
	c, err := r.Start(long)
	if err != nil {
		t.Fatalf("Start after cancel: %v", err)
	}
	if r.Cancel(a) {
		t.Fatal("stale id cancelled the recycled slot")
	}
	if !r.Running(b) || !r.Running(c) {
		t.Fatal("live jobs disturbed")
	}
	if (JobID{}).Valid() {
		t.Fatal("zero JobID is valid")
	}
}

func TestSchedulerSnapshot(t *testing.T) {
	t.Parallel()
	clk := clock.NewManual(0)
	s := New(Config{}, clk, nil)

	_ = s.Delayed.Register(func() {}, time.Second)
	_ = s.Toggles.Register(2, 2, 4, 0)
	_, _ = s.Jobs.Start(Job{Name: "j", Steps: []JobStep{{At: time.Second}}})

	snap := s.Snapshot()
	if snap.Delayed.Active != 1 || snap.Delayed.Capacity != 8 {
		t.Fatalf("delayed = %+v", snap.Delayed)
	}
	if snap.Toggles.Active != 1 || snap.Jobs.Capacity != 6 {
		t.Fatalf("toggles=%+v jobs=%+v", snap.Toggles, snap.Jobs)
	}
	if len(snap.Running) != 1 || snap.Running[0].Name != "j" {
		t.Fatalf("running = %+v", snap.Running)
	}

	s.Reset()
	snap = s.Snapshot()
	if snap.Delayed.Active+snap.Toggles.Active+snap.Jobs.Active != 0 {
		t.Fatalf("Reset left work: %+v", snap)
	}
}
