package hw

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"animatron/internal/light"
	logx "animatron/pkg/logx"
)

type bufPort struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (p *bufPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Write(b)
}

func (p *bufPort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

func (p *bufPort) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.String()
}

type failPort struct {
	mu     sync.Mutex
	writes int
	fail   bool
}

func (p *failPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writes++
	if p.fail {
		return 0, errors.New("device gone")
	}
	return len(b), nil
}

func (p *failPort) Close() error { return nil }

func (p *failPort) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

func TestLogDriverTracksState(t *testing.T) {
	t.Parallel()
	d := NewLogDriver(logx.Nop())
	d.WriteAngle(0, 90)
	d.WriteAngle(0, 45)
	d.Invert(13)
	d.Invert(13)
	d.Invert(2)
	m, _ := light.LookupMode("red_blink")
	d.Apply(light.Partition{Name: "a", End: 3}, m)

	st := d.State()
	if st.Angles[0] != 45 {
		t.Fatalf("angle = %d", st.Angles[0])
	}
	if st.Pins[13] || !st.Pins[2] {
		t.Fatalf("pins = %v", st.Pins)
	}
	if st.Lights["a"] != "red_blink" || st.Writes != 6 {
		t.Fatalf("state = %+v", st)
	}
}

func TestSerialDriverWritesCommands(t *testing.T) {
	t.Parallel()
	port := &bufPort{}
	d := NewSerialDriver(port, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	d.WriteAngle(1, 120)
	d.Invert(5)
	m, _ := light.LookupMode("green_flow")
	d.Apply(light.Partition{Name: "b", Start: 4, End: 6}, m)

	want := "S 1 120\nP 5 1\nL 4 6 running 00FF00 900\n"
	deadline := time.Now().Add(2 * time.Second)
	for port.String() != want && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := port.String(); got != want {
		t.Fatalf("port got %q, want %q", got, want)
	}

	if err := d.Close(); err != nil || !port.closed {
		t.Fatalf("Close: %v closed=%v", err, port.closed)
	}
}

func TestSerialDriverDropsWhenFull(t *testing.T) {
	t.Parallel()
	d := NewSerialDriver(&bufPort{}, logx.Nop())
	for i := 0; i < serialQueueSize+10; i++ {
		d.WriteAngle(0, i%180)
	}
	if got := d.State().Extra["dropped"]; got != 10 {
		t.Fatalf("dropped = %d, want 10", got)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	cases := []struct {
		cfg Config
		ok  bool
	}{
		{Config{}, true},
		{Config{Driver: "LOG"}, true},
		{Config{Driver: "serial", Port: "/dev/ttyUSB0"}, true},
		{Config{Driver: "serial"}, false},
		{Config{Driver: "i2c"}, false},
	}
	for _, tc := range cases {
		err := ValidateConfig(tc.cfg)
		if (err == nil) != tc.ok {
			t.Fatalf("ValidateConfig(%+v) = %v", tc.cfg, err)
		}
		if err != nil && !strings.Contains(err.Error(), "hardware.") {
			t.Fatalf("error not path-qualified: %v", err)
		}
	}
}

func TestBreakerTripsAndCoolsDown(t *testing.T) {
	t.Parallel()
	b := newBreaker()
	now := time.Unix(1000, 0)
	boom := errors.New("boom")

	for i := 1; i < breakerTrip; i++ {
		if b.record(now, boom) {
			t.Fatalf("tripped after %d failures", i)
		}
	}
	if !b.record(now, boom) {
		t.Fatal("expected trip")
	}
	if b.allow(now.Add(breakerBase - time.Millisecond)) {
		t.Fatal("breaker should be open during cooldown")
	}
	if !b.allow(now.Add(breakerBase)) {
		t.Fatal("breaker should allow after cooldown")
	}

	// Next failure doubles the cooldown.
	later := now.Add(breakerBase)
	b.record(later, boom)
	if b.allow(later.Add(2*breakerBase - time.Millisecond)) {
		t.Fatal("second cooldown should be doubled")
	}

	b.record(later.Add(2*breakerBase), nil)
	if !b.allow(later.Add(2 * breakerBase)) {
		t.Fatal("success should close the breaker")
	}
}

func TestSerialDriverShedsWhileBreakerOpen(t *testing.T) {
	t.Parallel()
	port := &failPort{fail: true}
	d := NewSerialDriver(port, logx.Nop())
	now := time.Unix(1000, 0)
	d.now = func() time.Time { return now }

	for i := 0; i < breakerTrip+2; i++ {
		d.WriteAngle(0, 10+i)
	}
	if err := d.Run(context.Background()); err == nil {
		t.Fatal("Run should fail once the breaker trips")
	}
	if got := port.count(); got != breakerTrip {
		t.Fatalf("writes = %d, want %d", got, breakerTrip)
	}

	// Restarted writer: the remaining backlog is shed, not replayed.
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	deadline := time.Now().Add(2 * time.Second)
	for d.State().Extra["shed"] < 2 && time.Now().Before(deadline) {
		time.Sleep(2 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	st := d.State()
	if st.Extra["shed"] != 2 || st.Extra["breaker_open"] != 1 || port.count() != breakerTrip {
		t.Fatalf("extra = %v writes = %d", st.Extra, port.count())
	}
}
