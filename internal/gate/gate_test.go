package gate

import (
	"testing"
	"time"
)

func TestCanTriggerWindow(t *testing.T) {
	t.Parallel()
	ms := time.Millisecond
	cases := []struct {
		at   time.Duration
		want bool
	}{
		{1000 * ms, true},
		{1001 * ms, false},
		{1299 * ms, false},
		{1300 * ms, true},
		{1400 * ms, false},
		{1599 * ms, false},
		{1600 * ms, true},
		{5000 * ms, true},
	}
	g := New(0)
	for _, tc := range cases {
		if got := g.CanTrigger(tc.at); got != tc.want {
			t.Fatalf("CanTrigger(%v) = %v, want %v", tc.at, got, tc.want)
		}
	}
	acc, rej := g.Counts()
	if acc != 4 || rej != 4 {
		t.Fatalf("counts = %d/%d, want 4/4", acc, rej)
	}
}

func TestFirstCallAtZeroAccepted(t *testing.T) {
	t.Parallel()
	g := New(DefaultWindow)
	if !g.CanTrigger(0) {
		t.Fatal("first call rejected")
	}
	if g.CanTrigger(100 * time.Millisecond) {
		t.Fatal("call inside window accepted")
	}
}

func TestSetWindow(t *testing.T) {
	t.Parallel()
	g := New(time.Second)
	g.CanTrigger(0)
	if g.CanTrigger(500 * time.Millisecond) {
		t.Fatal("accepted inside 1s window")
	}
	g.SetWindow(100 * time.Millisecond)
	if !g.CanTrigger(600 * time.Millisecond) {
		t.Fatal("rejected after shrinking window")
	}
	g.SetWindow(-1)
	if g.Window() != DefaultWindow {
		t.Fatalf("window = %v, want default", g.Window())
	}
}
