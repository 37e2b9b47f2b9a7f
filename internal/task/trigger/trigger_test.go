package trigger

import (
	"context"
	"testing"
	"time"

	logx "animatron/pkg/logx"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		kind  Kind
		every time.Duration
	}{
		{name: "cron", raw: "*/5 * * * *", kind: KindCron},
		{name: "cron with seconds", raw: "0 30 9 * * *", kind: KindCron},
		{name: "descriptor", raw: "@hourly", kind: KindCron},
		{name: "prefixed cron", raw: "cron:0 0 * * *", kind: KindCron},
		{name: "duration", raw: "10m", kind: KindInterval, every: 10 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", kind: KindInterval, every: 45 * time.Second},
		{name: "hhmm", raw: "01:30", kind: KindInterval, every: 90 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.kind == KindInterval && got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "00:75", "0s", "cron:", "* * *", "every:-5m"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestIntervalSpreadIsBounded(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sched, jitter := intervalSchedule(10*time.Second, now, "blink")
	if jitter < 0 || jitter >= 10*time.Second {
		t.Fatalf("jitter = %v", jitter)
	}
	if first := sched.Next(now); first != now.Add(10*time.Second+jitter) {
		t.Fatalf("first = %v, want %v", first, now.Add(10*time.Second+jitter))
	}
	_, again := intervalSchedule(10*time.Second, now, "blink")
	if again != jitter {
		t.Fatalf("jitter not stable per name: %v vs %v", jitter, again)
	}
}

func TestValidateConfig(t *testing.T) {
	t.Parallel()
	ok := Config{Enabled: true, Triggers: []Entry{{Name: "idle", Schedule: "5m", Code: 1}}}
	if err := ValidateConfig(ok); err != nil {
		t.Fatalf("valid config: %v", err)
	}
	bad := []Config{
		{Triggers: []Entry{{Schedule: "5m"}}},
		{Triggers: []Entry{{Name: "a", Schedule: "5m"}, {Name: "A", Schedule: "1m"}}},
		{Triggers: []Entry{{Name: "a", Schedule: "whenever"}}},
		{Timezone: "Mars/Olympus"},
	}
	for i, c := range bad {
		if err := ValidateConfig(c); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}

func TestServiceFires(t *testing.T) {
	t.Parallel()
	got := make(chan uint16, 8)
	cfg := Config{Enabled: true, Triggers: []Entry{{Name: "tick", Schedule: "@every 1s", Code: 0x0A00}}}
	s := New(cfg, func(_ string, code uint16) {
		select {
		case got <- code:
		default:
		}
	}, logx.Nop())

	s.Start(context.Background())
	defer s.Stop(context.Background())

	if snap := s.Snapshot(); !snap.Running || len(snap.Triggers) != 1 || snap.Triggers[0].Next.IsZero() {
		t.Fatalf("snapshot = %+v", snap)
	}
	select {
	case code := <-got:
		if code != 0x0A00 {
			t.Fatalf("code = %#x", code)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("trigger did not fire")
	}
	if s.Snapshot().Triggers[0].Fired == 0 {
		t.Fatal("fire count not recorded")
	}
}

func TestApplyReplacesTriggers(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Triggers: []Entry{{Name: "a", Schedule: "1h", Code: 1}}}, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	s.Apply(Config{Enabled: true, Timezone: "UTC", Triggers: []Entry{
		{Name: "b", Schedule: "*/5 * * * *", Code: 2},
		{Name: "c", Schedule: "2h", Code: 3},
	}})
	snap := s.Snapshot()
	if !snap.Running || snap.Timezone != "UTC" || len(snap.Triggers) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if snap.Triggers[0].Name != "b" || snap.Triggers[1].Code != 3 {
		t.Fatalf("triggers = %+v", snap.Triggers)
	}

	s.Apply(Config{Enabled: false})
	if s.Snapshot().Running {
		t.Fatal("disabled service still running")
	}
}
