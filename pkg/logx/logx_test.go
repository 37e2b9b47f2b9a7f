package logx

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARNING ", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := ParseLevel(tc.in, zerolog.InfoLevel); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestZeroAndNop(t *testing.T) {
	t.Parallel()
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	zero.Info("dropped")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
	if Nop().With(String("k", "v")).Enabled(LevelError) {
		t.Fatal("Nop logger reports enabled")
	}
}

func TestDecodeRecord(t *testing.T) {
	t.Parallel()
	r := decodeRecord(zerolog.WarnLevel, []byte(`{"level":"warn","time":"x","message":"pool full","comp":"engine","slots":8}`))
	if r.Message != "pool full" || r.Level != "warn" {
		t.Fatalf("record = %+v", r)
	}
	if r.Fields["comp"] != "engine" || r.Fields["slots"] != float64(8) {
		t.Fatalf("fields = %v", r.Fields)
	}
	if _, ok := r.Fields["time"]; ok {
		t.Fatal("time should not be a field")
	}

	raw := decodeRecord(zerolog.ErrorLevel, []byte("not json"))
	if raw.Message != "not json" {
		t.Fatalf("raw message = %q", raw.Message)
	}
}

func TestForwardSinkFiltersAndForwards(t *testing.T) {
	got := make(chan Record, 4)
	svc, log := New(Config{
		Level:   "debug",
		Forward: ForwardConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100},
	}, ForwarderFunc(func(r Record) { got <- r }))
	defer svc.Close()

	log = log.With(String("comp", "test"))
	log.Info("not forwarded")
	log.Warn("forwarded", Err(errors.New("boom")))

	select {
	case r := <-got:
		if r.Message != "forwarded" || r.Fields["comp"] != "test" || r.Fields["err"] != "boom" {
			t.Fatalf("record = %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("warn record was not forwarded")
	}
	select {
	case r := <-got:
		t.Fatalf("unexpected record %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)
	log.Info("hello", Int("n", 3))
	log.Debug("hidden")
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	s := string(b)
	if !strings.Contains(s, `"message":"hello"`) || !strings.Contains(s, `"n":3`) {
		t.Fatalf("log file = %s", s)
	}
	if strings.Contains(s, "hidden") {
		t.Fatal("debug line written at info level")
	}
}
