package choreo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"animatron/internal/axis"
	"animatron/internal/light"
)

func testEnv(t *testing.T) Env {
	t.Helper()
	g, err := axis.NewGroup([]axis.Spec{
		{Name: "x", Channel: 0, Origin: 90, MinOffset: -45, MaxOffset: 45},
		{Name: "y", Channel: 1, Origin: 90, MinOffset: -45, MaxOffset: 45},
	})
	if err != nil {
		t.Fatalf("NewGroup: %v", err)
	}
	var parts []string
	for _, p := range light.DefaultPartitions() {
		parts = append(parts, p.Name)
	}
	return Env{Axes: g, Partitions: parts}
}

const sample = `
scenes:
  alarm:
    - {partition: all, mode: red_blink}
clips:
  Nod:
    steps:
      - targets: {y: 20}
        duration: 250
      - targets: {x: -10, y: 0}
        duration: 0.5s
jobs:
  warn:
    steps:
      - {at: 2s, do: light, partition: a, mode: off}
      - {at: 0, do: scene, scene: alarm}
      - {at: 1s, do: pulse, pin: 4, hz: 2, toggles: 4}
      - {at: 1s, do: emit, event: warned}
cues:
  - code: 0x0005
    name: greet
    clip: nod
  - code: 2304
    job: warn
    pulses:
      - {pin: 3, hz: 1, toggles: 2}
    delayed:
      - {after: 3s, do: stop_motion}
`

func TestParseSample(t *testing.T) {
	t.Parallel()
	lib, err := Parse([]byte(sample), testEnv(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	nod, ok := lib.Clip("NOD")
	if !ok {
		t.Fatal("clip lookup should be case-insensitive")
	}
	if len(nod.Steps) != 2 || nod.Steps[0].Duration != 250*time.Millisecond || nod.Steps[1].Duration != 500*time.Millisecond {
		t.Fatalf("nod steps = %+v", nod.Steps)
	}
	// x is not authored on step 0 so it holds.
	if _, ok := nod.Steps[0].Target(0); ok {
		t.Fatal("x should hold on step 0")
	}
	if v, ok := nod.Steps[0].Target(1); !ok || v != 20 {
		t.Fatalf("y target = %d,%v", v, ok)
	}

	warn, ok := lib.Job("warn")
	if !ok {
		t.Fatal("job warn missing")
	}
	wantKinds := []ActionKind{ActionScene, ActionPulse, ActionEmit, ActionLight}
	for i, st := range warn.Steps {
		if st.Action.Kind != wantKinds[i] {
			t.Fatalf("step %d kind = %s, want %s", i, st.Action.Kind, wantKinds[i])
		}
	}
	// Equal offsets keep authored order.
	if warn.Steps[1].At != time.Second || warn.Steps[2].At != time.Second {
		t.Fatalf("steps = %+v", warn.Steps)
	}

	cue, ok := lib.Cue(0x0900)
	if !ok || cue.Job != "warn" || len(cue.Pulses) != 1 || len(cue.Delayed) != 1 {
		t.Fatalf("cue 0x0900 = %+v, %v", cue, ok)
	}
	if cue.Delayed[0].After != 3*time.Second || cue.Delayed[0].Action.Kind != ActionStopMotion {
		t.Fatalf("delayed = %+v", cue.Delayed[0])
	}
	if c, ok := lib.CueByName("Greet"); !ok || c.Code != 5 || c.Clip != "nod" {
		t.Fatalf("CueByName = %+v, %v", c, ok)
	}
	if codes := lib.CueCodes(); len(codes) != 2 || codes[0] != 5 || codes[1] != 0x0900 {
		t.Fatalf("codes = %v", codes)
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	env := testEnv(t)
	cases := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown field", "clips:\n  a:\n    stepz: []\n", "field stepz not found"},
		{"unknown axis", "clips:\n  a:\n    steps:\n      - {targets: {q: 1}, duration: 10}\n", "clips.a.steps[0].targets.q: unknown axis"},
		{"empty clip", "clips:\n  a:\n    steps: []\n", "clips.a.steps: at least one step"},
		{"bad duration", "clips:\n  a:\n    steps:\n      - {targets: {x: 1}, duration: soon}\n", "clips.a.steps[0].duration"},
		{"bad mode", "scenes:\n  s:\n    - {partition: a, mode: purple}\n", "scenes.s[0].mode"},
		{"bad partition", "scenes:\n  s:\n    - {partition: z, mode: off}\n", "scenes.s[0].partition"},
		{"unknown action", "jobs:\n  j:\n    steps:\n      - {at: 0, do: dance}\n", "jobs.j.steps[0].do: unknown action"},
		{"missing clip ref", "cues:\n  - {code: 1, clip: none}\n", "cues[0].clip: unknown clip"},
		{"pulse hz", "cues:\n  - code: 1\n    pulses: [{pin: 1, hz: 0, toggles: 1}]\n", "cues[0].pulses[0].hz"},
		{"duplicate code", "jobs:\n  j:\n    steps: [{at: 0, do: stop_motion}]\ncues:\n  - {code: 1, job: j}\n  - {code: 0x01, job: j}\n", "duplicate code"},
		{"empty cue", "cues:\n  - {code: 7}\n", "does nothing"},
		{"bad code", "cues:\n  - {code: 70000, job: j}\n", "invalid event code"},
		{"emit without event", "jobs:\n  j:\n    steps: [{at: 0, do: emit}]\n", "jobs.j.steps[0].event"},
	}
	for _, tc := range cases {
		_, err := Parse([]byte(tc.doc), env)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestEmptyDocument(t *testing.T) {
	t.Parallel()
	lib, err := Parse(nil, testEnv(t))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(lib.Cues) != 0 || len(lib.ClipNames()) != 0 {
		t.Fatalf("lib = %+v", lib)
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "choreo.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	lib, err := LoadFile(path, testEnv(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if got := lib.JobNames(); len(got) != 1 || got[0] != "warn" {
		t.Fatalf("jobs = %v", got)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"), testEnv(t)); err == nil {
		t.Fatal("expected error for missing file")
	}
}
