// Package light maps named partitions of the addressable strip to named
// effect modes. Drawing and timing of the effects belong to the sink.
package light

import (
	"fmt"
	"strings"
	"time"
)

type Effect int

const (
	EffectStatic Effect = iota
	EffectBreath
	EffectRunning
	EffectBlink
)

func (e Effect) String() string {
	switch e {
	case EffectStatic:
		return "static"
	case EffectBreath:
		return "breath"
	case EffectRunning:
		return "running"
	case EffectBlink:
		return "blink"
	default:
		return fmt.Sprintf("effect(%d)", int(e))
	}
}

// Color is 0xRRGGBB.
type Color uint32

func (c Color) String() string { return fmt.Sprintf("#%06X", uint32(c)) }

type Mode struct {
	Name   string
	Effect Effect
	Color  Color
	Speed  time.Duration
}

// Partition is an inclusive LED index range.
type Partition struct {
	Name    string
	Start   int
	End     int
	Enabled bool
}

func (p Partition) Len() int { return p.End - p.Start + 1 }

const (
	Red    Color = 0xFF0000
	Yellow Color = 0xFFFF00
	Green  Color = 0x00FF00
)

// Off blanks a partition. It is applied to every partition at init.
var Off = Mode{Name: "off", Effect: EffectStatic, Color: 0x000000, Speed: time.Second}

var modes = buildModes()

func buildModes() []Mode {
	colors := []struct {
		name string
		c    Color
	}{{"red", Red}, {"yellow", Yellow}, {"green", Green}}
	styles := []struct {
		name  string
		fx    Effect
		speed time.Duration
	}{
		{"breath", EffectBreath, 1500 * time.Millisecond},
		{"solid", EffectStatic, 1000 * time.Millisecond},
		{"flow", EffectRunning, 900 * time.Millisecond},
		{"blink", EffectBlink, 500 * time.Millisecond},
	}
	out := make([]Mode, 0, len(colors)*len(styles)+1)
	for _, c := range colors {
		for _, s := range styles {
			out = append(out, Mode{Name: c.name + "_" + s.name, Effect: s.fx, Color: c.c, Speed: s.speed})
		}
	}
	return append(out, Off)
}

// Modes lists the built-in modes: red, yellow and green in breath, solid,
// flow and blink, followed by off.
func Modes() []Mode {
	out := make([]Mode, len(modes))
	copy(out, modes)
	return out
}

func LookupMode(name string) (Mode, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, m := range modes {
		if m.Name == key {
			return m, true
		}
	}
	return Mode{}, false
}

// DefaultPartitions is the five-way split of a 16-LED strip.
func DefaultPartitions() []Partition {
	return []Partition{
		{Name: "a", Start: 0, End: 3, Enabled: true},
		{Name: "b", Start: 4, End: 6, Enabled: true},
		{Name: "c", Start: 7, End: 9, Enabled: true},
		{Name: "d", Start: 10, End: 12, Enabled: true},
		{Name: "e", Start: 13, End: 15, Enabled: true},
	}
}
