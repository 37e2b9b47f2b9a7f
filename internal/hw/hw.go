// Package hw holds the output sinks the engine writes to: servo angles, pin
// inversions and light modes. Drivers never block the caller.
package hw

import (
	"fmt"
	"strings"
	"sync"

	"animatron/internal/light"
)

type ServoSink interface {
	WriteAngle(channel, degrees int)
}

type PinSink interface {
	Invert(pin int)
}

// Driver bundles every sink of one hardware backend.
type Driver interface {
	ServoSink
	PinSink
	light.Sink
	State() State
	Close() error
}

// State is the last value written per output.
type State struct {
	Angles map[int]int       `json:"angles"`
	Pins   map[int]bool      `json:"pins"`
	Lights map[string]string `json:"lights"`
	Writes uint64            `json:"writes"`
	Extra  map[string]uint64 `json:"extra,omitempty"`
}

// tracker records outputs for State. Safe for concurrent use.
type tracker struct {
	mu     sync.Mutex
	angles map[int]int
	pins   map[int]bool
	lights map[string]string
	writes uint64
}

func newTracker() *tracker {
	return &tracker{angles: map[int]int{}, pins: map[int]bool{}, lights: map[string]string{}}
}

func (t *tracker) angle(ch, deg int) {
	t.mu.Lock()
	t.angles[ch] = deg
	t.writes++
	t.mu.Unlock()
}

// invert flips the tracked level and returns the new one.
func (t *tracker) invert(pin int) bool {
	t.mu.Lock()
	lvl := !t.pins[pin]
	t.pins[pin] = lvl
	t.writes++
	t.mu.Unlock()
	return lvl
}

func (t *tracker) light(part, mode string) {
	t.mu.Lock()
	t.lights[part] = mode
	t.writes++
	t.mu.Unlock()
}

func (t *tracker) state() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := State{
		Angles: make(map[int]int, len(t.angles)),
		Pins:   make(map[int]bool, len(t.pins)),
		Lights: make(map[string]string, len(t.lights)),
		Writes: t.writes,
	}
	for k, v := range t.angles {
		st.Angles[k] = v
	}
	for k, v := range t.pins {
		st.Pins[k] = v
	}
	for k, v := range t.lights {
		st.Lights[k] = v
	}
	return st
}

// Config selects and configures a driver.
type Config struct {
	Driver string // "log" (default) or "serial"
	Port   string
	Baud   int
}

func (c Config) Kind() string {
	k := strings.ToLower(strings.TrimSpace(c.Driver))
	if k == "" {
		return "log"
	}
	return k
}

func ValidateConfig(c Config) error {
	switch c.Kind() {
	case "log":
		return nil
	case "serial":
		if strings.TrimSpace(c.Port) == "" {
			return fmt.Errorf("hardware.port required for serial driver")
		}
		if c.Baud < 0 {
			return fmt.Errorf("hardware.baud must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("hardware.driver: unknown driver %q (use log or serial)", c.Driver)
	}
}
