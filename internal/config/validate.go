package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"animatron/internal/axis"
	"animatron/internal/hw"
	"animatron/internal/light"
	"animatron/internal/link"
	"animatron/internal/task/trigger"
	logx "animatron/pkg/logx"
)

const (
	DefaultTick       = 5 * time.Millisecond
	DefaultRefractory = 300 * time.Millisecond

	maxTick = 100 * time.Millisecond
)

// Validate checks every section that does not need a live component. The
// HTTP section is checked by the api package.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if lvl := strings.TrimSpace(c.Logging.Level); lvl != "" {
		if _, err := logx.LookupLevel(lvl); err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
	}
	if lvl := strings.TrimSpace(c.Logging.Forward.MinLevel); lvl != "" {
		if _, err := logx.LookupLevel(lvl); err != nil {
			return fmt.Errorf("logging.forward.min_level: %w", err)
		}
	}
	if c.Logging.Forward.RatePerSec < 0 {
		return fmt.Errorf("logging.forward.rate_per_sec must be >= 0")
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.validateAxes(); err != nil {
		return err
	}
	if _, err := light.NewController(c.Lights.ToPartitions(), nil, logx.Nop()); err != nil {
		return err
	}
	if err := hw.ValidateConfig(c.Hardware.ToHW()); err != nil {
		return err
	}
	if err := link.ValidateConfig(c.Link.ToLink()); err != nil {
		return err
	}
	if c.Link.Enabled && c.Hardware.ToHW().Kind() == "serial" && c.Link.Port == c.Hardware.Port {
		return fmt.Errorf("link.port: %q is already used by hardware.port", c.Link.Port)
	}
	return trigger.ValidateConfig(c.Ambient.ToTrigger())
}

func (c EngineConfig) validate() error {
	tick, err := c.TickDuration()
	if err != nil {
		return err
	}
	if tick > maxTick {
		return fmt.Errorf("engine.tick: %s exceeds %s", tick, maxTick)
	}
	if _, err := c.RefractoryDuration(); err != nil {
		return err
	}
	for _, f := range []struct {
		path string
		v    int
	}{
		{"engine.command_queue", c.CommandQueue},
		{"engine.delayed_slots", c.DelayedSlots},
		{"engine.toggle_slots", c.ToggleSlots},
		{"engine.job_slots", c.JobSlots},
	} {
		if f.v < 0 {
			return fmt.Errorf("%s must be >= 0", f.path)
		}
	}
	return nil
}

func (c EngineConfig) TickDuration() (time.Duration, error) {
	return ParseDurationOrDefault("engine.tick", c.Tick, DefaultTick)
}

func (c EngineConfig) RefractoryDuration() (time.Duration, error) {
	return ParseDurationOrDefault("engine.refractory", c.Refractory, DefaultRefractory)
}

func (c *Config) validateAxes() error {
	if len(c.Axes) == 0 {
		return fmt.Errorf("axes: at least one axis required")
	}
	channels := make(map[int]string, len(c.Axes))
	for i, a := range c.Axes {
		if a.Origin < axis.MinAngle || a.Origin > axis.MaxAngle {
			return fmt.Errorf("axes[%d].origin: %d outside %d..%d", i, a.Origin, axis.MinAngle, axis.MaxAngle)
		}
		if a.MinOffset > a.MaxOffset {
			return fmt.Errorf("axes[%d]: min_offset %d > max_offset %d", i, a.MinOffset, a.MaxOffset)
		}
		if a.Channel < 0 {
			return fmt.Errorf("axes[%d].channel must be >= 0", i)
		}
		if prev, dup := channels[a.Channel]; dup {
			return fmt.Errorf("axes[%d].channel: %d already used by %q", i, a.Channel, prev)
		}
		channels[a.Channel] = a.Name
	}
	_, err := axis.NewGroup(c.AxisSpecs())
	return err
}

// ChoreographyPath resolves the library path against the config file's
// directory. Empty means no library.
func (c *Config) ChoreographyPath(configPath string) string {
	p := strings.TrimSpace(c.Choreography.Path)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(filepath.Dir(configPath), p)
}
