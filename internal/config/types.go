package config

import (
	"animatron/internal/axis"
	"animatron/internal/hw"
	"animatron/internal/light"
	"animatron/internal/link"
	"animatron/internal/task/scheduler"
	"animatron/internal/task/trigger"
	logx "animatron/pkg/logx"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Engine   EngineConfig   `json:"engine"`
	Axes     []AxisConfig   `json:"axes"`
	Lights   LightsConfig   `json:"lights"`
	Hardware HardwareConfig `json:"hardware"`
	Link     LinkConfig     `json:"link"`
	HTTP     HTTPConfig     `json:"http"`

	Choreography ChoreographyConfig `json:"choreography"`
	Ambient      AmbientConfig      `json:"ambient"`
	Systemd      SystemdConfig      `json:"systemd"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Forward LoggingForward `json:"forward"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingForward publishes warn+ log lines on the event bus so the API can
// serve them next to engine events.
type LoggingForward struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// EngineConfig controls the engine loop and its fixed pools.
//
// Durations are Go duration strings ("5ms", "300ms"). Zero values select
// the defaults:
//   - tick: 5ms
//   - refractory: 300ms
//   - command_queue: 64
//   - delayed_slots: 8, toggle_slots: 8, job_slots: 6
type EngineConfig struct {
	Tick         string `json:"tick,omitempty"`
	Refractory   string `json:"refractory,omitempty"`
	CommandQueue int    `json:"command_queue,omitempty"`

	DelayedSlots int `json:"delayed_slots,omitempty"`
	ToggleSlots  int `json:"toggle_slots,omitempty"`
	JobSlots     int `json:"job_slots,omitempty"`
}

// AxisConfig is one actuator row. Offsets bound the motion-time safety
// band around origin.
type AxisConfig struct {
	Name      string `json:"name"`
	Channel   int    `json:"channel"`
	Origin    int    `json:"origin"`
	MinOffset int    `json:"min_offset"`
	MaxOffset int    `json:"max_offset"`
}

// LightsConfig lists the LED partitions. When omitted the five-way default
// split of a 16-LED strip is used.
type LightsConfig struct {
	Partitions []PartitionConfig `json:"partitions,omitempty"`
}

type PartitionConfig struct {
	Name    string `json:"name"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Enabled bool   `json:"enabled"`
}

type HardwareConfig struct {
	Driver string `json:"driver,omitempty"` // "log" (default) or "serial"
	Port   string `json:"port,omitempty"`
	Baud   int    `json:"baud,omitempty"`
}

// LinkConfig is the inbound event-code serial link.
type LinkConfig struct {
	Enabled bool   `json:"enabled"`
	Port    string `json:"port,omitempty"`
	Baud    int    `json:"baud,omitempty"`
}

// HTTPConfig controls the control API.
//
// Prefer binding to localhost; the API has no authentication.
type HTTPConfig struct {
	Enabled      bool     `json:"enabled"`
	Addr         string   `json:"addr,omitempty"` // default: "127.0.0.1:8080"
	RatePerSec   float64  `json:"rate_per_sec,omitempty"`
	Burst        int      `json:"burst,omitempty"`
	AllowOrigins []string `json:"allow_origins,omitempty"`

	Debug HTTPDebugConfig `json:"debug,omitempty"`
}

// HTTPDebugConfig mounts pprof on the API listener.
//
// Security note: a non-loopback addr needs a token or allow_insecure.
type HTTPDebugConfig struct {
	Enabled              bool   `json:"enabled"`
	Token                string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure        bool   `json:"allow_insecure,omitempty"`
	MutexProfileFraction int    `json:"mutex_profile_fraction,omitempty"`
	BlockProfileRate     int    `json:"block_profile_rate,omitempty"`
}

type ChoreographyConfig struct {
	// Path of the YAML library. Relative paths resolve against the config
	// file's directory.
	Path string `json:"path"`
}

type AmbientConfig struct {
	Enabled  bool             `json:"enabled"`
	Timezone string           `json:"timezone,omitempty"`
	Triggers []AmbientTrigger `json:"triggers,omitempty"`
}

// AmbientTrigger injects Code on Schedule (cron expression, "HH:MM", or an
// interval such as "every:45s").
type AmbientTrigger struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Code     uint16 `json:"code"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}

func (c LoggingConfig) ToLogx() logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File:    logx.FileConfig{Enabled: c.File.Enabled, Path: c.File.Path},
		Forward: logx.ForwardConfig{
			Enabled:    c.Forward.Enabled,
			MinLevel:   c.Forward.MinLevel,
			RatePerSec: c.Forward.RatePerSec,
		},
	}
}

func (c EngineConfig) SchedulerConfig() scheduler.Config {
	return scheduler.Config{
		DelayedSlots: c.DelayedSlots,
		ToggleSlots:  c.ToggleSlots,
		JobSlots:     c.JobSlots,
	}
}

func (c *Config) AxisSpecs() []axis.Spec {
	out := make([]axis.Spec, 0, len(c.Axes))
	for _, a := range c.Axes {
		out = append(out, axis.Spec{
			Name:      a.Name,
			Channel:   a.Channel,
			Origin:    a.Origin,
			MinOffset: a.MinOffset,
			MaxOffset: a.MaxOffset,
		})
	}
	return out
}

func (c LightsConfig) ToPartitions() []light.Partition {
	if len(c.Partitions) == 0 {
		return light.DefaultPartitions()
	}
	out := make([]light.Partition, 0, len(c.Partitions))
	for _, p := range c.Partitions {
		out = append(out, light.Partition{Name: p.Name, Start: p.Start, End: p.End, Enabled: p.Enabled})
	}
	return out
}

func (c HardwareConfig) ToHW() hw.Config {
	return hw.Config{Driver: c.Driver, Port: c.Port, Baud: c.Baud}
}

func (c LinkConfig) ToLink() link.Config {
	return link.Config{Enabled: c.Enabled, Port: c.Port, Baud: c.Baud}
}

func (c AmbientConfig) ToTrigger() trigger.Config {
	out := trigger.Config{Enabled: c.Enabled, Timezone: c.Timezone}
	for _, t := range c.Triggers {
		out.Triggers = append(out.Triggers, trigger.Entry{Name: t.Name, Schedule: t.Schedule, Code: t.Code})
	}
	return out
}
