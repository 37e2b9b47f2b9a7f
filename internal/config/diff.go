package config

import (
	"reflect"
	"slices"
	"sort"
	"strings"

	logx "animatron/pkg/logx"
)

// Sections that are applied live on reload. Any other changed section needs
// a process restart.
var hotSections = map[string]bool{
	"logging":      true,
	"engine":       true,
	"http":         true,
	"choreography": true,
	"ambient":      true,
}

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) structured attrs for logging, and (3) the changed sections that only
// take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.forward_enabled", newCfg.Logging.Forward.Enabled),
		)
	}

	// Only the refractory window is live; pool sizes and the tick need a
	// restart because the engine allocates them once.
	oE, nE := oldCfg.Engine, newCfg.Engine
	refrChanged := strings.TrimSpace(oE.Refractory) != strings.TrimSpace(nE.Refractory)
	oE.Refractory, nE.Refractory = "", ""
	engineFixedChanged := oE != nE
	if refrChanged {
		changed = append(changed, "engine")
		attrs = append(attrs, logx.String("engine.refractory", strings.TrimSpace(newCfg.Engine.Refractory)))
	}
	if engineFixedChanged {
		changed = append(changed, "engine.pools")
		attrs = append(attrs,
			logx.String("engine.tick", strings.TrimSpace(newCfg.Engine.Tick)),
			logx.Int("engine.command_queue", newCfg.Engine.CommandQueue),
			logx.Int("engine.delayed_slots", newCfg.Engine.DelayedSlots),
			logx.Int("engine.toggle_slots", newCfg.Engine.ToggleSlots),
			logx.Int("engine.job_slots", newCfg.Engine.JobSlots),
		)
	}

	if !slices.Equal(oldCfg.Axes, newCfg.Axes) {
		changed = append(changed, "axes")
		attrs = append(attrs, logx.Int("axes.count", len(newCfg.Axes)))
	}
	if !slices.Equal(oldCfg.Lights.Partitions, newCfg.Lights.Partitions) {
		changed = append(changed, "lights")
		attrs = append(attrs, logx.Int("lights.partitions", len(newCfg.Lights.Partitions)))
	}
	if oldCfg.Hardware != newCfg.Hardware {
		changed = append(changed, "hardware")
		attrs = append(attrs,
			logx.String("hardware.driver", newCfg.Hardware.ToHW().Kind()),
			logx.String("hardware.port", newCfg.Hardware.Port),
		)
	}
	if oldCfg.Link != newCfg.Link {
		changed = append(changed, "link")
		attrs = append(attrs,
			logx.Bool("link.enabled", newCfg.Link.Enabled),
			logx.String("link.port", newCfg.Link.Port),
		)
	}

	if oldCfg.HTTP.Enabled != newCfg.HTTP.Enabled ||
		strings.TrimSpace(oldCfg.HTTP.Addr) != strings.TrimSpace(newCfg.HTTP.Addr) ||
		oldCfg.HTTP.RatePerSec != newCfg.HTTP.RatePerSec ||
		oldCfg.HTTP.Burst != newCfg.HTTP.Burst ||
		!slices.Equal(oldCfg.HTTP.AllowOrigins, newCfg.HTTP.AllowOrigins) ||
		oldCfg.HTTP.Debug != newCfg.HTTP.Debug {
		changed = append(changed, "http")
		// never log the debug token
		attrs = append(attrs,
			logx.Bool("http.enabled", newCfg.HTTP.Enabled),
			logx.String("http.addr", strings.TrimSpace(newCfg.HTTP.Addr)),
			logx.Float64("http.rate_per_sec", newCfg.HTTP.RatePerSec),
			logx.Int("http.origins", len(newCfg.HTTP.AllowOrigins)),
			logx.Bool("http.debug", newCfg.HTTP.Debug.Enabled),
			logx.Bool("http.debug.token_set", strings.TrimSpace(newCfg.HTTP.Debug.Token) != ""),
		)
	}

	if strings.TrimSpace(oldCfg.Choreography.Path) != strings.TrimSpace(newCfg.Choreography.Path) {
		changed = append(changed, "choreography")
		attrs = append(attrs, logx.String("choreography.path", strings.TrimSpace(newCfg.Choreography.Path)))
	}

	if oldCfg.Ambient.Enabled != newCfg.Ambient.Enabled ||
		strings.TrimSpace(oldCfg.Ambient.Timezone) != strings.TrimSpace(newCfg.Ambient.Timezone) ||
		!reflect.DeepEqual(oldCfg.Ambient.Triggers, newCfg.Ambient.Triggers) {
		changed = append(changed, "ambient")
		attrs = append(attrs,
			logx.Bool("ambient.enabled", newCfg.Ambient.Enabled),
			logx.String("ambient.timezone", strings.TrimSpace(newCfg.Ambient.Timezone)),
			logx.Int("ambient.triggers", len(newCfg.Ambient.Triggers)),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	sort.Strings(changed)
	restart := make([]string, 0, len(changed))
	for _, s := range changed {
		if !hotSections[s] {
			restart = append(restart, s)
		}
	}
	return changed, attrs, restart
}
