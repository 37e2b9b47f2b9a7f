package app

import (
	"context"
	"fmt"
	"path/filepath"

	"animatron/internal/api"
	"animatron/internal/axis"
	"animatron/internal/choreo"
	"animatron/internal/config"
	"animatron/internal/engine"
	"animatron/internal/hw"
	logx "animatron/pkg/logx"
)

// ---- Config mapping ----

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	tick, err := cfg.Engine.TickDuration()
	if err != nil {
		return engine.Config{}, err
	}
	refr, err := cfg.Engine.RefractoryDuration()
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		Tick:         tick,
		Refractory:   refr,
		CommandQueue: cfg.Engine.CommandQueue,
		Scheduler:    cfg.Engine.SchedulerConfig(),
	}, nil
}

func mapHTTPConfig(cfg *config.Config) api.Config {
	return api.Config{
		Enabled:      cfg.HTTP.Enabled,
		Addr:         cfg.HTTP.Addr,
		RatePerSec:   cfg.HTTP.RatePerSec,
		Burst:        cfg.HTTP.Burst,
		AllowOrigins: cfg.HTTP.AllowOrigins,
		Debug: api.DebugConfig{
			Enabled:              cfg.HTTP.Debug.Enabled,
			Token:                cfg.HTTP.Debug.Token,
			AllowInsecure:        cfg.HTTP.Debug.AllowInsecure,
			MutexProfileFraction: cfg.HTTP.Debug.MutexProfileFraction,
			BlockProfileRate:     cfg.HTTP.Debug.BlockProfileRate,
		},
	}
}

// ---- Components ----

// openDriver returns the driver plus, for drivers with a writer loop, the
// loop to supervise.
func openDriver(cfg hw.Config, log logx.Logger) (hw.Driver, func(ctx context.Context) error, error) {
	switch cfg.Kind() {
	case "serial":
		d, err := hw.OpenSerial(cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Run, nil
	case "log":
		return hw.NewLogDriver(log), nil, nil
	default:
		return nil, nil, fmt.Errorf("hardware.driver: unknown driver %q", cfg.Driver)
	}
}

// loadLibrary parses the choreography against the live axes and partitions.
// An empty path yields an empty library.
func loadLibrary(cfg *config.Config, cfgPath string, axes *axis.Group, partitions []string) (*choreo.Library, error) {
	path := cfg.ChoreographyPath(cfgPath)
	if path == "" {
		return choreo.Empty(), nil
	}
	lib, err := choreo.LoadFile(path, choreo.Env{Axes: axes, Partitions: partitions})
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return lib, nil
}
