// Package app wires the engine to its inputs (serial link, ambient triggers,
// HTTP API), its outputs (hardware driver) and the ambient services (logging,
// config hot reload, systemd).
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"animatron/internal/api"
	"animatron/internal/axis"
	"animatron/internal/config"
	"animatron/internal/engine"
	"animatron/internal/eventbus"
	"animatron/internal/hw"
	"animatron/internal/light"
	"animatron/internal/link"
	rtsup "animatron/internal/runtime/supervisor"
	"animatron/internal/task/trigger"
	logx "animatron/pkg/logx"
	"animatron/pkg/systemd"
)

const recentEvents = 256

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *eventbus.MemBus
	rec  *eventbus.Recorder

	driver    hw.Driver
	driverRun func(ctx context.Context) error
	axes      *axis.Group
	lights    *light.Controller

	eng      *engine.Engine
	link     *link.Reader
	triggers *trigger.Service
	http     *api.Service
	sd       *systemd.Notifier
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := api.ValidateConfig(mapHTTPConfig(cfg)); err != nil {
		return nil, err
	}

	bus := eventbus.New()
	// warn+ log lines become bus events so the API serves them with the rest.
	fwd := logx.ForwarderFunc(func(r logx.Record) {
		bus.Publish(eventbus.Event{Type: eventbus.TypeLog, Time: r.Time, Data: r})
	})
	logSvc, log := logx.New(cfg.Logging.ToLogx(), fwd)
	log = log.With(logx.String("comp", "app"))

	driver, driverRun, err := openDriver(cfg.Hardware.ToHW(), logSvc.Logger().With(logx.String("comp", "hw")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}
	fail := func(err error) (*App, error) {
		_ = driver.Close()
		_ = logSvc.Close()
		return nil, err
	}

	axes, err := axis.NewGroup(cfg.AxisSpecs())
	if err != nil {
		return fail(err)
	}
	lights, err := light.NewController(cfg.Lights.ToPartitions(), driver, logSvc.Logger().With(logx.String("comp", "lights")))
	if err != nil {
		return fail(err)
	}
	lib, err := loadLibrary(cfg, cfgPath, axes, lights.Partitions())
	if err != nil {
		return fail(err)
	}

	engCfg, err := mapEngineConfig(cfg)
	if err != nil {
		return fail(err)
	}
	eng, err := engine.New(engCfg, engine.Deps{
		Axes:    axes,
		Servo:   driver,
		Pins:    driver,
		Lights:  lights,
		Bus:     bus,
		Library: lib,
		Log:     logSvc.Logger().With(logx.String("comp", "engine")),
	})
	if err != nil {
		return fail(err)
	}

	a := &App{
		cfgPath:   cfgPath,
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		rec:       eventbus.NewRecorder(recentEvents),
		driver:    driver,
		driverRun: driverRun,
		axes:      axes,
		lights:    lights,
		eng:       eng,
		sd:        systemd.NewNotifier(cfg.Systemd.Notify, logSvc.Logger().With(logx.String("comp", "systemd"))),
	}

	if lc := cfg.Link.ToLink(); lc.Enabled {
		a.link = link.NewReader(lc, link.OpenSerial, func(code uint16) {
			bus.Publish(eventbus.Event{Type: eventbus.TypeLinkFrame, Time: time.Now(), Data: code})
			_ = eng.Inject(code, "link")
		}, logSvc.Logger().With(logx.String("comp", "link")))
	}

	a.triggers = trigger.New(cfg.Ambient.ToTrigger(), func(name string, code uint16) {
		_ = eng.Inject(code, "ambient:"+name)
	}, logSvc.Logger().With(logx.String("comp", "ambient")))

	router := api.NewRouter(eng, a.rec, a.triggers)
	a.http = api.New(mapHTTPConfig(cfg), router, logSvc.Logger().With(logx.String("comp", "http")))

	log.Info("app configured",
		logx.String("driver", cfg.Hardware.ToHW().Kind()),
		logx.Int("axes", axes.Len()),
		logx.Int("clips", len(lib.Clips)),
		logx.Int("cues", len(lib.Cues)),
		logx.Bool("link", a.link != nil),
	)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := api.ValidateConfig(mapHTTPConfig(cfg)); err != nil {
			return err
		}
		_, err := loadLibrary(cfg, a.cfgPath, a.axes, a.lights.Partitions())
		return err
	})

	a.sup.Go("events.recorder", func(c context.Context) error { return a.rec.Run(c, a.bus) })

	a.eng.Home()
	a.sup.Go("engine", a.eng.Run)

	if a.driverRun != nil {
		a.sup.GoRestart("hw.writer", a.driverRun, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	if a.link != nil {
		// A missing or flapping link must not stop the show.
		a.sup.GoRestart("link.reader", a.link.Run, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
	}

	a.triggers.Start(a.sup.Context())
	a.http.Start(a.sup.Context())

	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := a.sd.Watchdog(c, a.eng.Heartbeat); err != nil {
			a.log.Warn("watchdog unavailable", logx.Err(err))
		}
	})

	a.sd.Ready()
	a.sd.Status("running")
	a.log.Info("app started")
	return nil
}

// Reload re-reads the config file now, as on SIGHUP. When the config is
// unchanged the choreography is still reloaded, since it lives in its own
// file.
func (a *App) Reload(ctx context.Context) error {
	a.sd.Reloading()
	defer a.sd.Ready()
	_, err := a.cfgm.Reload(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, config.ErrUnchanged):
		return a.reloadLibrary(a.cfgm.Get())
	default:
		a.log.Warn("config reload rejected", logx.Err(err))
		return err
	}
}

func (a *App) reloadLibrary(cfg *config.Config) error {
	lib, err := loadLibrary(cfg, a.cfgPath, a.axes, a.lights.Partitions())
	if err != nil {
		a.log.Warn("choreography rejected; keeping previous", logx.Err(err))
		return err
	}
	if err := a.eng.SetLibrary(lib); err != nil {
		return fmt.Errorf("swap choreography: %w", err)
	}
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		// respect the caller's deadline; never extend it
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// Inputs first so nothing new reaches the engine, then the outputs.
	step("ambient", 2*time.Second, func(c context.Context) error { a.triggers.Stop(c); return nil })
	step("http", 2*time.Second, func(c context.Context) error { a.http.Stop(c); return nil })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("hardware", 1*time.Second, func(context.Context) error { return a.driver.Close() })

	a.log.Info("stopped", logx.String("reason", string(reason)))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
