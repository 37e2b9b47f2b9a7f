package app

import (
	"context"
	"strings"
	"time"

	"animatron/internal/config"
	"animatron/internal/eventbus"
	logx "animatron/pkg/logx"
)

// reloadLoop applies published configs. Sections that cannot change at
// runtime are logged and left alone.
func (a *App) reloadLoop(c context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(c, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(c context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs, restart := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Debug("config change summary", fields...)
	}
	if len(restart) > 0 {
		a.log.Warn("config sections changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(newCfg.Logging.ToLogx())

	if refr, err := newCfg.Engine.RefractoryDuration(); err != nil {
		a.log.Warn("invalid engine.refractory; keeping previous", logx.Err(err))
	} else if err := a.eng.SetRefractory(refr); err != nil {
		a.log.Warn("refractory update dropped", logx.Err(err))
	}

	// Always reparse: the library file may have been edited alongside.
	_ = a.reloadLibrary(newCfg)

	a.triggers.Apply(newCfg.Ambient.ToTrigger())

	// c also parents a restarted listener, so it must not carry a deadline.
	a.http.Reconfigure(c, mapHTTPConfig(newCfg))

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReload, Time: time.Now(), Data: sections})
	if len(sections) > 0 {
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	} else {
		a.log.Info("config reloaded (no changes)")
	}
}
