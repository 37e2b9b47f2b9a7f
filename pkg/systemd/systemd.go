// Package systemd speaks the sd_notify protocol: readiness, reload and
// stop notifications, and a watchdog fed from a liveness probe.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "animatron/pkg/logx"
)

// Notifier is inert when the process was not started by systemd with
// NOTIFY_SOCKET set, or when disabled.
type Notifier struct {
	enabled bool
	log     logx.Logger
	notify  func(state string) (bool, error)
}

func NewNotifier(enabled bool, log logx.Logger) *Notifier {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Notifier{
		enabled: enabled,
		log:     log,
		notify:  func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}
}

func (n *Notifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := n.notify(state)
	switch {
	case err != nil:
		n.log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	case !sent:
		n.log.Debug("sd_notify skipped (no socket)", logx.String("state", state))
	}
}

func (n *Notifier) Ready()     { n.send(daemon.SdNotifyReady) }
func (n *Notifier) Reloading() { n.send(daemon.SdNotifyReloading) }
func (n *Notifier) Stopping()  { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(s string) { n.send("STATUS=" + s) }

// Watchdog pings systemd at half the configured WatchdogSec as long as
// alive reports a heartbeat younger than the watchdog interval. A stalled
// probe stops the pings and lets systemd restart the unit. Returns when ctx
// is done or no watchdog is configured.
func (n *Notifier) Watchdog(ctx context.Context, alive func() time.Time) error {
	if n == nil || !n.enabled {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		n.log.Debug("watchdog not configured")
		return nil
	}
	n.log.Info("watchdog enabled", logx.Duration("interval", interval))
	return n.feed(ctx, interval, alive)
}

func (n *Notifier) feed(ctx context.Context, interval time.Duration, alive func() time.Time) error {
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	stalled := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			age := now.Sub(alive())
			if age > interval {
				if !stalled {
					n.log.Error("heartbeat stale; withholding watchdog ping", logx.Duration("age", age))
				}
				stalled = true
				continue
			}
			if stalled {
				n.log.Info("heartbeat recovered")
				stalled = false
			}
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
