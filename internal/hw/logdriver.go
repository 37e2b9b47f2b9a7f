package hw

import (
	"animatron/internal/light"
	logx "animatron/pkg/logx"
)

// LogDriver simulates the hardware: it records every output and logs it at
// trace level (light changes at debug).
type LogDriver struct {
	log logx.Logger
	t   *tracker
}

func NewLogDriver(log logx.Logger) *LogDriver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogDriver{log: log, t: newTracker()}
}

func (d *LogDriver) WriteAngle(channel, degrees int) {
	d.t.angle(channel, degrees)
	d.log.Trace("servo", logx.Int("ch", channel), logx.Int("deg", degrees))
}

func (d *LogDriver) Invert(pin int) {
	lvl := d.t.invert(pin)
	d.log.Trace("pin", logx.Int("pin", pin), logx.Bool("high", lvl))
}

func (d *LogDriver) Apply(p light.Partition, m light.Mode) {
	d.t.light(p.Name, m.Name)
	d.log.Debug("light",
		logx.String("partition", p.Name),
		logx.Int("start", p.Start),
		logx.Int("end", p.End),
		logx.String("effect", m.Effect.String()),
		logx.String("color", m.Color.String()),
		logx.Duration("speed", m.Speed),
	)
}

func (d *LogDriver) State() State { return d.t.state() }

func (d *LogDriver) Close() error { return nil }
