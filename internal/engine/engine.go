// Package engine owns the choreography core (axis group, motion player,
// refractory gate and task scheduler) and drives it from a single goroutine.
//
// Nothing outside the engine goroutine touches core state. Producers such as
// the command link, the HTTP API and ambient triggers hand closures to the
// engine with Submit (fire and forget) or Do (wait for the result). Queued
// closures run before the next poll.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"animatron/internal/axis"
	"animatron/internal/choreo"
	"animatron/internal/clock"
	"animatron/internal/eventbus"
	"animatron/internal/gate"
	"animatron/internal/light"
	"animatron/internal/motion"
	"animatron/internal/task/scheduler"
	logx "animatron/pkg/logx"
)

const (
	DefaultTick         = 5 * time.Millisecond
	DefaultCommandQueue = 64
)

type Config struct {
	Tick         time.Duration
	Refractory   time.Duration
	CommandQueue int
	Scheduler    scheduler.Config
}

// Deps are the collaborators the engine drives. Axes, Servo and Pins are
// required; everything else may be nil.
type Deps struct {
	Clock   clock.Clock
	Axes    *axis.Group
	Servo   motion.Sink
	Pins    scheduler.PinSink
	Lights  *light.Controller
	Bus     eventbus.Bus
	Library *choreo.Library
	Log     logx.Logger
}

type counters struct {
	dispatched uint64
	unknown    uint64
	rejected   uint64
	dropped    uint64
}

type Engine struct {
	cfg    Config
	clk    clock.Clock
	log    logx.Logger
	bus    eventbus.Bus
	axes   *axis.Group
	servo  motion.Sink
	player *motion.Player
	gate   *gate.Gate
	sched  *scheduler.Scheduler
	lights *light.Controller
	lib    *choreo.Library

	clip string       // name of the clip last started
	seen motion.Stats // player stats at the last observation
	n    counters

	cmds     chan func()
	done     chan struct{}
	running  atomic.Bool
	lastTick atomic.Int64 // unix nanos, for the watchdog
	ticks    atomic.Uint64
	qDropped atomic.Uint64
}

func New(cfg Config, d Deps) (*Engine, error) {
	if d.Axes == nil {
		return nil, fmt.Errorf("engine: axis group required")
	}
	if d.Servo == nil || d.Pins == nil {
		return nil, fmt.Errorf("engine: servo and pin sinks required")
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.CommandQueue <= 0 {
		cfg.CommandQueue = DefaultCommandQueue
	}
	if d.Clock == nil {
		d.Clock = clock.NewMonotonic()
	}
	if d.Library == nil {
		d.Library = choreo.Empty()
	}
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	e := &Engine{
		cfg:    cfg,
		clk:    d.Clock,
		log:    d.Log,
		bus:    d.Bus,
		axes:   d.Axes,
		servo:  d.Servo,
		player: motion.NewPlayer(d.Axes, d.Servo, d.Clock),
		gate:   gate.New(cfg.Refractory),
		sched:  scheduler.New(cfg.Scheduler, d.Clock, d.Pins),
		lights: d.Lights,
		lib:    d.Library,
		cmds:   make(chan func(), cfg.CommandQueue),
		done:   make(chan struct{}),
	}
	e.player.SetOnFinish(func(name string) {
		e.publish(eventbus.TypeClipFinished, map[string]any{"clip": name})
	})
	return e, nil
}

// Home writes every axis at its origin. Call before Run.
func (e *Engine) Home() {
	for _, a := range e.axes.Axes() {
		e.servo.WriteAngle(a.Channel(), a.Reset())
	}
	if e.lights != nil {
		e.lights.Init()
	}
}

// Run drives the engine until ctx is done. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(e.done)

	t := time.NewTicker(e.cfg.Tick)
	defer t.Stop()
	e.log.Info("engine started", logx.Duration("tick", e.cfg.Tick), logx.Int("axes", e.axes.Len()))
	for {
		select {
		case <-ctx.Done():
			e.log.Info("engine stopped", logx.Uint64("ticks", e.ticks.Load()))
			return nil
		case fn := <-e.cmds:
			e.exec(fn)
		case <-t.C:
			e.drain()
			e.Tick(e.clk.Now())
		}
	}
}

func (e *Engine) drain() {
	for {
		select {
		case fn := <-e.cmds:
			e.exec(fn)
		default:
			return
		}
	}
}

func (e *Engine) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("panic in engine command", logx.Any("panic", r), logx.Stack(logx.StackTrace(3, 16)))
		}
	}()
	fn()
	e.observe()
}

// Tick polls the player then the scheduler at now. It must only be called
// from the engine goroutine (or a test that owns the engine).
func (e *Engine) Tick(now time.Duration) {
	e.player.Poll(now)
	// A job step below may start another clip; attribute this frame first.
	e.observe()
	e.sched.Poll(now)
	e.observe()
	e.ticks.Add(1)
	e.lastTick.Store(time.Now().UnixNano())
}

// observe turns safety clamp counter deltas into events. Finished clips are
// published by the player callback.
func (e *Engine) observe() {
	st := e.player.Stats()
	if d := st.SafetyClamped - e.seen.SafetyClamped; d > 0 {
		e.log.Debug("safety band clamped motion", logx.String("clip", e.clip), logx.Uint64("frames", d))
		e.publish(eventbus.TypeSafetyClamped, map[string]any{"clip": e.clip, "frames": d})
	}
	e.seen = st
}

// Submit queues fn for the engine goroutine without waiting.
func (e *Engine) Submit(fn func()) error {
	select {
	case <-e.done:
		return ErrStopped
	default:
	}
	select {
	case e.cmds <- fn:
		return nil
	default:
		e.qDropped.Add(1)
		return ErrBusy
	}
}

// Do runs fn on the engine goroutine and returns its error.
func (e *Engine) Do(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if err := e.Submit(func() { res <- fn() }); err != nil {
		return err
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
}

// Heartbeat is the wall time of the last completed tick.
func (e *Engine) Heartbeat() time.Time {
	ns := e.lastTick.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
