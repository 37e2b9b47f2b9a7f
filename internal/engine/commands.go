package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"animatron/internal/choreo"
	"animatron/internal/eventbus"
	"animatron/internal/motion"
	"animatron/internal/task/scheduler"
	logx "animatron/pkg/logx"
)

func codeString(code uint16) string { return fmt.Sprintf("0x%04X", code) }

// Inject queues a dispatch of code without waiting. Used by producers that
// must never block, such as the command link and cron.
func (e *Engine) Inject(code uint16, source string) error {
	err := e.Submit(func() { _ = e.dispatch(code, source) })
	if err != nil {
		e.log.Warn("event dropped", logx.String("code", codeString(code)), logx.String("source", source), logx.Err(err))
	}
	return err
}

// Dispatch runs the cue bound to code and waits for the outcome.
func (e *Engine) Dispatch(ctx context.Context, code uint16, source string) error {
	return e.Do(ctx, func() error { return e.dispatch(code, source) })
}

func (e *Engine) PlayClip(ctx context.Context, name, source string) error {
	return e.Do(ctx, func() error { return e.playClip(name, source, true) })
}

func (e *Engine) StopMotion(ctx context.Context, source string) error {
	return e.Do(ctx, func() error {
		e.stopMotion(source)
		return nil
	})
}

// StartJob starts a named job and returns the id of the run.
func (e *Engine) StartJob(ctx context.Context, name, source string) (string, error) {
	var id scheduler.JobID
	err := e.Do(ctx, func() error {
		var err error
		id, err = e.startJob(name, source)
		return err
	})
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CancelJob cancels every running instance of the named job and returns how
// many were cancelled. An empty name cancels all jobs.
func (e *Engine) CancelJob(ctx context.Context, name, source string) (int, error) {
	var n int
	err := e.Do(ctx, func() error {
		n = e.cancelJobs(name, source)
		return nil
	})
	return n, err
}

// SetAngle positions one axis directly, stopping any running clip first.
// The angle is clamped to the servo range.
func (e *Engine) SetAngle(ctx context.Context, axisName string, degrees int) (int, error) {
	var out int
	err := e.Do(ctx, func() error {
		a, ok := e.axes.Lookup(axisName)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownAxis, axisName)
		}
		if e.player.IsBusy() {
			e.stopMotion("servo")
		}
		out = a.SetAngle(degrees)
		e.servo.WriteAngle(a.Channel(), out)
		return nil
	})
	return out, err
}

func (e *Engine) SetLight(ctx context.Context, partition, mode string) error {
	return e.Do(ctx, func() error {
		if e.lights == nil {
			return fmt.Errorf("engine: no light controller")
		}
		return e.lights.Change(partition, mode)
	})
}

func (e *Engine) ApplyScene(ctx context.Context, name string) error {
	return e.Do(ctx, func() error { return e.applyScene(name) })
}

func (e *Engine) Pulse(ctx context.Context, p choreo.Pulse) error {
	return e.Do(ctx, func() error { return e.pulse(p, "api") })
}

// SetRefractory changes the gate window. d <= 0 restores the default.
func (e *Engine) SetRefractory(d time.Duration) error {
	return e.Submit(func() { e.gate.SetWindow(d) })
}

// SetLibrary swaps the choreography. Clips and jobs already running keep the
// definitions they were started with.
func (e *Engine) SetLibrary(lib *choreo.Library) error {
	if lib == nil {
		lib = choreo.Empty()
	}
	return e.Submit(func() {
		e.lib = lib
		e.log.Info("choreography swapped",
			logx.Int("clips", len(lib.Clips)), logx.Int("jobs", len(lib.Jobs)), logx.Int("cues", len(lib.Cues)))
	})
}

func (e *Engine) dispatch(code uint16, source string) error {
	now := e.clk.Now()
	cue, ok := e.lib.Cue(code)
	if !ok {
		e.n.unknown++
		e.log.Debug("unknown event code", logx.String("code", codeString(code)), logx.String("source", source))
		e.publish(eventbus.TypeCueUnknown, map[string]any{"code": code, "source": source})
		return fmt.Errorf("%w: %s", ErrUnknownCue, codeString(code))
	}

	if cue.Clip != "" {
		seq, ok := e.lib.Clip(cue.Clip)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownClip, cue.Clip)
		}
		if !e.gate.CanTrigger(now) {
			e.reject(cue.Clip, source)
			return ErrRejected
		}
		e.startClip(seq, source)
	}
	if cue.Job != "" {
		if _, err := e.startJob(cue.Job, source); err != nil {
			e.log.Warn("cue job not started", logx.String("code", codeString(code)), logx.Err(err))
		}
	}
	for _, p := range cue.Pulses {
		_ = e.pulse(p, source)
	}
	for _, d := range cue.Delayed {
		act := d.Action
		if err := e.sched.Delayed.Register(func() { e.runAction(act, "delayed") }, d.After); err != nil {
			e.dropped("delayed", err)
		}
	}

	e.n.dispatched++
	e.log.Debug("cue dispatched", logx.String("code", codeString(code)), logx.String("name", cue.Name), logx.String("source", source))
	e.publish(eventbus.TypeCueDispatched, map[string]any{"code": code, "name": cue.Name, "source": source, "clip": cue.Clip, "job": cue.Job})
	return nil
}

func (e *Engine) reject(clip, source string) {
	e.n.rejected++
	e.log.Debug("trigger rejected", logx.String("clip", clip), logx.String("source", source), logx.Duration("window", e.gate.Window()))
	e.publish(eventbus.TypeTriggerRejected, map[string]any{"clip": clip, "source": source})
}

func (e *Engine) playClip(name, source string, gated bool) error {
	seq, ok := e.lib.Clip(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownClip, name)
	}
	if gated && !e.gate.CanTrigger(e.clk.Now()) {
		e.reject(seq.Name, source)
		return ErrRejected
	}
	e.startClip(seq, source)
	return nil
}

func (e *Engine) startClip(seq motion.Sequence, source string) {
	if e.player.IsBusy() {
		e.publish(eventbus.TypeClipStopped, map[string]any{"clip": e.clip, "reason": "preempted"})
	}
	// Record the name first: a zero-length clip completes inside Start.
	prev := e.clip
	e.clip = seq.Name
	if !e.player.Start(seq) {
		e.clip = prev
		return
	}
	e.log.Debug("clip started", logx.String("clip", seq.Name), logx.String("source", source))
	e.publish(eventbus.TypeClipStarted, map[string]any{"clip": seq.Name, "source": source, "duration": seq.Duration().String()})
}

func (e *Engine) stopMotion(source string) {
	if !e.player.IsBusy() {
		return
	}
	e.player.Stop()
	e.publish(eventbus.TypeClipStopped, map[string]any{"clip": e.clip, "reason": source})
}

func (e *Engine) startJob(name, source string) (scheduler.JobID, error) {
	cj, ok := e.lib.Job(name)
	if !ok {
		return scheduler.JobID{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	// One run per job name; a retrigger restarts the timeline.
	e.cancelJobs(cj.Name, "restart")

	job := scheduler.Job{Name: cj.Name, Steps: make([]scheduler.JobStep, len(cj.Steps))}
	for i, st := range cj.Steps {
		act := st.Action
		job.Steps[i] = scheduler.JobStep{At: st.At, Run: func() { e.runAction(act, cj.Name) }}
	}
	id, err := e.sched.Jobs.Start(job)
	if err != nil {
		e.dropped("job", err)
		return scheduler.JobID{}, err
	}
	e.publish(eventbus.TypeJobStarted, map[string]any{"job": cj.Name, "id": id.String(), "source": source})
	return id, nil
}

func (e *Engine) cancelJobs(name, source string) int {
	var n int
	for _, info := range e.sched.Jobs.List(nil, e.clk.Now()) {
		if name != "" && info.Name != name {
			continue
		}
		if e.sched.Jobs.Cancel(info.ID) {
			n++
			e.publish(eventbus.TypeJobCancelled, map[string]any{"job": info.Name, "id": info.ID.String(), "reason": source})
		}
	}
	return n
}

func (e *Engine) pulse(p choreo.Pulse, source string) error {
	if err := e.sched.Toggles.Register(p.Pin, p.Hz, p.Toggles, p.Delay); err != nil {
		if errors.Is(err, scheduler.ErrNoFreeSlot) {
			e.dropped("toggle", err)
		}
		return err
	}
	e.log.Trace("pulse registered", logx.Int("pin", p.Pin), logx.Float64("hz", p.Hz), logx.String("source", source))
	return nil
}

func (e *Engine) applyScene(name string) error {
	changes, ok := e.lib.Scene(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoScene, name)
	}
	if e.lights == nil {
		return nil
	}
	for _, c := range changes {
		if err := e.lights.Change(c.Partition, c.Mode); err != nil {
			e.log.Warn("scene change failed", logx.String("scene", name), logx.Err(err))
		}
	}
	return nil
}

// runAction executes a job step or delayed call on the engine goroutine.
func (e *Engine) runAction(a choreo.Action, origin string) {
	var err error
	switch a.Kind {
	case choreo.ActionLight:
		if e.lights != nil {
			err = e.lights.Change(a.Partition, a.Mode)
		}
	case choreo.ActionScene:
		err = e.applyScene(a.Scene)
	case choreo.ActionPulse:
		err = e.pulse(a.Pulse, origin)
	case choreo.ActionEmit:
		e.publish(eventbus.TypeEmit, map[string]any{"event": a.Event, "origin": origin})
	case choreo.ActionStopMotion:
		e.stopMotion(origin)
	case choreo.ActionClip:
		err = e.playClip(a.Clip, origin, false)
	}
	if err != nil {
		e.log.Warn("action failed", logx.String("action", string(a.Kind)), logx.String("origin", origin), logx.Err(err))
	}
}

func (e *Engine) dropped(pool string, err error) {
	e.n.dropped++
	e.log.Debug("scheduler slot unavailable", logx.String("pool", pool), logx.Err(err))
	e.publish(eventbus.TypeSlotDropped, map[string]any{"pool": pool})
}
