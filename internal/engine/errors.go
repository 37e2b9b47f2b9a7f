package engine

import "errors"

var (
	ErrBusy        = errors.New("engine: command queue full")
	ErrStopped     = errors.New("engine: stopped")
	ErrRunning     = errors.New("engine: already running")
	ErrRejected    = errors.New("engine: rejected by refractory gate")
	ErrUnknownCue  = errors.New("engine: unknown event code")
	ErrUnknownClip = errors.New("engine: unknown clip")
	ErrUnknownJob  = errors.New("engine: unknown job")
	ErrUnknownAxis = errors.New("engine: unknown axis")
	ErrNoScene     = errors.New("engine: unknown scene")
)
