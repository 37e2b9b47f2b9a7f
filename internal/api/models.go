package api

import (
	"context"

	"animatron/internal/choreo"
	"animatron/internal/engine"
	"animatron/internal/eventbus"
	"animatron/internal/task/trigger"
)

// Response is the envelope of every API reply.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Engine is the part of the engine the API drives.
type Engine interface {
	Snapshot(ctx context.Context) (engine.Snapshot, error)
	Dispatch(ctx context.Context, code uint16, source string) error
	PlayClip(ctx context.Context, name, source string) error
	StopMotion(ctx context.Context, source string) error
	StartJob(ctx context.Context, name, source string) (string, error)
	CancelJob(ctx context.Context, name, source string) (int, error)
	SetAngle(ctx context.Context, axis string, degrees int) (int, error)
	SetLight(ctx context.Context, partition, mode string) error
	ApplyScene(ctx context.Context, name string) error
	Pulse(ctx context.Context, p choreo.Pulse) error
}

// Events serves recent bus events.
type Events interface {
	Recent(n int) []eventbus.Event
}

// Triggers reports ambient trigger state.
type Triggers interface {
	Snapshot() trigger.Snapshot
}

type LightRequest struct {
	Partition string `json:"partition" binding:"required"`
	Mode      string `json:"mode" binding:"required"`
}

type PulseRequest struct {
	Pin     int     `json:"pin" binding:"min=0"`
	Hz      float64 `json:"hz" binding:"required,gt=0"`
	Toggles int     `json:"toggles" binding:"required,gt=0"`
	Delay   string  `json:"delay"`
}

type ServoResult struct {
	Axis  string `json:"axis"`
	Angle int    `json:"angle"`
}
