package scheduler

import "errors"

var (
	ErrNoFreeSlot       = errors.New("scheduler: no free slot")
	ErrNilCallback      = errors.New("scheduler: nil callback")
	ErrInvalidFrequency = errors.New("scheduler: frequency must be > 0")
	ErrNoToggles        = errors.New("scheduler: toggle count must be > 0")
)
