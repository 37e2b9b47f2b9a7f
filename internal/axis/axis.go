// Package axis models a single actuator as an origin plus a signed offset.
//
// The offset is the only mutable state. Every mutation goes through Angle,
// which clamps origin+offset into the servo range and writes the clamped
// result back into the offset, so the stored offset never describes an
// angle the hardware cannot reach.
package axis

const (
	MinAngle = 0
	MaxAngle = 180
)

// Spec is the per-actuator configuration row.
type Spec struct {
	Name      string
	Channel   int
	Origin    int
	MinOffset int
	MaxOffset int
}

type Axis struct {
	name    string
	channel int
	origin  int
	offset  int

	// safety band, enforced only by the motion player
	minOffset int
	maxOffset int
}

// New builds an axis from spec. The origin is clamped into [0,180] and the
// safety band is normalized (swapped if inverted, then narrowed to the
// hardware band).
func New(spec Spec) *Axis {
	a := &Axis{
		name:    spec.Name,
		channel: spec.Channel,
		origin:  clamp(spec.Origin, MinAngle, MaxAngle),
	}
	lo, hi := spec.MinOffset, spec.MaxOffset
	if lo > hi {
		lo, hi = hi, lo
	}
	a.minOffset = a.HardwareClamp(lo)
	a.maxOffset = a.HardwareClamp(hi)
	return a
}

func (a *Axis) Name() string { return a.name }
func (a *Axis) Channel() int { return a.channel }
func (a *Axis) Origin() int { return a.origin }
func (a *Axis) Offset() int { return a.offset }
func (a *Axis) MinOffset() int { return a.minOffset }
func (a *Axis) MaxOffset() int { return a.maxOffset }

// Angle clamps origin+offset to [0,180], rewrites offset to angle-origin and
// returns the angle.
func (a *Axis) Angle() int {
	angle := clamp(a.origin+a.offset, MinAngle, MaxAngle)
	a.offset = angle - a.origin
	return angle
}

func (a *Axis) SetOffset(v int) int {
	a.offset = v
	return a.Angle()
}

func (a *Axis) AddOffset(d int) int {
	a.offset += d
	return a.Angle()
}

func (a *Axis) Reset() int {
	a.offset = 0
	return a.Angle()
}

// SetAngle positions the axis at an absolute angle.
func (a *Axis) SetAngle(deg int) int {
	return a.SetOffset(deg - a.origin)
}

// HardwareClamp clamps an offset into [-origin, 180-origin].
func (a *Axis) HardwareClamp(v int) int {
	return clamp(v, MinAngle-a.origin, MaxAngle-a.origin)
}

// SafetyClamp clamps an offset into the configured safety band.
func (a *Axis) SafetyClamp(v int) int {
	return clamp(v, a.minOffset, a.maxOffset)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
