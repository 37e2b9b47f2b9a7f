// Package gate implements the refractory debounce shared by every entry point
// that plays a clip.
package gate

import "time"

const DefaultWindow = 300 * time.Millisecond

// Gate accepts at most one trigger per window. It is owned by the engine
// goroutine and is not safe for concurrent use.
type Gate struct {
	window time.Duration
	last   time.Duration
	armed  bool

	accepted uint64
	rejected uint64
}

// New returns a gate with the given window; window <= 0 selects DefaultWindow.
func New(window time.Duration) *Gate {
	g := &Gate{}
	g.SetWindow(window)
	return g
}

// CanTrigger reports whether a trigger at now is accepted. On acceptance the
// window restarts at now. The first call is always accepted.
func (g *Gate) CanTrigger(now time.Duration) bool {
	if g.armed && now-g.last < g.window {
		g.rejected++
		return false
	}
	g.armed = true
	g.last = now
	g.accepted++
	return true
}

func (g *Gate) SetWindow(d time.Duration) {
	if d <= 0 {
		d = DefaultWindow
	}
	g.window = d
}

func (g *Gate) Window() time.Duration { return g.window }

// Counts returns the accepted and rejected totals.
func (g *Gate) Counts() (accepted, rejected uint64) { return g.accepted, g.rejected }
