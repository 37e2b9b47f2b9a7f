package axis

import (
	"fmt"
	"strings"
)

// Group is the runtime-configured set of actuators driven together.
// Index order is the order of the config table.
type Group struct {
	axes   []*Axis
	byName map[string]int
}

// NewGroup builds a group from a config table. Names must be unique
// (case-insensitive) and non-empty.
func NewGroup(specs []Spec) (*Group, error) {
	g := &Group{
		axes:   make([]*Axis, 0, len(specs)),
		byName: make(map[string]int, len(specs)),
	}
	for i, s := range specs {
		key := strings.ToLower(strings.TrimSpace(s.Name))
		if key == "" {
			return nil, fmt.Errorf("axes[%d]: name required", i)
		}
		if _, dup := g.byName[key]; dup {
			return nil, fmt.Errorf("axes[%d]: duplicate name %q", i, s.Name)
		}
		g.byName[key] = len(g.axes)
		g.axes = append(g.axes, New(s))
	}
	return g, nil
}

func (g *Group) Len() int { return len(g.axes) }

func (g *Group) At(i int) *Axis { return g.axes[i] }

// Axes returns the backing slice. Callers must not append to it.
func (g *Group) Axes() []*Axis { return g.axes }

// Index returns the position of the named axis.
func (g *Group) Index(name string) (int, bool) {
	i, ok := g.byName[strings.ToLower(strings.TrimSpace(name))]
	return i, ok
}

func (g *Group) Lookup(name string) (*Axis, bool) {
	i, ok := g.Index(name)
	if !ok {
		return nil, false
	}
	return g.axes[i], true
}

// Offsets copies the current offsets into dst (grown if needed) and returns it.
func (g *Group) Offsets(dst []int) []int {
	if cap(dst) < len(g.axes) {
		dst = make([]int, len(g.axes))
	}
	dst = dst[:len(g.axes)]
	for i, a := range g.axes {
		dst[i] = a.Offset()
	}
	return dst
}

// Names lists axis names in index order.
func (g *Group) Names() []string {
	out := make([]string, len(g.axes))
	for i, a := range g.axes {
		out[i] = a.Name()
	}
	return out
}
