package light

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	logx "animatron/pkg/logx"
)

// All addresses every enabled partition.
const All = "all"

var (
	ErrUnknownPartition = errors.New("light: unknown partition")
	ErrUnknownMode      = errors.New("light: unknown mode")
	ErrDisabled         = errors.New("light: partition disabled")
)

// Sink draws a mode on a partition. Implementations must not block.
type Sink interface {
	Apply(p Partition, m Mode)
}

type SinkFunc func(p Partition, m Mode)

func (f SinkFunc) Apply(p Partition, m Mode) { f(p, m) }

// Controller validates change requests against the partition table and
// forwards them to the sink. It remembers the last mode per partition.
type Controller struct {
	mu      sync.Mutex
	parts   []Partition
	byName  map[string]int
	current map[string]string
	sink    Sink
	log     logx.Logger
}

func NewController(parts []Partition, sink Sink, log logx.Logger) (*Controller, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Controller{
		parts:   make([]Partition, 0, len(parts)),
		byName:  make(map[string]int, len(parts)),
		current: make(map[string]string, len(parts)),
		sink:    sink,
		log:     log,
	}
	for i, p := range parts {
		p.Name = strings.ToLower(strings.TrimSpace(p.Name))
		if p.Name == "" || p.Name == All {
			return nil, fmt.Errorf("lights.partitions[%d]: invalid name %q", i, p.Name)
		}
		if _, dup := c.byName[p.Name]; dup {
			return nil, fmt.Errorf("lights.partitions[%d]: duplicate name %q", i, p.Name)
		}
		if p.Start < 0 || p.End < p.Start {
			return nil, fmt.Errorf("lights.partitions[%d]: invalid range %d..%d", i, p.Start, p.End)
		}
		c.byName[p.Name] = len(c.parts)
		c.parts = append(c.parts, p)
	}
	return c, nil
}

// Init blanks every enabled partition.
func (c *Controller) Init() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.parts {
		if p.Enabled {
			c.applyLocked(p, Off)
		}
	}
}

// Change sets partition (or All) to the named mode.
func (c *Controller) Change(partition, mode string) error {
	m, ok := LookupMode(mode)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	key := strings.ToLower(strings.TrimSpace(partition))

	c.mu.Lock()
	defer c.mu.Unlock()

	if key == All {
		for _, p := range c.parts {
			if p.Enabled {
				c.applyLocked(p, m)
			}
		}
		return nil
	}
	i, ok := c.byName[key]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPartition, partition)
	}
	p := c.parts[i]
	if !p.Enabled {
		return fmt.Errorf("%w: %q", ErrDisabled, partition)
	}
	c.applyLocked(p, m)
	return nil
}

// Validate checks a (partition, mode) pair without applying it.
func (c *Controller) Validate(partition, mode string) error {
	if _, ok := LookupMode(mode); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	key := strings.ToLower(strings.TrimSpace(partition))
	if key == All {
		return nil
	}
	c.mu.Lock()
	_, ok := c.byName[key]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPartition, partition)
	}
	return nil
}

func (c *Controller) applyLocked(p Partition, m Mode) {
	if c.sink != nil {
		c.sink.Apply(p, m)
	}
	c.current[p.Name] = m.Name
	c.log.Debug("light changed", logx.String("partition", p.Name), logx.String("mode", m.Name))
}

// State returns partition name -> current mode name.
func (c *Controller) State() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.current))
	for k, v := range c.current {
		out[k] = v
	}
	return out
}

func (c *Controller) Partitions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.parts))
	for _, p := range c.parts {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}
