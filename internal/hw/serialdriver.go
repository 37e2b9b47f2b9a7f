package hw

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"animatron/internal/light"
	logx "animatron/pkg/logx"
)

const (
	DefaultBaud     = 115200
	serialQueueSize = 512
)

// SerialDriver sends newline-terminated ASCII commands to a controller board:
//
//	S <channel> <degrees>
//	P <pin> <0|1>
//	L <start> <end> <effect> <RRGGBB> <speed_ms>
//
// Writes are queued and flushed by Run; when the queue is full the command is
// dropped and counted. Repeated write failures trip a breaker; Run then
// returns so the caller can restart it, and commands are shed until the
// cooldown ends.
type SerialDriver struct {
	log   logx.Logger
	t     *tracker
	queue chan string
	brk   *breaker
	now   func() time.Time

	mu   sync.Mutex
	port io.WriteCloser

	dropped atomic.Uint64
	failed  atomic.Uint64
	shed    atomic.Uint64
}

// OpenSerial opens cfg.Port and returns a driver writing to it.
func OpenSerial(cfg Config, log logx.Logger) (*SerialDriver, error) {
	baud := cfg.Baud
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("hw: open %s: %w", cfg.Port, err)
	}
	_ = port.ResetInputBuffer()
	return NewSerialDriver(port, log), nil
}

// NewSerialDriver wraps an already opened port.
func NewSerialDriver(port io.WriteCloser, log logx.Logger) *SerialDriver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &SerialDriver{
		log:   log,
		t:     newTracker(),
		queue: make(chan string, serialQueueSize),
		brk:   newBreaker(),
		now:   time.Now,
		port:  port,
	}
}

func (d *SerialDriver) enqueue(cmd string) {
	select {
	case d.queue <- cmd:
	default:
		d.dropped.Add(1)
	}
}

func (d *SerialDriver) WriteAngle(channel, degrees int) {
	d.t.angle(channel, degrees)
	d.enqueue(fmt.Sprintf("S %d %d\n", channel, degrees))
}

func (d *SerialDriver) Invert(pin int) {
	lvl := 0
	if d.t.invert(pin) {
		lvl = 1
	}
	d.enqueue(fmt.Sprintf("P %d %d\n", pin, lvl))
}

func (d *SerialDriver) Apply(p light.Partition, m light.Mode) {
	d.t.light(p.Name, m.Name)
	d.enqueue(fmt.Sprintf("L %d %d %s %06X %d\n", p.Start, p.End, m.Effect, uint32(m.Color), m.Speed.Milliseconds()))
}

// Run flushes queued commands until ctx is done.
func (d *SerialDriver) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-d.queue:
			d.mu.Lock()
			port := d.port
			d.mu.Unlock()
			if port == nil {
				return fmt.Errorf("hw: serial port closed")
			}
			now := d.now()
			if !d.brk.allow(now) {
				d.shed.Add(1)
				continue
			}
			_, err := io.WriteString(port, cmd)
			if d.brk.record(now, err) {
				d.failed.Add(1)
				d.log.Warn("serial write breaker open", logx.Err(err))
				return fmt.Errorf("hw: serial write: %w", err)
			}
			if err != nil {
				d.failed.Add(1)
				d.log.Debug("serial write failed", logx.Err(err))
			}
		}
	}
}

func (d *SerialDriver) State() State {
	st := d.t.state()
	st.Extra = map[string]uint64{
		"dropped": d.dropped.Load(),
		"failed":  d.failed.Load(),
		"shed":    d.shed.Load(),
	}
	if d.brk.isOpen(d.now()) {
		st.Extra["breaker_open"] = 1
	}
	return st
}

func (d *SerialDriver) Close() error {
	d.mu.Lock()
	port := d.port
	d.port = nil
	d.mu.Unlock()
	if port == nil {
		return nil
	}
	return port.Close()
}
