package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Record is one forwarded log line.
type Record struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Forwarder receives records from the forward sink on a dedicated goroutine.
type Forwarder interface {
	Forward(r Record)
}

type ForwarderFunc func(r Record)

func (f ForwarderFunc) Forward(r Record) { f(r) }

const forwardQueueSize = 256

// forwardSink is a zerolog LevelWriter that never blocks the caller: records
// over the rate limit or beyond the queue are dropped.
type forwardSink struct {
	to    Forwarder
	queue chan Record

	mu       sync.Mutex
	limiter  *rate.Limiter
	minLevel zerolog.Level
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newForwardSink(to Forwarder) *forwardSink {
	return &forwardSink{
		to:       to,
		queue:    make(chan Record, forwardQueueSize),
		limiter:  rate.NewLimiter(1, 1),
		minLevel: zerolog.WarnLevel,
	}
}

func (w *forwardSink) configure(cfg ForwardConfig) {
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	w.mu.Lock()
	w.minLevel = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	w.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	w.mu.Unlock()
}

func (w *forwardSink) start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil || w.to == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case r := <-w.queue:
				w.to.Forward(r)
			}
		}
	}()
}

func (w *forwardSink) stop() {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
		w.wg.Wait()
	}
}

func (w *forwardSink) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *forwardSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w.mu.Lock()
	lim := w.limiter
	minLevel := w.minLevel
	running := w.cancel != nil
	w.mu.Unlock()

	if !running || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	select {
	case w.queue <- decodeRecord(level, p):
	default:
	}
	return len(p), nil
}

// decodeRecord turns a zerolog JSON line into a Record. Lines that are not
// JSON are forwarded verbatim as the message.
func decodeRecord(level zerolog.Level, p []byte) Record {
	r := Record{Time: time.Now(), Level: level.String()}
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		r.Message = truncate(string(p), 2000)
		return r
	}
	for k, v := range m {
		switch k {
		case zerolog.LevelFieldName, zerolog.TimestampFieldName:
		case zerolog.MessageFieldName:
			r.Message = fmt.Sprint(v)
		default:
			if r.Fields == nil {
				r.Fields = make(map[string]any, len(m))
			}
			if s, ok := v.(string); ok {
				v = truncate(s, 600)
			}
			r.Fields[k] = v
		}
	}
	return r
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n < 10 {
		return s[:n]
	}
	return s[:n-3] + "..."
}
