// Package trigger runs ambient schedules (cron expressions or fixed
// intervals) that inject event codes into the engine as if they had arrived
// on the command link.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "animatron/pkg/logx"
)

type Entry struct {
	Name     string
	Schedule string
	Code     uint16
}

type Config struct {
	Enabled  bool
	Timezone string // IANA name, empty means Local
	Triggers []Entry
}

// FireFunc receives each due trigger. It runs on a cron goroutine and must
// not block.
type FireFunc func(name string, code uint16)

func ValidateConfig(cfg Config) error {
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("ambient.timezone: %w", err)
		}
	}
	seen := map[string]bool{}
	for i, e := range cfg.Triggers {
		name := strings.ToLower(strings.TrimSpace(e.Name))
		if name == "" {
			return fmt.Errorf("ambient.triggers[%d].name: required", i)
		}
		if seen[name] {
			return fmt.Errorf("ambient.triggers[%d].name: duplicate %q", i, e.Name)
		}
		seen[name] = true
		if _, err := ParseSchedule(e.Schedule); err != nil {
			return fmt.Errorf("ambient.triggers[%d].schedule: %w", i, err)
		}
	}
	return nil
}

type def struct {
	name    string
	sched   Schedule
	code    uint16
	jitter  time.Duration
	entryID cron.EntryID
	fired   *atomic.Uint64
}

type Info struct {
	Name     string        `json:"name"`
	Schedule string        `json:"schedule"`
	Code     uint16        `json:"code"`
	Jitter   time.Duration `json:"jitter,omitempty"`
	Next     time.Time     `json:"next,omitzero"`
	Prev     time.Time     `json:"prev,omitzero"`
	Fired    uint64        `json:"fired"`
}

type Snapshot struct {
	Enabled  bool   `json:"enabled"`
	Running  bool   `json:"running"`
	Timezone string `json:"timezone"`
	Triggers []Info `json:"triggers"`
}

type Service struct {
	mu   sync.Mutex
	log  logx.Logger
	cfg  Config
	fire FireFunc

	c    *cron.Cron
	loc  *time.Location
	defs []def
}

func New(cfg Config, fire FireFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{log: log, cfg: cfg, fire: fire}
	s.defs = s.buildDefs(cfg, nil)
	return s
}

// buildDefs keeps fire counters of triggers that survive a reload.
func (s *Service) buildDefs(cfg Config, prev []def) []def {
	counters := map[string]*atomic.Uint64{}
	for _, d := range prev {
		counters[d.name] = d.fired
	}
	out := make([]def, 0, len(cfg.Triggers))
	for _, e := range cfg.Triggers {
		sc, err := ParseSchedule(e.Schedule)
		if err != nil {
			s.log.Warn("trigger skipped", logx.String("name", e.Name), logx.Err(err))
			continue
		}
		name := strings.TrimSpace(e.Name)
		n := counters[name]
		if n == nil {
			n = new(atomic.Uint64)
		}
		out = append(out, def{name: name, sched: sc, code: e.Code, fired: n})
	}
	return out
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.defs = s.buildDefs(cfg, s.defs)
	running := s.c != nil
	if running {
		s.stopLocked()
	}
	if cfg.Enabled {
		s.startLocked()
	} else if running {
		s.log.Info("ambient triggers disabled")
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Debug("ambient triggers disabled")
		return
	}
	s.startLocked()
}

func (s *Service) startLocked() {
	s.loc = s.loadLocationLocked()
	s.c = cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{s.log})),
	)
	now := time.Now().In(s.loc)
	for i := range s.defs {
		d := &s.defs[i]
		job := s.job(d.name, d.code, d.fired)
		switch d.sched.Kind {
		case KindInterval:
			sched, jitter := intervalSchedule(d.sched.Every, now, d.name)
			d.jitter = jitter
			d.entryID = s.c.Schedule(sched, job)
		default:
			id, err := s.c.AddJob(d.sched.Cron, job)
			if err != nil {
				s.log.Error("trigger register failed", logx.String("name", d.name), logx.Err(err))
				continue
			}
			d.entryID = id
		}
	}
	s.c.Start()
	s.log.Info("ambient triggers started", logx.Int("count", len(s.defs)), logx.String("tz", s.loc.String()))
}

func (s *Service) job(name string, code uint16, fired *atomic.Uint64) cron.Job {
	return cron.FuncJob(func() {
		fired.Add(1)
		s.log.Debug("trigger fired", logx.String("name", name), logx.String("code", fmt.Sprintf("0x%04X", code)))
		if s.fire != nil {
			s.fire(name, code)
		}
	})
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("ambient triggers stopped")
}

// stopLocked does not wait for running jobs; they only enqueue codes.
func (s *Service) stopLocked() {
	s.c.Stop()
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Enabled:  s.cfg.Enabled,
		Running:  s.c != nil,
		Timezone: strings.TrimSpace(s.cfg.Timezone),
		Triggers: make([]Info, 0, len(s.defs)),
	}
	if snap.Timezone == "" {
		snap.Timezone = time.Local.String()
	}
	for _, d := range s.defs {
		it := Info{Name: d.name, Schedule: d.sched.String(), Code: d.code, Jitter: d.jitter, Fired: d.fired.Load()}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Triggers = append(snap.Triggers, it)
	}
	return snap
}

// cronLogger routes cron's own logging (panics in jobs) into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
