// Package choreo holds the authored choreography: clips (keyframe motion),
// jobs (timed side effects), light scenes and the cue table that maps event
// codes to them.
//
// A document is validated in full when it is loaded, so the running engine
// only ever sees resolved names and parsed durations.
package choreo

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"animatron/internal/axis"
	"animatron/internal/config"
	"animatron/internal/light"
	"animatron/internal/motion"
)

type ActionKind string

const (
	ActionLight      ActionKind = "light"
	ActionScene      ActionKind = "scene"
	ActionPulse      ActionKind = "pulse"
	ActionEmit       ActionKind = "emit"
	ActionStopMotion ActionKind = "stop_motion"
	ActionClip       ActionKind = "clip"
)

// Action is a resolved side effect run by a job step or a delayed call.
type Action struct {
	Kind ActionKind

	Partition string // light
	Mode      string // light
	Scene     string
	Clip      string
	Event     string
	Pulse     Pulse
}

// Pulse is a pin toggle train.
type Pulse struct {
	Pin     int
	Hz      float64
	Toggles int
	Delay   time.Duration
}

type JobStep struct {
	At     time.Duration
	Action Action
}

// Job is an ordered timeline; steps are sorted by At.
type Job struct {
	Name  string
	Steps []JobStep
}

type Delayed struct {
	After  time.Duration
	Action Action
}

// Cue is what an event code triggers. Every part is optional.
type Cue struct {
	Code    uint16
	Name    string
	Clip    string
	Job     string
	Pulses  []Pulse
	Delayed []Delayed
}

// LightChange sets one partition (or light.All) to a mode.
type LightChange struct {
	Partition string
	Mode      string
}

type Library struct {
	Clips  map[string]motion.Sequence
	Jobs   map[string]Job
	Scenes map[string][]LightChange
	Cues   map[uint16]Cue
}

// Env is what names in a document are resolved against.
type Env struct {
	Axes       *axis.Group
	Partitions []string
}

func Empty() *Library {
	return &Library{
		Clips:  map[string]motion.Sequence{},
		Jobs:   map[string]Job{},
		Scenes: map[string][]LightChange{},
		Cues:   map[uint16]Cue{},
	}
}

func (l *Library) Clip(name string) (motion.Sequence, bool) {
	s, ok := l.Clips[key(name)]
	return s, ok
}

func (l *Library) Job(name string) (Job, bool) {
	j, ok := l.Jobs[key(name)]
	return j, ok
}

func (l *Library) Scene(name string) ([]LightChange, bool) {
	s, ok := l.Scenes[key(name)]
	return s, ok
}

func (l *Library) Cue(code uint16) (Cue, bool) {
	c, ok := l.Cues[code]
	return c, ok
}

// CueByName finds a cue by its optional name.
func (l *Library) CueByName(name string) (Cue, bool) {
	k := key(name)
	for _, c := range l.Cues {
		if c.Name != "" && key(c.Name) == k {
			return c, true
		}
	}
	return Cue{}, false
}

func (l *Library) ClipNames() []string  { return sortedKeys(l.Clips) }
func (l *Library) JobNames() []string   { return sortedKeys(l.Jobs) }
func (l *Library) SceneNames() []string { return sortedKeys(l.Scenes) }

func (l *Library) CueCodes() []uint16 {
	out := make([]uint16, 0, len(l.Cues))
	for c := range l.Cues {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func key(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

type compiler struct {
	env   Env
	doc   *fileDoc
	parts map[string]bool
}

func compile(doc *fileDoc, env Env) (*Library, error) {
	if env.Axes == nil {
		return nil, fmt.Errorf("choreography: axis group required")
	}
	c := &compiler{env: env, doc: doc, parts: map[string]bool{light.All: true}}
	for _, p := range env.Partitions {
		c.parts[key(p)] = true
	}
	lib := Empty()

	for _, name := range sortedKeys(doc.Scenes) {
		path := "scenes." + name
		rows := doc.Scenes[name]
		if len(rows) == 0 {
			return nil, fmt.Errorf("%s: at least one light change required", path)
		}
		changes := make([]LightChange, 0, len(rows))
		for i, r := range rows {
			lc, err := c.lightChange(fmt.Sprintf("%s[%d]", path, i), r.Partition, r.Mode)
			if err != nil {
				return nil, err
			}
			changes = append(changes, lc)
		}
		if err := putUnique(lib.Scenes, path, name, changes); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedKeys(doc.Clips) {
		seq, err := c.clip(name, doc.Clips[name])
		if err != nil {
			return nil, err
		}
		if err := putUnique(lib.Clips, "clips."+name, name, seq); err != nil {
			return nil, err
		}
	}

	for _, name := range sortedKeys(doc.Jobs) {
		job, err := c.job(name, doc.Jobs[name])
		if err != nil {
			return nil, err
		}
		if err := putUnique(lib.Jobs, "jobs."+name, name, job); err != nil {
			return nil, err
		}
	}

	for i, cd := range doc.Cues {
		path := fmt.Sprintf("cues[%d]", i)
		cue, err := c.cue(path, cd)
		if err != nil {
			return nil, err
		}
		if _, dup := lib.Cues[cue.Code]; dup {
			return nil, fmt.Errorf("%s: duplicate code 0x%04X", path, cue.Code)
		}
		lib.Cues[cue.Code] = cue
	}
	return lib, nil
}

func putUnique[V any](m map[string]V, path, name string, v V) error {
	k := key(name)
	if k == "" {
		return fmt.Errorf("%s: empty name", path)
	}
	if _, dup := m[k]; dup {
		return fmt.Errorf("%s: duplicate name (names are case-insensitive)", path)
	}
	m[k] = v
	return nil
}

func (c *compiler) lightChange(path, partition, mode string) (LightChange, error) {
	p := key(partition)
	if p == "" {
		p = light.All
	}
	if !c.parts[p] {
		return LightChange{}, fmt.Errorf("%s.partition: unknown partition %q", path, partition)
	}
	if _, ok := light.LookupMode(mode); !ok {
		return LightChange{}, fmt.Errorf("%s.mode: unknown mode %q", path, mode)
	}
	return LightChange{Partition: p, Mode: key(mode)}, nil
}

func (c *compiler) clip(name string, cd clipDoc) (motion.Sequence, error) {
	path := "clips." + name
	if len(cd.Steps) == 0 {
		return motion.Sequence{}, fmt.Errorf("%s.steps: at least one step required", path)
	}
	n := c.env.Axes.Len()
	seq := motion.Sequence{Name: key(name), Steps: make([]motion.Step, 0, len(cd.Steps))}
	for i, sd := range cd.Steps {
		sp := fmt.Sprintf("%s.steps[%d]", path, i)
		d, err := config.ParseDurationField(sp+".duration", string(sd.Duration))
		if err != nil {
			return motion.Sequence{}, err
		}
		if len(sd.Targets) == 0 {
			return motion.Sequence{}, fmt.Errorf("%s.targets: at least one axis required", sp)
		}
		st := motion.Step{Targets: make([]int, n), Hold: make([]bool, n), Duration: d}
		for j := range st.Hold {
			st.Hold[j] = true
		}
		for axisName, off := range sd.Targets {
			idx, ok := c.env.Axes.Index(axisName)
			if !ok {
				return motion.Sequence{}, fmt.Errorf("%s.targets.%s: unknown axis", sp, axisName)
			}
			st.Targets[idx] = off
			st.Hold[idx] = false
		}
		seq.Steps = append(seq.Steps, st)
	}
	return seq, nil
}

func (c *compiler) job(name string, jd jobDoc) (Job, error) {
	path := "jobs." + name
	if len(jd.Steps) == 0 {
		return Job{}, fmt.Errorf("%s.steps: at least one step required", path)
	}
	job := Job{Name: key(name), Steps: make([]JobStep, 0, len(jd.Steps))}
	for i, sd := range jd.Steps {
		sp := fmt.Sprintf("%s.steps[%d]", path, i)
		at, err := config.ParseDurationField(sp+".at", string(sd.At))
		if err != nil {
			return Job{}, err
		}
		act, err := c.action(sp, sd.actionDoc)
		if err != nil {
			return Job{}, err
		}
		job.Steps = append(job.Steps, JobStep{At: at, Action: act})
	}
	sort.SliceStable(job.Steps, func(i, j int) bool { return job.Steps[i].At < job.Steps[j].At })
	return job, nil
}

func (c *compiler) pulse(path string, pin int, hz float64, toggles int, delay durValue) (Pulse, error) {
	if !(hz > 0) {
		return Pulse{}, fmt.Errorf("%s.hz: must be > 0", path)
	}
	if toggles <= 0 {
		return Pulse{}, fmt.Errorf("%s.toggles: must be > 0", path)
	}
	if pin < 0 {
		return Pulse{}, fmt.Errorf("%s.pin: must be >= 0", path)
	}
	d, err := config.ParseDurationField(path+".delay", string(delay))
	if err != nil {
		return Pulse{}, err
	}
	return Pulse{Pin: pin, Hz: hz, Toggles: toggles, Delay: d}, nil
}

func (c *compiler) action(path string, ad actionDoc) (Action, error) {
	kind := ActionKind(key(ad.Do))
	act := Action{Kind: kind}
	switch kind {
	case ActionLight:
		lc, err := c.lightChange(path, ad.Partition, ad.Mode)
		if err != nil {
			return Action{}, err
		}
		act.Partition, act.Mode = lc.Partition, lc.Mode
	case ActionScene:
		if !c.hasKey(c.doc.Scenes, ad.Scene) {
			return Action{}, fmt.Errorf("%s.scene: unknown scene %q", path, ad.Scene)
		}
		act.Scene = key(ad.Scene)
	case ActionClip:
		if !c.hasKey(c.doc.Clips, ad.Clip) {
			return Action{}, fmt.Errorf("%s.clip: unknown clip %q", path, ad.Clip)
		}
		act.Clip = key(ad.Clip)
	case ActionPulse:
		p, err := c.pulse(path, ad.Pin, ad.Hz, ad.Toggles, ad.Delay)
		if err != nil {
			return Action{}, err
		}
		act.Pulse = p
	case ActionEmit:
		if strings.TrimSpace(ad.Event) == "" {
			return Action{}, fmt.Errorf("%s.event: required for emit", path)
		}
		act.Event = strings.TrimSpace(ad.Event)
	case ActionStopMotion:
	case "":
		return Action{}, fmt.Errorf("%s.do: action required", path)
	default:
		return Action{}, fmt.Errorf("%s.do: unknown action %q", path, ad.Do)
	}
	return act, nil
}

func (c *compiler) cue(path string, cd cueDoc) (Cue, error) {
	cue := Cue{Code: uint16(cd.Code), Name: strings.TrimSpace(cd.Name)}
	if cd.Clip != "" {
		if !c.hasKey(c.doc.Clips, cd.Clip) {
			return Cue{}, fmt.Errorf("%s.clip: unknown clip %q", path, cd.Clip)
		}
		cue.Clip = key(cd.Clip)
	}
	if cd.Job != "" {
		if !c.hasKey(c.doc.Jobs, cd.Job) {
			return Cue{}, fmt.Errorf("%s.job: unknown job %q", path, cd.Job)
		}
		cue.Job = key(cd.Job)
	}
	for i, pd := range cd.Pulses {
		p, err := c.pulse(fmt.Sprintf("%s.pulses[%d]", path, i), pd.Pin, pd.Hz, pd.Toggles, pd.Delay)
		if err != nil {
			return Cue{}, err
		}
		cue.Pulses = append(cue.Pulses, p)
	}
	for i, dd := range cd.Delayed {
		dp := fmt.Sprintf("%s.delayed[%d]", path, i)
		after, err := config.ParseDurationField(dp+".after", string(dd.After))
		if err != nil {
			return Cue{}, err
		}
		act, err := c.action(dp, dd.actionDoc)
		if err != nil {
			return Cue{}, err
		}
		cue.Delayed = append(cue.Delayed, Delayed{After: after, Action: act})
	}
	if cue.Clip == "" && cue.Job == "" && len(cue.Pulses) == 0 && len(cue.Delayed) == 0 {
		return Cue{}, fmt.Errorf("%s: cue 0x%04X does nothing", path, cue.Code)
	}
	return cue, nil
}

func (c *compiler) hasKey(m any, name string) bool {
	k := key(name)
	if k == "" {
		return false
	}
	switch mm := m.(type) {
	case map[string]clipDoc:
		for n := range mm {
			if key(n) == k {
				return true
			}
		}
	case map[string]jobDoc:
		for n := range mm {
			if key(n) == k {
				return true
			}
		}
	case map[string][]lightRow:
		for n := range mm {
			if key(n) == k {
				return true
			}
		}
	}
	return false
}
