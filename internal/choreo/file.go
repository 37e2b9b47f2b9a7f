package choreo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// fileDoc is the authored YAML document.
type fileDoc struct {
	Scenes map[string][]lightRow `yaml:"scenes"`
	Clips  map[string]clipDoc    `yaml:"clips"`
	Jobs   map[string]jobDoc     `yaml:"jobs"`
	Cues   []cueDoc              `yaml:"cues"`
}

type lightRow struct {
	Partition string `yaml:"partition"`
	Mode      string `yaml:"mode"`
}

type clipDoc struct {
	Steps []clipStepDoc `yaml:"steps"`
}

type clipStepDoc struct {
	Targets  map[string]int `yaml:"targets"`
	Duration durValue       `yaml:"duration"`
}

type jobDoc struct {
	Steps []jobStepDoc `yaml:"steps"`
}

type jobStepDoc struct {
	At        durValue `yaml:"at"`
	actionDoc `yaml:",inline"`
}

type actionDoc struct {
	Do        string   `yaml:"do"`
	Partition string   `yaml:"partition"`
	Mode      string   `yaml:"mode"`
	Scene     string   `yaml:"scene"`
	Clip      string   `yaml:"clip"`
	Event     string   `yaml:"event"`
	Pin       int      `yaml:"pin"`
	Hz        float64  `yaml:"hz"`
	Toggles   int      `yaml:"toggles"`
	Delay     durValue `yaml:"delay"`
}

type pulseDoc struct {
	Pin     int      `yaml:"pin"`
	Hz      float64  `yaml:"hz"`
	Toggles int      `yaml:"toggles"`
	Delay   durValue `yaml:"delay"`
}

type delayedDoc struct {
	After     durValue `yaml:"after"`
	actionDoc `yaml:",inline"`
}

type cueDoc struct {
	Code    codeValue    `yaml:"code"`
	Name    string       `yaml:"name"`
	Clip    string       `yaml:"clip"`
	Job     string       `yaml:"job"`
	Pulses  []pulseDoc   `yaml:"pulses"`
	Delayed []delayedDoc `yaml:"delayed"`
}

// durValue keeps the raw scalar; bare integers are milliseconds.
type durValue string

func (d *durValue) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", n.Line)
	}
	// Bare integers are milliseconds; config.ParseDurationField handles both.
	*d = durValue(strings.TrimSpace(n.Value))
	return nil
}

// codeValue accepts decimal or 0x-prefixed event codes.
type codeValue uint16

func (c *codeValue) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: code must be a scalar", n.Line)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(n.Value), 0, 16)
	if err != nil {
		return fmt.Errorf("line %d: invalid event code %q", n.Line, n.Value)
	}
	*c = codeValue(v)
	return nil
}

func decodeDoc(data []byte) (*fileDoc, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &doc, nil
		}
		return nil, fmt.Errorf("choreography: %w", err)
	}
	return &doc, nil
}

// LoadFile reads and compiles a choreography file.
func LoadFile(path string, env Env) (*Library, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("choreography: %w", err)
	}
	return Parse(b, env)
}

// Parse decodes and compiles a choreography document.
func Parse(data []byte, env Env) (*Library, error) {
	doc, err := decodeDoc(data)
	if err != nil {
		return nil, err
	}
	return compile(doc, env)
}
