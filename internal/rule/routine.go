package rule

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Routine is a rule file: an optional selector and the assignments to apply
// to every selected record.
//
//	select: "xfer_type==2"
//	rules:
//	  - set: length
//	    value: 99
//	  - set: data[0]
//	    value: 0xff
type Routine struct {
	Select string        `mapstructure:"select"`
	Rules  []RoutineRule `mapstructure:"rules"`
}

type RoutineRule struct {
	Set   string `mapstructure:"set"`
	Value string `mapstructure:"value"`
}

// LoadRoutine reads and parses a routine file.
func LoadRoutine(path string) (*Routine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read routine %s: %w", path, err)
	}
	rt, err := ParseRoutine(data)
	if err != nil {
		return nil, fmt.Errorf("routine %s: %w", path, err)
	}
	return rt, nil
}

// ParseRoutine parses routine YAML. Scalars keep their source text, so
// 0x0102 stays a hex payload instead of becoming the integer 258.
func ParseRoutine(data []byte) (*Routine, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if doc.Kind == 0 {
		return &Routine{}, nil
	}
	literalScalars(&doc)

	var raw map[string]interface{}
	if err := doc.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	var rt Routine
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rt,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return &rt, nil
}

// Set parses the routine's assignments.
func (rt *Routine) Set() (*Set, error) {
	s := NewSet()
	for i, rr := range rt.Rules {
		if rr.Set == "" {
			return nil, fmt.Errorf("%w: rule %d has no target", ErrInvalidRule, i)
		}
		r, err := Parse(rr.Set + "=" + rr.Value)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		s.Add(r)
	}
	return s, nil
}

// literalScalars retags numeric and boolean scalars as strings.
func literalScalars(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		switch n.ShortTag() {
		case "!!int", "!!float", "!!bool":
			n.Tag = "!!str"
		}
		return
	}
	for _, c := range n.Content {
		literalScalars(c)
	}
}
