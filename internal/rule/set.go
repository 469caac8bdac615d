package rule

import (
	"firestige.xyz/usbrevue/internal/core"
)

// Set is an ordered list of rules applied together.
type Set struct {
	rules []Rule
}

func NewSet(rules ...Rule) *Set {
	return &Set{rules: append([]Rule(nil), rules...)}
}

func (s *Set) Add(rules ...Rule) {
	s.rules = append(s.rules, rules...)
}

func (s *Set) Rules() []Rule { return s.rules }

func (s *Set) Len() int { return len(s.rules) }

// Apply applies every rule in order and returns how many took effect. It
// stops at the first failing rule; assignments made before it remain.
func (s *Set) Apply(rec *core.Record) (int, error) {
	applied := 0
	for _, r := range s.rules {
		ok, err := r.Apply(rec)
		if err != nil {
			return applied, err
		}
		if ok {
			applied++
		}
	}
	return applied, nil
}
