package plan

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter returns a copy of the plan restricted to scenarios whose name
// matches one of the glob patterns and that carry at least one of the tags.
// Empty patterns or tags select everything.
func (p *Plan) Filter(patterns, tags []string) (*Plan, error) {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return nil, fmt.Errorf("invalid scenario pattern %q", pat)
		}
	}

	out := *p
	out.Scenarios = nil
	for _, s := range p.Scenarios {
		if matchesAny(s.Name, patterns) && hasAnyTag(s.Tags, tags) {
			out.Scenarios = append(out.Scenarios, s)
		}
	}
	return &out, nil
}

// Scenario returns the scenario with the given name.
func (p *Plan) Scenario(name string) (*Scenario, bool) {
	for i := range p.Scenarios {
		if p.Scenarios[i].Name == name {
			return &p.Scenarios[i], true
		}
	}
	return nil, false
}

func matchesAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if ok, _ := doublestar.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func hasAnyTag(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
