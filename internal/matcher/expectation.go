package matcher

import (
	"fmt"
)

// Expectation is the declarative form of a matcher as written in test
// plans. Every set field adds a matcher; all of them must hold. When Path is
// set, the matchers apply to the value at that path.
//
//	expect:
//	  - path: status
//	    equals: 202
//	  - path: body.object
//	    subset: {type: Note}
//	  - any_of:
//	      - {path: headers.Content-Type, contains: activity+json}
//	      - {path: headers.Content-Type, contains: ld+json}
type Expectation struct {
	Path     string        `yaml:"path,omitempty" json:"path,omitempty"`
	Equals   interface{}   `yaml:"equals,omitempty" json:"equals,omitempty"`
	Contains interface{}   `yaml:"contains,omitempty" json:"contains,omitempty"`
	Matches  string        `yaml:"matches,omitempty" json:"matches,omitempty"`
	Subset   interface{}   `yaml:"subset,omitempty" json:"subset,omitempty"`
	Exists   *bool         `yaml:"exists,omitempty" json:"exists,omitempty"`
	GT       *float64      `yaml:"gt,omitempty" json:"gt,omitempty"`
	GTE      *float64      `yaml:"gte,omitempty" json:"gte,omitempty"`
	LT       *float64      `yaml:"lt,omitempty" json:"lt,omitempty"`
	LTE      *float64      `yaml:"lte,omitempty" json:"lte,omitempty"`
	AllOf    []Expectation `yaml:"all_of,omitempty" json:"all_of,omitempty"`
	AnyOf    []Expectation `yaml:"any_of,omitempty" json:"any_of,omitempty"`
	Not      *Expectation  `yaml:"not,omitempty" json:"not,omitempty"`
}

// Compile turns an expectation into a matcher.
func Compile(e Expectation) (Matcher, error) {
	var ms []Matcher

	if e.Equals != nil {
		ms = append(ms, Equal(e.Equals))
	}
	if e.Contains != nil {
		ms = append(ms, Contains(e.Contains))
	}
	if e.Matches != "" {
		m, err := Matches(e.Matches)
		if err != nil {
			return nil, err
		}
		ms = append(ms, m)
	}
	if e.Subset != nil {
		ms = append(ms, Subset(e.Subset))
	}
	if e.Exists != nil {
		if *e.Exists {
			ms = append(ms, Exists())
		} else {
			ms = append(ms, Absent())
		}
	}
	bounds := []struct {
		op    CompareOp
		bound *float64
	}{{OpGT, e.GT}, {OpGTE, e.GTE}, {OpLT, e.LT}, {OpLTE, e.LTE}}
	for _, b := range bounds {
		if b.bound != nil {
			ms = append(ms, Compare(b.op, *b.bound))
		}
	}
	if len(e.AllOf) > 0 {
		m, err := CompileAll(e.AllOf)
		if err != nil {
			return nil, fmt.Errorf("all_of: %w", err)
		}
		ms = append(ms, m)
	}
	if len(e.AnyOf) > 0 {
		alts := make([]Matcher, 0, len(e.AnyOf))
		for i, sub := range e.AnyOf {
			m, err := Compile(sub)
			if err != nil {
				return nil, fmt.Errorf("any_of[%d]: %w", i, err)
			}
			alts = append(alts, m)
		}
		ms = append(ms, AnyOf(alts...))
	}
	if e.Not != nil {
		m, err := Compile(*e.Not)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		ms = append(ms, Not(m))
	}

	var m Matcher
	switch len(ms) {
	case 0:
		if e.Path == "" {
			return nil, fmt.Errorf("expectation has no condition")
		}
		// A bare path asserts presence.
		m = Exists()
	case 1:
		m = ms[0]
	default:
		m = AllOf(ms...)
	}

	if e.Path != "" {
		m = At(e.Path, m)
	}
	return m, nil
}

// CompileAll compiles a list of expectations that must all hold.
func CompileAll(es []Expectation) (Matcher, error) {
	ms := make([]Matcher, 0, len(es))
	for i, e := range es {
		m, err := Compile(e)
		if err != nil {
			return nil, fmt.Errorf("expectation %d: %w", i, err)
		}
		ms = append(ms, m)
	}
	return AllOf(ms...), nil
}
