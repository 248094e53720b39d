package plan

import (
	"sort"
	"time"

	"feditest/internal/driver"
	"feditest/internal/matcher"
)

// DocumentType identifies plan files.
const DocumentType = "feditest-testplan"

// Plan is an ordered sequence of scenarios. Plans are read-only once loaded.
type Plan struct {
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	// Roles declares requirements shared by all scenarios.
	Roles     []Role     `yaml:"roles,omitempty" json:"roles,omitempty"`
	Scenarios []Scenario `yaml:"scenarios,omitempty" json:"scenarios,omitempty"`
}

// Role is a named slot in the constellation with required capabilities.
type Role struct {
	Name     string              `yaml:"name" json:"name"`
	Requires []driver.Capability `yaml:"requires,omitempty" json:"requires,omitempty"`
}

// Scenario is an ordered sequence of steps.
type Scenario struct {
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Roles       []Role        `yaml:"roles,omitempty" json:"roles,omitempty"`
	Steps       []Step        `yaml:"steps" json:"steps"`
	Timeout     time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Tags        []string      `yaml:"tags,omitempty" json:"tags,omitempty"`
	// Skip, when set, is the reason the scenario is not run.
	Skip string `yaml:"skip,omitempty" json:"skip,omitempty"`

	// Source is the file the scenario was loaded from.
	Source string `yaml:"-" json:"-"`
}

// Step invokes one or more operations. A single operation may be written
// inline using Role, Op, Params, Expect and Store.
type Step struct {
	ID          string        `yaml:"id" json:"id"`
	Description string        `yaml:"description,omitempty" json:"description,omitempty"`
	Parallel    bool          `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Operations  []Operation   `yaml:"operations,omitempty" json:"operations,omitempty"`

	Role   string                 `yaml:"role,omitempty" json:"role,omitempty"`
	Op     driver.Capability      `yaml:"op,omitempty" json:"op,omitempty"`
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Expect []matcher.Expectation  `yaml:"expect,omitempty" json:"expect,omitempty"`
	Store  string                 `yaml:"store,omitempty" json:"store,omitempty"`
}

// Operation is one driver call against one role.
type Operation struct {
	ID     string                 `yaml:"id,omitempty" json:"id,omitempty"`
	Role   string                 `yaml:"role" json:"role"`
	Op     driver.Capability      `yaml:"op" json:"op"`
	Params map[string]interface{} `yaml:"params,omitempty" json:"params,omitempty"`
	Expect []matcher.Expectation  `yaml:"expect,omitempty" json:"expect,omitempty"`
	// DependsOn names operations of the same step whose results this
	// operation needs. Only independent operations run concurrently.
	DependsOn []string `yaml:"depends_on,omitempty" json:"depends_on,omitempty"`
	// Store saves the result under this name for later templates.
	Store string `yaml:"store,omitempty" json:"store,omitempty"`
}

// Requirements derives the capability set each role must provide: the
// declared requirements plus every operation a step invokes on the role.
func (p *Plan) Requirements() map[string]driver.CapabilitySet {
	req := make(map[string]driver.CapabilitySet)
	addRoles(req, p.Roles)
	for i := range p.Scenarios {
		for role, caps := range p.Scenarios[i].Requirements() {
			if req[role] == nil {
				req[role] = driver.NewCapabilitySet()
			}
			req[role].Add(caps.List()...)
		}
	}
	return req
}

// ScenarioRequirements is what a constellation assembled for sc alone must
// provide: the plan's declared roles plus the scenario's own requirements.
func (p *Plan) ScenarioRequirements(sc *Scenario) map[string]driver.CapabilitySet {
	req := make(map[string]driver.CapabilitySet)
	addRoles(req, p.Roles)
	for role, caps := range sc.Requirements() {
		if req[role] == nil {
			req[role] = driver.NewCapabilitySet()
		}
		req[role].Add(caps.List()...)
	}
	return req
}

// Requirements is Plan.Requirements for a single scenario.
func (s *Scenario) Requirements() map[string]driver.CapabilitySet {
	req := make(map[string]driver.CapabilitySet)
	addRoles(req, s.Roles)
	for _, step := range s.Steps {
		for _, op := range step.Operations {
			if req[op.Role] == nil {
				req[op.Role] = driver.NewCapabilitySet()
			}
			req[op.Role].Add(op.Op)
		}
	}
	return req
}

// RoleNames returns the roles the scenario needs, sorted.
func (s *Scenario) RoleNames() []string {
	req := s.Requirements()
	names := make([]string, 0, len(req))
	for name := range req {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// OperationCount returns the number of operations over all steps.
func (s *Scenario) OperationCount() int {
	n := 0
	for _, step := range s.Steps {
		n += len(step.Operations)
	}
	return n
}

func addRoles(req map[string]driver.CapabilitySet, roles []Role) {
	for _, r := range roles {
		if req[r.Name] == nil {
			req[r.Name] = driver.NewCapabilitySet()
		}
		req[r.Name].Add(r.Requires...)
	}
}
