package plan

import (
	"errors"
	"fmt"
	"strings"

	"feditest/internal/dependency"
	"feditest/internal/matcher"
)

// reservedChars may not appear in names that become part of a correlation
// key.
const reservedChars = "/#@"

// Validate checks the whole plan and reports every problem it finds.
func Validate(p *Plan) error {
	var errs []error

	if p.Type != "" && p.Type != DocumentType {
		errs = append(errs, fmt.Errorf("unexpected document type %q", p.Type))
	}
	if err := validateRoles(p.Roles); err != nil {
		errs = append(errs, fmt.Errorf("plan roles: %w", err))
	}

	seen := make(map[string]string)
	for i := range p.Scenarios {
		s := &p.Scenarios[i]
		if err := validateScenario(s); err != nil {
			errs = append(errs, withSource(s, err))
			continue
		}
		if prev, dup := seen[s.Name]; dup {
			errs = append(errs, withSource(s, fmt.Errorf("duplicate scenario name %q (also in %s)", s.Name, prev)))
			continue
		}
		seen[s.Name] = s.Source
	}

	if len(errs) == 0 {
		return nil
	}
	return &PlanError{Err: errors.Join(errs...)}
}

func withSource(s *Scenario, err error) error {
	if s.Source == "" {
		return fmt.Errorf("scenario %q: %w", s.Name, err)
	}
	return fmt.Errorf("%s: scenario %q: %w", s.Source, s.Name, err)
}

func validateScenario(s *Scenario) error {
	if err := validateName("scenario name", s.Name); err != nil {
		return err
	}
	if s.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if err := validateRoles(s.Roles); err != nil {
		return fmt.Errorf("roles: %w", err)
	}
	if len(s.Steps) == 0 && s.Skip == "" {
		return fmt.Errorf("scenario must have at least one step")
	}

	stepIDs := make(map[string]bool)
	for i := range s.Steps {
		step := &s.Steps[i]
		if err := validateStep(step); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
		if stepIDs[step.ID] {
			return fmt.Errorf("step %d: duplicate step id %q", i+1, step.ID)
		}
		stepIDs[step.ID] = true
	}
	return nil
}

func validateStep(step *Step) error {
	if err := validateName("step id", step.ID); err != nil {
		return err
	}
	if step.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if step.Op != "" || step.Role != "" {
		return fmt.Errorf("step %q mixes an inline operation with operations", step.ID)
	}
	if len(step.Operations) == 0 {
		return fmt.Errorf("step %q has no operations", step.ID)
	}

	opIDs := make(map[string]bool)
	for j := range step.Operations {
		op := &step.Operations[j]
		if err := validateOperation(op); err != nil {
			return fmt.Errorf("operation %q: %w", op.ID, err)
		}
		if opIDs[op.ID] {
			return fmt.Errorf("duplicate operation id %q", op.ID)
		}
		opIDs[op.ID] = true
	}

	if _, err := step.Graph().Levels(); err != nil {
		return err
	}
	return nil
}

func validateOperation(op *Operation) error {
	if err := validateName("operation id", op.ID); err != nil {
		return err
	}
	if op.Role == "" {
		return fmt.Errorf("role is required")
	}
	if op.Op == "" {
		return fmt.Errorf("op is required")
	}
	if _, err := matcher.CompileAll(op.Expect); err != nil {
		return err
	}
	return nil
}

func validateRoles(roles []Role) error {
	seen := make(map[string]bool)
	for _, r := range roles {
		if err := validateName("role name", r.Name); err != nil {
			return err
		}
		if strings.ContainsAny(r.Name, " \t\n.") {
			return fmt.Errorf("role name %q must not contain whitespace or dots", r.Name)
		}
		if seen[r.Name] {
			return fmt.Errorf("duplicate role %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

func validateName(what, name string) error {
	if name == "" {
		return fmt.Errorf("%s is required", what)
	}
	if strings.ContainsAny(name, reservedChars) {
		return fmt.Errorf("%s %q must not contain any of %q", what, name, reservedChars)
	}
	return nil
}

// Graph returns the dependency graph over the step's operations.
func (step *Step) Graph() *dependency.Graph {
	g := dependency.New()
	for _, op := range step.Operations {
		deps := make([]dependency.NodeID, len(op.DependsOn))
		for i, d := range op.DependsOn {
			deps[i] = dependency.NodeID(d)
		}
		g.AddNode(dependency.Node{ID: dependency.NodeID(op.ID), DependsOn: deps})
	}
	return g
}

// Operation returns the operation with the given ID.
func (step *Step) Operation(id string) (*Operation, bool) {
	for i := range step.Operations {
		if step.Operations[i].ID == id {
			return &step.Operations[i], true
		}
	}
	return nil, false
}
