package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"feditest/pkg/logging"
)

// PlanError reports an invalid plan or scenario file.
type PlanError struct {
	File string
	Err  error
}

func (e *PlanError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("invalid test plan: %v", e.Err)
	}
	return fmt.Sprintf("invalid test plan file %s: %v", e.File, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// planFileNames are recognised as plan metadata inside a tests directory.
var planFileNames = map[string]bool{"plan.yaml": true, "plan.yml": true}

// Load loads a test plan from path. A directory is walked recursively:
// plan.yaml (optional) supplies the plan name and shared roles, every other
// YAML file holds one scenario. Scenarios run in lexical file order. A
// single file is either a plan document with inline scenarios or one
// scenario.
func Load(path string) (*Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("test plan path %s: %w", path, err)
	}

	var p *Plan
	if info.IsDir() {
		p, err = loadDirectory(path)
	} else {
		p, err = loadFile(path)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(p); err != nil {
		return nil, err
	}

	logging.Info("Plan", "Loaded test plan %s with %d scenarios", p.Name, len(p.Scenarios))
	for _, s := range p.Scenarios {
		logging.Debug("Plan", "  %s (%d steps, roles %s)", s.Name, len(s.Steps), strings.Join(s.RoleNames(), ", "))
	}
	return p, nil
}

func loadDirectory(dir string) (*Plan, error) {
	p := &Plan{Name: filepath.Base(filepath.Clean(dir))}

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !isYAMLFile(path) {
			return nil
		}

		if planFileNames[d.Name()] && filepath.Dir(path) == filepath.Clean(dir) {
			meta, err := decodePlan(path)
			if err != nil {
				return err
			}
			if meta.Name != "" {
				p.Name = meta.Name
			}
			p.Type = meta.Type
			p.Description = meta.Description
			p.Roles = meta.Roles
			p.Scenarios = append(p.Scenarios, meta.Scenarios...)
			return nil
		}

		logging.Debug("Plan", "Loading scenario file %s", path)
		s, err := decodeScenario(path)
		if err != nil {
			return err
		}
		p.Scenarios = append(p.Scenarios, s)
		return nil
	})
	if err != nil {
		var planErr *PlanError
		if errors.As(err, &planErr) {
			return nil, planErr
		}
		return nil, fmt.Errorf("failed to walk directory %s: %w", dir, err)
	}
	return p, nil
}

func loadFile(path string) (*Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}

	var probe map[string]interface{}
	if err := yaml.Unmarshal(content, &probe); err != nil {
		return nil, &PlanError{File: path, Err: err}
	}
	if _, ok := probe["scenarios"]; ok {
		return decodePlan(path)
	}

	s, err := decodeScenario(path)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return &Plan{Name: name, Scenarios: []Scenario{s}}, nil
}

func decodePlan(path string) (*Plan, error) {
	var p Plan
	if err := decodeStrict(path, &p); err != nil {
		return nil, err
	}
	if p.Type != "" && p.Type != DocumentType {
		return nil, &PlanError{File: path, Err: fmt.Errorf("unexpected document type %q, expected %q", p.Type, DocumentType)}
	}
	for i := range p.Scenarios {
		p.Scenarios[i].Source = path
		normalizeScenario(&p.Scenarios[i])
	}
	return &p, nil
}

func decodeScenario(path string) (Scenario, error) {
	var s Scenario
	if err := decodeStrict(path, &s); err != nil {
		return s, err
	}
	s.Source = path
	normalizeScenario(&s)
	return s, nil
}

// decodeStrict rejects unknown fields so typos in test files surface early.
func decodeStrict(path string, out interface{}) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &PlanError{File: path, Err: err}
	}
	return nil
}

// normalizeScenario expands inline single-operation steps and assigns
// operation IDs.
func normalizeScenario(s *Scenario) {
	for i := range s.Steps {
		step := &s.Steps[i]
		if len(step.Operations) == 0 && step.Op != "" {
			step.Operations = []Operation{{
				ID:     step.ID,
				Role:   step.Role,
				Op:     step.Op,
				Params: step.Params,
				Expect: step.Expect,
				Store:  step.Store,
			}}
			step.Role, step.Op, step.Params, step.Expect, step.Store = "", "", nil, nil, ""
		}
		for j := range step.Operations {
			if step.Operations[j].ID == "" {
				step.Operations[j].ID = fmt.Sprintf("op%d", j+1)
			}
		}
	}
}

func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
