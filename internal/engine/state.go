package engine

import (
	"sync"

	"feditest/internal/constellation"
	"feditest/internal/report"
	"feditest/internal/template"
)

var transitions = map[report.Status][]report.Status{
	report.StatusPending: {report.StatusRunning, report.StatusSkipped},
	report.StatusRunning: {report.StatusPassed, report.StatusFailed, report.StatusErrored, report.StatusSkipped},
}

// machine tracks the status of one scenario. Terminal states are final.
type machine struct {
	scenario string
	status   report.Status
}

func newMachine(scenario string) *machine {
	return &machine{scenario: scenario, status: report.StatusPending}
}

func (m *machine) to(next report.Status) error {
	for _, allowed := range transitions[m.status] {
		if allowed == next {
			m.status = next
			return nil
		}
	}
	return &TransitionError{Scenario: m.scenario, From: m.status, To: next}
}

// variables holds what step templates can refer to: the live roles and
// results stored by earlier operations of the same scenario.
type variables struct {
	mu     sync.RWMutex
	fixed  map[string]interface{}
	stored map[string]interface{}
}

func newVariables(live *constellation.Live, scenario, runID string) *variables {
	return &variables{
		fixed: map[string]interface{}{
			"roles":    live.Describe(),
			"scenario": scenario,
			"run_id":   runID,
		},
		stored: make(map[string]interface{}),
	}
}

func (v *variables) store(name string, value interface{}) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.stored[name] = value
}

func (v *variables) snapshot() map[string]interface{} {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return template.MergeContexts(v.stored, v.fixed)
}
