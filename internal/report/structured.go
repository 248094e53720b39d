package report

import (
	"encoding/json"
	"sync"
	"time"
)

// ScenarioState tracks a scenario while it runs.
type ScenarioState struct {
	Name      string       `json:"name"`
	Status    Status       `json:"status"`
	StartTime time.Time    `json:"start_time"`
	Steps     []StepResult `json:"steps"`
}

// StructuredReporter captures every event in memory without writing
// anything, for callers that query results programmatically.
type StructuredReporter struct {
	mu      sync.RWMutex
	meta    Meta
	states  map[string]*ScenarioState
	results []ScenarioResult
	final   *Report
}

// NewStructuredReporter creates an empty structured reporter.
func NewStructuredReporter() *StructuredReporter {
	return &StructuredReporter{states: make(map[string]*ScenarioState)}
}

func (r *StructuredReporter) ReportStart(meta Meta, scenarios int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta = meta
	r.states = make(map[string]*ScenarioState)
	r.results = nil
	r.final = nil
}

func (r *StructuredReporter) ReportScenarioStart(name, description string, steps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[name] = &ScenarioState{Name: name, Status: StatusRunning, StartTime: time.Now()}
}

func (r *StructuredReporter) ReportStepResult(scenario string, step StepResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[scenario]; ok {
		state.Steps = append(state.Steps, step)
	}
}

func (r *StructuredReporter) ReportScenarioResult(res ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.states[res.Name]; ok {
		state.Status = res.Status
	}
	r.results = append(r.results, res)
}

func (r *StructuredReporter) ReportSuiteResult(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final = rep
}

func (r *StructuredReporter) SetParallelMode(parallel bool) {}

// Report returns the final report, or nil while the run is in progress.
func (r *StructuredReporter) Report() *Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.final
}

// Results returns the scenario results reported so far.
func (r *StructuredReporter) Results() []ScenarioResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ScenarioResult(nil), r.results...)
}

// States returns a copy of the scenario states.
func (r *StructuredReporter) States() map[string]ScenarioState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ScenarioState, len(r.states))
	for name, s := range r.states {
		c := *s
		c.Steps = append([]StepResult(nil), s.Steps...)
		out[name] = c
	}
	return out
}

// JSON returns the final report, or the partial results, as JSON.
func (r *StructuredReporter) JSON() (string, error) {
	var v interface{} = map[string]interface{}{"status": "running", "results": r.Results()}
	if rep := r.Report(); rep != nil {
		v = rep
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
