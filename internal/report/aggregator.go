package report

import (
	"sync"
	"time"

	"feditest/internal/session"
)

// Meta identifies the run an aggregator collects results for.
type Meta struct {
	RunID         string
	Plan          string
	Constellation string
	Mode          session.Mode
	SessionPath   string
}

// Aggregator collects scenario results from concurrent executors and keeps
// them in plan order.
type Aggregator struct {
	mu      sync.Mutex
	report  Report
	index   map[string]int
	aborted bool
}

// NewAggregator creates an aggregator with every scenario PENDING.
func NewAggregator(meta Meta, scenarios []string) *Aggregator {
	a := &Aggregator{
		report: Report{
			RunID:         meta.RunID,
			Plan:          meta.Plan,
			Constellation: meta.Constellation,
			Mode:          meta.Mode,
			SessionPath:   meta.SessionPath,
			Started:       time.Now().UTC(),
			Scenarios:     make([]ScenarioResult, len(scenarios)),
		},
		index: make(map[string]int, len(scenarios)),
	}
	for i, name := range scenarios {
		a.report.Scenarios[i] = ScenarioResult{Name: name, Status: StatusPending}
		a.index[name] = i
	}
	return a
}

// Start marks a scenario RUNNING.
func (a *Aggregator) Start(name string, started time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i, ok := a.index[name]; ok {
		a.report.Scenarios[i].Status = StatusRunning
		a.report.Scenarios[i].Started = started
	}
}

// Complete stores the final result of a scenario.
func (a *Aggregator) Complete(res ScenarioResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.index[res.Name]
	if !ok {
		a.index[res.Name] = len(a.report.Scenarios)
		a.report.Scenarios = append(a.report.Scenarios, res)
		return
	}
	a.report.Scenarios[i] = res
}

// Warn adds a run level warning.
func (a *Aggregator) Warn(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Warnings = append(a.report.Warnings, msg)
}

// SetConstellation records the constellation name once it is known.
func (a *Aggregator) SetConstellation(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Constellation = name
}

// Abort marks every scenario that has not finished as SKIPPED.
func (a *Aggregator) Abort(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
	for i := range a.report.Scenarios {
		s := &a.report.Scenarios[i]
		if s.Status.Terminal() {
			continue
		}
		s.Status = StatusSkipped
		s.SkipReason = reason
		s.Failure = &Failure{Kind: KindAborted, Message: reason}
	}
}

// Snapshot returns a copy of the report as it stands.
func (a *Aggregator) Snapshot() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

// Finish computes the counts and returns the final report.
func (a *Aggregator) Finish() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.report.Finished = time.Now().UTC()
	a.report.Duration = a.report.Finished.Sub(a.report.Started)
	a.report.Aborted = a.aborted
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() *Report {
	r := a.report
	r.Scenarios = append([]ScenarioResult(nil), a.report.Scenarios...)
	r.Warnings = append([]string(nil), a.report.Warnings...)
	r.Counts = Counts{}
	for _, s := range r.Scenarios {
		if s.Status.Terminal() {
			r.Counts.Add(s.Status)
		}
	}
	return &r
}
