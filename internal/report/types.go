package report

import (
	"fmt"
	"time"

	"feditest/internal/driver"
	"feditest/internal/matcher"
	"feditest/internal/session"
)

// Status is the state of a scenario, step or operation.
type Status string

const (
	// StatusPending means the scenario has not started yet
	StatusPending Status = "PENDING"
	// StatusRunning means the scenario is executing
	StatusRunning Status = "RUNNING"
	// StatusPassed means every step passed
	StatusPassed Status = "PASSED"
	// StatusFailed means an assertion failed or a replay diverged
	StatusFailed Status = "FAILED"
	// StatusErrored means the test infrastructure broke
	StatusErrored Status = "ERRORED"
	// StatusSkipped means the scenario was not run
	StatusSkipped Status = "SKIPPED"
)

// Terminal reports whether s is a final status.
func (s Status) Terminal() bool {
	switch s {
	case StatusPassed, StatusFailed, StatusErrored, StatusSkipped:
		return true
	}
	return false
}

// FailureKind classifies why something did not pass.
type FailureKind string

const (
	// KindAssertion is a failed expectation
	KindAssertion FailureKind = "assertion"
	// KindDivergence is a replay that differs from the recording
	KindDivergence FailureKind = "divergence"
	// KindError is an unexpected fault such as a network or driver error
	KindError FailureKind = "error"
	// KindTimeout is an exceeded step or scenario deadline
	KindTimeout FailureKind = "timeout"
	// KindSession is a correlation key collision or a missing recording
	KindSession FailureKind = "session"
	// KindSetup is a role that could not be assembled
	KindSetup FailureKind = "setup"
	// KindAborted is a scenario that never ran because the run was cancelled
	KindAborted FailureKind = "aborted"
)

// Failure describes what went wrong, with enough detail to reproduce it.
type Failure struct {
	Kind        FailureKind          `json:"kind"`
	Message     string               `json:"message"`
	Step        string               `json:"step,omitempty"`
	Operation   string               `json:"operation,omitempty"`
	Mismatches  []matcher.Mismatch   `json:"mismatches,omitempty"`
	Differences []session.Difference `json:"differences,omitempty"`
}

func (f *Failure) String() string {
	if f == nil {
		return ""
	}
	where := f.Step
	if f.Operation != "" && f.Operation != f.Step {
		where += "/" + f.Operation
	}
	if where == "" {
		return fmt.Sprintf("[%s] %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Kind, where, f.Message)
}

// OperationResult is the outcome of one driver call.
type OperationResult struct {
	ID         string                 `json:"id"`
	Role       string                 `json:"role"`
	Capability driver.Capability      `json:"capability"`
	Status     Status                 `json:"status"`
	Params     map[string]interface{} `json:"params,omitempty"`
	Result     map[string]interface{} `json:"result,omitempty"`
	Duration   time.Duration          `json:"duration"`
	Failure    *Failure               `json:"failure,omitempty"`
}

// StepResult is the outcome of one step.
type StepResult struct {
	ID          string            `json:"id"`
	Description string            `json:"description,omitempty"`
	Status      Status            `json:"status"`
	Started     time.Time         `json:"started"`
	Duration    time.Duration     `json:"duration"`
	Operations  []OperationResult `json:"operations,omitempty"`
	Failure     *Failure          `json:"failure,omitempty"`
}

// ScenarioResult is the outcome of one scenario.
type ScenarioResult struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      Status        `json:"status"`
	Started     time.Time     `json:"started,omitempty"`
	Duration    time.Duration `json:"duration"`
	Steps       []StepResult  `json:"steps,omitempty"`
	Failure     *Failure      `json:"failure,omitempty"`
	// SkipReason is set for SKIPPED scenarios.
	SkipReason string `json:"skip_reason,omitempty"`
}

// Infrastructure reports whether the scenario did not pass for reasons
// outside the system under test.
func (r *ScenarioResult) Infrastructure() bool {
	switch r.Status {
	case StatusErrored:
		return true
	case StatusSkipped:
		return r.Failure != nil
	}
	return false
}

// Counts are the aggregate outcome of a run.
type Counts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

// Add counts one scenario with status s.
func (c *Counts) Add(s Status) {
	c.Total++
	switch s {
	case StatusPassed:
		c.Passed++
	case StatusFailed:
		c.Failed++
	case StatusErrored:
		c.Errored++
	case StatusSkipped:
		c.Skipped++
	}
}

func (c Counts) String() string {
	return fmt.Sprintf("%d passed, %d failed, %d errored, %d skipped", c.Passed, c.Failed, c.Errored, c.Skipped)
}

// Report is the structured result of a test plan run.
type Report struct {
	RunID         string           `json:"run_id"`
	Plan          string           `json:"plan"`
	Constellation string           `json:"constellation"`
	Mode          session.Mode     `json:"mode"`
	Started       time.Time        `json:"started"`
	Finished      time.Time        `json:"finished"`
	Duration      time.Duration    `json:"duration"`
	Scenarios     []ScenarioResult `json:"scenarios"`
	Counts        Counts           `json:"counts"`
	Warnings      []string         `json:"warnings,omitempty"`
	SessionPath   string           `json:"session_path,omitempty"`
	// Aborted is set when the run was cancelled before every scenario ran.
	Aborted bool `json:"aborted,omitempty"`
}

// Exit codes derived from a report.
const (
	ExitPassed         = 0
	ExitFailures       = 1
	ExitInfrastructure = 2
)

// ExitCode maps the report to a process exit code: infrastructure
// problems win over assertion failures; declared skips count as passing.
func (r *Report) ExitCode() int {
	failed := false
	for i := range r.Scenarios {
		s := &r.Scenarios[i]
		if s.Infrastructure() {
			return ExitInfrastructure
		}
		if s.Status == StatusFailed {
			failed = true
		}
	}
	if failed {
		return ExitFailures
	}
	return ExitPassed
}

// Scenario returns the result of the named scenario.
func (r *Report) Scenario(name string) (*ScenarioResult, bool) {
	for i := range r.Scenarios {
		if r.Scenarios[i].Name == name {
			return &r.Scenarios[i], true
		}
	}
	return nil, false
}
