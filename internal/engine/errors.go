package engine

import (
	"fmt"
	"time"

	"feditest/internal/report"
)

// StepTimeoutError is the cause of a step context whose deadline passed.
type StepTimeoutError struct {
	Scenario string
	Step     string
	Timeout  time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s of scenario %s exceeded its timeout of %v", e.Step, e.Scenario, e.Timeout)
}

// ScenarioTimeoutError is the cause of a scenario context whose deadline
// passed.
type ScenarioTimeoutError struct {
	Scenario string
	Timeout  time.Duration
}

func (e *ScenarioTimeoutError) Error() string {
	return fmt.Sprintf("scenario %s exceeded its timeout of %v", e.Scenario, e.Timeout)
}

// TransitionError is an illegal scenario state change.
type TransitionError struct {
	Scenario string
	From     report.Status
	To       report.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("scenario %s: illegal transition %s -> %s", e.Scenario, e.From, e.To)
}
