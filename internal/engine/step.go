package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"feditest/internal/constellation"
	"feditest/internal/dependency"
	"feditest/internal/driver"
	"feditest/internal/matcher"
	"feditest/internal/plan"
	"feditest/internal/report"
	"feditest/internal/session"
	"feditest/pkg/logging"
)

// runStep executes the operations of one step under the step timeout.
// Operations are scheduled by dependency level; a parallel step runs each
// level on a bounded worker pool.
func (e *Executor) runStep(ctx context.Context, sc *plan.Scenario, step *plan.Step, live *constellation.Live, vars *variables) report.StepResult {
	res := report.StepResult{
		ID:          step.ID,
		Description: step.Description,
		Started:     time.Now().UTC(),
	}

	timeout := step.Timeout
	if timeout <= 0 {
		timeout = e.cfg.StepTimeout
	}
	stepCtx, cancel := context.WithTimeoutCause(ctx, timeout, &StepTimeoutError{Scenario: sc.Name, Step: step.ID, Timeout: timeout})
	defer cancel()

	levels, err := step.Graph().Levels()
	if err != nil {
		res.Status = report.StatusErrored
		res.Failure = &report.Failure{Kind: report.KindError, Step: step.ID, Message: err.Error()}
		return res
	}

	// A driver that ignores cancellation must not hold up the scenario, so
	// the operations run apart from the deadline watch.
	done := make(chan []report.OperationResult, 1)
	go func() {
		done <- e.runLevels(stepCtx, sc, step, levels, live, vars)
	}()

	var ops []report.OperationResult
	select {
	case ops = <-done:
	case <-stepCtx.Done():
		select {
		case ops = <-done:
		default:
		}
	}
	res.Duration = time.Since(res.Started)
	res.Operations = ops

	if stepCtx.Err() != nil {
		if f := deadlineFailure(stepCtx, step); f != nil {
			res.Status = report.StatusErrored
			res.Failure = f
			logging.Warn("Engine", "Scenario %s: %s", sc.Name, f.Message)
			return res
		}
	}

	res.Status = report.StatusPassed
	for i := range ops {
		op := &ops[i]
		switch op.Status {
		case report.StatusErrored:
			if res.Status != report.StatusErrored {
				res.Status = report.StatusErrored
				res.Failure = op.Failure
			}
		case report.StatusFailed:
			if res.Status == report.StatusPassed {
				res.Status = report.StatusFailed
				res.Failure = op.Failure
			}
		}
	}
	return res
}

// deadlineFailure explains why ctx ended, or returns nil when it was only
// cancelled after the step completed.
func deadlineFailure(ctx context.Context, step *plan.Step) *report.Failure {
	cause := context.Cause(ctx)
	var stepTimeout *StepTimeoutError
	var scenarioTimeout *ScenarioTimeoutError
	switch {
	case errors.As(cause, &stepTimeout), errors.As(cause, &scenarioTimeout):
		return &report.Failure{Kind: report.KindTimeout, Step: step.ID, Message: cause.Error()}
	case cause != nil:
		return &report.Failure{Kind: report.KindError, Step: step.ID, Message: fmt.Sprintf("step interrupted: %v", cause)}
	}
	return nil
}

func (e *Executor) runLevels(ctx context.Context, sc *plan.Scenario, step *plan.Step, levels [][]dependency.NodeID, live *constellation.Live, vars *variables) []report.OperationResult {
	results := make(map[string]report.OperationResult, len(step.Operations))
	var mu sync.Mutex
	set := func(r report.OperationResult) {
		mu.Lock()
		defer mu.Unlock()
		results[r.ID] = r
	}

	halted := false
	for _, level := range levels {
		if halted || ctx.Err() != nil {
			break
		}
		if step.Parallel && len(level) > 1 {
			var g errgroup.Group
			g.SetLimit(e.cfg.Workers)
			for _, id := range level {
				op, _ := step.Operation(string(id))
				g.Go(func() error {
					set(e.runOperation(ctx, sc, step, op, live, vars))
					return nil
				})
			}
			_ = g.Wait()
		} else {
			for _, id := range level {
				op, _ := step.Operation(string(id))
				r := e.runOperation(ctx, sc, step, op, live, vars)
				set(r)
				if r.Status != report.StatusPassed {
					break
				}
			}
		}
		for _, id := range level {
			if r, ok := results[string(id)]; !ok || r.Status != report.StatusPassed {
				halted = true
			}
		}
	}

	out := make([]report.OperationResult, 0, len(step.Operations))
	for _, op := range step.Operations {
		r, ok := results[op.ID]
		if !ok {
			r = report.OperationResult{ID: op.ID, Role: op.Role, Capability: op.Op, Status: report.StatusSkipped}
		}
		out = append(out, r)
	}
	return out
}

// runOperation invokes one driver operation, records or replays its
// exchange and evaluates its expectations.
func (e *Executor) runOperation(ctx context.Context, sc *plan.Scenario, step *plan.Step, op *plan.Operation, live *constellation.Live, vars *variables) report.OperationResult {
	res := report.OperationResult{ID: op.ID, Role: op.Role, Capability: op.Op}
	fail := func(status report.Status, kind report.FailureKind, msg string) report.OperationResult {
		res.Status = status
		res.Failure = &report.Failure{Kind: kind, Step: step.ID, Operation: op.ID, Message: msg}
		return res
	}

	h, ok := live.Handle(op.Role)
	if !ok {
		return fail(report.StatusErrored, report.KindSetup, fmt.Sprintf("role %s has no live node", op.Role))
	}
	expect, err := matcher.CompileAll(op.Expect)
	if err != nil {
		return fail(report.StatusErrored, report.KindError, err.Error())
	}
	params, err := e.templates.ReplaceMap(op.Params, vars.snapshot())
	if err != nil {
		return fail(report.StatusErrored, report.KindError, err.Error())
	}
	res.Params = params

	key := session.Key{Scenario: sc.Name, Step: step.ID, Operation: op.ID}
	scope := session.NewScope(key)
	octx := session.WithScope(ctx, scope)
	octx = driver.WithPeers(octx, live.Peers())

	logging.Debug("Engine", "Invoking %s on role %s (%s)", op.Op, op.Role, key)
	started := time.Now().UTC()
	result, callErr := h.Invoke(octx, op.Op, driver.Params(params))
	res.Duration = time.Since(started)
	if result != nil {
		res.Result = map[string]interface{}(result)
	}

	faults := scope.Faults()
	divergences := scope.Divergences()
	if d, err := e.exchange(key, h, op.Op, params, result, callErr, started, res.Duration); err != nil {
		faults = append(faults, err)
	} else if d != nil {
		divergences = append(divergences, d)
	}

	if len(faults) > 0 {
		return fail(report.StatusErrored, report.KindSession, errors.Join(faults...).Error())
	}
	if callErr != nil {
		if ctx.Err() != nil {
			return fail(report.StatusErrored, report.KindTimeout, callErr.Error())
		}
		return fail(report.StatusErrored, report.KindError, callErr.Error())
	}
	if len(divergences) > 0 {
		out := fail(report.StatusFailed, report.KindDivergence, fmt.Sprintf("replay diverged from the recorded session at %s", divergences[0].Key))
		for _, d := range divergences {
			out.Failure.Differences = append(out.Failure.Differences, d.Differences...)
		}
		return out
	}

	if op.Store != "" {
		vars.store(op.Store, map[string]interface{}(result))
	}

	if mismatches := expect.Match(map[string]interface{}(result)); len(mismatches) > 0 {
		out := fail(report.StatusFailed, report.KindAssertion, fmt.Sprintf("%d expectation(s) not met", len(mismatches)))
		out.Failure.Mismatches = mismatches
		return out
	}
	res.Status = report.StatusPassed
	return res
}

// exchange appends the operation exchange to the recording, or checks it
// against the recorded session. It returns a divergence or a session fault.
func (e *Executor) exchange(key session.Key, h *constellation.Handle, capability driver.Capability, params map[string]interface{}, result driver.Result, callErr error, started time.Time, elapsed time.Duration) (*session.ReplayDivergenceError, error) {
	request := map[string]interface{}{
		"capability": string(capability),
		"params":     params,
	}
	var errString string
	if callErr != nil {
		errString = callErr.Error()
	}

	switch e.assembler.Mode {
	case session.ModeRecord:
		if e.assembler.Recorder == nil {
			return nil, nil
		}
		return nil, e.assembler.Recorder.Record(session.Exchange{
			Key:       key.String(),
			Kind:      session.KindOperation,
			Role:      h.Role(),
			Request:   request,
			Response:  result,
			Error:     errString,
			Timestamp: started,
			Elapsed:   elapsed,
		}, h.Policy())
	case session.ModeReplay:
		if e.assembler.Replayer == nil {
			return nil, nil
		}
		_, d, err := e.assembler.Replayer.Check(key.String(), session.KindOperation, request, result, errString, h.Policy())
		return d, err
	}
	return nil, nil
}
