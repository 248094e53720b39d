package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"feditest/internal/config"
	"feditest/internal/constellation"
	"feditest/internal/driver"
	"feditest/internal/plan"
	"feditest/internal/report"
	"feditest/internal/session"
	"feditest/internal/template"
	"feditest/pkg/logging"
)

// AbortReason is the skip reason of scenarios a cancelled run never started.
const AbortReason = "run aborted"

// Executor runs test plans against constellations.
type Executor struct {
	assembler *constellation.Assembler
	reporter  report.Reporter
	templates *template.Engine
	cfg       config.Run
	runID     string

	// templateRunID is what step templates see as run_id.
	templateRunID string
}

// New creates an executor. The session mode, recorder and replayer are
// taken from the assembler so node traffic and operation exchanges always
// end up in the same session.
func New(asm *constellation.Assembler, reporter report.Reporter, cfg config.Run, runID string) *Executor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = config.DefaultStepTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = config.DefaultWorkers
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = 1
	}
	return &Executor{
		assembler: asm,
		reporter:  reporter,
		templates: template.New(),
		cfg:       cfg,
		runID:     runID,

		templateRunID: runID,
	}
}

// WithTemplateRunID makes step templates render run_id as id instead of
// the run's own id. Replays use it to send the recorded values again.
func (e *Executor) WithTemplateRunID(id string) *Executor {
	if id != "" {
		e.templateRunID = id
	}
	return e
}

// Run executes every scenario of p against spec and returns the report.
// Configuration errors are returned before any scenario runs. A cancelled
// ctx stops the run; scenarios that did not start are reported SKIPPED.
func (e *Executor) Run(ctx context.Context, p *plan.Plan, spec *constellation.Spec) (*report.Report, error) {
	required := p.Requirements()
	warnings, err := e.assembler.Validate(spec, required)
	if err != nil {
		return nil, err
	}

	names := make([]string, len(p.Scenarios))
	for i := range p.Scenarios {
		names[i] = p.Scenarios[i].Name
	}
	meta := report.Meta{
		RunID:         e.runID,
		Plan:          p.Name,
		Constellation: spec.Name,
		Mode:          e.assembler.Mode,
		SessionPath:   e.cfg.Session,
	}
	agg := report.NewAggregator(meta, names)
	for _, w := range warnings {
		agg.Warn(w)
	}

	logging.Info("Engine", "Running test plan %s (%d scenarios) against constellation %s in %s mode",
		p.Name, len(p.Scenarios), spec.Name, e.assembler.Mode)
	e.reporter.ReportStart(meta, len(p.Scenarios))

	if e.cfg.Parallel <= 1 {
		e.reporter.SetParallelMode(false)
		err = e.runSequential(ctx, p, spec, required, agg)
	} else {
		e.reporter.SetParallelMode(true)
		err = e.runParallel(ctx, p, spec, agg)
	}
	if err != nil && ctx.Err() == nil {
		return nil, err
	}

	if ctx.Err() != nil {
		logging.Warn("Engine", "Run aborted: %v", context.Cause(ctx))
		agg.Abort(AbortReason)
	}
	if e.assembler.Mode == session.ModeReplay && e.assembler.Replayer != nil && ctx.Err() == nil {
		for _, key := range e.assembler.Replayer.Unconsumed() {
			agg.Warn(fmt.Sprintf("recorded exchange %s was not replayed", key))
		}
	}

	rep := agg.Finish()
	logging.Info("Engine", "Test plan %s finished: %s", p.Name, rep.Counts)
	e.reporter.ReportSuiteResult(rep)
	return rep, nil
}

func (e *Executor) runSequential(ctx context.Context, p *plan.Plan, spec *constellation.Spec, required map[string]driver.CapabilitySet, agg *report.Aggregator) error {
	live, err := e.assembler.Assemble(ctx, spec, required)
	if err != nil {
		return err
	}
	defer e.teardown(ctx, live)

	for i := range p.Scenarios {
		if ctx.Err() != nil {
			break
		}
		res := e.runScenario(ctx, &p.Scenarios[i], live, agg)
		agg.Complete(res)
		e.reporter.ReportScenarioResult(res)
	}
	return nil
}

// runParallel gives each scenario its own constellation, so no node is
// driven by two scenarios at once. Setup traffic is keyed by scenario.
func (e *Executor) runParallel(ctx context.Context, p *plan.Plan, spec *constellation.Spec, agg *report.Aggregator) error {
	var g errgroup.Group
	g.SetLimit(e.cfg.Parallel)

	for i := range p.Scenarios {
		sc := &p.Scenarios[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			logging.Debug("Engine", "Assembling a constellation for scenario %s", sc.Name)
			live, err := e.assembler.AssembleFor(ctx, spec, p.ScenarioRequirements(sc), sc.Name)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			defer e.teardown(ctx, live)

			res := e.runScenario(ctx, sc, live, agg)
			agg.Complete(res)
			e.reporter.ReportScenarioResult(res)
			return nil
		})
	}
	return g.Wait()
}

func (e *Executor) teardown(ctx context.Context, live *constellation.Live) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := live.Teardown(tctx); err != nil {
		logging.Error("Engine", err, "Teardown of constellation %s failed", live.Name)
	}
}

// runScenario drives one scenario through its state machine and always
// returns a terminal result.
func (e *Executor) runScenario(ctx context.Context, sc *plan.Scenario, live *constellation.Live, agg *report.Aggregator) report.ScenarioResult {
	m := newMachine(sc.Name)
	res := report.ScenarioResult{
		Name:        sc.Name,
		Description: sc.Description,
		Status:      report.StatusPending,
		Started:     time.Now().UTC(),
	}
	finish := func(status report.Status) report.ScenarioResult {
		if err := m.to(status); err != nil {
			logging.Error("Engine", err, "Scenario state machine violated")
			status = report.StatusErrored
			res.Failure = &report.Failure{Kind: report.KindError, Message: err.Error()}
		}
		res.Status = status
		res.Duration = time.Since(res.Started)
		return res
	}

	if sc.Skip != "" {
		logging.Info("Engine", "Skipping scenario %s: %s", sc.Name, sc.Skip)
		res.SkipReason = sc.Skip
		return finish(report.StatusSkipped)
	}
	for _, role := range sc.RoleNames() {
		if _, ok := live.Handle(role); ok {
			continue
		}
		reason := fmt.Sprintf("role %s could not be assembled", role)
		if cause := live.Failed(role); cause != nil {
			reason = fmt.Sprintf("%s: %v", reason, cause)
		}
		logging.Warn("Engine", "Skipping scenario %s: %s", sc.Name, reason)
		res.SkipReason = reason
		res.Failure = &report.Failure{Kind: report.KindSetup, Message: reason}
		return finish(report.StatusSkipped)
	}

	if err := m.to(report.StatusRunning); err != nil {
		res.Failure = &report.Failure{Kind: report.KindError, Message: err.Error()}
		res.Status = report.StatusErrored
		return res
	}
	agg.Start(sc.Name, res.Started)
	e.reporter.ReportScenarioStart(sc.Name, sc.Description, len(sc.Steps))
	logging.Debug("Engine", "Scenario %s started", sc.Name)

	sctx := ctx
	if timeout := e.scenarioTimeout(sc); timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeoutCause(ctx, timeout, &ScenarioTimeoutError{Scenario: sc.Name, Timeout: timeout})
		defer cancel()
	}

	vars := newVariables(live, sc.Name, e.templateRunID)
	outcome := report.StatusPassed
	stopped := false

	for i := range sc.Steps {
		step := &sc.Steps[i]
		if stopped {
			res.Steps = append(res.Steps, report.StepResult{ID: step.ID, Description: step.Description, Status: report.StatusSkipped})
			continue
		}

		sr := e.runStep(sctx, sc, step, live, vars)
		res.Steps = append(res.Steps, sr)
		e.reporter.ReportStepResult(sc.Name, sr)

		switch sr.Status {
		case report.StatusErrored:
			outcome = report.StatusErrored
			res.Failure = sr.Failure
			stopped = true
		case report.StatusFailed:
			if outcome == report.StatusPassed {
				outcome = report.StatusFailed
				res.Failure = sr.Failure
			}
			if !e.cfg.ContinueOnFailure {
				stopped = true
			}
		}
	}

	logging.Info("Engine", "Scenario %s %s", sc.Name, outcome)
	return finish(outcome)
}

func (e *Executor) scenarioTimeout(sc *plan.Scenario) time.Duration {
	if sc.Timeout > 0 {
		return sc.Timeout
	}
	return e.cfg.ScenarioTimeout
}
