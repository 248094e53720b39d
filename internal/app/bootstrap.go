package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"feditest/internal/constellation"
	"feditest/internal/driver"
	"feditest/internal/drivers"
	"feditest/internal/engine"
	"feditest/internal/plan"
	"feditest/internal/report"
	"feditest/pkg/logging"
)

// Application represents one configured feditest instance: the run
// configuration and a driver registry holding every built-in driver.
//
// Example usage:
//
//	cfg := app.NewConfig("tests/", "constellations/pair.yaml")
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	rep, err := application.Run(ctx)
type Application struct {
	config   *Config
	registry *driver.Registry
}

// NewApplication validates cfg and registers the built-in drivers.
func NewApplication(cfg *Config) (*Application, error) {
	if err := cfg.Run.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run configuration: %w", err)
	}
	switch cfg.Output {
	case "", OutputText, OutputJSON, OutputQuiet, OutputNone:
	default:
		return nil, fmt.Errorf("unknown output format %q (expected text, json or quiet)", cfg.Output)
	}

	reg := driver.NewRegistry()
	if err := drivers.RegisterBuiltin(reg, cfg.Version); err != nil {
		return nil, err
	}
	return &Application{config: cfg, registry: reg}, nil
}

// Registry returns the driver registry.
func (a *Application) Registry() *driver.Registry {
	return a.registry
}

// LoadPlan loads the test plan and applies the scenario filter.
func (a *Application) LoadPlan() (*plan.Plan, error) {
	if a.config.TestsDir == "" {
		return nil, fmt.Errorf("no test plan directory given")
	}
	p, err := plan.Load(a.config.TestsDir)
	if err != nil {
		return nil, err
	}
	if len(a.config.Scenarios) == 0 && len(a.config.Tags) == 0 {
		return p, nil
	}
	filtered, err := p.Filter(a.config.Scenarios, a.config.Tags)
	if err != nil {
		return nil, err
	}
	if len(filtered.Scenarios) == 0 {
		return nil, fmt.Errorf("no scenario of test plan %s matches the filter", p.Name)
	}
	logging.Info("Plan", "Selected %d of %d scenarios", len(filtered.Scenarios), len(p.Scenarios))
	return filtered, nil
}

// LoadConstellation loads the constellation spec and places roles without
// a domain under the run's domain.
func (a *Application) LoadConstellation() (*constellation.Spec, error) {
	if a.config.Constellation == "" {
		return nil, fmt.Errorf("no constellation spec given")
	}
	spec, err := constellation.LoadFile(a.config.Constellation)
	if err != nil {
		return nil, err
	}
	if a.config.Run.Domain != "" {
		spec = spec.ApplyDomain(a.config.Run.Domain)
	}
	return spec, nil
}

// Run executes the test plan against the constellation and returns the
// report. Extra reporters receive the same events as the configured one.
// A report is returned even when the run was aborted.
func (a *Application) Run(ctx context.Context, extra ...report.Reporter) (*report.Report, error) {
	cfg := a.config
	p, err := a.LoadPlan()
	if err != nil {
		return nil, err
	}
	spec, err := a.LoadConstellation()
	if err != nil {
		return nil, err
	}

	asm := constellation.NewAssembler(a.registry)
	asm.VolatileFields = cfg.Run.VolatileFields
	asm.SetupAttempts = cfg.Run.SetupAttempts
	asm.SetupBackoff = cfg.Run.SetupBackoff
	sess, err := prepareSession(asm, cfg.Run, p.Name, spec.Name)
	if err != nil {
		return nil, err
	}

	if cfg.Run.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, cfg.Run.RunTimeout,
			fmt.Errorf("run exceeded its timeout of %v", cfg.Run.RunTimeout))
		defer cancel()
	}

	reporters := append([]report.Reporter{a.reporter()}, extra...)
	run := cfg.Run
	run.Parallel = sess.parallel
	executor := engine.New(asm, report.Multi(reporters...), run, sess.runID).WithTemplateRunID(sess.recordedRunID)
	rep, err := executor.Run(ctx, p, spec)
	if err != nil {
		return nil, err
	}

	if err := sess.finish(rep); err != nil {
		return rep, err
	}
	if cfg.Run.ReportPath != "" {
		path, err := report.WriteJSON(cfg.Run.ReportPath, rep)
		if err != nil {
			return rep, err
		}
		logging.Info("Report", "Report written to %s", path)
	}
	return rep, nil
}

func (a *Application) reporter() report.Reporter {
	out := a.config.Out
	if out == nil {
		out = os.Stdout
	}
	switch a.config.Output {
	case OutputJSON:
		return report.NewJSONReporter(out)
	case OutputQuiet:
		return report.NewQuietReporter(out)
	case OutputNone:
		return report.NewQuietReporter(io.Discard)
	default:
		return report.NewConsoleReporter(out, a.config.Run.Verbose, a.config.Color)
	}
}
