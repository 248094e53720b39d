package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"feditest/internal/app"
	"feditest/internal/config"
	"feditest/internal/report"
	"feditest/pkg/logging"
)

// configFileError marks a run configuration file that could not be loaded.
type configFileError struct {
	err error
}

func (e *configFileError) Error() string { return e.err.Error() }
func (e *configFileError) Unwrap() error { return e.err }

// runOptions hold the flags of the run command.
type runOptions struct {
	testsDir      string
	constellation string
	configPath    string

	mode            string
	session         string
	domain          string
	stepTimeout     time.Duration
	scenarioTimeout time.Duration
	runTimeout      time.Duration
	parallel        int
	workers         int
	continueOnFail  bool
	volatile        []string
	reportPath      string
	verbose         bool

	scenarios []string
	tags      []string
	output    string
	progress  bool
	watch     bool
}

func newRunCmd() *cobra.Command {
	return newRunCmdWith(&runOptions{})
}

// newRunCmdWith binds the run command's flags to opts.
func newRunCmdWith(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a test plan against a constellation",
		Long: `Run executes the scenarios of a test plan against the nodes of a
constellation and prints a report.

Modes:
  live    talk to the nodes and record nothing (default)
  record  talk to the nodes and write every exchange to --session
  replay  compare a fresh run against the exchanges in --session

Examples:
  feditest run --testsdir examples/sandbox --constellation examples/constellations/sandbox.yaml
  feditest run --testsdir tests --constellation pair.yaml --mode record --session pair.json
  feditest run --testsdir tests --constellation pair.yaml --mode replay --session pair.json
  feditest run --testsdir tests --constellation pair.yaml --scenario 'webfinger-*' --watch

Exit codes:
  0  every scenario passed or was skipped on purpose
  1  at least one assertion failed
  2  a scenario errored or could not be assembled
  3  invalid configuration, plan, constellation or session
  4  any other error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.testsDir, "testsdir", "", "Test plan directory or scenario file")
	f.StringVar(&opts.constellation, "constellation", "", "Constellation spec file")
	f.StringVar(&opts.configPath, "config", "", "Run configuration file (flags override its values)")
	f.StringVar(&opts.mode, "mode", "", "Session mode: live, record or replay")
	f.StringVar(&opts.session, "session", "", "Session file to record to or replay from")
	f.StringVar(&opts.domain, "domain", "", "Domain for roles whose node has none")
	f.DurationVar(&opts.stepTimeout, "step-timeout", 0, "Default timeout of a step (default 30s)")
	f.DurationVar(&opts.scenarioTimeout, "scenario-timeout", 0, "Timeout of a whole scenario (0 means none)")
	f.DurationVar(&opts.runTimeout, "run-timeout", 0, "Timeout of the whole run (0 means none)")
	f.IntVar(&opts.parallel, "parallel", 0, "Number of scenarios to run at once, each with its own constellation (default 1)")
	f.IntVar(&opts.workers, "workers", 0, "Concurrent operations inside a parallel step (default 4)")
	f.BoolVar(&opts.continueOnFail, "continue-on-failure", false, "Keep running a scenario's steps after an assertion failure")
	f.StringSliceVar(&opts.volatile, "volatile", nil, "Additional volatile field patterns ignored when replaying")
	f.StringVar(&opts.reportPath, "report", "", "Write a JSON report to this file or directory")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Print every step and operation")
	f.StringSliceVar(&opts.scenarios, "scenario", nil, "Run only scenarios whose name matches one of these patterns")
	f.StringSliceVar(&opts.tags, "tag", nil, "Run only scenarios carrying one of these tags")
	f.StringVarP(&opts.output, "output", "o", app.OutputText, "Output format: text, json or quiet")
	f.BoolVar(&opts.progress, "progress", false, "Show a progress spinner on the terminal")
	f.BoolVar(&opts.watch, "watch", false, "Run again whenever the test plan, constellation or config changes")

	_ = cmd.MarkFlagRequired("testsdir")
	_ = cmd.MarkFlagRequired("constellation")
	_ = cmd.MarkFlagFilename("constellation", "yaml", "yml", "json")
	_ = cmd.MarkFlagFilename("config", "yaml", "yml")
	_ = cmd.MarkFlagFilename("session", "json", "yaml", "yml")
	_ = cmd.MarkFlagDirname("testsdir")
	_ = cmd.RegisterFlagCompletionFunc("mode", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"live", "record", "replay"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = cmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{app.OutputText, app.OutputJSON, app.OutputQuiet}, cobra.ShellCompDirectiveNoFileComp
	})

	cmd.MarkFlagsMutuallyExclusive("watch", "run-timeout")
	return cmd
}

// buildConfig merges the configuration file with the flags that were set
// explicitly.
func (o *runOptions) buildConfig(cmd *cobra.Command) (*app.Config, error) {
	run, err := config.Load(o.configPath)
	if err != nil {
		return nil, &configFileError{err: err}
	}

	changed := cmd.Flags().Changed
	if changed("mode") {
		run.Mode = o.mode
	}
	if changed("session") {
		run.Session = o.session
	}
	if changed("domain") {
		run.Domain = o.domain
	}
	if changed("step-timeout") {
		run.StepTimeout = o.stepTimeout
	}
	if changed("scenario-timeout") {
		run.ScenarioTimeout = o.scenarioTimeout
	}
	if changed("run-timeout") {
		run.RunTimeout = o.runTimeout
	}
	if changed("parallel") {
		run.Parallel = o.parallel
	}
	if changed("workers") {
		run.Workers = o.workers
	}
	if changed("continue-on-failure") {
		run.ContinueOnFailure = o.continueOnFail
	}
	if changed("volatile") {
		run.VolatileFields = append(run.VolatileFields, o.volatile...)
	}
	if changed("report") {
		run.ReportPath = o.reportPath
	}
	if changed("verbose") {
		run.Verbose = o.verbose
	}
	if debug {
		run.Debug = true
	}

	cfg := app.NewConfig(o.testsDir, o.constellation)
	cfg.Run = run
	cfg.Scenarios = o.scenarios
	cfg.Tags = o.tags
	cfg.Output = o.output
	cfg.Out = cmd.OutOrStdout()
	cfg.Color = isTerminal(cfg.Out)
	cfg.Version = GetVersion()
	return cfg, nil
}

func runPlan(cmd *cobra.Command, opts *runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.watch {
		return watchPlan(ctx, cmd, opts)
	}
	rep, err := runOnce(ctx, cmd, opts)
	if err != nil {
		return err
	}
	if rep.ExitCode() != ExitCodeSuccess {
		return &runResultError{rep: rep}
	}
	return nil
}

// runOnce builds the application from the current files and flags and runs
// the plan once.
func runOnce(ctx context.Context, cmd *cobra.Command, opts *runOptions) (*report.Report, error) {
	cfg, err := opts.buildConfig(cmd)
	if err != nil {
		return nil, err
	}
	application, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}

	var extra []report.Reporter
	if opts.progress && isTerminal(cmd.ErrOrStderr()) {
		p := newProgressReporter(cmd.ErrOrStderr())
		defer p.stop()
		extra = append(extra, p)
	}

	rep, err := application.Run(ctx, extra...)
	if err != nil {
		if rep == nil {
			return nil, err
		}
		logging.Error("CLI", err, "Run of %s finished with an error", rep.Plan)
		return rep, err
	}
	if rep.Aborted {
		logging.Warn("CLI", "Run %s was aborted: %s", rep.RunID, context.Cause(ctx))
	}
	return rep, nil
}

func isTerminal(w interface{}) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
