package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"feditest/internal/config"
	"feditest/internal/constellation"
	"feditest/internal/plan"
	"feditest/internal/report"
	"feditest/internal/session"
	"feditest/pkg/logging"
)

// Exit codes of the feditest binary.
const (
	// ExitCodeSuccess means every scenario passed or was skipped on purpose.
	ExitCodeSuccess = report.ExitPassed
	// ExitCodeFailures means at least one assertion failed.
	ExitCodeFailures = report.ExitFailures
	// ExitCodeInfrastructure means a scenario errored or could not be
	// assembled.
	ExitCodeInfrastructure = report.ExitInfrastructure
	// ExitCodeConfiguration means a configuration, plan, constellation or
	// session file was invalid.
	ExitCodeConfiguration = 3
	// ExitCodeError is any other error.
	ExitCodeError = 4
)

// runResultError carries a finished report out of a command so Execute can
// derive the exit code from it.
type runResultError struct {
	rep *report.Report
}

func (e *runResultError) Error() string {
	return fmt.Sprintf("test plan %s: %s", e.rep.Plan, e.rep.Counts)
}

var (
	logLevel   string
	debug      bool
	appVersion string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd *cobra.Command

func init() {
	rootCmd = newRootCmd()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "feditest",
		Short: "Test how fediverse servers interoperate",
		Long: `feditest runs test plans against a constellation of federated nodes.

Each scenario binds its roles to the nodes of the constellation, drives them
through the registered drivers and checks the results. Runs can be recorded
into a session file and replayed later without the real nodes.`,
		// Errors are reported by Execute.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			if debug {
				level = logging.LevelDebug
			}
			logging.InitForCLI(level, cmd.ErrOrStderr())
			return nil
		},
	}
	root.SetVersionTemplate(`{{printf "feditest version %s\n" .Version}}`)

	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (same as --log-level debug)")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newSchemaCmd())
	root.AddCommand(newMockServerCmd())
	root.AddCommand(newMCPServerCmd())
	return root
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	appVersion = v
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return appVersion
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	err := rootCmd.Execute()
	code := getExitCode(err)
	if err != nil && code != ExitCodeFailures && code != ExitCodeInfrastructure {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

// getExitCode determines the exit code for the outcome of a command.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	var result *runResultError
	if errors.As(err, &result) {
		return result.rep.ExitCode()
	}

	var (
		cfgErrs    *constellation.ConfigurationErrors
		specErr    *constellation.MalformedSpecError
		planErr    *plan.PlanError
		sessionErr *session.MalformedSessionError
		runErrs    config.ValidationErrors
		runErr     config.ValidationError
		fileErr    *configFileError
	)
	switch {
	case errors.As(err, &cfgErrs),
		errors.As(err, &specErr),
		errors.As(err, &planErr),
		errors.As(err, &sessionErr),
		errors.As(err, &runErrs),
		errors.As(err, &runErr),
		errors.As(err, &fileErr):
		return ExitCodeConfiguration
	}
	return ExitCodeError
}
