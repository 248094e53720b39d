package config

import "time"

// Run is the configuration of one test plan run.
type Run struct {
	Mode    string `yaml:"mode,omitempty" json:"mode,omitempty"`
	Session string `yaml:"session,omitempty" json:"session,omitempty"`
	Domain  string `yaml:"domain,omitempty" json:"domain,omitempty"`

	StepTimeout     time.Duration `yaml:"step_timeout,omitempty" json:"step_timeout,omitempty"`
	ScenarioTimeout time.Duration `yaml:"scenario_timeout,omitempty" json:"scenario_timeout,omitempty"`
	RunTimeout      time.Duration `yaml:"run_timeout,omitempty" json:"run_timeout,omitempty"`

	// ContinueOnFailure keeps running the steps of a scenario after an
	// assertion failure. Errors always abort the scenario.
	ContinueOnFailure bool `yaml:"continue_on_failure,omitempty" json:"continue_on_failure,omitempty"`
	// Parallel is the number of scenarios run at once. Above one, every
	// scenario gets its own constellation.
	Parallel int `yaml:"parallel,omitempty" json:"parallel,omitempty"`
	// Workers bounds concurrent operations inside a parallel step.
	Workers int `yaml:"workers,omitempty" json:"workers,omitempty"`

	SetupAttempts int           `yaml:"setup_attempts,omitempty" json:"setup_attempts,omitempty"`
	SetupBackoff  time.Duration `yaml:"setup_backoff,omitempty" json:"setup_backoff,omitempty"`

	VolatileFields []string `yaml:"volatile_fields,omitempty" json:"volatile_fields,omitempty"`

	ReportPath string `yaml:"report_path,omitempty" json:"report_path,omitempty"`
	Verbose    bool   `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	Debug      bool   `yaml:"debug,omitempty" json:"debug,omitempty"`
}
