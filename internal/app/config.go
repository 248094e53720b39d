package app

import (
	"io"

	"feditest/internal/config"
)

// Output formats of the run reporter.
const (
	OutputText  = "text"
	OutputJSON  = "json"
	OutputQuiet = "quiet"
	// OutputNone disables the built-in reporter; extra reporters passed to
	// Run still receive events.
	OutputNone = "none"
)

// Config holds the application configuration
type Config struct {
	Run config.Run

	// TestsDir is the test plan directory or file.
	TestsDir string
	// Constellation is the constellation spec file.
	Constellation string
	// Scenarios are glob patterns selecting scenarios by name.
	Scenarios []string
	// Tags select scenarios carrying at least one of them.
	Tags []string

	Output string
	Out    io.Writer
	Color  bool

	// Version is reported to nodes in the User-Agent of HTTP drivers.
	Version string
}

// NewConfig creates an application configuration with the default run
// settings.
func NewConfig(testsDir, constellation string) *Config {
	return &Config{
		Run:           config.Default(),
		TestsDir:      testsDir,
		Constellation: constellation,
		Output:        OutputText,
		Version:       "dev",
	}
}
