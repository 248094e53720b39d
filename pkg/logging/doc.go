// Package logging provides subsystem-tagged structured logging for feditest.
//
// Log calls are package-level functions that take the name of the emitting
// subsystem as their first argument, so every record can be traced back to the
// part of the framework that produced it:
//
//	logging.Info("Assembler", "Node %s is ready (driver %s)", role, driverName)
//	logging.Error("Session", err, "Failed to flush session to %s", path)
//
// # Initialization
//
// The CLI initializes logging once, before any command runs:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//
// Output is rendered by a tint handler. Colors are only used when the writer
// is a terminal, so redirected output stays plain text. Until InitForCLI or
// InitWithHandler is called, all log calls are no-ops, which keeps library
// use and unit tests quiet.
//
// # Subsystems
//
// The framework uses these subsystem names:
//   - Registry: driver registration and lookup
//   - Assembler: constellation validation, node setup and teardown
//   - Engine: scenario and step execution
//   - Session: recording, replay and artifact I/O
//   - Plan: test plan discovery and parsing
//   - Report: result aggregation and report writing
//   - CLI, MCP, Mock: the command line, MCP server and fake federation node
package logging
