// Package config provides the run configuration of feditest.
//
// A run is configured from three layers, later layers winning:
//
//  1. built-in defaults (Default)
//  2. an optional YAML file passed with --config
//  3. command line flags
//
// # Configuration File
//
//	mode: record                 # live, record or replay
//	session: sessions/pair.json  # session artifact to write or read
//	domain: interop.test         # roles without a domain become <role>.<domain>
//	step_timeout: 30s
//	scenario_timeout: 5m
//	run_timeout: 0s              # zero disables the limit
//	continue_on_failure: false
//	parallel: 1                  # scenarios run at once
//	workers: 4                   # concurrent operations inside a parallel step
//	setup_attempts: 3
//	setup_backoff: 500ms
//	volatile_fields:
//	  - "request.body.id"
//	  - "response.headers.Date"
//	report_path: report.json
//
// Unknown keys are rejected so typos do not silently fall back to defaults.
package config
