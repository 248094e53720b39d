// Package app wires the framework together for the command line and the
// MCP server.
//
// An Application owns the driver registry with every built-in driver. Run
// performs one test plan run end to end:
//
//  1. Load the test plan and apply the scenario filter
//  2. Load the constellation spec and apply the run's domain
//  3. Prepare the session for the mode: a Recorder in record mode, the
//     loaded session behind a Replayer in replay mode
//  4. Execute the plan with the engine under the run timeout
//  5. Flush the recorded session, marked incomplete when the run aborted
//  6. Write the JSON report when a report path is configured
//
// Errors are returned unchanged from the package that produced them, so
// callers can classify them with errors.As:
//
//	rep, err := application.Run(ctx)
//	var cfgErr *constellation.ConfigurationErrors
//	if errors.As(err, &cfgErr) {
//	    // the constellation does not fit the plan
//	}
package app
