// Package mcpserver exposes feditest to AI assistants as an MCP server on
// stdio.
//
// Tools:
//   - list_drivers: the registered drivers and their capabilities
//   - list_scenarios: the scenarios of a test plan directory
//   - run_plan: runs a test plan against a constellation and returns the
//     structured report
//
// Results are JSON text. Failures are returned as tool errors, never as
// protocol errors, so the assistant sees the message.
package mcpserver
