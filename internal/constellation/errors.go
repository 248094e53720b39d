package constellation

import (
	"fmt"
	"strings"

	"feditest/internal/driver"
)

// ConfigurationErrors collects every configuration problem of a spec.
type ConfigurationErrors struct {
	Errors []error
}

func (e *ConfigurationErrors) Error() string {
	if len(e.Errors) == 1 {
		return "constellation configuration error: " + e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d constellation configuration errors:", len(e.Errors))
	for _, err := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e *ConfigurationErrors) Unwrap() []error {
	return e.Errors
}

// MissingRoleError reports a role the test plan needs but the spec does not
// declare.
type MissingRoleError struct {
	Role     string
	Requires driver.CapabilitySet
}

func (e *MissingRoleError) Error() string {
	if len(e.Requires) == 0 {
		return fmt.Sprintf("role %q is required by the test plan but not declared in the constellation", e.Role)
	}
	return fmt.Sprintf("role %q (requires %s) is required by the test plan but not declared in the constellation",
		e.Role, e.Requires)
}

// NodeUnreachableError reports a node whose setup kept failing.
type NodeUnreachableError struct {
	Role     string
	Driver   string
	Attempts int
	Cause    error
}

func (e *NodeUnreachableError) Error() string {
	return fmt.Sprintf("role %q (driver %s) unreachable after %d attempts: %v", e.Role, e.Driver, e.Attempts, e.Cause)
}

func (e *NodeUnreachableError) Unwrap() error {
	return e.Cause
}

// RoleError attaches a role to a configuration error.
type RoleError struct {
	Role string
	Err  error
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("role %q: %v", e.Role, e.Err)
}

func (e *RoleError) Unwrap() error {
	return e.Err
}
