package driver

import (
	"errors"
	"fmt"
)

// UnknownDriverError is returned when a driver name is not registered.
type UnknownDriverError struct {
	Name string
	// Role is set when the lookup happened on behalf of a constellation role.
	Role string
}

func (e *UnknownDriverError) Error() string {
	if e.Role != "" {
		return fmt.Sprintf("role %q: unknown driver %q", e.Role, e.Name)
	}
	return fmt.Sprintf("unknown driver %q", e.Name)
}

// CapabilityMismatchError reports a capability a role requires but the
// configured driver does not advertise.
type CapabilityMismatchError struct {
	Role       string
	Driver     string
	Capability Capability
}

func (e *CapabilityMismatchError) Error() string {
	return fmt.Sprintf("role %q requires capability %q, which driver %q does not provide",
		e.Role, e.Capability, e.Driver)
}

// NotImplementedError is returned when a node is asked to perform an
// operation its driver does not implement.
type NotImplementedError struct {
	Driver     string
	Capability Capability
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("driver %q does not implement %q", e.Driver, e.Capability)
}

// OperationError is the typed error drivers return when an operation could
// not be carried out against the node.
type OperationError struct {
	Driver     string
	Capability Capability
	Err        error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Driver, e.Capability, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ConfigError reports an invalid node configuration. Setup never retries it.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// PanicError wraps a panic recovered from driver code.
type PanicError struct {
	Driver string
	Value  interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("driver %q panicked: %v", e.Driver, e.Value)
}

// IsConfigError reports whether err is or wraps a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Message: fmt.Sprintf(format, args...)}
}
