package config

import (
	"fmt"
	"strings"

	"feditest/internal/session"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// HasErrors returns true if there are any validation errors
func (ve ValidationErrors) HasErrors() bool {
	return len(ve) > 0
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value ...interface{}) {
	var val interface{}
	if len(value) > 0 {
		val = value[0]
	}
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   val,
		Message: message,
	})
}

// Validate checks the run configuration.
func (r Run) Validate() error {
	var errs ValidationErrors

	mode, err := session.ParseMode(r.Mode)
	if err != nil {
		errs.Add("mode", err.Error(), r.Mode)
	}
	if (mode == session.ModeRecord || mode == session.ModeReplay) && r.Session == "" {
		errs.Add("session", fmt.Sprintf("is required in %s mode", mode))
	}
	if r.StepTimeout <= 0 {
		errs.Add("step_timeout", "must be positive", r.StepTimeout)
	}
	if r.ScenarioTimeout < 0 {
		errs.Add("scenario_timeout", "must not be negative", r.ScenarioTimeout)
	}
	if r.RunTimeout < 0 {
		errs.Add("run_timeout", "must not be negative", r.RunTimeout)
	}
	if r.Parallel < 1 {
		errs.Add("parallel", "must be at least 1", r.Parallel)
	}
	if r.Workers < 1 {
		errs.Add("workers", "must be at least 1", r.Workers)
	}
	if r.SetupAttempts < 1 {
		errs.Add("setup_attempts", "must be at least 1", r.SetupAttempts)
	}
	if r.SetupBackoff < 0 {
		errs.Add("setup_backoff", "must not be negative", r.SetupBackoff)
	}
	if _, err := session.NewPolicy(r.VolatileFields...); err != nil {
		errs.Add("volatile_fields", err.Error())
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

// SessionMode returns the parsed mode. Call Validate first.
func (r Run) SessionMode() session.Mode {
	mode, err := session.ParseMode(r.Mode)
	if err != nil {
		return session.ModeLive
	}
	return mode
}
