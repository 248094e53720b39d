package session

import (
	"fmt"
	"strings"
)

// DiffKind classifies a Difference.
type DiffKind string

const (
	DiffChanged DiffKind = "changed"
	// DiffMissing means the recorded value has no live counterpart.
	DiffMissing DiffKind = "missing"
	// DiffAdded means the live value has no recorded counterpart.
	DiffAdded DiffKind = "added"
)

// Difference is one non-volatile mismatch between a recorded and a live
// exchange, located by a dot path such as "response.body.object.type".
type Difference struct {
	Path     string      `json:"path"`
	Kind     DiffKind    `json:"kind"`
	Recorded interface{} `json:"recorded,omitempty"`
	Live     interface{} `json:"live,omitempty"`
}

func (d Difference) String() string {
	switch d.Kind {
	case DiffMissing:
		return fmt.Sprintf("%s: missing (recorded %s)", d.Path, render(d.Recorded))
	case DiffAdded:
		return fmt.Sprintf("%s: unexpected (live %s)", d.Path, render(d.Live))
	default:
		return fmt.Sprintf("%s: recorded %s, live %s", d.Path, render(d.Recorded), render(d.Live))
	}
}

func render(v interface{}) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", v)
}

// ReplayDivergenceError reports that a live exchange no longer matches the
// recording outside the volatile-field allowance.
type ReplayDivergenceError struct {
	Key         string
	Differences []Difference
}

func (e *ReplayDivergenceError) Error() string {
	parts := make([]string, len(e.Differences))
	for i, d := range e.Differences {
		parts[i] = d.String()
	}
	return fmt.Sprintf("replay diverged at %s: %s", e.Key, strings.Join(parts, "; "))
}

// Paths returns the paths of all differences.
func (e *ReplayDivergenceError) Paths() []string {
	out := make([]string, len(e.Differences))
	for i, d := range e.Differences {
		out[i] = d.Path
	}
	return out
}

// MalformedSessionError is returned when a session artifact cannot be used.
type MalformedSessionError struct {
	Path   string
	Field  string
	Reason string
	Err    error
}

func (e *MalformedSessionError) Error() string {
	var b strings.Builder
	b.WriteString("malformed session")
	if e.Path != "" {
		b.WriteString(" " + e.Path)
	}
	if e.Field != "" {
		b.WriteString(": field " + e.Field)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *MalformedSessionError) Unwrap() error {
	return e.Err
}

// Reasons for an ErroredSessionError.
const (
	ReasonCollision = "collision"
	ReasonMissing   = "missing"
	ReasonUnscoped  = "unscoped"
	ReasonKind      = "kind mismatch"
)

// ErroredSessionError reports a correlation key collision, a missing
// recorded exchange, or traffic that cannot be correlated at all.
type ErroredSessionError struct {
	Key    string
	Reason string
}

func (e *ErroredSessionError) Error() string {
	switch e.Reason {
	case ReasonCollision:
		return fmt.Sprintf("session fault: correlation key %s is not unique", e.Key)
	case ReasonMissing:
		return fmt.Sprintf("session fault: no recorded exchange for %s", e.Key)
	case ReasonUnscoped:
		return "session fault: network call outside of any operation cannot be correlated"
	default:
		return fmt.Sprintf("session fault at %s: %s", e.Key, e.Reason)
	}
}
