package session

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// FormatVersion is the version of the session artifact format written by
// this build. Readers accept any version and ignore unknown fields.
const FormatVersion = "1.0.0"

// Mode selects how driver network traffic is handled.
type Mode string

const (
	// ModeLive performs real I/O and records nothing.
	ModeLive Mode = "live"
	// ModeRecord performs real I/O and records every exchange.
	ModeRecord Mode = "record"
	// ModeReplay serves recorded responses and diffs live requests.
	ModeReplay Mode = "replay"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModeLive, ModeRecord, ModeReplay:
		return m, nil
	default:
		return "", fmt.Errorf("unknown session mode %q (expected live, record or replay)", s)
	}
}

// Kind distinguishes exchange granularity.
type Kind string

const (
	// KindOperation is a driver operation: params in, result out.
	KindOperation Kind = "operation"
	// KindHTTP is one HTTP request/response pair made by a driver.
	KindHTTP Kind = "http"
)

// Exchange is one observed protocol transaction.
type Exchange struct {
	Key      string                 `json:"correlation_key"`
	Kind     Kind                   `json:"kind"`
	Role     string                 `json:"role,omitempty"`
	Request  map[string]interface{} `json:"request"`
	Response map[string]interface{} `json:"response,omitempty"`
	// Error is set when the transaction failed instead of producing a response.
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	// VolatileFields are the concrete paths that were volatile when recorded.
	VolatileFields []string `json:"volatile_fields,omitempty"`
}

// Session is the ordered artifact of one test plan run.
type Session struct {
	FormatVersion string     `json:"format_version"`
	RunID         string     `json:"run_id,omitempty"`
	Plan          string     `json:"plan,omitempty"`
	Constellation string     `json:"constellation,omitempty"`
	Parallel      int        `json:"parallel,omitempty"`
	Started       time.Time  `json:"started"`
	Finished      *time.Time `json:"finished,omitempty"`
	// Complete is false when the run was aborted before the plan finished.
	Complete  bool       `json:"complete"`
	Exchanges []Exchange `json:"exchanges"`
}

// Normalize converts v into its JSON data model representation
// (map[string]interface{}, []interface{}, float64, string, bool, nil) so
// live and decoded values compare equal.
func Normalize(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeMap is Normalize for object values.
func NormalizeMap(m map[string]interface{}) (map[string]interface{}, error) {
	if m == nil {
		return nil, nil
	}
	v, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	out, _ := v.(map[string]interface{})
	return out, nil
}
