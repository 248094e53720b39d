package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"sigs.k8s.io/yaml"

	"feditest/pkg/logging"
)

// Load reads a session artifact. Files ending in .yaml or .yml are read as
// YAML, everything else as JSON.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read session %s: %w", path, err)
	}
	s, err := Decode(data, isYAMLPath(path))
	if err != nil {
		var malformed *MalformedSessionError
		if errors.As(err, &malformed) {
			malformed.Path = path
		}
		return nil, err
	}
	logging.Debug("Session", "Loaded session %s (%d exchanges, format %s)", path, len(s.Exchanges), s.FormatVersion)
	return s, nil
}

// Decode parses a session artifact. Unknown fields are ignored; missing
// required fields yield a MalformedSessionError.
func Decode(data []byte, isYAML bool) (*Session, error) {
	if isYAML {
		converted, err := yaml.YAMLToJSON(data)
		if err != nil {
			return nil, &MalformedSessionError{Reason: "invalid YAML", Err: err}
		}
		data = converted
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &MalformedSessionError{Reason: "not a JSON object", Err: err}
	}
	for _, field := range []string{"format_version", "exchanges"} {
		if _, ok := raw[field]; !ok {
			return nil, &MalformedSessionError{Field: field, Reason: "required field is missing"}
		}
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &MalformedSessionError{Reason: "invalid field value", Err: err}
	}
	if err := checkVersion(s.FormatVersion); err != nil {
		return nil, err
	}
	if s.Exchanges == nil {
		return nil, &MalformedSessionError{Field: "exchanges", Reason: "must be a list"}
	}
	for i, ex := range s.Exchanges {
		field := func(name string) string { return fmt.Sprintf("exchanges[%d].%s", i, name) }
		switch {
		case ex.Key == "":
			return nil, &MalformedSessionError{Field: field("correlation_key"), Reason: "required field is missing"}
		case ex.Kind == "":
			return nil, &MalformedSessionError{Field: field("kind"), Reason: "required field is missing"}
		case ex.Request == nil:
			return nil, &MalformedSessionError{Field: field("request"), Reason: "required field is missing"}
		}
		if _, err := ParseKey(ex.Key); err != nil {
			return nil, &MalformedSessionError{Field: field("correlation_key"), Err: err}
		}
	}
	return &s, nil
}

func checkVersion(v string) error {
	if v == "" {
		return &MalformedSessionError{Field: "format_version", Reason: "required field is missing"}
	}
	got, err := semver.NewVersion(v)
	if err != nil {
		return &MalformedSessionError{Field: "format_version", Err: err}
	}
	ours := semver.MustParse(FormatVersion)
	if got.Major() != ours.Major() {
		logging.Warn("Session", "Session format %s differs from supported %s; reading it anyway", got, ours)
	}
	return nil
}

// Save writes s to path atomically, as YAML or JSON depending on the
// extension.
func Save(path string, s *Session) error {
	var (
		data []byte
		err  error
	)
	if isYAMLPath(path) {
		data, err = yaml.Marshal(s)
	} else {
		data, err = json.MarshalIndent(s, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary session file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move session into place: %w", err)
	}
	return nil
}

func isYAMLPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
