package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"feditest/pkg/logging"
)

// Load reads a run configuration file on top of the defaults. An empty
// path returns the defaults.
func Load(path string) (Run, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Run{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Run{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Run{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	logging.Info("CLI", "Loaded run configuration from %s", path)
	return cfg, nil
}
