package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevel_String(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{LogLevel(999), "UNKNOWN"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.String())
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{LogLevel(999), slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.level.SlogLevel())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{" warning ", LevelWarn, false},
		{"error", LevelError, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInitForCLI(t *testing.T) {
	var buf bytes.Buffer
	InitForCLI(LevelInfo, &buf)

	Info("Engine", "scenario %s started", "deliver-note")
	Debug("Engine", "suppressed")
	Error("Session", errors.New("disk full"), "flush failed")

	out := buf.String()
	assert.Contains(t, out, "scenario deliver-note started")
	assert.Contains(t, out, "subsystem=Engine")
	assert.Contains(t, out, "disk full")
	assert.NotContains(t, out, "suppressed")
	assert.False(t, strings.Contains(out, "\x1b["), "non-terminal output must not contain color codes")
}

func TestInitWithHandler(t *testing.T) {
	var buf bytes.Buffer
	InitWithHandler(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	Warn("Registry", "driver %q registered twice", "sandbox")

	assert.Contains(t, buf.String(), `"subsystem":"Registry"`)
	assert.Contains(t, buf.String(), `driver \"sandbox\" registered twice`)
}
