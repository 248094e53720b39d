package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sandboxPlan = "../examples/sandbox"
	sandboxSpec = "../examples/constellations/sandbox.yaml"
	faultySpec  = "../examples/constellations/sandbox-faulty.yaml"
)

func TestRun_Sandbox(t *testing.T) {
	out, err := execute(t, "run", "--testsdir", sandboxPlan, "--constellation", sandboxSpec, "-o", "quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "3 passed, 0 failed, 0 errored, 0 skipped")
}

func TestRun_FaultyServerExitsWithFailures(t *testing.T) {
	out, err := execute(t, "run", "--testsdir", sandboxPlan, "--constellation", faultySpec,
		"--scenario", "multiply", "-o", "quiet")
	require.Error(t, err)
	assert.Equal(t, ExitCodeFailures, getExitCode(err))
	assert.Contains(t, out, "FAILED multiply")
}

func TestRun_ConfigurationErrors(t *testing.T) {
	dir := t.TempDir()
	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("roles: [unclosed"), 0o644))
	badConfig := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(badConfig, []byte("workers: many\n"), 0o644))

	tests := []struct {
		name string
		args []string
	}{
		{"malformed constellation", []string{"--constellation", broken}},
		{"record without session", []string{"--constellation", sandboxSpec, "--mode", "record"}},
		{"unknown mode", []string{"--constellation", sandboxSpec, "--mode", "rehearse"}},
		{"bad config file", []string{"--constellation", sandboxSpec, "--config", badConfig}},
		{"zero step timeout", []string{"--constellation", sandboxSpec, "--step-timeout", "0s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"run", "--testsdir", sandboxPlan, "-o", "quiet"}, tt.args...)
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCodeConfiguration, getExitCode(err), "%v", err)
		})
	}
}

func TestRun_MissingFileIsOtherError(t *testing.T) {
	_, err := execute(t, "run", "--testsdir", sandboxPlan, "--constellation", "does-not-exist.yaml", "-o", "quiet")
	require.Error(t, err)
	assert.Equal(t, ExitCodeError, getExitCode(err))
}

func TestRun_RecordThenReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sandbox.json")
	_, err := execute(t, "run", "--testsdir", sandboxPlan, "--constellation", sandboxSpec,
		"--mode", "record", "--session", path, "-o", "quiet")
	require.NoError(t, err)
	require.FileExists(t, path)

	out, err := execute(t, "run", "--testsdir", sandboxPlan, "--constellation", sandboxSpec,
		"--mode", "replay", "--session", path, "-o", "quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "3 passed")
}

func TestBuildConfig_FlagsOverrideFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(file, []byte("step_timeout: 5s\nworkers: 2\nvolatile_fields: [response.when]\n"), 0o644))

	opts := &runOptions{}
	cmd := newRunCmdWith(opts)
	require.NoError(t, cmd.ParseFlags([]string{
		"--testsdir", sandboxPlan,
		"--constellation", sandboxSpec,
		"--config", file,
		"--workers", "8",
		"--volatile", "response.id",
		"--scenario", "multiply",
	}))
	cfg, err := opts.buildConfig(cmd)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.Run.StepTimeout)
	assert.Equal(t, 8, cfg.Run.Workers)
	assert.Equal(t, []string{"response.when", "response.id"}, cfg.Run.VolatileFields)
	assert.Equal(t, []string{"multiply"}, cfg.Scenarios)
	assert.Equal(t, 1, cfg.Run.Parallel)
}
