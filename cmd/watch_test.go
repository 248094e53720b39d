package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelevant(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{"scenario written", fsnotify.Event{Name: "tests/a.yaml", Op: fsnotify.Write}, true},
		{"json spec", fsnotify.Event{Name: "pair.json", Op: fsnotify.Create}, true},
		{"new directory", fsnotify.Event{Name: "tests/more", Op: fsnotify.Create}, true},
		{"chmod only", fsnotify.Event{Name: "tests/a.yaml", Op: fsnotify.Chmod}, false},
		{"swap file", fsnotify.Event{Name: "tests/.a.yaml.swp", Op: fsnotify.Write}, false},
		{"backup", fsnotify.Event{Name: "tests/a.yaml~", Op: fsnotify.Write}, false},
		{"readme", fsnotify.Event{Name: "tests/README.md", Op: fsnotify.Write}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, relevant(tt.event))
		})
	}
}

func TestProducedByRun(t *testing.T) {
	opts := &runOptions{session: "out/session.json"}
	assert.True(t, producedByRun("out/session.json", opts))
	assert.True(t, producedByRun("reports/feditest-report-1234.json", opts))
	assert.False(t, producedByRun("tests/a.yaml", opts))
}

func TestAddWatches(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests", "nested"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tests", ".git"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "specs"), 0o755))

	w, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	opts := &runOptions{
		testsDir:      filepath.Join(dir, "tests"),
		constellation: filepath.Join(dir, "specs", "pair.yaml"),
	}
	require.NoError(t, addWatches(w, opts))
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "tests"),
		filepath.Join(dir, "tests", "nested"),
		filepath.Join(dir, "specs"),
	}, w.WatchList())
}
