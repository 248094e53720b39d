package cmd

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"feditest/internal/report"
	"feditest/pkg/logging"
)

// watchDebounce collapses bursts of writes, as editors produce them, into a
// single re-run.
const watchDebounce = 300 * time.Millisecond

// watchPlan runs the plan, then again after every change to the test plan,
// the constellation spec or the run configuration, until ctx ends. The exit
// code is taken from the last completed run.
func watchPlan(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := addWatches(watcher, opts); err != nil {
		return err
	}

	last, lastErr := runOnce(ctx, cmd, opts)
	logRunOutcome(last, lastErr)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			if lastErr != nil {
				return lastErr
			}
			if last != nil && last.ExitCode() != ExitCodeSuccess {
				return &runResultError{rep: last}
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(event) || producedByRun(event.Name, opts) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = addTree(watcher, event.Name)
				}
			}
			logging.Debug("CLI", "Change detected: %s %s", event.Op, event.Name)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logging.Warn("CLI", "File watcher error: %v", err)

		case <-fire:
			fire = nil
			logging.Info("CLI", "Files changed, running again")
			last, lastErr = runOnce(ctx, cmd, opts)
			logRunOutcome(last, lastErr)
		}
	}
}

func logRunOutcome(rep *report.Report, err error) {
	switch {
	case err != nil:
		logging.Error("CLI", err, "Run failed")
	case rep != nil:
		logging.Info("CLI", "Run %s: %s", rep.RunID, rep.Counts)
	}
	logging.Info("CLI", "Watching for changes, press Ctrl-C to stop")
}

// addWatches watches every directory of the test plan and the directories
// holding the constellation spec and the config file.
func addWatches(w *fsnotify.Watcher, opts *runOptions) error {
	if err := addTree(w, planRoot(opts.testsDir)); err != nil {
		return err
	}
	for _, file := range []string{opts.constellation, opts.configPath} {
		if file == "" {
			continue
		}
		if err := w.Add(filepath.Dir(file)); err != nil {
			return err
		}
	}
	return nil
}

func planRoot(path string) string {
	info, err := os.Stat(path)
	if err == nil && !info.IsDir() {
		return filepath.Dir(path)
	}
	return path
}

func addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}

// producedByRun reports files the run itself writes: the session artifact
// and JSON reports.
func producedByRun(path string, opts *runOptions) bool {
	if strings.HasPrefix(filepath.Base(path), "feditest-report-") {
		return true
	}
	for _, own := range []string{opts.session, opts.reportPath} {
		if own != "" && filepath.Clean(own) == filepath.Clean(path) {
			return true
		}
	}
	return false
}

// relevant filters out editor swap files and attribute-only changes.
func relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") || strings.HasSuffix(base, "~") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".yaml", ".yml", ".json":
		return true
	case "":
		return event.Has(fsnotify.Create)
	}
	return false
}
