package app

import (
	"fmt"

	"github.com/google/uuid"

	"feditest/internal/config"
	"feditest/internal/constellation"
	"feditest/internal/report"
	"feditest/internal/session"
	"feditest/pkg/logging"
)

// runSession holds the session side of one run.
type runSession struct {
	mode     session.Mode
	path     string
	recorder *session.Recorder

	// runID identifies this run in its report.
	runID string
	// recordedRunID is the run id of a replayed session.
	recordedRunID string
	// parallel is the scenario parallelism the run must use.
	parallel int
}

// prepareSession configures asm for the run's session mode. In replay mode
// the session artifact is loaded up front, so a malformed artifact fails
// the run before any node is set up.
func prepareSession(asm *constellation.Assembler, run config.Run, planName, constellationName string) (*runSession, error) {
	s := &runSession{
		mode:     run.SessionMode(),
		path:     run.Session,
		runID:    uuid.NewString(),
		parallel: max(run.Parallel, 1),
	}
	asm.Mode = s.mode

	switch s.mode {
	case session.ModeRecord:
		s.recorder = session.NewRecorder(session.Metadata{
			RunID:         s.runID,
			Plan:          planName,
			Constellation: constellationName,
			Parallel:      s.parallel,
		})
		asm.Recorder = s.recorder
		logging.Info("Session", "Recording session to %s", s.path)

	case session.ModeReplay:
		loaded, err := session.Load(s.path)
		if err != nil {
			return nil, err
		}
		if !loaded.Complete {
			logging.Warn("Session", "Session %s was recorded by an aborted run; missing exchanges will error", s.path)
		}
		s.recordedRunID = loaded.RunID
		recorded := max(loaded.Parallel, 1)
		if (recorded > 1) != (s.parallel > 1) {
			logging.Warn("Session", "Session %s was recorded with parallel %d; replaying with the same setting", s.path, recorded)
			s.parallel = recorded
		}
		asm.Replayer = session.NewReplayer(loaded)
		logging.Info("Session", "Replaying %d exchanges from %s", len(loaded.Exchanges), s.path)
	}
	return s, nil
}

// finish flushes a recorded session. A session of an aborted run is
// written too, marked incomplete.
func (s *runSession) finish(rep *report.Report) error {
	if s.recorder == nil {
		return nil
	}
	complete := !rep.Aborted
	if err := s.recorder.Flush(s.path, complete); err != nil {
		return fmt.Errorf("failed to write session %s: %w", s.path, err)
	}
	logging.Info("Session", "Wrote %d exchanges to %s (complete: %t)", s.recorder.Len(), s.path, complete)
	return nil
}
