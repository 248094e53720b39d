package session

import (
	"fmt"
	"sync"
	"time"

	"feditest/pkg/logging"
)

// Metadata describes the run a session belongs to.
type Metadata struct {
	RunID         string
	Plan          string
	Constellation string

	// Parallel is the scenario parallelism; above one, setup traffic is
	// keyed per scenario.
	Parallel int
}

// Recorder is the single append-only sink for exchanges. Concurrent
// writers are serialized so the exchange order is well defined.
type Recorder struct {
	mu        sync.Mutex
	meta      Metadata
	started   time.Time
	exchanges []Exchange
	keys      map[string]struct{}
	now       func() time.Time
}

// NewRecorder creates an empty recorder.
func NewRecorder(meta Metadata) *Recorder {
	return &Recorder{
		meta:    meta,
		started: time.Now().UTC(),
		keys:    make(map[string]struct{}),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Record normalizes ex, marks the paths policy considers volatile and
// appends it. A repeated correlation key is an ErroredSessionError.
func (r *Recorder) Record(ex Exchange, policy *Policy) error {
	req, err := NormalizeMap(ex.Request)
	if err != nil {
		return fmt.Errorf("failed to normalize request of %s: %w", ex.Key, err)
	}
	resp, err := NormalizeMap(ex.Response)
	if err != nil {
		return fmt.Errorf("failed to normalize response of %s: %w", ex.Key, err)
	}
	if req == nil {
		req = map[string]interface{}{}
	}
	ex.Request, ex.Response = req, resp
	ex.VolatileFields = policy.VolatilePaths(&ex)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.keys[ex.Key]; dup {
		return &ErroredSessionError{Key: ex.Key, Reason: ReasonCollision}
	}
	if ex.Timestamp.IsZero() {
		ex.Timestamp = r.now()
	}
	r.keys[ex.Key] = struct{}{}
	r.exchanges = append(r.exchanges, ex)
	logging.Debug("Session", "Recorded %s exchange %s", ex.Kind, ex.Key)
	return nil
}

// Len returns the number of recorded exchanges.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.exchanges)
}

// Session returns a snapshot of the recording.
func (r *Recorder) Session(complete bool) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	finished := r.now()
	exchanges := make([]Exchange, len(r.exchanges))
	copy(exchanges, r.exchanges)
	return &Session{
		FormatVersion: FormatVersion,
		RunID:         r.meta.RunID,
		Plan:          r.meta.Plan,
		Constellation: r.meta.Constellation,
		Parallel:      r.meta.Parallel,
		Started:       r.started,
		Finished:      &finished,
		Complete:      complete,
		Exchanges:     exchanges,
	}
}

// Flush writes the recording to path. An incomplete session is still
// written, marked complete=false.
func (r *Recorder) Flush(path string, complete bool) error {
	s := r.Session(complete)
	if err := Save(path, s); err != nil {
		return err
	}
	if complete {
		logging.Info("Session", "Wrote session with %d exchanges to %s", len(s.Exchanges), path)
	} else {
		logging.Warn("Session", "Wrote INCOMPLETE session with %d exchanges to %s", len(s.Exchanges), path)
	}
	return nil
}
