package session

import (
	"sort"
	"sync"

	"feditest/pkg/logging"
)

// Replayer serves a previously recorded session. Every recorded exchange
// may be consumed once.
type Replayer struct {
	mu       sync.Mutex
	session  *Session
	index    map[string]int
	dups     map[string]bool
	consumed map[string]bool
}

// NewReplayer indexes s by correlation key.
func NewReplayer(s *Session) *Replayer {
	r := &Replayer{
		session:  s,
		index:    make(map[string]int, len(s.Exchanges)),
		dups:     make(map[string]bool),
		consumed: make(map[string]bool),
	}
	for i, ex := range s.Exchanges {
		if _, exists := r.index[ex.Key]; exists {
			r.dups[ex.Key] = true
			logging.Warn("Session", "Recorded session contains correlation key %s more than once", ex.Key)
			continue
		}
		r.index[ex.Key] = i
	}
	if !s.Complete {
		logging.Warn("Session", "Replaying an incomplete session; scenarios after the abort point will fault")
	}
	return r
}

// Session returns the session being replayed.
func (r *Replayer) Session() *Session {
	return r.session
}

// Lookup returns the recorded exchange for key and marks it consumed.
func (r *Replayer) Lookup(key string) (*Exchange, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dups[key] || r.consumed[key] {
		return nil, &ErroredSessionError{Key: key, Reason: ReasonCollision}
	}
	i, ok := r.index[key]
	if !ok {
		return nil, &ErroredSessionError{Key: key, Reason: ReasonMissing}
	}
	r.consumed[key] = true
	ex := r.session.Exchanges[i]
	return &ex, nil
}

// Check looks up key and diffs the live request, and the live response if
// given, against the recording. It returns the recorded exchange, a
// divergence (nil if none) and a session fault.
func (r *Replayer) Check(key string, kind Kind, request, response map[string]interface{}, liveErr string, policy *Policy) (*Exchange, *ReplayDivergenceError, error) {
	ex, err := r.Lookup(key)
	if err != nil {
		return nil, nil, err
	}
	if ex.Kind != kind {
		return nil, nil, &ErroredSessionError{Key: key, Reason: ReasonKind}
	}

	req, err := NormalizeMap(request)
	if err != nil {
		return nil, nil, err
	}
	if req == nil {
		req = map[string]interface{}{}
	}
	volatile := volatileFunc(ex.VolatileFields, policy)

	diffs := Diff("request", ex.Request, req, volatile)
	if kind == KindOperation {
		resp, err := NormalizeMap(response)
		if err != nil {
			return nil, nil, err
		}
		diffs = append(diffs, Diff("response", ex.Response, resp, volatile)...)
		if ex.Error != liveErr && !volatile("error") {
			diffs = append(diffs, Difference{Path: "error", Kind: DiffChanged, Recorded: ex.Error, Live: liveErr})
		}
	}
	if len(diffs) == 0 {
		return ex, nil, nil
	}
	return ex, &ReplayDivergenceError{Key: key, Differences: diffs}, nil
}

// Unconsumed returns recorded keys no live call asked for, sorted.
func (r *Replayer) Unconsumed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	for key := range r.index {
		if !r.consumed[key] && !r.dups[key] {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}
