package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// SetupScenario is the pseudo scenario under which node setup traffic is keyed.
const SetupScenario = "@setup"

// Key identifies an exchange by the step that caused it. Operation exchanges
// have Seq 0; the n-th HTTP exchange made by an operation has Seq n.
type Key struct {
	Scenario  string
	Step      string
	Operation string
	Seq       int
}

// SetupKey is the key of the traffic a role produces while being set up.
// assembly names the constellation the role belongs to when a run assembles
// more than one; it is empty for the single shared constellation.
func SetupKey(assembly, role string) Key {
	k := Key{Scenario: SetupScenario, Step: role, Operation: "init"}
	if assembly != "" {
		k.Operation += ":" + assembly
	}
	return k
}

func (k Key) String() string {
	s := k.Scenario + "/" + k.Step + "/" + k.Operation
	if k.Seq > 0 {
		s += "#" + strconv.Itoa(k.Seq)
	}
	return s
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, error) {
	var k Key
	if i := strings.LastIndex(s, "#"); i >= 0 {
		n, err := strconv.Atoi(s[i+1:])
		if err != nil || n <= 0 {
			return k, fmt.Errorf("invalid sequence in correlation key %q", s)
		}
		k.Seq = n
		s = s[:i]
	}
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return k, fmt.Errorf("invalid correlation key %q", s)
	}
	k.Scenario, k.Step, k.Operation = parts[0], parts[1], parts[2]
	return k, nil
}

// Scope collects the session effects of one operation: it hands out
// sequence numbers for HTTP exchanges and gathers replay divergences and
// faults raised by the transport, even if the driver swallows the error.
type Scope struct {
	key Key

	mu          sync.Mutex
	seq         int
	divergences []*ReplayDivergenceError
	faults      []error
}

// NewScope creates the scope of the operation identified by key.
func NewScope(key Key) *Scope {
	return &Scope{key: key}
}

// Key returns the operation key.
func (s *Scope) Key() Key {
	return s.key
}

func (s *Scope) next() Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	k := s.key
	k.Seq = s.seq
	return k
}

func (s *Scope) addDivergence(d *ReplayDivergenceError) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.divergences = append(s.divergences, d)
}

func (s *Scope) addFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, err)
}

// Divergences returns the request divergences seen so far.
func (s *Scope) Divergences() []*ReplayDivergenceError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*ReplayDivergenceError(nil), s.divergences...)
}

// Faults returns the session faults seen so far.
func (s *Scope) Faults() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.faults...)
}

type scopeKey struct{}

// WithScope attaches scope to ctx.
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// ScopeFrom returns the scope attached to ctx, or nil.
func ScopeFrom(ctx context.Context) *Scope {
	s, _ := ctx.Value(scopeKey{}).(*Scope)
	return s
}
