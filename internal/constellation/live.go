package constellation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"feditest/internal/driver"
	"feditest/internal/session"
	"feditest/pkg/logging"
)

// Handle is the engine's reference to one live node.
type Handle struct {
	role       string
	driverName string
	node       driver.Node
	transport  *session.Transport
	policy     *session.Policy
	shared     bool
	// lease holds one token while an operation runs on the node.
	lease chan struct{}
}

func newHandle(role string, ns NodeSpec, node driver.Node, t *session.Transport, policy *session.Policy) *Handle {
	return &Handle{
		role:       role,
		driverName: ns.Driver,
		node:       node,
		transport:  t,
		policy:     policy,
		shared:     ns.Config.Shared,
		lease:      make(chan struct{}, 1),
	}
}

// Role returns the role the node plays.
func (h *Handle) Role() string { return h.role }

// Driver returns the driver name.
func (h *Handle) Driver() string { return h.driverName }

// Policy returns the node's volatile field policy.
func (h *Handle) Policy() *session.Policy { return h.policy }

// Describe returns the node facts visible to templates, plus its role and
// driver.
func (h *Handle) Describe() map[string]interface{} {
	out := map[string]interface{}{}
	for k, v := range h.node.Describe() {
		out[k] = v
	}
	out["role"] = h.role
	out["driver"] = h.driverName
	return out
}

// Invoke runs capability c on the node. Operations on a node that is not
// shared are serialised. A driver panic is returned as *driver.PanicError.
func (h *Handle) Invoke(ctx context.Context, c driver.Capability, p driver.Params) (res driver.Result, err error) {
	if !h.shared {
		select {
		case h.lease <- struct{}{}:
			defer func() { <-h.lease }()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	defer func() {
		if r := recover(); r != nil {
			logging.Error("Engine", fmt.Errorf("%v", r), "Driver %s panicked in %s", h.driverName, c)
			res, err = nil, &driver.PanicError{Driver: h.driverName, Value: r}
		}
	}()
	return driver.Invoke(ctx, h.driverName, h.node, c, p)
}

// Live is an assembled constellation.
type Live struct {
	Name string

	mu       sync.Mutex
	handles  map[string]*Handle
	failed   map[string]error
	order    []string
	warnings []string
}

func newLive(name string) *Live {
	return &Live{
		Name:    name,
		handles: make(map[string]*Handle),
		failed:  make(map[string]error),
	}
}

func (l *Live) add(h *Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handles[h.role] = h
	l.order = append(l.order, h.role)
}

func (l *Live) fail(role string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failed[role] = err
}

// Handle returns the node playing role, if it was set up.
func (l *Live) Handle(role string) (*Handle, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.handles[role]
	return h, ok
}

// Failed returns why role could not be set up, or nil.
func (l *Live) Failed(role string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failed[role]
}

// Roles returns the roles with a live node, sorted.
func (l *Live) Roles() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	roles := make([]string, 0, len(l.handles))
	for role := range l.handles {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Warnings returns non fatal findings of validation.
func (l *Live) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnings...)
}

// Peers resolves roles to live nodes for cross node operations.
func (l *Live) Peers() driver.PeerFunc {
	return func(role string) (driver.Peer, bool) {
		h, ok := l.Handle(role)
		if !ok {
			return nil, false
		}
		return h, true
	}
}

// Describe returns the Describe output of every live node, keyed by role.
func (l *Live) Describe() map[string]interface{} {
	out := map[string]interface{}{}
	for _, role := range l.Roles() {
		h, _ := l.Handle(role)
		out[role] = h.Describe()
	}
	return out
}

// Teardown closes every live node in reverse setup order. Roles that never
// came up are skipped. All close errors are returned joined.
func (l *Live) Teardown(ctx context.Context) error {
	l.mu.Lock()
	order := append([]string(nil), l.order...)
	handles := l.handles
	l.handles = make(map[string]*Handle)
	l.order = nil
	l.mu.Unlock()

	var errs []error
	for i := len(order) - 1; i >= 0; i-- {
		h := handles[order[i]]
		logging.Debug("Assembler", "Tearing down role %s", h.role)
		if err := h.node.Close(ctx); err != nil {
			logging.Error("Assembler", err, "Failed to tear down role %s", h.role)
			errs = append(errs, fmt.Errorf("role %q: %w", h.role, err))
		}
		h.transport.CloseIdleConnections()
	}
	return errors.Join(errs...)
}

func closeQuietly(ctx context.Context, role string, n driver.Node) {
	if err := n.Close(ctx); err != nil {
		logging.Error("Assembler", err, "Failed to close role %s", role)
	}
}
