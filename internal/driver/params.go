package driver

import (
	"context"
	"fmt"
	"strconv"
)

// String returns the parameter as a string.
func (p Params) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", false
	}
	if s, ok := v.(string); ok {
		return s, true
	}
	return fmt.Sprint(v), true
}

// RequireString returns the parameter or an error naming it.
func (p Params) RequireString(key string) (string, error) {
	s, ok := p.String(key)
	if !ok || s == "" {
		return "", fmt.Errorf("missing required parameter %q", key)
	}
	return s, nil
}

// Int returns the parameter as an int, accepting numbers and numeric strings.
func (p Params) Int(key string) (int, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("missing required parameter %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("parameter %q: %w", key, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("parameter %q: expected a number, got %T", key, v)
	}
}

// Map returns a nested object parameter.
func (p Params) Map(key string) (map[string]interface{}, bool) {
	m, ok := p[key].(map[string]interface{})
	return m, ok
}

// Peer is another node of the constellation, reachable from within an
// operation. Calls go through the same leasing and recording as steps.
type Peer interface {
	Invoke(ctx context.Context, c Capability, p Params) (Result, error)
	Describe() map[string]interface{}
}

// PeerFunc resolves a role name to its peer node.
type PeerFunc func(role string) (Peer, bool)

type peersKey struct{}

// WithPeers attaches a peer resolver to ctx.
func WithPeers(ctx context.Context, f PeerFunc) context.Context {
	return context.WithValue(ctx, peersKey{}, f)
}

// PeerFor looks up the node playing role.
func PeerFor(ctx context.Context, role string) (Peer, bool) {
	f, ok := ctx.Value(peersKey{}).(PeerFunc)
	if !ok || f == nil {
		return nil, false
	}
	return f(role)
}
