package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Policy decides which exchange paths are volatile. Patterns are dot paths
// rooted at "request" or "response"; "*" matches one segment and "**" any
// number of segments, e.g. "response.body.**.published". A map key holding
// "." or "/" is one segment with those characters percent-encoded, see
// PathSegment.
type Policy struct {
	patterns []string
}

// NewPolicy validates patterns and returns a policy.
func NewPolicy(patterns ...string) (*Policy, error) {
	p := &Policy{}
	for _, pat := range patterns {
		pat = strings.TrimSpace(pat)
		if pat == "" {
			continue
		}
		if !doublestar.ValidatePattern(toSlash(pat)) {
			return nil, fmt.Errorf("invalid volatile field pattern %q", pat)
		}
		p.patterns = append(p.patterns, pat)
	}
	return p, nil
}

// With returns a policy holding the patterns of p and extra.
func (p *Policy) With(extra ...string) (*Policy, error) {
	return NewPolicy(append(p.Patterns(), extra...)...)
}

// Patterns returns a copy of the policy patterns.
func (p *Policy) Patterns() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.patterns...)
}

// Match reports whether path is volatile.
func (p *Policy) Match(path string) bool {
	if p == nil {
		return false
	}
	name := toSlash(path)
	for _, pat := range p.patterns {
		if ok, _ := doublestar.Match(toSlash(pat), name); ok {
			return true
		}
	}
	return false
}

// VolatilePaths lists the concrete paths of ex that the policy marks
// volatile. A matched path hides its whole subtree.
func (p *Policy) VolatilePaths(ex *Exchange) []string {
	if p == nil || len(p.patterns) == 0 {
		return nil
	}
	var out []string
	var walk func(path string, v interface{})
	walk = func(path string, v interface{}) {
		if p.Match(path) {
			out = append(out, path)
			return
		}
		switch t := v.(type) {
		case map[string]interface{}:
			for k, child := range t {
				walk(path+"."+PathSegment(k), child)
			}
		case []interface{}:
			for i, child := range t {
				walk(fmt.Sprintf("%s.%d", path, i), child)
			}
		}
	}
	walk("request", ex.Request)
	if ex.Response != nil {
		walk("response", ex.Response)
	}
	sort.Strings(out)
	return out
}

var segmentEscaper = strings.NewReplacer("%", "%25", ".", "%2E", "/", "%2F")

// PathSegment renders a map key as a single path segment, e.g. the JSON-LD
// key "https://www.w3.org/ns/activitystreams#Public" becomes
// "https:%2F%2Fwww%2Ew3%2Eorg%2Fns%2Factivitystreams#Public".
func PathSegment(key string) string {
	return segmentEscaper.Replace(key)
}

func toSlash(path string) string {
	return strings.ReplaceAll(path, ".", "/")
}

// volatileFunc combines the concrete paths recorded with an exchange and
// the current policy.
func volatileFunc(recorded []string, p *Policy) func(string) bool {
	set := make(map[string]struct{}, len(recorded))
	for _, r := range recorded {
		set[r] = struct{}{}
	}
	return func(path string) bool {
		if _, ok := set[path]; ok {
			return true
		}
		return p.Match(path)
	}
}
