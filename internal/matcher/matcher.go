package matcher

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Mismatch describes why a value did not satisfy a matcher.
type Mismatch struct {
	// Path locates the offending value, e.g. "body.object.type". Empty
	// means the value the matcher was applied to.
	Path     string      `json:"path,omitempty"`
	Expected interface{} `json:"expected,omitempty"`
	Actual   interface{} `json:"actual,omitempty"`
	Message  string      `json:"message"`
}

func (m Mismatch) String() string {
	if m.Path == "" {
		return m.Message
	}
	return m.Path + ": " + m.Message
}

// Matcher is a pure predicate over a structured value. Match returns nil
// when the value satisfies the matcher.
type Matcher interface {
	Match(actual interface{}) []Mismatch
	Describe() string
}

// missing stands in for a value absent at a path.
type missing struct{}

func (missing) String() string { return "<missing>" }

// Missing is the value At hands to its matcher when the path does not exist.
var Missing interface{} = missing{}

func isMissing(v interface{}) bool {
	_, ok := v.(missing)
	return ok
}

func fail(expected, actual interface{}, format string, args ...interface{}) []Mismatch {
	return []Mismatch{{Expected: expected, Actual: actual, Message: fmt.Sprintf(format, args...)}}
}

// normalize maps v into the JSON data model so that numbers of different
// Go types compare equal.
func normalize(v interface{}) interface{} {
	if v == nil || isMissing(v) {
		return v
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

func show(v interface{}) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case nil:
		return "null"
	case missing:
		return t.String()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func joinPath(prefix, sub string) string {
	switch {
	case prefix == "":
		return sub
	case sub == "":
		return prefix
	default:
		return prefix + "." + sub
	}
}

func prefixed(prefix string, ms []Mismatch) []Mismatch {
	for i := range ms {
		ms[i].Path = joinPath(prefix, ms[i].Path)
	}
	return ms
}

type equalMatcher struct{ want interface{} }

// Equal matches values equal to want after JSON normalization.
func Equal(want interface{}) Matcher { return equalMatcher{want: normalize(want)} }

func (m equalMatcher) Match(actual interface{}) []Mismatch {
	if isMissing(actual) {
		return fail(m.want, nil, "expected %s, but value is missing", show(m.want))
	}
	if got := normalize(actual); !reflect.DeepEqual(got, m.want) {
		return fail(m.want, got, "expected %s, got %s", show(m.want), show(got))
	}
	return nil
}

func (m equalMatcher) Describe() string { return "equal to " + show(m.want) }

type containsMatcher struct{ want interface{} }

// Contains matches strings containing a substring, lists containing an
// element (structurally, see Subset) and objects containing a key.
func Contains(want interface{}) Matcher { return containsMatcher{want: normalize(want)} }

func (m containsMatcher) Match(actual interface{}) []Mismatch {
	switch got := normalize(actual).(type) {
	case string:
		s, ok := m.want.(string)
		if ok && strings.Contains(got, s) {
			return nil
		}
	case []interface{}:
		for _, el := range got {
			if subsetOf(m.want, el, "") == nil {
				return nil
			}
		}
	case map[string]interface{}:
		if key, ok := m.want.(string); ok {
			if _, exists := got[key]; exists {
				return nil
			}
		}
	case missing:
		return fail(m.want, nil, "expected a value containing %s, but value is missing", show(m.want))
	}
	return fail(m.want, normalize(actual), "expected %s to contain %s", show(normalize(actual)), show(m.want))
}

func (m containsMatcher) Describe() string { return "containing " + show(m.want) }

type patternMatcher struct{ re *regexp.Regexp }

// Matches matches values whose string form matches the regular expression.
func Matches(pattern string) (Matcher, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return patternMatcher{re: re}, nil
}

// MustMatch is Matches for patterns known to be valid.
func MustMatch(pattern string) Matcher {
	m, err := Matches(pattern)
	if err != nil {
		panic(err)
	}
	return m
}

func (m patternMatcher) Match(actual interface{}) []Mismatch {
	if isMissing(actual) || actual == nil {
		return fail(m.re.String(), actual, "expected a value matching /%s/, got %s", m.re, show(actual))
	}
	s, ok := actual.(string)
	if !ok {
		s = fmt.Sprint(normalize(actual))
	}
	if !m.re.MatchString(s) {
		return fail(m.re.String(), s, "expected a value matching /%s/, got %s", m.re, show(s))
	}
	return nil
}

func (m patternMatcher) Describe() string { return "matching /" + m.re.String() + "/" }

type subsetMatcher struct{ want interface{} }

// Subset matches values that structurally contain want: every key of a
// wanted object must be present with a matching value, every element of a
// wanted list must match some element of the actual list, scalars must be
// equal. Extra actual content is allowed.
func Subset(want interface{}) Matcher { return subsetMatcher{want: normalize(want)} }

func (m subsetMatcher) Match(actual interface{}) []Mismatch {
	return subsetOf(m.want, normalize(actual), "")
}

func (m subsetMatcher) Describe() string { return "a superset of " + show(m.want) }

func subsetOf(want, got interface{}, path string) []Mismatch {
	switch w := want.(type) {
	case map[string]interface{}:
		g, ok := got.(map[string]interface{})
		if !ok {
			return prefixed(path, fail(w, got, "expected an object, got %s", show(got)))
		}
		keys := make([]string, 0, len(w))
		for k := range w {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var out []Mismatch
		for _, k := range keys {
			child, exists := g[k]
			if !exists {
				out = append(out, Mismatch{
					Path:     joinPath(path, k),
					Expected: w[k],
					Message:  fmt.Sprintf("expected %s, but field is missing", show(w[k])),
				})
				continue
			}
			out = append(out, subsetOf(w[k], child, joinPath(path, k))...)
		}
		return out
	case []interface{}:
		g, ok := got.([]interface{})
		if !ok {
			return prefixed(path, fail(w, got, "expected a list, got %s", show(got)))
		}
		var out []Mismatch
		for i, el := range w {
			found := false
			for _, candidate := range g {
				if subsetOf(el, candidate, "") == nil {
					found = true
					break
				}
			}
			if !found {
				out = append(out, Mismatch{
					Path:     joinPath(path, fmt.Sprint(i)),
					Expected: el,
					Actual:   g,
					Message:  fmt.Sprintf("no element matches %s", show(el)),
				})
			}
		}
		return out
	default:
		if isMissing(got) {
			return prefixed(path, fail(want, nil, "expected %s, but value is missing", show(want)))
		}
		if !reflect.DeepEqual(want, got) {
			return prefixed(path, fail(want, got, "expected %s, got %s", show(want), show(got)))
		}
		return nil
	}
}

type existsMatcher struct{ want bool }

// Exists matches present values (at a path given by At).
func Exists() Matcher { return existsMatcher{want: true} }

// Absent matches values that are missing (at a path given by At).
func Absent() Matcher { return existsMatcher{want: false} }

func (m existsMatcher) Match(actual interface{}) []Mismatch {
	switch {
	case m.want && isMissing(actual):
		return fail(nil, nil, "expected a value, but it is missing")
	case !m.want && !isMissing(actual):
		return fail(nil, normalize(actual), "expected no value, got %s", show(normalize(actual)))
	}
	return nil
}

func (m existsMatcher) Describe() string {
	if m.want {
		return "present"
	}
	return "absent"
}

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	OpGT  CompareOp = ">"
	OpGTE CompareOp = ">="
	OpLT  CompareOp = "<"
	OpLTE CompareOp = "<="
)

type compareMatcher struct {
	op    CompareOp
	bound float64
}

// Compare matches numbers satisfying "actual op bound".
func Compare(op CompareOp, bound float64) Matcher { return compareMatcher{op: op, bound: bound} }

func (m compareMatcher) Match(actual interface{}) []Mismatch {
	n, ok := normalize(actual).(float64)
	if !ok {
		return fail(m.bound, actual, "expected a number %s %v, got %s", m.op, m.bound, show(actual))
	}
	var pass bool
	switch m.op {
	case OpGT:
		pass = n > m.bound
	case OpGTE:
		pass = n >= m.bound
	case OpLT:
		pass = n < m.bound
	case OpLTE:
		pass = n <= m.bound
	}
	if !pass {
		return fail(m.bound, n, "expected a number %s %v, got %v", m.op, m.bound, n)
	}
	return nil
}

func (m compareMatcher) Describe() string { return fmt.Sprintf("%s %v", m.op, m.bound) }

type atMatcher struct {
	path  string
	inner Matcher
}

// At applies inner to the value found at path. Paths use gjson syntax,
// e.g. "body.object.type" or "body.orderedItems.0.id".
func At(path string, inner Matcher) Matcher { return atMatcher{path: path, inner: inner} }

func (m atMatcher) Match(actual interface{}) []Mismatch {
	var value interface{} = Missing
	if data, err := json.Marshal(actual); err == nil {
		if r := gjson.GetBytes(data, m.path); r.Exists() {
			value = r.Value()
		}
	}
	return prefixed(m.path, m.inner.Match(value))
}

func (m atMatcher) Describe() string { return m.path + " " + m.inner.Describe() }

type allOf []Matcher

// AllOf matches when every matcher matches; all mismatches are reported.
func AllOf(ms ...Matcher) Matcher { return allOf(ms) }

func (a allOf) Match(actual interface{}) []Mismatch {
	var out []Mismatch
	for _, m := range a {
		out = append(out, m.Match(actual)...)
	}
	return out
}

func (a allOf) Describe() string { return join([]Matcher(a), " and ") }

type anyOf []Matcher

// AnyOf matches when at least one matcher matches.
func AnyOf(ms ...Matcher) Matcher { return anyOf(ms) }

func (a anyOf) Match(actual interface{}) []Mismatch {
	var reasons []string
	for _, m := range a {
		ms := m.Match(actual)
		if ms == nil {
			return nil
		}
		for _, mm := range ms {
			reasons = append(reasons, mm.String())
		}
	}
	return fail(a.Describe(), normalize(actual), "no alternative matched: %s", strings.Join(reasons, "; "))
}

func (a anyOf) Describe() string { return "(" + join([]Matcher(a), " or ") + ")" }

type notMatcher struct{ inner Matcher }

// Not inverts a matcher.
func Not(m Matcher) Matcher { return notMatcher{inner: m} }

func (n notMatcher) Match(actual interface{}) []Mismatch {
	if n.inner.Match(actual) != nil {
		return nil
	}
	return fail(n.Describe(), normalize(actual), "expected value not %s", n.inner.Describe())
}

func (n notMatcher) Describe() string { return "not " + n.inner.Describe() }

func join(ms []Matcher, sep string) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.Describe()
	}
	return strings.Join(parts, sep)
}
