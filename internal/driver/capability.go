package driver

import (
	"sort"
	"strings"
)

// Capability names one protocol operation a driver can perform, such as
// "activity.deliver". Capabilities are the unit of role requirements.
type Capability string

// Standard capabilities understood by the engine. Drivers may advertise
// additional capabilities and serve them through Operator.
const (
	CapWebFingerQuery  Capability = "webfinger.query"
	CapHTTPGet         Capability = "http.get"
	CapActorFetch      Capability = "actor.fetch"
	CapActivityDeliver Capability = "activity.deliver"
	CapTimelineFetch   Capability = "timeline.fetch"
)

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet returns a set holding caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// Add inserts caps into the set.
func (s CapabilitySet) Add(caps ...Capability) {
	for _, c := range caps {
		s[c] = struct{}{}
	}
}

// Union returns a new set containing the members of s and other.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	out := make(CapabilitySet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Missing returns the members of required that are not in s, sorted.
func (s CapabilitySet) Missing(required CapabilitySet) []Capability {
	var missing []Capability
	for c := range required {
		if !s.Has(c) {
			missing = append(missing, c)
		}
	}
	sortCapabilities(missing)
	return missing
}

// List returns the set members in sorted order.
func (s CapabilitySet) List() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sortCapabilities(out)
	return out
}

func (s CapabilitySet) String() string {
	list := s.List()
	parts := make([]string, len(list))
	for i, c := range list {
		parts[i] = string(c)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func sortCapabilities(caps []Capability) {
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
}
