package session

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// Diff compares a recorded value against a live one, both in normalized
// form, and returns every difference whose path is not volatile. root is
// prepended to every path, e.g. "request".
func Diff(root string, recorded, live interface{}, volatile func(string) bool) []Difference {
	if volatile == nil {
		volatile = func(string) bool { return false }
	}

	r := &diffReporter{root: root}
	ignore := cmp.FilterPath(func(p cmp.Path) bool {
		return volatile(renderPath(root, p))
	}, cmp.Ignore())

	cmp.Equal(recorded, live, ignore, cmpopts.EquateEmpty(), cmp.Reporter(r))

	sort.SliceStable(r.diffs, func(i, j int) bool { return r.diffs[i].Path < r.diffs[j].Path })
	return r.diffs
}

// diffReporter collects differences in the path notation used by reports.
type diffReporter struct {
	root  string
	path  cmp.Path
	diffs []Difference
}

func (r *diffReporter) PushStep(ps cmp.PathStep) {
	r.path = append(r.path, ps)
}

func (r *diffReporter) Report(rs cmp.Result) {
	if rs.Equal() {
		return
	}
	vx, vy := r.path.Last().Values()
	d := Difference{
		Path:     renderPath(r.root, r.path),
		Kind:     DiffChanged,
		Recorded: valueOf(vx),
		Live:     valueOf(vy),
	}
	switch {
	case !vx.IsValid():
		d.Kind = DiffAdded
	case !vy.IsValid():
		d.Kind = DiffMissing
	}
	r.diffs = append(r.diffs, d)
}

func (r *diffReporter) PopStep() {
	r.path = r.path[:len(r.path)-1]
}

func valueOf(v reflect.Value) interface{} {
	if !v.IsValid() || !v.CanInterface() {
		return nil
	}
	return v.Interface()
}

// renderPath turns map and slice steps into "root.key.0.key".
func renderPath(root string, p cmp.Path) string {
	var b strings.Builder
	b.WriteString(root)
	for _, step := range p {
		switch s := step.(type) {
		case cmp.MapIndex:
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			b.WriteString(PathSegment(fmt.Sprint(s.Key().Interface())))
		case cmp.SliceIndex:
			ix, iy := s.SplitKeys()
			idx := ix
			if idx < 0 {
				idx = iy
			}
			if b.Len() > 0 {
				b.WriteByte('.')
			}
			fmt.Fprintf(&b, "%d", idx)
		}
	}
	return b.String()
}
