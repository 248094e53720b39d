package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// NodeID is the unique identifier for a node inside a dependency graph.
// For step scheduling it is the sub-operation ID.
type NodeID string

// Node is one unit of work together with the nodes whose results it needs.
type Node struct {
	ID        NodeID
	DependsOn []NodeID
}

// Graph is a small DAG helper. It is *not* thread-safe by itself; callers
// must synchronise if they write concurrently. Nodes keep their insertion
// order, which is used as the tie breaker for every ordering the graph
// produces.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID
}

// CycleError reports a dependency cycle.
type CycleError struct {
	Path []NodeID
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = string(id)
	}
	return "dependency cycle: " + strings.Join(parts, " -> ")
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node, in insertion order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, nid := range g.order {
		for _, dep := range g.nodes[nid].DependsOn {
			if dep == id {
				res = append(res, nid)
				break
			}
		}
	}
	return res
}

// Validate checks that every dependency exists and that there is no cycle.
func (g *Graph) Validate() error {
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; !ok {
				return fmt.Errorf("%s depends on unknown %s", id, dep)
			}
			if dep == id {
				return &CycleError{Path: []NodeID{id, id}}
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[NodeID]int, len(g.nodes))
	var stack []NodeID
	var visit func(id NodeID) error
	visit = func(id NodeID) error {
		switch state[id] {
		case visiting:
			start := 0
			for i, s := range stack {
				if s == id {
					start = i
				}
			}
			path := append(append([]NodeID(nil), stack[start:]...), id)
			return &CycleError{Path: path}
		case done:
			return nil
		}
		state[id] = visiting
		stack = append(stack, id)
		for _, dep := range g.nodes[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}
	for _, id := range g.order {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Levels groups nodes so that every node's dependencies are in an earlier
// level. Nodes within a level are independent of each other and keep
// insertion order.
func (g *Graph) Levels() ([][]NodeID, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	position := make(map[NodeID]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	level := make(map[NodeID]int, len(g.order))
	var depth func(id NodeID) int
	depth = func(id NodeID) int {
		if l, ok := level[id]; ok {
			return l
		}
		l := 0
		for _, dep := range g.nodes[id].DependsOn {
			if d := depth(dep) + 1; d > l {
				l = d
			}
		}
		level[id] = l
		return l
	}

	var levels [][]NodeID
	for _, id := range g.order {
		l := depth(id)
		for len(levels) <= l {
			levels = append(levels, nil)
		}
		levels[l] = append(levels[l], id)
	}
	for _, lv := range levels {
		sort.SliceStable(lv, func(i, j int) bool { return position[lv[i]] < position[lv[j]] })
	}
	return levels, nil
}

// Order returns a topological order that keeps insertion order wherever
// the dependencies allow it.
func (g *Graph) Order() ([]NodeID, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	emitted := make(map[NodeID]bool, len(g.order))
	out := make([]NodeID, 0, len(g.order))
	for len(out) < len(g.order) {
		for _, id := range g.order {
			if emitted[id] {
				continue
			}
			ready := true
			for _, dep := range g.nodes[id].DependsOn {
				if !emitted[dep] {
					ready = false
					break
				}
			}
			if ready {
				emitted[id] = true
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}
