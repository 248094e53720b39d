package dependency

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.Zero(t, g.Len())
}

func TestAddNode_ReplacesAndCopies(t *testing.T) {
	g := New()
	deps := []NodeID{"a"}
	g.AddNode(Node{ID: "a"})
	g.AddNode(Node{ID: "b", DependsOn: deps})
	deps[0] = "mutated"

	assert.Equal(t, []NodeID{"a"}, g.Dependencies("b"))

	g.AddNode(Node{ID: "b"})
	assert.Equal(t, 2, g.Len())
	assert.Empty(t, g.Dependencies("b"))
	assert.Nil(t, g.Get("missing"))
}

func TestDependents(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "create"})
	g.AddNode(Node{ID: "deliver", DependsOn: []NodeID{"create"}})
	g.AddNode(Node{ID: "fetch", DependsOn: []NodeID{"create"}})

	assert.Equal(t, []NodeID{"deliver", "fetch"}, g.Dependents("create"))
	assert.Empty(t, g.Dependents("fetch"))
}

func TestLevels(t *testing.T) {
	tests := []struct {
		name  string
		nodes []Node
		want  [][]NodeID
	}{
		{
			name:  "independent operations share a level",
			nodes: []Node{{ID: "a"}, {ID: "b"}, {ID: "c"}},
			want:  [][]NodeID{{"a", "b", "c"}},
		},
		{
			name: "chain",
			nodes: []Node{
				{ID: "a"},
				{ID: "b", DependsOn: []NodeID{"a"}},
				{ID: "c", DependsOn: []NodeID{"b"}},
			},
			want: [][]NodeID{{"a"}, {"b"}, {"c"}},
		},
		{
			name: "diamond keeps declared order",
			nodes: []Node{
				{ID: "join", DependsOn: []NodeID{"left", "right"}},
				{ID: "right", DependsOn: []NodeID{"root"}},
				{ID: "left", DependsOn: []NodeID{"root"}},
				{ID: "root"},
			},
			want: [][]NodeID{{"root"}, {"right", "left"}, {"join"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			for _, n := range tt.nodes {
				g.AddNode(n)
			}
			levels, err := g.Levels()
			require.NoError(t, err)
			assert.Equal(t, tt.want, levels)
		})
	}
}

func TestOrder(t *testing.T) {
	g := New()
	g.AddNode(Node{ID: "fetch", DependsOn: []NodeID{"deliver"}})
	g.AddNode(Node{ID: "deliver"})
	g.AddNode(Node{ID: "audit"})

	order, err := g.Order()
	require.NoError(t, err)
	assert.Equal(t, []NodeID{"deliver", "fetch", "audit"}, order)
}

func TestValidate(t *testing.T) {
	t.Run("unknown dependency", func(t *testing.T) {
		g := New()
		g.AddNode(Node{ID: "a", DependsOn: []NodeID{"ghost"}})
		err := g.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ghost")
	})

	t.Run("self dependency", func(t *testing.T) {
		g := New()
		g.AddNode(Node{ID: "a", DependsOn: []NodeID{"a"}})
		var cycle *CycleError
		require.True(t, errors.As(g.Validate(), &cycle))
	})

	t.Run("cycle", func(t *testing.T) {
		g := New()
		g.AddNode(Node{ID: "a", DependsOn: []NodeID{"c"}})
		g.AddNode(Node{ID: "b", DependsOn: []NodeID{"a"}})
		g.AddNode(Node{ID: "c", DependsOn: []NodeID{"b"}})

		_, err := g.Levels()
		var cycle *CycleError
		require.True(t, errors.As(err, &cycle))
		assert.Equal(t, "dependency cycle: a -> c -> b -> a", cycle.Error())
	})
}
