package taskgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGraph_NilSchemaPanics(t *testing.T) {
	assert.Panics(t, func() { NewGraph(nil) })
}

func TestAddNode_Panics(t *testing.T) {
	tests := []struct {
		name string
		id   string
		fn   NodeFunc
	}{
		{"empty id", "", visit("x")},
		{"reserved END", "END", visit("x")},
		{"reserved end lowercase", "end", visit("x")},
		{"reserved sentinel", END, visit("x")},
		{"space", "a b", visit("x")},
		{"tab", "a\tb", visit("x")},
		{"newline", "a\nb", visit("x")},
		{"nil function", "a", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				NewGraph(taskSchema()).AddNode(tt.id, tt.fn)
			})
		})
	}
}

func TestAddNode_DuplicatePanics(t *testing.T) {
	g := NewGraph(taskSchema()).AddNode("a", visit("a"))
	assert.PanicsWithValue(t, "taskgraph: duplicate node ID: a", func() {
		g.AddNode("a", visit("a"))
	})
}

func TestAddConditionalEdges_Panics(t *testing.T) {
	tests := []struct {
		name   string
		router RouterFunc
		dests  map[string]string
	}{
		{"nil router", nil, map[string]string{"x": END}},
		{"empty table", always("x"), map[string]string{}},
		{"empty label", always("x"), map[string]string{"": END}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				NewGraph(taskSchema()).AddNode("a", visit("a")).AddConditionalEdges("a", tt.router, tt.dests)
			})
		})
	}

	t.Run("second router on same node", func(t *testing.T) {
		g := NewGraph(taskSchema()).
			AddNode("a", visit("a")).
			AddConditionalEdges("a", always("x"), map[string]string{"x": END})
		assert.Panics(t, func() {
			g.AddConditionalEdges("a", always("y"), map[string]string{"y": END})
		})
	})
}

func TestAddConditionalEdges_CopiesTable(t *testing.T) {
	dests := map[string]string{"done": END}
	g := NewGraph(taskSchema()).
		AddNode("a", visit("a")).
		AddConditionalEdges("a", always("done"), dests).
		SetEntry("a")
	dests["other"] = "missing"

	compiled, err := g.Compile()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"done": END}, compiled.Destinations("a"))
}

func TestCompiledGraph_Accessors(t *testing.T) {
	schema := taskSchema()
	compiled := mustCompile(NewGraph(schema).
		AddNode("plan", visit("plan")).
		AddNode("code", visit("code")).
		AddNode("review", visit("review")).
		AddNode("fallback", visit("fallback")).
		AddEdge("plan", "code").
		AddEdge("code", "review").
		AddConditionalEdges("review", always("approve"), map[string]string{
			"approve": END,
			"revise":  "code",
		}).
		AddErrorEdge("code", "fallback").
		SetTerminal("fallback").
		SetEntry("plan"))

	assert.Equal(t, "plan", compiled.EntryPoint())
	assert.Same(t, schema, compiled.Schema())
	assert.Equal(t, []string{"code", "fallback", "plan", "review"}, compiled.NodeIDs())
	assert.True(t, compiled.HasNode("review"))
	assert.False(t, compiled.HasNode("missing"))

	next, ok := compiled.Successor("plan")
	assert.True(t, ok)
	assert.Equal(t, "code", next)
	_, ok = compiled.Successor("review")
	assert.False(t, ok)

	assert.True(t, compiled.IsConditional("review"))
	assert.False(t, compiled.IsConditional("code"))
	assert.Nil(t, compiled.Destinations("code"))

	target, ok := compiled.ErrorEdge("code")
	assert.True(t, ok)
	assert.Equal(t, "fallback", target)

	assert.ElementsMatch(t, []string{"plan", "review"}, compiled.Predecessors("code"))
	assert.Equal(t, []string{"code"}, compiled.Predecessors("fallback"))
	assert.Empty(t, compiled.Predecessors("plan"))
}
