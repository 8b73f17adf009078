package definition

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const triageYAML = `
name: triage
description: route tickets by urgency
entry: classify
max_steps: 10
error_field: errors
fields:
  - {name: ticket, kind: string}
  - {name: urgency, kind: string, default: normal}
  - {name: notes, kind: string, strategy: append}
  - {name: errors, kind: string, strategy: append}
nodes:
  - {name: classify}
  - {name: escalate, uses: page_oncall, on_error: reply}
  - {name: reply}
edges:
  - {from: escalate, to: END}
  - {from: reply, to: END}
routes:
  - from: classify
    cases:
      - {when: 'urgency == "critical"', to: escalate}
      - {when: 'len(notes) > 3', to: END}
    default: reply
`

func triageNodes(pagerErr error) *registry.Registry[taskgraph.NodeFunc] {
	nodes := registry.New[taskgraph.NodeFunc]("node")
	nodes.MustRegister("classify", func(_ taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		urgency := "normal"
		if strings.Contains(s.String("ticket"), "down") {
			urgency = "critical"
		}
		return taskgraph.Delta{"urgency": urgency, "notes": taskgraph.Items("classified")}, nil
	})
	nodes.MustRegister("page_oncall", func(taskgraph.Context, taskgraph.State) (taskgraph.Delta, error) {
		if pagerErr != nil {
			return nil, pagerErr
		}
		return taskgraph.Delta{"notes": taskgraph.Items("paged")}, nil
	})
	nodes.MustRegister("reply", func(taskgraph.Context, taskgraph.State) (taskgraph.Delta, error) {
		return taskgraph.Delta{"notes": taskgraph.Items("replied")}, nil
	})
	return nodes
}

func buildTriage(t *testing.T, pagerErr error) *Workflow {
	t.Helper()
	def, err := Parse([]byte(triageYAML))
	require.NoError(t, err)
	wf, err := Build(def, triageNodes(pagerErr))
	require.NoError(t, err)
	return wf
}

func run(t *testing.T, wf *Workflow, inputs map[string]any) (taskgraph.Result, error) {
	t.Helper()
	return wf.Graph.Run(taskgraph.NewContext(context.Background()), inputs, wf.RunOptions()...)
}

func TestParse(t *testing.T) {
	def, err := Parse([]byte(triageYAML))
	require.NoError(t, err)

	assert.Equal(t, "triage", def.Name)
	assert.Equal(t, "classify", def.Entry)
	assert.Equal(t, 10, def.MaxSteps)
	require.Len(t, def.Fields, 4)
	assert.Equal(t, "normal", def.Fields[1].Default)
	assert.Equal(t, "append", def.Fields[2].Strategy)
	assert.Equal(t, "page_oncall", def.Nodes[1].Uses)
	assert.Equal(t, "reply", def.Nodes[1].OnError)
	require.Len(t, def.Routes, 1)
	assert.Len(t, def.Routes[0].Cases, 2)
	assert.Equal(t, "reply", def.Routes[0].Default)
}

func TestBuild_Routes(t *testing.T) {
	wf := buildTriage(t, nil)
	assert.Equal(t, "triage", wf.Name)
	assert.Equal(t, "route tickets by urgency", wf.Description)

	tests := []struct {
		name  string
		input map[string]any
		path  []string
		notes []string
	}{
		{
			name:  "critical escalates",
			input: map[string]any{"ticket": "site is down"},
			path:  []string{"classify", "escalate"},
			notes: []string{"classified", "paged"},
		},
		{
			name:  "default replies",
			input: map[string]any{"ticket": "how do I export?"},
			path:  []string{"classify", "reply"},
			notes: []string{"classified", "replied"},
		},
		{
			name:  "second case ends the run",
			input: map[string]any{"ticket": "fyi", "notes": []any{"a", "b", "c"}},
			path:  []string{"classify"},
			notes: []string{"a", "b", "c", "classified"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := run(t, wf, tt.input)
			require.NoError(t, err)
			assert.Equal(t, taskgraph.StatusTerminated, res.Status)
			assert.Equal(t, tt.path, res.Path)
			assert.Equal(t, tt.notes, res.State.Strings("notes"))
		})
	}
}

func TestBuild_ErrorEdge(t *testing.T) {
	wf := buildTriage(t, errors.New("pager unreachable"))

	res, err := run(t, wf, map[string]any{"ticket": "db down"})
	require.NoError(t, err)
	assert.Equal(t, []string{"classify", "escalate", "reply"}, res.Path)
	require.Len(t, res.State.Strings("errors"), 1)
	assert.Contains(t, res.State.Strings("errors")[0], "pager unreachable")
}

func TestBuild_NoMatchWithoutDefault(t *testing.T) {
	def, err := Parse([]byte(`
name: strict
entry: check
fields: [{name: flag, kind: bool}]
nodes: [{name: check, uses: noop}]
routes:
  - from: check
    cases: [{when: flag, to: END}]
`))
	require.NoError(t, err)
	wf, err := Build(def, noopNodes())
	require.NoError(t, err)

	res, err := run(t, wf, map[string]any{"flag": true})
	require.NoError(t, err)
	assert.Equal(t, taskgraph.StatusTerminated, res.Status)

	res, err = run(t, wf, nil)
	assert.ErrorIs(t, err, taskgraph.ErrUnknownLabel)
	assert.Equal(t, taskgraph.StatusFailed, res.Status)
	var rerr *taskgraph.RouterError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, DefaultLabel, rerr.Returned)
	assert.Equal(t, []string{"0"}, rerr.Allowed)
}

func TestBuild_RouteEvaluationError(t *testing.T) {
	def, err := Parse([]byte(`
name: broken
entry: check
fields: [{name: label, kind: string}]
nodes: [{name: check, uses: noop}]
routes:
  - from: check
    cases: [{when: 'label > 3', to: END}]
    default: END
`))
	require.NoError(t, err)
	wf, err := Build(def, noopNodes())
	require.NoError(t, err)

	_, err = run(t, wf, map[string]any{"label": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, taskgraph.ErrRouting)
	assert.Contains(t, err.Error(), "case 0")
}

func TestBuild_MaxSteps(t *testing.T) {
	def, err := Parse([]byte(`
name: spin
entry: tick
max_steps: 3
fields: [{name: n, kind: int}]
nodes: [{name: tick, uses: noop}]
routes:
  - from: tick
    cases: [{when: 'n > 100', to: END}]
    default: tick
`))
	require.NoError(t, err)
	wf, err := Build(def, noopNodes())
	require.NoError(t, err)
	require.Len(t, wf.RunOptions(), 1)

	res, err := run(t, wf, nil)
	var maxErr *taskgraph.MaxIterationsError
	require.ErrorAs(t, err, &maxErr)
	assert.Equal(t, 3, maxErr.Max)
	assert.Equal(t, 3, res.Steps)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		target  error
		message string
	}{
		{
			name: "unregistered implementation",
			doc: `
name: w
entry: a
fields: [{name: x, kind: string}]
nodes: [{name: a, uses: missing}, {name: b, uses: also_missing}]
`,
			target:  registry.ErrNotRegistered,
			message: `node "also_missing"`,
		},
		{
			name: "bad expression",
			doc: `
name: w
entry: a
fields: [{name: x, kind: string}]
nodes: [{name: a, uses: noop}]
routes: [{from: a, cases: [{when: 'x ==', to: END}]}]
`,
			message: "route from a, case 0",
		},
		{
			name: "duplicate field",
			doc: `
name: w
entry: a
fields: [{name: x, kind: string}, {name: x, kind: int}]
nodes: [{name: a, uses: noop}]
`,
			message: "duplicate field: x",
		},
		{
			name: "default of wrong kind",
			doc: `
name: w
entry: a
fields: [{name: x, kind: int, default: nope}]
nodes: [{name: a, uses: noop}]
`,
			message: `default for field "x"`,
		},
		{
			name: "undeclared input",
			doc: `
name: w
entry: a
input: query
fields: [{name: x, kind: string}]
nodes: [{name: a, uses: noop}]
edges: [{from: a, to: END}]
`,
			message: `input field "query" is not declared`,
		},
		{
			name: "duplicate node",
			doc: `
name: w
entry: a
fields: [{name: x, kind: string}]
nodes: [{name: a, uses: noop}, {name: a, uses: noop}]
edges: [{from: a, to: END}]
`,
			message: "a",
		},
		{
			name: "entry not found",
			doc: `
name: w
entry: ghost
fields: [{name: x, kind: string}]
nodes: [{name: a, uses: noop}]
edges: [{from: a, to: END}]
`,
			target: taskgraph.ErrEntryNotFound,
		},
		{
			name: "edge to unknown node",
			doc: `
name: w
entry: a
fields: [{name: x, kind: string}]
nodes: [{name: a, uses: noop}]
edges: [{from: a, to: nowhere}]
`,
			target: taskgraph.ErrNodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def, err := Parse([]byte(tt.doc))
			require.NoError(t, err)

			_, err = Build(def, noopNodes())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "workflow w")
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		location string
	}{
		{"missing entry", "name: w\nfields: [{name: x, kind: string}]\nnodes: [{name: a}]\n", "/"},
		{"unknown kind", "name: w\nentry: a\nfields: [{name: x, kind: text}]\nnodes: [{name: a}]\n", "/fields/0/kind"},
		{"unknown strategy", "name: w\nentry: a\nfields: [{name: x, kind: string, strategy: merge}]\nnodes: [{name: a}]\n", "/fields/0/strategy"},
		{"unknown property", "name: w\nentry: a\nfields: [{name: x, kind: string}]\nnodes: [{name: a}]\nparallel: true\n", "/"},
		{"reserved name", "name: w\nentry: a\nfields: [{name: x, kind: string}]\nnodes: [{name: __end__}]\n", "/nodes/0/name"},
		{"whitespace in name", "name: w\nentry: a\nfields: [{name: my field, kind: string}]\nnodes: [{name: a}]\n", "/fields/0/name"},
		{"empty cases", "name: w\nentry: a\nfields: [{name: x, kind: string}]\nnodes: [{name: a}]\nroutes: [{from: a, cases: []}]\n", "/routes/0/cases"},
		{"zero max steps", "name: w\nentry: a\nmax_steps: 0\nfields: [{name: x, kind: string}]\nnodes: [{name: a}]\n", "/max_steps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.NotEmpty(t, verr.Violations)

			found := false
			for _, v := range verr.Violations {
				if strings.HasPrefix(v, tt.location) {
					found = true
				}
			}
			assert.True(t, found, "violations %v do not mention %s", verr.Violations, tt.location)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte("name: [unclosed"))
	assert.ErrorContains(t, err, "parse definition")

	_, err = Parse([]byte(""))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "invalid definition: /: document is empty", err.Error())
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Violations: []string{"/a: bad", "/b: worse"}}
	assert.Equal(t, "invalid definition: 2 violations: /a: bad; /b: worse", err.Error())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triage.yaml")
	require.NoError(t, os.WriteFile(path, []byte(triageYAML), 0o600))

	wf, err := Load(path, triageNodes(nil))
	require.NoError(t, err)
	assert.Equal(t, "classify", wf.Graph.EntryPoint())

	_, err = Load(filepath.Join(dir, "missing.yaml"), triageNodes(nil))
	assert.ErrorContains(t, err, "read definition")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: w\n"), 0o600))
	_, err = ParseFile(bad)
	assert.ErrorContains(t, err, bad)
}

func noopNodes() *registry.Registry[taskgraph.NodeFunc] {
	nodes := registry.New[taskgraph.NodeFunc]("node")
	nodes.MustRegister("noop", func(taskgraph.Context, taskgraph.State) (taskgraph.Delta, error) {
		return nil, nil
	})
	return nodes
}
