package taskgraph

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_Initialize_Defaults(t *testing.T) {
	schema := NewSchema().
		Overwrite("name", KindString).
		Overwrite("count", KindInt).
		Overwrite("ratio", KindFloat).
		Overwrite("done", KindBool).
		Overwrite("meta", KindMap).
		Overwrite("anything", KindAny).
		Append("log", KindString)

	state, err := schema.Initialize(nil)
	require.NoError(t, err)

	assert.Equal(t, "", state.String("name"))
	assert.Equal(t, 0, state.Int("count"))
	assert.Equal(t, 0.0, state.Float("ratio"))
	assert.False(t, state.Bool("done"))
	assert.Nil(t, state.Map("meta"))
	v, ok := state.Get("anything")
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, []any{}, state.List("log"))
}

func TestSchema_Initialize_Overrides(t *testing.T) {
	schema := NewSchema().
		Overwrite("query", KindString).
		Overwrite("limit", KindInt).
		WithDefault("limit", 5).
		Append("history", KindString).
		WithDefault("history", []string{"seed"})

	state, err := schema.Initialize(map[string]any{"query": "X"})
	require.NoError(t, err)

	assert.Equal(t, "X", state.String("query"))
	assert.Equal(t, 5, state.Int("limit"))
	assert.Equal(t, []string{"seed"}, state.Strings("history"))
}

func TestSchema_Initialize_Errors(t *testing.T) {
	schema := NewSchema().
		Overwrite("query", KindString).
		Overwrite("limit", KindInt).
		Append("tags", KindString)

	tests := []struct {
		name      string
		overrides map[string]any
		field     string
	}{
		{"unknown field", map[string]any{"nope": 1}, "nope"},
		{"wrong kind", map[string]any{"query": 42}, "query"},
		{"fractional int", map[string]any{"limit": 1.5}, "limit"},
		{"int above range", map[string]any{"limit": 1e19}, "limit"},
		{"int far above range", map[string]any{"limit": 1e300}, "limit"},
		{"int below range", map[string]any{"limit": -1e19}, "limit"},
		{"int infinite", map[string]any{"limit": math.Inf(1)}, "limit"},
		{"int not a number", map[string]any{"limit": math.NaN()}, "limit"},
		{"uint above range", map[string]any{"limit": uint64(math.MaxUint64)}, "limit"},
		{"append not a sequence", map[string]any{"tags": "solo"}, "tags"},
		{"append wrong element", map[string]any{"tags": []any{"a", 2}}, "tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := schema.Initialize(tt.overrides)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestSchema_Initialize_NumericKinds(t *testing.T) {
	schema := NewSchema().
		Overwrite("count", KindInt).
		Overwrite("ratio", KindFloat)

	tests := []struct {
		name  string
		count any
		ratio any
		want  int
		wantF float64
	}{
		{"int8 and uint8", int8(-3), uint8(4), -3, 4},
		{"uint and int16", uint(7), int16(-2), 7, -2},
		{"uint64 and uint16", uint64(9), uint16(6), 9, 6},
		{"largest exact float", float64(1 << 53), uint32(5), 1 << 53, 5},
		{"smallest int", float64(math.MinInt64), uint64(1 << 40), math.MinInt64, 1 << 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state, err := schema.Initialize(map[string]any{"count": tt.count, "ratio": tt.ratio})
			require.NoError(t, err)
			assert.Equal(t, tt.want, state.Int("count"))
			assert.Equal(t, tt.wantF, state.Float("ratio"))
		})
	}
}

func TestSchema_Initialize_RejectsOversizedJSONNumbers(t *testing.T) {
	schema := NewSchema().Overwrite("count", KindInt)

	for _, body := range []string{`{"count": 1e19}`, `{"count": 1e300}`, `{"count": -1e19}`} {
		var inputs map[string]any
		require.NoError(t, json.Unmarshal([]byte(body), &inputs))

		_, err := schema.Initialize(inputs)
		assert.ErrorIs(t, err, ErrConfiguration, body)
	}
}

// Every delta is merged field by field, OVERWRITE replacing and APPEND
// concatenating, and the prior state is left untouched.
func TestSchema_Merge_Strategies(t *testing.T) {
	schema := taskSchema()
	s0, err := schema.Initialize(map[string]any{"query": "X"})
	require.NoError(t, err)

	s1, err := schema.Merge(s0, Delta{"findings": []string{"a", "b"}, "answer": "first"})
	require.NoError(t, err)
	s2, err := schema.Merge(s1, Delta{"findings": Items("c"), "answer": "second"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, s2.Strings("findings"))
	assert.Equal(t, "second", s2.String("answer"))
	assert.Equal(t, "X", s2.String("query"))

	assert.Equal(t, []string{"a", "b"}, s1.Strings("findings"))
	assert.Equal(t, "first", s1.String("answer"))
	assert.Equal(t, 0, s0.Len("findings"))
	assert.Equal(t, "", s0.String("answer"))
}

// Appending a sequence in one merge or split across several merges yields
// the same final sequence.
func TestSchema_Merge_SplitDeltasAreEquivalent(t *testing.T) {
	schema := taskSchema()
	s0, err := schema.Initialize(map[string]any{"findings": []string{"seed"}})
	require.NoError(t, err)

	for _, items := range [][]string{
		{"a"},
		{"a", "b"},
		{"a", "b", "c", "d"},
		{"x", "x", "y"},
	} {
		whole, err := schema.Merge(s0, Delta{"findings": items})
		require.NoError(t, err)
		want := append([]string{"seed"}, items...)
		assert.Equal(t, want, whole.Strings("findings"))

		for split := 0; split <= len(items); split++ {
			first, err := schema.Merge(s0, Delta{"findings": items[:split]})
			require.NoError(t, err)
			second, err := schema.Merge(first, Delta{"findings": items[split:]})
			require.NoError(t, err)
			assert.Equal(t, whole.Snapshot(), second.Snapshot(), "split %v at %d", items, split)
		}

		oneByOne := s0
		for _, item := range items {
			oneByOne, err = schema.Merge(oneByOne, Delta{"findings": Items(item)})
			require.NoError(t, err)
		}
		assert.Equal(t, want, oneByOne.Strings("findings"))
	}
}

func TestSchema_Merge_EmptyDelta(t *testing.T) {
	schema := taskSchema()
	s0, err := schema.Initialize(map[string]any{"query": "X"})
	require.NoError(t, err)

	for _, delta := range []Delta{nil, {}} {
		s1, err := schema.Merge(s0, delta)
		require.NoError(t, err)
		assert.Equal(t, s0.Snapshot(), s1.Snapshot())
	}
}

func TestSchema_Merge_AppendSliceIsNotAliased(t *testing.T) {
	schema := taskSchema()
	s0, err := schema.Initialize(nil)
	require.NoError(t, err)

	items := []string{"a"}
	s1, err := schema.Merge(s0, Delta{"findings": items})
	require.NoError(t, err)
	items[0] = "mutated"

	assert.Equal(t, []string{"a"}, s1.Strings("findings"))

	// Two merges from the same parent must not share backing arrays.
	left, err := schema.Merge(s1, Delta{"findings": Items("left")})
	require.NoError(t, err)
	right, err := schema.Merge(s1, Delta{"findings": Items("right")})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "left"}, left.Strings("findings"))
	assert.Equal(t, []string{"a", "right"}, right.Strings("findings"))
}

// A rejected delta applies nothing, even the valid keys.
func TestSchema_Merge_Atomic(t *testing.T) {
	schema := taskSchema()
	s0, err := schema.Initialize(map[string]any{"query": "X"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		delta Delta
		field string
	}{
		{"undeclared field", Delta{"answer": "ok", "bogus": 1}, "bogus"},
		{"wrong kind", Delta{"answer": "ok", "count": "three"}, "count"},
		{"append scalar", Delta{"answer": "ok", "findings": "one"}, "findings"},
		{"int out of range", Delta{"answer": "ok", "count": 1e19}, "count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := schema.Merge(s0, tt.delta)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchemaViolation)

			var sv *SchemaViolationError
			require.True(t, errors.As(err, &sv))
			assert.Equal(t, tt.field, sv.Field)

			assert.Equal(t, "", got.String("answer"))
			assert.Equal(t, s0.Snapshot(), got.Snapshot())
		})
	}
}

func TestSchema_Restore_NormalisesJSONNumbers(t *testing.T) {
	schema := NewSchema().
		Overwrite("count", KindInt).
		Overwrite("score", KindFloat).
		Append("ids", KindInt)

	state, err := schema.Restore(map[string]any{
		"count": float64(3),
		"score": float64(0.5),
		"ids":   []any{float64(1), float64(2)},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, state.Int("count"))
	assert.Equal(t, 0.5, state.Float("score"))
	assert.Equal(t, []any{1, 2}, state.List("ids"))
}

func TestSchema_BuilderPanics(t *testing.T) {
	tests := []struct {
		name  string
		build func()
	}{
		{"empty name", func() { NewSchema().Overwrite("", KindString) }},
		{"whitespace name", func() { NewSchema().Append("a b", KindString) }},
		{"duplicate", func() { NewSchema().Overwrite("a", KindString).Append("a", KindString) }},
		{"default for undeclared", func() { NewSchema().WithDefault("a", 1) }},
		{"default wrong kind", func() { NewSchema().Overwrite("a", KindInt).WithDefault("a", "x") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, tt.build)
		})
	}
}

func TestSchema_FrozenAfterCompile(t *testing.T) {
	schema := taskSchema()
	mustCompile(NewGraph(schema).AddNode("a", visit("a")).SetTerminal("a").SetEntry("a"))

	assert.Panics(t, func() { schema.Overwrite("late", KindString) })
	assert.Panics(t, func() { schema.WithDefault("count", 1) })
}

func TestSchema_Fields_DeclarationOrder(t *testing.T) {
	schema := NewSchema().
		Overwrite("b", KindString).
		Append("a", KindInt).
		Overwrite("c", KindBool)

	fields := schema.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "b", fields[0].Name)
	assert.Equal(t, "a", fields[1].Name)
	assert.Equal(t, Append, fields[1].Strategy)
	assert.Equal(t, KindInt, fields[1].Kind)
	assert.Equal(t, "c", fields[2].Name)

	f, ok := schema.Field("a")
	require.True(t, ok)
	assert.Equal(t, []any{}, f.Default)

	_, ok = schema.Field("missing")
	assert.False(t, ok)
}

func TestKindAndStrategy_String(t *testing.T) {
	assert.Equal(t, "string", KindString.String())
	assert.Equal(t, "int", KindInt.String())
	assert.Equal(t, "map", KindMap.String())
	assert.Equal(t, "any", KindAny.String())
	assert.Equal(t, "overwrite", Overwrite.String())
	assert.Equal(t, "append", Append.String())
}
