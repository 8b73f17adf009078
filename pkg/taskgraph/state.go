package taskgraph

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
)

// Delta is the partial update a node returns. Keys must be declared in the
// schema. Values for APPEND fields must be sequences (any slice type).
type Delta map[string]any

// Items builds an APPEND payload from individual values.
//
//	return taskgraph.Delta{"findings": taskgraph.Items("found: " + q)}, nil
func Items(values ...any) []any {
	return values
}

// State is an immutable snapshot of a workflow's shared record.
//
// States are produced by Schema.Initialize and Schema.Merge. Every merge
// yields a new State; earlier States are never changed, so nodes may keep
// references to the State they were given.
type State struct {
	values map[string]any
	schema *Schema
}

// Schema returns the schema this state was built from.
func (s State) Schema() *Schema {
	return s.schema
}

// Get returns the raw value of a field. APPEND slices and map values are
// returned as shallow copies.
func (s State) Get(name string) (any, bool) {
	v, ok := s.values[name]
	switch val := v.(type) {
	case []any:
		return cloneList(val), ok
	case map[string]any:
		if val != nil {
			return maps.Clone(val), ok
		}
	}
	return v, ok
}

// Has reports whether the field exists in this state.
func (s State) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// String returns the field as a string, or "" if absent or not a string.
func (s State) String(name string) string {
	v, _ := s.values[name].(string)
	return v
}

// Int returns the field as an int, or 0 if absent or not an int.
func (s State) Int(name string) int {
	v, _ := s.values[name].(int)
	return v
}

// Float returns the field as a float64, or 0 if absent or not a float.
func (s State) Float(name string) float64 {
	v, _ := s.values[name].(float64)
	return v
}

// Bool returns the field as a bool, or false if absent or not a bool.
func (s State) Bool(name string) bool {
	v, _ := s.values[name].(bool)
	return v
}

// Map returns a shallow copy of a map field, or nil.
func (s State) Map(name string) map[string]any {
	v, _ := s.values[name].(map[string]any)
	if v == nil {
		return nil
	}
	return maps.Clone(v)
}

// List returns a copy of an APPEND field's elements.
func (s State) List(name string) []any {
	v, _ := s.values[name].([]any)
	return cloneList(v)
}

// Strings returns an APPEND field's elements as strings.
// Non-string elements are formatted with fmt.Sprint.
func (s State) Strings(name string) []string {
	v, _ := s.values[name].([]any)
	out := make([]string, 0, len(v))
	for _, e := range v {
		if str, ok := e.(string); ok {
			out = append(out, str)
		} else {
			out = append(out, fmt.Sprint(e))
		}
	}
	return out
}

// Len returns the number of elements in an APPEND field.
func (s State) Len(name string) int {
	v, _ := s.values[name].([]any)
	return len(v)
}

// Last returns the final element of an APPEND field.
func (s State) Last(name string) (any, bool) {
	v, _ := s.values[name].([]any)
	if len(v) == 0 {
		return nil, false
	}
	return v[len(v)-1], true
}

// Snapshot returns a copy of all field values. APPEND lists and map values
// are copied, so the caller may modify the result freely.
func (s State) Snapshot() map[string]any {
	out := make(map[string]any, len(s.values))
	for k, v := range s.values {
		switch tv := v.(type) {
		case []any:
			out[k] = cloneList(tv)
		case map[string]any:
			out[k] = maps.Clone(tv)
		default:
			out[k] = v
		}
	}
	return out
}

// MarshalJSON encodes the state as a JSON object of field values.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}

// rebind returns the state attached to schema without copying values.
func (s State) rebind(schema *Schema) State {
	if s.values == nil {
		s.values = map[string]any{}
	}
	s.schema = schema
	return s
}

func cloneList(in []any) []any {
	out := make([]any, len(in))
	copy(out, in)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
