package taskgraph

import (
	"fmt"
	"math"
	"reflect"
	"strings"
	"sync/atomic"
)

// Kind is the declared value type of a state field.
// For APPEND fields it is the kind of each element.
type Kind int

const (
	// KindAny accepts any value, including nil.
	KindAny Kind = iota
	// KindString accepts string values.
	KindString
	// KindInt accepts Go integer values and integral float64 values
	// (the form integers take after a JSON round trip).
	KindInt
	// KindFloat accepts floating point and integer values.
	KindFloat
	// KindBool accepts bool values.
	KindBool
	// KindMap accepts map[string]any values (nil included).
	KindMap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// zero returns the type-appropriate zero value for an OVERWRITE field.
func (k Kind) zero() any {
	switch k {
	case KindString:
		return ""
	case KindInt:
		return 0
	case KindFloat:
		return 0.0
	case KindBool:
		return false
	case KindMap:
		return map[string]any(nil)
	default:
		return nil
	}
}

// coerce checks v against the kind and returns its canonical form.
func (k Kind) coerce(v any) (any, bool) {
	switch k {
	case KindAny:
		return v, true
	case KindString:
		s, ok := v.(string)
		return s, ok
	case KindBool:
		b, ok := v.(bool)
		return b, ok
	case KindMap:
		if v == nil {
			return map[string]any(nil), true
		}
		m, ok := v.(map[string]any)
		return m, ok
	case KindInt:
		switch n := v.(type) {
		case int:
			return n, true
		case int8:
			return int(n), true
		case int16:
			return int(n), true
		case int32:
			return int(n), true
		case int64:
			return int(n), true
		case uint8:
			return int(n), true
		case uint16:
			return int(n), true
		case uint32:
			return int(n), true
		case uint:
			if n <= math.MaxInt {
				return int(n), true
			}
		case uint64:
			if n <= math.MaxInt {
				return int(n), true
			}
		case float64:
			// NaN fails the Trunc comparison; the range check also rejects
			// infinities. float64(math.MaxInt) rounds up to 2^63, so it is
			// already out of range.
			if n == math.Trunc(n) && n >= math.MinInt && n < math.MaxInt {
				return int(n), true
			}
		}
		return nil, false
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int8:
			return float64(n), true
		case int16:
			return float64(n), true
		case int32:
			return float64(n), true
		case int64:
			return float64(n), true
		case uint:
			return float64(n), true
		case uint8:
			return float64(n), true
		case uint16:
			return float64(n), true
		case uint32:
			return float64(n), true
		case uint64:
			return float64(n), true
		}
		return nil, false
	}
	return nil, false
}

// Strategy is the merge strategy declared for a field.
type Strategy int

const (
	// Overwrite replaces the field's value wholesale.
	Overwrite Strategy = iota
	// Append concatenates delta elements after the existing elements.
	Append
)

// String returns the strategy name.
func (s Strategy) String() string {
	switch s {
	case Overwrite:
		return "overwrite"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Field is a declared state field.
type Field struct {
	Name     string
	Kind     Kind
	Strategy Strategy
	// Default is the initial value. For APPEND fields it is a []any.
	Default any
}

// Schema declares the fields of a workflow state and how node deltas are
// merged into them.
//
// A Schema is built once, then frozen when a graph using it is compiled.
// Declaring fields on a frozen schema panics. A frozen Schema is safe for
// concurrent use.
//
// Example:
//
//	schema := taskgraph.NewSchema().
//	    Overwrite("query", taskgraph.KindString).
//	    Append("findings", taskgraph.KindString).
//	    Overwrite("answer", taskgraph.KindString)
type Schema struct {
	fields map[string]Field
	order  []string
	frozen atomic.Bool
}

// NewSchema creates an empty schema.
func NewSchema() *Schema {
	return &Schema{fields: make(map[string]Field)}
}

// Overwrite declares a field whose value is replaced by each delta.
func (s *Schema) Overwrite(name string, kind Kind) *Schema {
	s.declare(Field{Name: name, Kind: kind, Strategy: Overwrite, Default: kind.zero()})
	return s
}

// Append declares an ordered sequence field; deltas are concatenated in
// arrival order. elem is the kind of each element.
func (s *Schema) Append(name string, elem Kind) *Schema {
	s.declare(Field{Name: name, Kind: elem, Strategy: Append, Default: []any{}})
	return s
}

// WithDefault sets the default value of a declared field.
// Panics if the field is unknown or the value does not fit its kind.
func (s *Schema) WithDefault(name string, value any) *Schema {
	s.mustBeMutable()
	f, ok := s.fields[name]
	if !ok {
		panic(fmt.Sprintf("taskgraph: default for undeclared field %q", name))
	}
	v, err := f.accept(value)
	if err != nil {
		panic(fmt.Sprintf("taskgraph: default for field %q: %v", name, err))
	}
	f.Default = v
	s.fields[name] = f
	return s
}

func (s *Schema) declare(f Field) {
	s.mustBeMutable()
	if f.Name == "" {
		panic("taskgraph: field name cannot be empty")
	}
	if strings.ContainsAny(f.Name, " \t\n\r") {
		panic("taskgraph: field name cannot contain whitespace")
	}
	if _, exists := s.fields[f.Name]; exists {
		panic(fmt.Sprintf("taskgraph: duplicate field: %s", f.Name))
	}
	s.fields[f.Name] = f
	s.order = append(s.order, f.Name)
}

func (s *Schema) mustBeMutable() {
	if s.frozen.Load() {
		panic("taskgraph: schema is frozen after compile")
	}
}

func (s *Schema) freeze() {
	s.frozen.Store(true)
}

// Field returns the declared field with the given name.
func (s *Schema) Field(name string) (Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns all fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

// Initialize builds a State where every field holds its default, except
// those present in overrides. Unknown fields and incompatible values fail
// with a *ConfigurationError.
func (s *Schema) Initialize(overrides map[string]any) (State, error) {
	values := make(map[string]any, len(s.fields))
	for _, name := range s.order {
		f := s.fields[name]
		if f.Strategy == Append {
			values[name] = cloneList(f.Default.([]any))
		} else {
			values[name] = f.Default
		}
	}

	for _, name := range sortedKeys(overrides) {
		f, ok := s.fields[name]
		if !ok {
			return State{}, &ConfigurationError{Field: name, Reason: "field is not declared in the schema"}
		}
		v, err := f.accept(overrides[name])
		if err != nil {
			return State{}, &ConfigurationError{Field: name, Reason: err.Error()}
		}
		values[name] = v
	}

	return State{values: values, schema: s}, nil
}

// Merge applies delta to state according to each field's strategy and
// returns the new State. The input State is not modified.
//
// A delta key that is not declared, or a value that does not fit the
// field's kind, fails with a *SchemaViolationError and nothing from the
// delta is applied.
func (s *Schema) Merge(state State, delta Delta) (State, error) {
	if len(delta) == 0 {
		return state.rebind(s), nil
	}

	accepted := make(map[string]any, len(delta))
	for _, name := range sortedKeys(delta) {
		f, ok := s.fields[name]
		if !ok {
			return state, &SchemaViolationError{Field: name, Reason: "field is not declared in the schema"}
		}
		v, err := f.accept(delta[name])
		if err != nil {
			return state, &SchemaViolationError{Field: name, Reason: err.Error()}
		}
		accepted[name] = v
	}

	values := make(map[string]any, len(s.fields))
	for k, v := range state.values {
		values[k] = v
	}
	for name, v := range accepted {
		if s.fields[name].Strategy == Append {
			current, _ := values[name].([]any)
			add := v.([]any)
			merged := make([]any, 0, len(current)+len(add))
			merged = append(merged, current...)
			merged = append(merged, add...)
			values[name] = merged
			continue
		}
		values[name] = v
	}

	return State{values: values, schema: s}, nil
}

// Restore rebuilds a State from its serialized form, typically the output
// of State.Snapshot after a JSON round trip. Missing fields take their
// defaults; unknown fields fail with a *ConfigurationError.
func (s *Schema) Restore(values map[string]any) (State, error) {
	return s.Initialize(values)
}

// accept validates a value for the field and returns its stored form.
func (f Field) accept(v any) (any, error) {
	if f.Strategy == Overwrite {
		out, ok := f.Kind.coerce(v)
		if !ok {
			return nil, fmt.Errorf("expected %s, got %T", f.Kind, v)
		}
		return out, nil
	}

	if v == nil {
		return []any{}, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("append field expects a sequence of %s, got %T", f.Kind, v)
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		elem := rv.Index(i).Interface()
		ev, ok := f.Kind.coerce(elem)
		if !ok {
			return nil, fmt.Errorf("element %d: expected %s, got %T", i, f.Kind, elem)
		}
		out = append(out, ev)
	}
	return out, nil
}
