package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
)

// placeholderPattern matches ${name} and ${name.key.key}. A leading extra
// "$" escapes the placeholder: "$${name}" renders as "${name}".
var placeholderPattern = regexp.MustCompile(`\$?\$\{([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)*)\}`)

// Expander renders ${field} placeholders from workflow state.
//
// Create with NewExpander. Expander is safe for concurrent use after
// construction.
type Expander struct {
	missingAction MissingAction
	listSeparator string
	maxItems      int
}

// NewExpander creates an Expander with the given options.
func NewExpander(opts ...Option) *Expander {
	e := &Expander{
		missingAction: MissingKeep,
		listSeparator: "\n",
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render expands s against the fields of st.
func (e *Expander) Render(s string, st taskgraph.State) (string, error) {
	return e.Expand(s, st.Snapshot())
}

// Expand expands s against vars. Dotted names walk nested maps.
//
// An error is returned only with MissingError, listing every missing name.
func (e *Expander) Expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	result := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if strings.HasPrefix(match, "$$") {
			return match[1:]
		}
		name := match[2 : len(match)-1]
		if val, ok := lookup(vars, name); ok {
			return e.format(val)
		}
		switch e.missingAction {
		case MissingEmpty:
			return ""
		case MissingError:
			missing = append(missing, name)
		}
		return match
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// MustRender is Render for templates known to be complete; it panics on
// error.
func (e *Expander) MustRender(s string, st taskgraph.State) string {
	result, err := e.Render(s, st)
	if err != nil {
		panic(fmt.Sprintf("template: %v", err))
	}
	return result
}

func lookup(vars map[string]any, name string) (any, bool) {
	var cur any = vars
	for _, part := range strings.Split(name, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (e *Expander) format(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case []string:
		return e.join(len(val), func(i int) string { return val[i] })
	case []any:
		return e.join(len(val), func(i int) string { return e.format(val[i]) })
	case map[string]any:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(data)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func (e *Expander) join(n int, item func(int) string) string {
	start := 0
	if e.maxItems > 0 && n > e.maxItems {
		start = n - e.maxItems
	}
	parts := make([]string, 0, n-start)
	for i := start; i < n; i++ {
		parts = append(parts, item(i))
	}
	return strings.Join(parts, e.listSeparator)
}

// UndefinedVariableError is returned when MissingError is set and one or
// more placeholders have no value.
type UndefinedVariableError struct {
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}

var defaultExpander = NewExpander()

// Render expands s against st with the default expander, keeping missing
// placeholders as-is.
func Render(s string, st taskgraph.State) string {
	result, _ := defaultExpander.Render(s, st)
	return result
}

// Expand expands s against vars with the default expander, keeping missing
// placeholders as-is.
func Expand(s string, vars map[string]any) string {
	result, _ := defaultExpander.Expand(s, vars)
	return result
}
