package definition

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
)

// DefaultLabel is the router label used when no case matches.
const DefaultLabel = "default"

// Workflow is a compiled definition.
type Workflow struct {
	Name        string
	Description string
	Graph       *taskgraph.CompiledGraph
	// Input names the field that receives a request's query. May be empty.
	Input string
	// MaxSteps is the definition's step cap; zero means the engine default.
	MaxSteps int
}

// RunOptions returns the run options the definition asks for.
func (w *Workflow) RunOptions() []taskgraph.RunOption {
	if w.MaxSteps > 0 {
		return []taskgraph.RunOption{taskgraph.WithMaxSteps(w.MaxSteps)}
	}
	return nil
}

var kinds = map[string]taskgraph.Kind{
	"any":    taskgraph.KindAny,
	"string": taskgraph.KindString,
	"int":    taskgraph.KindInt,
	"float":  taskgraph.KindFloat,
	"bool":   taskgraph.KindBool,
	"map":    taskgraph.KindMap,
}

// Build resolves node implementations through nodes, compiles route
// conditions and compiles the graph. Every problem found is reported,
// joined.
func Build(def *Definition, nodes *registry.Registry[taskgraph.NodeFunc]) (*Workflow, error) {
	schema, err := buildSchema(def.Fields)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
	}

	g := taskgraph.NewGraph(schema)
	var errs []error
	for _, n := range def.Nodes {
		uses := n.Uses
		if uses == "" {
			uses = n.Name
		}
		fn, err := nodes.Lookup(uses)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := guard(func() { g.AddNode(n.Name, fn) }); err != nil {
			errs = append(errs, err)
			continue
		}
		if n.OnError != "" {
			g.AddErrorEdge(n.Name, target(n.OnError))
		}
	}
	for _, e := range def.Edges {
		g.AddEdge(e.From, target(e.To))
	}
	for _, r := range def.Routes {
		router, destinations, err := compileRoute(r)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := guard(func() { g.AddConditionalEdges(r.From, router, destinations) }); err != nil {
			errs = append(errs, err)
		}
	}
	if def.Input != "" {
		if _, ok := schema.Field(def.Input); !ok {
			errs = append(errs, fmt.Errorf("input field %q is not declared", def.Input))
		}
	}
	if def.ErrorField != "" {
		g.SetErrorField(def.ErrorField)
	}
	g.SetEntry(def.Entry)

	if len(errs) > 0 {
		return nil, fmt.Errorf("workflow %s: %w", def.Name, errors.Join(errs...))
	}

	compiled, err := g.Compile()
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", def.Name, err)
	}
	return &Workflow{
		Name:        def.Name,
		Description: def.Description,
		Graph:       compiled,
		Input:       def.Input,
		MaxSteps:    def.MaxSteps,
	}, nil
}

// Load parses and builds the document at path.
func Load(path string, nodes *registry.Registry[taskgraph.NodeFunc]) (*Workflow, error) {
	def, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return Build(def, nodes)
}

func buildSchema(fields []FieldSpec) (schema *taskgraph.Schema, err error) {
	schema = taskgraph.NewSchema()
	err = guard(func() {
		for _, f := range fields {
			kind, ok := kinds[f.Kind]
			if !ok {
				panic(fmt.Sprintf("field %s: unknown kind %q", f.Name, f.Kind))
			}
			switch f.Strategy {
			case "", "overwrite":
				schema.Overwrite(f.Name, kind)
			case "append":
				schema.Append(f.Name, kind)
			default:
				panic(fmt.Sprintf("field %s: unknown strategy %q", f.Name, f.Strategy))
			}
			if f.Default != nil {
				schema.WithDefault(f.Name, f.Default)
			}
		}
	})
	return schema, err
}

// compileRoute turns a route into a router whose labels are the case
// indexes and DefaultLabel.
func compileRoute(r RouteSpec) (taskgraph.RouterFunc, map[string]string, error) {
	programs := make([]*vm.Program, len(r.Cases))
	destinations := make(map[string]string, len(r.Cases)+1)
	for i, c := range r.Cases {
		prg, err := expr.Compile(c.When, expr.Env(map[string]any{}), expr.AllowUndefinedVariables(), expr.AsBool())
		if err != nil {
			return nil, nil, fmt.Errorf("route from %s, case %d: %w", r.From, i, err)
		}
		programs[i] = prg
		destinations[strconv.Itoa(i)] = target(c.To)
	}
	if r.Default != "" {
		destinations[DefaultLabel] = target(r.Default)
	}

	from := r.From
	router := func(_ taskgraph.Context, state taskgraph.State) string {
		env := state.Snapshot()
		for i, prg := range programs {
			out, err := vm.Run(prg, env)
			if err != nil {
				// Router panics are reported by the executor as routing
				// failures from this node.
				panic(fmt.Errorf("route from %s, case %d: %w", from, i, err))
			}
			if ok, _ := out.(bool); ok {
				return strconv.Itoa(i)
			}
		}
		return DefaultLabel
	}
	return router, destinations, nil
}

func target(name string) string {
	if name == "END" {
		return taskgraph.END
	}
	return name
}

// guard converts a graph builder panic into an error. The builder panics on
// misuse, which for a definition file means invalid input.
func guard(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			err = fmt.Errorf("%v", r)
		}
	}()
	fn()
	return nil
}
