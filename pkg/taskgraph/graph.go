package taskgraph

import (
	"fmt"
	"maps"
	"strings"
	"sync"
)

// Graph is a mutable builder for creating workflow graphs.
// Use NewGraph to create a new graph, then chain AddNode, AddEdge,
// AddConditionalEdges, and SetEntry calls to define the workflow.
//
// Graph is NOT thread-safe during building. Use a single goroutine
// to construct the graph, then call Compile() to create an immutable
// CompiledGraph that can be safely shared.
//
// Example:
//
//	graph := taskgraph.NewGraph(schema).
//	    AddNode("research", research).
//	    AddNode("summarize", summarize).
//	    AddEdge("research", "summarize").
//	    SetTerminal("summarize").
//	    SetEntry("research")
//
//	compiled, err := graph.Compile()
type Graph struct {
	mu               sync.RWMutex
	schema           *Schema
	nodes            map[string]NodeFunc
	edges            map[string][]string
	conditionalEdges map[string]conditionalEdge
	errorEdges       map[string]string
	errorField       string
	entryPoint       string
}

// conditionalEdge pairs a router with its label -> target table.
type conditionalEdge struct {
	router       RouterFunc
	destinations map[string]string
}

// NewGraph creates a new graph builder over the given schema.
// Panics if schema is nil.
func NewGraph(schema *Schema) *Graph {
	if schema == nil {
		panic("taskgraph: schema cannot be nil")
	}
	return &Graph{
		schema:           schema,
		nodes:            make(map[string]NodeFunc),
		edges:            make(map[string][]string),
		conditionalEdges: make(map[string]conditionalEdge),
		errorEdges:       make(map[string]string),
	}
}

// Schema returns the schema the graph was built with.
func (g *Graph) Schema() *Schema {
	return g.schema
}

// AddNode adds a named node to the graph.
// Returns the graph for method chaining.
//
// Panics if:
//   - id is empty
//   - id is the reserved word "END" or "__end__" (case-insensitive)
//   - id contains whitespace (space, tab, newline)
//   - fn is nil
//   - id already exists in the graph
func (g *Graph) AddNode(id string, fn NodeFunc) *Graph {
	validateNodeID(id)

	if fn == nil {
		panic("taskgraph: node function cannot be nil")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[id]; exists {
		panic(fmt.Sprintf("taskgraph: duplicate node ID: %s", id))
	}

	g.nodes[id] = fn
	return g
}

func validateNodeID(id string) {
	if id == "" {
		panic("taskgraph: node ID cannot be empty")
	}

	idLower := strings.ToLower(id)
	if idLower == "end" || idLower == END {
		panic("taskgraph: node ID cannot be reserved word 'END'")
	}

	if strings.ContainsAny(id, " \t\n\r") {
		panic("taskgraph: node ID cannot contain whitespace")
	}
}

// AddEdge adds an unconditional edge from one node to another.
// The target can be a node ID or taskgraph.END.
// Returns the graph for method chaining.
//
// Edge validation happens at Compile() time, not here.
// This allows edges to be added in any order.
func (g *Graph) AddEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges[from] = append(g.edges[from], to)
	return g
}

// SetTerminal declares that the run ends after the given node.
// It is shorthand for AddEdge(id, END).
func (g *Graph) SetTerminal(id string) *Graph {
	return g.AddEdge(id, END)
}

// AddConditionalEdges attaches a router to a node. After the node runs,
// the router's label selects the next node from destinations. Targets may
// be node IDs or taskgraph.END.
// Returns the graph for method chaining.
//
// A node can have either a fixed edge or conditional edges, not both;
// mixing them is reported by Compile().
//
// Panics if the router is nil, destinations is empty, a label is empty,
// or the node already has conditional edges.
func (g *Graph) AddConditionalEdges(from string, router RouterFunc, destinations map[string]string) *Graph {
	if router == nil {
		panic("taskgraph: router function cannot be nil")
	}
	if len(destinations) == 0 {
		panic("taskgraph: destination table cannot be empty")
	}
	for label := range destinations {
		if label == "" {
			panic("taskgraph: destination label cannot be empty")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.conditionalEdges[from]; exists {
		panic(fmt.Sprintf("taskgraph: node %s already has conditional edges", from))
	}

	g.conditionalEdges[from] = conditionalEdge{
		router:       router,
		destinations: maps.Clone(destinations),
	}
	return g
}

// AddErrorEdge routes failures of a node to another node instead of
// failing the run. When the node returns an error, its message is appended
// to the error field (see SetErrorField) and execution continues at to.
//
// Cancellation, interrupts and schema violations are never rerouted.
func (g *Graph) AddErrorEdge(from, to string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.errorEdges[from] = to
	return g
}

// SetErrorField names the APPEND field that recovered node errors are
// recorded in.
func (g *Graph) SetErrorField(field string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.errorField = field
	return g
}

// SetEntry designates the entry point node.
// This must be called before Compile().
// Returns the graph for method chaining.
//
// Entry point validation happens at Compile() time.
func (g *Graph) SetEntry(id string) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.entryPoint = id
	return g
}
