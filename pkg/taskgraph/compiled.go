package taskgraph

import (
	"maps"
	"slices"
)

// CompiledGraph is an immutable, executable graph.
// It is created by calling Compile() on a Graph builder.
//
// CompiledGraph is thread-safe and can be used concurrently for multiple
// Run() calls. Each invocation owns its own State; nothing is shared
// between runs except this read-only structure.
//
// Use the introspection methods (NodeIDs, Successor, etc.) to examine
// the graph structure for debugging or visualization.
type CompiledGraph struct {
	schema           *Schema
	nodes            map[string]NodeFunc
	edges            map[string]string
	conditionalEdges map[string]conditionalEdge
	errorEdges       map[string]string
	errorField       string
	entryPoint       string

	predecessors map[string][]string
}

// EntryPoint returns the entry node ID.
func (cg *CompiledGraph) EntryPoint() string {
	return cg.entryPoint
}

// Schema returns the frozen state schema.
func (cg *CompiledGraph) Schema() *Schema {
	return cg.schema
}

// NodeIDs returns all node identifiers in the graph, sorted.
func (cg *CompiledGraph) NodeIDs() []string {
	return sortedKeys(cg.nodes)
}

// HasNode checks if a node exists in the graph.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, exists := cg.nodes[id]
	return exists
}

// Successor returns the target of the node's fixed edge.
// Returns false for conditional nodes, END, or unknown nodes.
func (cg *CompiledGraph) Successor(id string) (string, bool) {
	to, ok := cg.edges[id]
	return to, ok
}

// Destinations returns a copy of the node's label -> target table,
// or nil if the node has no conditional edges.
func (cg *CompiledGraph) Destinations(id string) map[string]string {
	ce, ok := cg.conditionalEdges[id]
	if !ok {
		return nil
	}
	return maps.Clone(ce.destinations)
}

// ErrorEdge returns the recovery target for a node's failures.
func (cg *CompiledGraph) ErrorEdge(id string) (string, bool) {
	to, ok := cg.errorEdges[id]
	return to, ok
}

// Predecessors returns the node IDs that may transfer control to the given
// node, sorted. Returns nil for nodes with no incoming edges.
func (cg *CompiledGraph) Predecessors(id string) []string {
	return slices.Clone(cg.predecessors[id])
}

// IsConditional returns true if the node has conditional edges.
func (cg *CompiledGraph) IsConditional(id string) bool {
	_, ok := cg.conditionalEdges[id]
	return ok
}
