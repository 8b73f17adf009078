package taskgraph

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// Compile validates the graph and creates an executable CompiledGraph.
// Returns an error if validation fails. Multiple errors are joined together.
//
// Validation checks (in order):
//  1. Entry point must be set and reference an existing node
//  2. Fixed edge sources must exist; each node has at most one fixed edge
//  3. Conditional edge sources must exist and must not also have a fixed edge
//  4. All edge and destination targets must reference existing nodes or END
//  5. Error edges must reference existing nodes, and the error field (if
//     set) must be an APPEND field of strings
//  6. Every node reachable from entry must have an outgoing edge
//
// Unreachable nodes, cycles with no way out, and a missing path to END are
// logged as warnings but do not cause compilation to fail.
//
// A successful Compile freezes the graph's schema.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error

	if g.entryPoint == "" {
		errs = append(errs, ErrNoEntryPoint)
	} else if _, exists := g.nodes[g.entryPoint]; !exists {
		errs = append(errs, fmt.Errorf("%w: %s", ErrEntryNotFound, g.entryPoint))
	}

	for _, from := range sortedKeys(g.edges) {
		targets := g.edges[from]
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		if len(targets) > 1 {
			errs = append(errs, fmt.Errorf("%w: node '%s' has %d", ErrDuplicateEdge, from, len(targets)))
		}
		if _, hasConditional := g.conditionalEdges[from]; hasConditional {
			errs = append(errs, fmt.Errorf("%w: %s", ErrMixedEdges, from))
		}
		for _, to := range targets {
			if !g.isTarget(to) {
				errs = append(errs, fmt.Errorf("%w: edge target '%s' does not exist", ErrNodeNotFound, to))
			}
		}
	}

	for _, from := range sortedKeys(g.conditionalEdges) {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: conditional edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		dests := g.conditionalEdges[from].destinations
		for _, label := range sortedKeys(dests) {
			if !g.isTarget(dests[label]) {
				errs = append(errs, fmt.Errorf("%w: destination '%s' for label '%s' from '%s' does not exist",
					ErrNodeNotFound, dests[label], label, from))
			}
		}
	}

	for _, from := range sortedKeys(g.errorEdges) {
		if !g.hasNode(from) {
			errs = append(errs, fmt.Errorf("%w: error edge source '%s' does not exist", ErrNodeNotFound, from))
		}
		if to := g.errorEdges[from]; !g.isTarget(to) {
			errs = append(errs, fmt.Errorf("%w: error edge target '%s' does not exist", ErrNodeNotFound, to))
		}
	}

	if g.errorField != "" {
		f, ok := g.schema.Field(g.errorField)
		if !ok || f.Strategy != Append || (f.Kind != KindString && f.Kind != KindAny) {
			errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidErrorField, g.errorField))
		}
	}

	if len(errs) == 0 {
		for _, id := range g.findDeadEnds() {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDeadEnd, id))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g.lint()
	g.schema.freeze()

	return g.buildCompiledGraph(), nil
}

func (g *Graph) hasNode(id string) bool {
	_, exists := g.nodes[id]
	return exists
}

func (g *Graph) isTarget(id string) bool {
	return id == END || g.hasNode(id)
}

// successors returns every node a node may transfer control to, including
// router destinations and the error edge. END is omitted.
func (g *Graph) successors(id string) []string {
	var out []string
	for _, to := range g.edges[id] {
		if to != END {
			out = append(out, to)
		}
	}
	if ce, ok := g.conditionalEdges[id]; ok {
		for _, label := range sortedKeys(ce.destinations) {
			if to := ce.destinations[label]; to != END {
				out = append(out, to)
			}
		}
	}
	if to, ok := g.errorEdges[id]; ok && to != END {
		out = append(out, to)
	}
	return out
}

// reachesEnd reports whether the node has an edge or destination to END.
func (g *Graph) reachesEnd(id string) bool {
	if slices.Contains(g.edges[id], END) || g.errorEdges[id] == END {
		return true
	}
	if ce, ok := g.conditionalEdges[id]; ok {
		for _, to := range ce.destinations {
			if to == END {
				return true
			}
		}
	}
	return false
}

// findReachableNodes returns the set of nodes reachable from the entry point.
func (g *Graph) findReachableNodes() map[string]bool {
	reachable := make(map[string]bool)

	if g.entryPoint == "" {
		return reachable
	}

	queue := []string{g.entryPoint}
	reachable[g.entryPoint] = true

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, next := range g.successors(current) {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}

	return reachable
}

// findDeadEnds returns reachable nodes with neither a fixed nor a
// conditional edge, sorted.
func (g *Graph) findDeadEnds() []string {
	var out []string
	for _, id := range sortedKeys(g.findReachableNodes()) {
		_, hasFixed := g.edges[id]
		_, hasConditional := g.conditionalEdges[id]
		if !hasFixed && !hasConditional {
			out = append(out, id)
		}
	}
	return out
}

// lint logs structural warnings that do not prevent compilation.
func (g *Graph) lint() {
	reachable := g.findReachableNodes()

	for _, id := range sortedKeys(g.nodes) {
		if !reachable[id] {
			slog.Warn("node is unreachable from entry", "node_id", id)
		}
	}

	for _, scc := range g.stronglyConnected() {
		if g.isTrappingCycle(scc) {
			slog.Warn("cycle has no exit; runs entering it end at the step cap", "nodes", scc)
		}
	}

	if !g.hasPathToEnd() {
		slog.Warn("no path to END from entry", "entry", g.entryPoint)
	}
}

// hasPathToEnd checks if END is reachable from the entry point.
func (g *Graph) hasPathToEnd() bool {
	for id := range g.findReachableNodes() {
		if g.reachesEnd(id) {
			return true
		}
	}
	return false
}

// isTrappingCycle reports whether a strongly connected component is a real
// cycle with no edge leaving it.
func (g *Graph) isTrappingCycle(scc []string) bool {
	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}

	cyclic := len(scc) > 1
	for _, id := range scc {
		if g.reachesEnd(id) {
			return false
		}
		for _, next := range g.successors(id) {
			if !members[next] {
				return false
			}
			if next == id {
				cyclic = true
			}
		}
	}
	return cyclic
}

// stronglyConnected returns the strongly connected components of the
// graph using Tarjan's algorithm. Node order within a component is sorted.
func (g *Graph) stronglyConnected() [][]string {
	var (
		index   int
		stack   []string
		onStack = make(map[string]bool)
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		result  [][]string
	)

	var visit func(id string)
	visit = func(id string) {
		indices[id] = index
		lowlink[id] = index
		index++
		stack = append(stack, id)
		onStack[id] = true

		for _, next := range g.successors(id) {
			if _, seen := indices[next]; !seen {
				visit(next)
				lowlink[id] = min(lowlink[id], lowlink[next])
			} else if onStack[next] {
				lowlink[id] = min(lowlink[id], indices[next])
			}
		}

		if lowlink[id] == indices[id] {
			var scc []string
			for {
				top := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[top] = false
				scc = append(scc, top)
				if top == id {
					break
				}
			}
			slices.Sort(scc)
			result = append(result, scc)
		}
	}

	for _, id := range sortedKeys(g.nodes) {
		if _, seen := indices[id]; !seen {
			visit(id)
		}
	}
	return result
}

// buildCompiledGraph creates the immutable CompiledGraph from the builder state.
func (g *Graph) buildCompiledGraph() *CompiledGraph {
	nodes := maps.Clone(g.nodes)

	edges := make(map[string]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = targets[0]
	}

	conditionalEdges := make(map[string]conditionalEdge, len(g.conditionalEdges))
	for from, ce := range g.conditionalEdges {
		conditionalEdges[from] = conditionalEdge{
			router:       ce.router,
			destinations: maps.Clone(ce.destinations),
		}
	}

	predecessors := make(map[string][]string)
	for _, from := range sortedKeys(g.nodes) {
		for _, to := range g.successors(from) {
			if !slices.Contains(predecessors[to], from) {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}

	return &CompiledGraph{
		schema:           g.schema,
		nodes:            nodes,
		edges:            edges,
		conditionalEdges: conditionalEdges,
		errorEdges:       maps.Clone(g.errorEdges),
		errorField:       g.errorField,
		entryPoint:       g.entryPoint,
		predecessors:     predecessors,
	}
}
