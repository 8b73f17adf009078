package taskgraph

// END is the terminal marker.
// Use this as an edge or destination target to indicate the run should terminate.
const END = "__end__"

// NodeFunc is the signature for all node functions.
// Nodes receive the execution context and the current state, and return a
// partial update. The executor merges the delta into the state using each
// field's strategy; nodes never mutate the state they are given.
//
// Returning a nil or empty delta leaves the state unchanged.
//
// Example:
//
//	func research(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
//	    return taskgraph.Delta{
//	        "findings": []string{"found: " + s.String("query")},
//	    }, nil
//	}
type NodeFunc func(ctx Context, state State) (Delta, error)

// RouterFunc inspects the state after a node and returns a label.
// The label is looked up in the destination table passed to
// AddConditionalEdges; a label that is not in the table is a routing error.
//
// Routers must not modify the state. Fallback behavior for missing data
// belongs in the router itself, expressed as an explicit label.
//
// Example:
//
//	func afterClassify(ctx taskgraph.Context, s taskgraph.State) string {
//	    if s.String("intent") == "bug" {
//	        return "bug"
//	    }
//	    return "other"
//	}
type RouterFunc func(ctx Context, state State) string
