package taskgraph

import (
	"context"
	"sync"
)

// Shared test schema and node helpers.

// taskSchema declares the fields used across the executor tests.
func taskSchema() *Schema {
	return NewSchema().
		Overwrite("query", KindString).
		Append("findings", KindString).
		Overwrite("answer", KindString).
		Overwrite("count", KindInt).
		Overwrite("approved", KindBool).
		Append("errors", KindString).
		Append("visits", KindString)
}

// visit records the node name in the visits field.
func visit(name string) NodeFunc {
	return func(ctx Context, s State) (Delta, error) {
		return Delta{"visits": Items(name)}, nil
	}
}

// increment adds one to count and records the visit.
func increment(name string) NodeFunc {
	return func(ctx Context, s State) (Delta, error) {
		return Delta{"count": s.Int("count") + 1, "visits": Items(name)}, nil
	}
}

// makeFailingNode creates a node that returns the given error.
func makeFailingNode(err error) NodeFunc {
	return func(ctx Context, s State) (Delta, error) {
		return nil, err
	}
}

// makePanicNode creates a node that panics with the given value.
func makePanicNode(value any) NodeFunc {
	return func(ctx Context, s State) (Delta, error) {
		panic(value)
	}
}

// always returns a router that always picks label.
func always(label string) RouterFunc {
	return func(ctx Context, s State) string {
		return label
	}
}

// callCounter counts node invocations safely across goroutines.
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func newCallCounter() *callCounter {
	return &callCounter{calls: map[string]int{}}
}

func (c *callCounter) wrap(name string, fn NodeFunc) NodeFunc {
	return func(ctx Context, s State) (Delta, error) {
		c.mu.Lock()
		c.calls[name]++
		c.mu.Unlock()
		return fn(ctx, s)
	}
}

func (c *callCounter) count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// testCtx creates a simple test context.
func testCtx() Context {
	return NewContext(context.Background())
}

// mustCompile compiles the graph or panics.
func mustCompile(g *Graph) *CompiledGraph {
	compiled, err := g.Compile()
	if err != nil {
		panic(err)
	}
	return compiled
}
