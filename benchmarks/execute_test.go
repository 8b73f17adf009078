package benchmarks

import (
	"context"
	"testing"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
)

func BenchmarkRun_Linear(b *testing.B) {
	for _, n := range []int{5, 10, 50} {
		b.Run(nodeCount(n), func(b *testing.B) {
			compiled := mustCompile(buildLinearGraph(n))
			ctx := taskgraph.NewContext(context.Background())
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = compiled.Run(ctx, nil)
			}
		})
	}
}

// BenchmarkRun_Branching runs a graph with conditional edges.
func BenchmarkRun_Branching(b *testing.B) {
	compiled := mustCompile(buildBranchingGraph())
	ctx := taskgraph.NewContext(context.Background())
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = compiled.Run(ctx, map[string]any{"value": i})
	}
}

// BenchmarkRun_Loop runs a looping graph whose updates append to a list.
func BenchmarkRun_Loop(b *testing.B) {
	for _, n := range []int{3, 10, 40} {
		b.Run(nodeCount(n), func(b *testing.B) {
			compiled := mustCompile(buildLoopGraph(n))
			ctx := taskgraph.NewContext(context.Background())
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_, _ = compiled.Run(ctx, nil)
			}
		})
	}
}

// BenchmarkSchemaMerge measures applying a mixed overwrite/append delta.
func BenchmarkSchemaMerge(b *testing.B) {
	schema := counterSchema()
	state, err := schema.Initialize(map[string]any{"trail": []string{"a", "b", "c"}})
	if err != nil {
		b.Fatal(err)
	}
	delta := taskgraph.Delta{"value": 7, "trail": taskgraph.Items("d")}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = schema.Merge(state, delta)
	}
}

// BenchmarkContextCreation measures context creation overhead.
func BenchmarkContextCreation(b *testing.B) {
	bg := context.Background()
	for i := 0; i < b.N; i++ {
		taskgraph.NewContext(bg)
	}
}
