// Package registry provides a thread-safe registry of named values.
//
// taskgraph uses registries to look up node implementations by the names a
// workflow definition refers to, and to hold the compiled workflows the
// server exposes.
//
// # Basic Usage
//
//	nodes := registry.New[taskgraph.NodeFunc]("node")
//	nodes.MustRegister("summarize", summarize)
//
//	fn, err := nodes.Lookup("summarize")
//	if err != nil {
//	    // err wraps registry.ErrNotRegistered and lists the known names
//	}
//
// Register refuses duplicates; use Replace to overwrite on purpose.
//
// # Lazy Initialization
//
// GetOrCreate is atomic: the factory is called at most once per name, even
// under concurrent access.
//
//	compiled := workflows.GetOrCreate("research", func() *taskgraph.CompiledGraph {
//	    return mustCompile(buildResearch())
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Range iterates over a snapshot
// in name order, so the callback may mutate the registry.
package registry
