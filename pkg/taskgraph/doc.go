/*
Package taskgraph executes task-routing workflows: directed graphs of
processing steps that share a schema-bound state record.

# Overview

A workflow is built from four pieces:
  - A Schema declares the state fields, their kinds and merge strategies.
  - Nodes read the state and return a Delta of field updates.
  - Routers pick the next step after a node by returning a label that a
    destination table maps to a node ID or END.
  - An executor runs the compiled graph until it reaches END, suspends,
    fails, is cancelled, or exhausts its step cap.

# Schema and State

Each field is either OVERWRITE (the new value replaces the old one) or
APPEND (new items are concatenated onto the existing list):

	schema := taskgraph.NewSchema().
	    Overwrite("query", taskgraph.KindString).
	    Append("messages", taskgraph.KindString).
	    Overwrite("attempts", taskgraph.KindInt).
	    WithDefault("attempts", 0)

State values are immutable. Merging a Delta produces a new State; the
original is never modified, and a delta with an undeclared field or a
value of the wrong kind is rejected as a whole.

# Basic Usage

	func answer(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	    return taskgraph.Delta{"messages": taskgraph.Items("answer to " + s.String("query"))}, nil
	}

	graph := taskgraph.NewGraph(schema).
	    AddNode("answer", answer).
	    SetTerminal("answer").
	    SetEntry("answer")

	compiled, err := graph.Compile()
	if err != nil {
	    log.Fatal(err)
	}

	ctx := taskgraph.NewContext(context.Background())
	result, err := compiled.Run(ctx, map[string]any{"query": "hello"})

# Conditional Routing

	graph.AddConditionalEdges("classify", func(ctx taskgraph.Context, s taskgraph.State) string {
	    return s.String("intent")
	}, map[string]string{
	    "billing":   "billing_agent",
	    "technical": "tech_agent",
	    "done":      taskgraph.END,
	})

A label missing from the table fails the run with a *RouterError listing
the allowed labels. Loops are expressed by routing back to an earlier node
and are bounded by the step cap (default 50, see WithMaxSteps).

# Errors

Compile reports every structural problem at once, joined with errors.Join.
Execution errors are typed and match category sentinels with errors.Is;
KindOf maps any returned error to an ErrorKind. Nodes may declare an error
edge with AddErrorEdge: a failure is then recorded in the error field and
execution continues at the error target.

# Suspension

A run suspends before nodes named in WithInterruptBefore, or when a node
returns Interrupt(reason). The Result carries the suspension point:

	result, _ := compiled.Run(ctx, inputs, taskgraph.WithInterruptBefore("publish"))
	if result.Status == taskgraph.StatusSuspended {
	    result, err = compiled.Resume(ctx, result.Suspension(), map[string]any{"approved": true})
	}

With WithCheckpointStore the pair is also persisted, so a different process
can continue the run with ResumeFromCheckpoint.

# Observability

Node and run events are logged through the Context's slog logger, enriched
with run_id and node_id. Metrics and spans are opt-in:

	result, err := compiled.Run(ctx, inputs,
	    taskgraph.WithMetrics(observability.NewMetricsRecorder()),
	    taskgraph.WithSpanManager(observability.NewSpanManager()))
*/
package taskgraph
