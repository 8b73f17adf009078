package taskgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRun_LinearResearchSummarize runs research -> summarize -> END.
func TestRun_LinearResearchSummarize(t *testing.T) {
	research := func(ctx Context, s State) (Delta, error) {
		return Delta{"findings": Items("found:" + s.String("query"))}, nil
	}
	summarize := func(ctx Context, s State) (Delta, error) {
		return Delta{"answer": "summary of " + strings.Join(s.Strings("findings"), ",")}, nil
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("research", research).
		AddNode("summarize", summarize).
		AddEdge("research", "summarize").
		SetTerminal("summarize").
		SetEntry("research"))

	result, err := compiled.Run(testCtx(), map[string]any{"query": "X"})

	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, result.Status)
	assert.Equal(t, []string{"found:X"}, result.State.Strings("findings"))
	assert.Equal(t, "summary of found:X", result.State.String("answer"))
	assert.Equal(t, 2, result.Steps)
	assert.Equal(t, []string{"research", "summarize"}, result.Path)
	assert.Empty(t, result.Node)
}

// TestRun_ConditionalBranch routes on a field written by the entry node.
func TestRun_ConditionalBranch(t *testing.T) {
	schema := NewSchema().
		Overwrite("category", KindString).
		Append("visits", KindString)

	classify := func(ctx Context, s State) (Delta, error) {
		return Delta{"category": "bug", "visits": Items("classify")}, nil
	}
	byCategory := func(ctx Context, s State) string {
		return s.String("category")
	}

	compiled := mustCompile(NewGraph(schema).
		AddNode("classify", classify).
		AddNode("bug_path", visit("bug_path")).
		AddNode("question_path", visit("question_path")).
		AddConditionalEdges("classify", byCategory, map[string]string{
			"bug":      "bug_path",
			"question": "question_path",
		}).
		SetTerminal("bug_path").
		SetTerminal("question_path").
		SetEntry("classify"))

	result, err := compiled.Run(testCtx(), nil)

	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, result.Status)
	assert.Equal(t, []string{"classify", "bug_path"}, result.State.Strings("visits"))
	assert.NotContains(t, result.Path, "question_path")
}

// TestRun_RevisionLoop sends review back to code once, then terminates.
func TestRun_RevisionLoop(t *testing.T) {
	calls := newCallCounter()
	reviewer := func(ctx Context, s State) string {
		if s.Int("count") < 2 {
			return "revise"
		}
		return "accept"
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("code", calls.wrap("code", increment("code"))).
		AddNode("review", calls.wrap("review", visit("review"))).
		AddEdge("code", "review").
		AddConditionalEdges("review", reviewer, map[string]string{
			"revise": "code",
			"accept": END,
		}).
		SetEntry("code"))

	result, err := compiled.Run(testCtx(), nil)

	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, result.Status)
	assert.Equal(t, 2, calls.count("code"))
	assert.Equal(t, 2, calls.count("review"))
	assert.Equal(t, []string{"code", "review", "code", "review"}, result.Path)
}

// TestRun_IterationCap fails after exactly max steps in an endless cycle.
func TestRun_IterationCap(t *testing.T) {
	for _, maxSteps := range []int{1, 2, 5, 7} {
		t.Run(fmt.Sprintf("max_%d", maxSteps), func(t *testing.T) {
			calls := newCallCounter()
			compiled := mustCompile(NewGraph(taskSchema()).
				AddNode("A", calls.wrap("A", increment("A"))).
				AddNode("B", calls.wrap("B", increment("B"))).
				AddConditionalEdges("A", always("other"), map[string]string{"other": "B"}).
				AddConditionalEdges("B", always("other"), map[string]string{"other": "A"}).
				SetEntry("A"))

			result, err := compiled.Run(testCtx(), nil, WithMaxSteps(maxSteps))

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrIterationLimit)
			assert.Equal(t, ErrorKindIterationLimit, KindOf(err))
			assert.Equal(t, StatusFailed, result.Status)
			assert.Equal(t, maxSteps, calls.count("A")+calls.count("B"))
			assert.Equal(t, maxSteps, result.Steps)
			assert.Equal(t, maxSteps, result.State.Int("count"))

			var maxErr *MaxIterationsError
			require.True(t, errors.As(err, &maxErr))
			assert.Equal(t, maxSteps, maxErr.Max)
		})
	}
}

// exitOnSecondVisit routes to "exit" once the router's own node has been
// visited twice, and to "loop" before that.
func exitOnSecondVisit(node string) RouterFunc {
	return func(_ Context, s State) string {
		seen := 0
		for _, v := range s.Strings("visits") {
			if v == node {
				seen++
			}
		}
		if seen >= 2 {
			return "exit"
		}
		return "loop"
	}
}

// Every cycle has a router that takes its exit on the second visit, so
// the run terminates well inside the step cap.
func TestRun_ExitOnSecondVisitTerminates(t *testing.T) {
	tests := []struct {
		name  string
		graph func() *Graph
		// longest is the longest acyclic path from the entry.
		longest  int
		wantPath []string
	}{
		{
			name: "single back edge",
			graph: func() *Graph {
				return NewGraph(taskSchema()).
					AddNode("a", visit("a")).
					AddNode("b", visit("b")).
					AddNode("c", visit("c")).
					AddEdge("a", "b").
					AddEdge("b", "c").
					AddConditionalEdges("c", exitOnSecondVisit("c"), map[string]string{"loop": "a", "exit": END}).
					SetEntry("a")
			},
			longest:  3,
			wantPath: []string{"a", "b", "c", "a", "b", "c"},
		},
		{
			name: "self loop",
			graph: func() *Graph {
				return NewGraph(taskSchema()).
					AddNode("a", visit("a")).
					AddNode("b", visit("b")).
					AddEdge("a", "b").
					AddConditionalEdges("b", exitOnSecondVisit("b"), map[string]string{"loop": "b", "exit": END}).
					SetEntry("a")
			},
			longest:  2,
			wantPath: []string{"a", "b", "b"},
		},
		{
			name: "two cycles",
			graph: func() *Graph {
				return NewGraph(taskSchema()).
					AddNode("a", visit("a")).
					AddNode("b", visit("b")).
					AddNode("c", visit("c")).
					AddEdge("a", "b").
					AddConditionalEdges("b", exitOnSecondVisit("b"), map[string]string{"loop": "a", "exit": "c"}).
					AddConditionalEdges("c", exitOnSecondVisit("c"), map[string]string{"loop": "b", "exit": END}).
					SetEntry("a")
			},
			longest:  3,
			wantPath: []string{"a", "b", "a", "b", "c", "b", "c"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			compiled := mustCompile(tt.graph())

			result, err := compiled.Run(testCtx(), nil)

			require.NoError(t, err)
			assert.Equal(t, StatusTerminated, result.Status)
			assert.Equal(t, tt.wantPath, result.Path)
			assert.Equal(t, len(tt.wantPath), result.Steps)
			assert.LessOrEqual(t, result.Steps, 3*tt.longest)
			assert.Less(t, result.Steps, DefaultMaxSteps)
		})
	}
}

func TestRun_DefaultStepCap(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("spin", increment("spin")).
		AddConditionalEdges("spin", always("again"), map[string]string{"again": "spin", "stop": END}).
		SetEntry("spin"))

	result, err := compiled.Run(testCtx(), nil)

	assert.ErrorIs(t, err, ErrIterationLimit)
	assert.Equal(t, DefaultMaxSteps, result.Steps)
}

// A run that reaches END on its last allowed step terminates normally.
func TestRun_TerminatesOnFinalStep(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("a", visit("a")).
		AddNode("b", visit("b")).
		AddEdge("a", "b").
		SetTerminal("b").
		SetEntry("a"))

	result, err := compiled.Run(testCtx(), nil, WithMaxSteps(2))

	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, result.Status)
}

// TestRun_SchemaViolation fails on an undeclared key and applies nothing.
func TestRun_SchemaViolation(t *testing.T) {
	bad := func(ctx Context, s State) (Delta, error) {
		return Delta{"answer": "should not land", "bogus": 1}, nil
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("first", visit("first")).
		AddNode("bad", bad).
		AddEdge("first", "bad").
		SetTerminal("bad").
		SetEntry("first"))

	result, err := compiled.Run(testCtx(), map[string]any{"query": "X"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.Equal(t, ErrorKindSchemaViolation, KindOf(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "bad", result.Node)

	var sv *SchemaViolationError
	require.True(t, errors.As(err, &sv))
	assert.Equal(t, "bad", sv.NodeID)
	assert.Equal(t, "bogus", sv.Field)

	assert.Equal(t, "", result.State.String("answer"))
	assert.Equal(t, "X", result.State.String("query"))
	assert.Equal(t, []string{"first"}, result.State.Strings("visits"))
}

// TestRun_UnknownRouterLabel keeps the state from the last good merge.
func TestRun_UnknownRouterLabel(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("classify", increment("classify")).
		AddNode("next", visit("next")).
		AddConditionalEdges("classify", always("nonsense"), map[string]string{
			"go":   "next",
			"stop": END,
		}).
		SetTerminal("next").
		SetEntry("classify"))

	result, err := compiled.Run(testCtx(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouting)
	assert.ErrorIs(t, err, ErrUnknownLabel)
	assert.Equal(t, ErrorKindRouting, KindOf(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 1, result.State.Int("count"))
	assert.Equal(t, []string{"classify"}, result.State.Strings("visits"))

	var routerErr *RouterError
	require.True(t, errors.As(err, &routerErr))
	assert.Equal(t, "classify", routerErr.FromNode)
	assert.Equal(t, "nonsense", routerErr.Returned)
	assert.Equal(t, []string{"go", "stop"}, routerErr.Allowed)
	assert.Contains(t, err.Error(), "allowed: go, stop")
}

// Identical state yields the identical route on every run.
func TestRun_RoutingIsDeterministic(t *testing.T) {
	router := func(ctx Context, s State) string {
		if strings.Contains(s.String("query"), "refund") {
			return "billing"
		}
		return "general"
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("triage", visit("triage")).
		AddNode("billing", visit("billing")).
		AddNode("general", visit("general")).
		AddConditionalEdges("triage", router, map[string]string{
			"billing": "billing",
			"general": "general",
		}).
		SetTerminal("billing").
		SetTerminal("general").
		SetEntry("triage"))

	var first []string
	for i := 0; i < 10; i++ {
		result, err := compiled.Run(testCtx(), map[string]any{"query": "refund please"})
		require.NoError(t, err)
		if first == nil {
			first = result.Path
		}
		assert.Equal(t, first, result.Path)
	}
	assert.Equal(t, []string{"triage", "billing"}, first)
}

func TestRun_RouterPanic(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("a", visit("a")).
		AddConditionalEdges("a", func(ctx Context, s State) string { panic("router blew up") },
			map[string]string{"done": END}).
		SetEntry("a"))

	result, err := compiled.Run(testCtx(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRouting)
	assert.Equal(t, StatusFailed, result.Status)

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "router blew up", panicErr.Value)
}

func TestRun_NodeError(t *testing.T) {
	cause := errors.New("upstream unavailable")
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("first", increment("first")).
		AddNode("call", makeFailingNode(cause)).
		AddEdge("first", "call").
		SetTerminal("call").
		SetEntry("first"))

	result, err := compiled.Run(testCtx(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrNodeExecution)
	assert.Equal(t, ErrorKindNodeExecution, KindOf(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "call", result.Node)
	assert.Equal(t, 1, result.State.Int("count"))

	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "call", nodeErr.NodeID)
	assert.Equal(t, "execute", nodeErr.Op)
}

func TestRun_NodeErrorKeepsKindOverCause(t *testing.T) {
	inner := NewSchema().Overwrite("topic", KindString)
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("nested", func(_ Context, _ State) (Delta, error) {
			_, err := inner.Initialize(map[string]any{"bogus": 1})
			return nil, err
		}).
		SetTerminal("nested").
		SetEntry("nested"))

	result, err := compiled.Run(testCtx(), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, ErrorKindNodeExecution, KindOf(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "nested", result.Node)
}

func TestRun_NodePanic(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("boom", makePanicNode("kaboom")).
		SetTerminal("boom").
		SetEntry("boom"))

	result, err := compiled.Run(testCtx(), nil)

	require.Error(t, err)
	assert.Equal(t, StatusFailed, result.Status)
	assert.ErrorIs(t, err, ErrNodeExecution)

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "boom", panicErr.NodeID)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)

	var nodeErr *NodeError
	require.True(t, errors.As(err, &nodeErr))
	assert.Equal(t, "panic", nodeErr.Op)
}

func TestRun_ErrorEdge(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("search", makeFailingNode(errors.New("search quota exceeded"))).
		AddNode("apologise", func(ctx Context, s State) (Delta, error) {
			return Delta{"answer": "sorry: " + strings.Join(s.Strings("errors"), "; ")}, nil
		}).
		AddEdge("search", END).
		AddErrorEdge("search", "apologise").
		SetTerminal("apologise").
		SetErrorField("errors").
		SetEntry("search"))

	result, err := compiled.Run(testCtx(), nil)

	require.NoError(t, err)
	assert.Equal(t, StatusTerminated, result.Status)
	require.Equal(t, 1, result.State.Len("errors"))
	assert.Contains(t, result.State.Strings("errors")[0], "search quota exceeded")
	assert.Contains(t, result.State.String("answer"), "sorry: ")
	assert.Equal(t, []string{"search", "apologise"}, result.Path)
}

func TestRun_ErrorEdgeWithoutErrorField(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("work", makePanicNode("bad input")).
		AddNode("fallback", visit("fallback")).
		AddEdge("work", END).
		AddErrorEdge("work", "fallback").
		SetTerminal("fallback").
		SetEntry("work"))

	result, err := compiled.Run(testCtx(), nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"fallback"}, result.State.Strings("visits"))
	assert.Equal(t, 0, result.State.Len("errors"))
}

func TestRun_SchemaViolationIsNotRecovered(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("work", func(ctx Context, s State) (Delta, error) { return Delta{"bogus": true}, nil }).
		AddNode("fallback", visit("fallback")).
		AddEdge("work", END).
		AddErrorEdge("work", "fallback").
		SetTerminal("fallback").
		SetEntry("work"))

	result, err := compiled.Run(testCtx(), nil)

	assert.ErrorIs(t, err, ErrSchemaViolation)
	assert.Equal(t, StatusFailed, result.Status)
}

func TestRun_ConfigurationError(t *testing.T) {
	calls := newCallCounter()
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("a", calls.wrap("a", visit("a"))).
		SetTerminal("a").
		SetEntry("a"))

	result, err := compiled.Run(testCtx(), map[string]any{"query": 12})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, ErrorKindConfiguration, KindOf(err))
	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, 0, calls.count("a"))
}

func TestRun_NilContext(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).AddNode("a", visit("a")).SetTerminal("a").SetEntry("a"))

	_, err := compiled.Run(nil, nil)

	assert.ErrorIs(t, err, ErrNilContext)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	calls := newCallCounter()
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("a", calls.wrap("a", visit("a"))).
		SetTerminal("a").
		SetEntry("a"))

	base, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := compiled.Run(NewContext(base), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, ErrorKindCancelled, KindOf(err))
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, "a", result.Node)
	assert.Equal(t, 0, calls.count("a"))

	var cancelErr *CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.False(t, cancelErr.WasExecuting)
}

func TestRun_CancelledBetweenNodes(t *testing.T) {
	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopper := func(ctx Context, s State) (Delta, error) {
		cancel()
		return Delta{"visits": Items("stopper")}, nil
	}

	calls := newCallCounter()
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("stopper", stopper).
		AddNode("after", calls.wrap("after", visit("after"))).
		AddEdge("stopper", "after").
		SetTerminal("after").
		SetEntry("stopper"))

	result, err := compiled.Run(NewContext(base), nil)

	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StatusCancelled, result.Status)
	assert.Equal(t, "after", result.Node)
	assert.Equal(t, []string{"stopper"}, result.State.Strings("visits"))
	assert.Equal(t, 0, calls.count("after"))
}

func TestRun_DeadlineDuringNode(t *testing.T) {
	base, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	slow := func(ctx Context, s State) (Delta, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("waiting for model: %w", ctx.Err())
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("slow", slow).
		SetTerminal("slow").
		SetEntry("slow"))

	result, err := compiled.Run(NewContext(base), nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusCancelled, result.Status)

	var cancelErr *CancellationError
	require.True(t, errors.As(err, &cancelErr))
	assert.True(t, cancelErr.WasExecuting)
	assert.Equal(t, "slow", cancelErr.NodeID)
}

// A node's own timeout is a node failure, not a cancellation of the run.
func TestRun_NodeInternalTimeoutIsNodeError(t *testing.T) {
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("a", makeFailingNode(fmt.Errorf("http call: %w", context.DeadlineExceeded))).
		SetTerminal("a").
		SetEntry("a"))

	result, err := compiled.Run(testCtx(), nil)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, ErrorKindNodeExecution, KindOf(err))
}

func TestRun_NodeContext(t *testing.T) {
	var gotRunID, gotNodeID string
	inspect := func(ctx Context, s State) (Delta, error) {
		gotRunID = ctx.RunID()
		gotNodeID = ctx.NodeID()
		require.NotNil(t, ctx.Logger())
		return nil, nil
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("inspect", inspect).
		SetTerminal("inspect").
		SetEntry("inspect"))

	t.Run("run id from context", func(t *testing.T) {
		result, err := compiled.Run(NewContext(context.Background(), WithContextRunID("ctx-run")), nil)
		require.NoError(t, err)
		assert.Equal(t, "ctx-run", gotRunID)
		assert.Equal(t, "ctx-run", result.RunID)
		assert.Equal(t, "inspect", gotNodeID)
	})

	t.Run("run option overrides context", func(t *testing.T) {
		result, err := compiled.Run(NewContext(context.Background(), WithContextRunID("ctx-run")), nil,
			WithRunID("opt-run"))
		require.NoError(t, err)
		assert.Equal(t, "opt-run", gotRunID)
		assert.Equal(t, "opt-run", result.RunID)
	})
}

func TestRun_NodeSeesOwnStateOnly(t *testing.T) {
	var seen State
	capture := func(ctx Context, s State) (Delta, error) {
		seen = s
		return Delta{"findings": Items("later")}, nil
	}

	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("capture", capture).
		SetTerminal("capture").
		SetEntry("capture"))

	result, err := compiled.Run(testCtx(), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, seen.Len("findings"))
	assert.Equal(t, 1, result.State.Len("findings"))
}

// Concurrent invocations share the graph but never each other's state.
func TestRun_ConcurrentInvocations(t *testing.T) {
	echo := func(ctx Context, s State) (Delta, error) {
		return Delta{"findings": Items(s.String("query")), "answer": s.String("query")}, nil
	}
	compiled := mustCompile(NewGraph(taskSchema()).
		AddNode("echo", echo).
		AddNode("count", increment("count")).
		AddEdge("echo", "count").
		SetTerminal("count").
		SetEntry("echo"))

	const runs = 50
	var wg sync.WaitGroup
	results := make([]Result, runs)
	errs := make([]error, runs)

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = compiled.Run(testCtx(), map[string]any{"query": fmt.Sprintf("q%d", i)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < runs; i++ {
		require.NoError(t, errs[i])
		want := fmt.Sprintf("q%d", i)
		assert.Equal(t, want, results[i].State.String("answer"))
		assert.Equal(t, []string{want}, results[i].State.Strings("findings"))
		assert.Equal(t, 1, results[i].State.Int("count"))
	}
}

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusTerminated, "terminated"},
		{StatusFailed, "failed"},
		{StatusSuspended, "suspended"},
		{StatusCancelled, "cancelled"},
		{Status(0), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
			text, err := tt.status.MarshalText()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(text))
		})
	}
}
