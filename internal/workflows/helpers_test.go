package workflows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/taskgraph/internal/tools"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/llm"
)

var errModelDown = errors.New("model unavailable")

// scriptedLLM answers each completion according to its system prompt.
// Replies for a prompt are used in order; the last one repeats. Prompts
// listed in failing return errModelDown.
func scriptedLLM(replies map[string][]string, failing ...string) *llm.MockClient {
	var mu sync.Mutex
	used := make(map[string]int)
	down := make(map[string]bool, len(failing))
	for _, p := range failing {
		down[p] = true
	}

	return llm.NewMockClient("").WithCompleteFunc(func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if down[req.SystemPrompt] {
			return nil, errModelDown
		}
		mu.Lock()
		defer mu.Unlock()
		answers := replies[req.SystemPrompt]
		if len(answers) == 0 {
			return nil, errors.New("no scripted reply")
		}
		i := min(used[req.SystemPrompt], len(answers)-1)
		used[req.SystemPrompt]++
		return &llm.CompletionResponse{Content: answers[i], Model: "mock"}, nil
	})
}

// callsFor returns the requests made with the given system prompt.
func callsFor(client *llm.MockClient, system string) []llm.CompletionRequest {
	var out []llm.CompletionRequest
	for _, c := range client.Calls {
		if c.SystemPrompt == system {
			out = append(out, c)
		}
	}
	return out
}

type fakeSearcher struct {
	mu       sync.Mutex
	snippets []tools.Snippet
	err      error
	queries  []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, k int) ([]tools.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.snippets[:min(k, len(f.snippets))], nil
}

func knowledge(t *testing.T, docs ...tools.Document) *tools.VectorIndex {
	t.Helper()
	idx := tools.NewVectorIndex(tools.HashEmbedder{Dims: 128})
	require.NoError(t, idx.Add(context.Background(), docs...))
	return idx
}

func testCtx() taskgraph.Context {
	return taskgraph.NewContext(context.Background())
}

func fixedClock() time.Time {
	return time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)
}
