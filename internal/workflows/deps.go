package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/randalmurphal/taskgraph/internal/tools"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/llm"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
)

// ErrNoLLM is returned when a workflow that calls a model is built without
// a client.
var ErrNoLLM = errors.New("workflows: an LLM client is required")

// Deps carries the services workflow nodes call.
type Deps struct {
	LLM llm.Client
	// Search is optional. Without it research relies on Knowledge alone and
	// doc search has no web fallback.
	Search tools.Searcher
	// Knowledge is the document index consulted before the web. Optional.
	Knowledge  *tools.VectorIndex
	Calculator *tools.Calculator
	// Ledger supplies transaction history to the platform workflow.
	// Defaults to a SampleLedger.
	Ledger tools.Ledger

	// MaxRevisions bounds reviewer rejections in the team workflow.
	MaxRevisions int
	// SearchResults is the number of hits requested per search.
	SearchResults int
	// Now stamps bug tickets. Defaults to time.Now.
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Calculator == nil {
		d.Calculator = tools.NewCalculator()
	}
	if d.MaxRevisions < 0 {
		d.MaxRevisions = 0
	}
	if d.SearchResults <= 0 {
		d.SearchResults = 5
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Ledger == nil {
		d.Ledger = tools.SampleLedger{Now: d.Now}
	}
	return d
}

// Builder builds one workflow from deps.
type Builder func(deps Deps) (*definition.Workflow, error)

// Builtin lists the built-in workflows by name.
var Builtin = map[string]Builder{
	"research": Research,
	"support":  Support,
	"team":     Team,
	"calc":     Calc,
	"platform": Platform,
}

// Catalog builds every built-in workflow and registers it under its name.
func Catalog(deps Deps) (*registry.Registry[*definition.Workflow], error) {
	catalog := registry.New[*definition.Workflow]("workflow")
	for name, build := range Builtin {
		wf, err := build(deps)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", name, err)
		}
		if err := catalog.Register(wf.Name, wf); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

// complete runs a single-turn completion and returns the cleaned text.
func complete(ctx context.Context, client llm.Client, system, user string, asJSON bool) (string, error) {
	req := llm.Prompt(system, user)
	req.JSON = asJSON
	resp, err := client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}
