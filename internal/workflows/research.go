package workflows

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
)

// ErrEmptyQuery is returned when a research run has nothing to look up.
var ErrEmptyQuery = errors.New("query is empty")

// minRelevance is the lowest knowledge base similarity kept as a finding.
const minRelevance = 0.2

// ResearchSchema declares the research workflow state.
func ResearchSchema() *taskgraph.Schema {
	return taskgraph.NewSchema().
		Overwrite("query", taskgraph.KindString).
		Append("findings", taskgraph.KindString).
		Overwrite("answer", taskgraph.KindString).
		Append("messages", taskgraph.KindString)
}

// Research builds research -> summarize -> END.
func Research(deps Deps) (*definition.Workflow, error) {
	deps = deps.withDefaults()
	if deps.LLM == nil {
		return nil, ErrNoLLM
	}

	g := taskgraph.NewGraph(ResearchSchema()).
		AddNode("research", researchNode(deps)).
		AddNode("summarize", summarizeNode(deps)).
		AddEdge("research", "summarize").
		AddEdge("summarize", taskgraph.END).
		SetEntry("research")

	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return &definition.Workflow{
		Name:        "research",
		Description: "Searches the knowledge base and the web, then summarizes the findings.",
		Graph:       compiled,
		Input:       "query",
	}, nil
}

func researchNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		query := strings.TrimSpace(s.String("query"))
		if query == "" {
			return nil, ErrEmptyQuery
		}

		var findings []string
		if deps.Knowledge != nil {
			matches, err := deps.Knowledge.Search(ctx, query, deps.SearchResults)
			if err != nil {
				return nil, fmt.Errorf("knowledge search: %w", err)
			}
			for _, m := range matches {
				if m.Score >= minRelevance {
					findings = append(findings, m.Document.Text)
				}
			}
		}

		if deps.Search != nil {
			snippets, err := deps.Search.Search(ctx, query, deps.SearchResults)
			switch {
			case err != nil && len(findings) == 0:
				return nil, fmt.Errorf("web search: %w", err)
			case err != nil:
				ctx.Logger().Warn("web search failed, keeping knowledge base findings",
					slog.String("error", err.Error()))
			}
			for _, sn := range snippets {
				findings = append(findings, fmt.Sprintf("%s (%s): %s", sn.Title, sn.URL, sn.Text))
			}
		}

		return taskgraph.Delta{
			"findings": findings,
			"messages": taskgraph.Items(fmt.Sprintf("research: %d findings for %q", len(findings), query)),
		}, nil
	}
}

func summarizeNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		answer, err := complete(ctx, deps.LLM, summarizeSystem, render(summarizeUser, s, nil), false)
		if err != nil {
			return nil, fmt.Errorf("summarize: %w", err)
		}
		return taskgraph.Delta{
			"answer":   answer,
			"messages": taskgraph.Items("summarize: answer drafted"),
		}, nil
	}
}
