package workflows

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/randalmurphal/taskgraph/internal/tools"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
)

// Team node names. Work stages are named after the node that produced them.
const (
	nodePlanner     = "planner"
	nodeResearcher  = "researcher"
	nodeCoder       = "coder"
	nodeReviewer    = "reviewer"
	nodeSynthesizer = "synthesizer"
)

// TeamSchema declares the team workflow state.
func TeamSchema() *taskgraph.Schema {
	return taskgraph.NewSchema().
		Overwrite("query", taskgraph.KindString).
		Overwrite("plan", taskgraph.KindString).
		Overwrite("needs_research", taskgraph.KindBool).
		Overwrite("needs_code", taskgraph.KindBool).
		Overwrite("research", taskgraph.KindString).
		Overwrite("code", taskgraph.KindString).
		Overwrite("stage", taskgraph.KindString).
		Append("completed", taskgraph.KindString).
		Append("reviews", taskgraph.KindMap).
		Overwrite("revisions", taskgraph.KindInt).
		Overwrite("answer", taskgraph.KindString).
		Append("messages", taskgraph.KindString)
}

// Team builds the planner/specialist/reviewer workflow:
//
//	planner -> {researcher | coder | synthesizer}
//	researcher, coder -> reviewer -> {researcher | coder | synthesizer | END}
//	synthesizer -> END
//
// A rejected stage goes back to its specialist. After more than
// Deps.MaxRevisions rejections the run ends with the reviewer's feedback
// as the answer.
func Team(deps Deps) (*definition.Workflow, error) {
	deps = deps.withDefaults()
	if deps.LLM == nil {
		return nil, ErrNoLLM
	}

	g := taskgraph.NewGraph(TeamSchema()).
		AddNode(nodePlanner, plannerNode(deps)).
		AddNode(nodeResearcher, researcherNode(deps)).
		AddNode(nodeCoder, coderNode(deps)).
		AddNode(nodeReviewer, reviewerNode(deps)).
		AddNode(nodeSynthesizer, synthesizerNode(deps)).
		AddConditionalEdges(nodePlanner, routeNextWork, map[string]string{
			nodeResearcher:  nodeResearcher,
			nodeCoder:       nodeCoder,
			nodeSynthesizer: nodeSynthesizer,
		}).
		AddEdge(nodeResearcher, nodeReviewer).
		AddEdge(nodeCoder, nodeReviewer).
		AddConditionalEdges(nodeReviewer, routeAfterReview(deps.MaxRevisions), map[string]string{
			nodeResearcher:  nodeResearcher,
			nodeCoder:       nodeCoder,
			nodeSynthesizer: nodeSynthesizer,
			"end":           taskgraph.END,
		}).
		AddEdge(nodeSynthesizer, taskgraph.END).
		SetEntry(nodePlanner)

	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return &definition.Workflow{
		Name:        "team",
		Description: "Plans a request, delegates research and coding, reviews the work and synthesizes an answer.",
		Graph:       compiled,
		Input:       "query",
	}, nil
}

// plannerNode falls back to an empty plan when the model fails, which
// sends the request straight to the synthesizer.
func plannerNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		text, err := complete(ctx, deps.LLM, planSystem, render(planUser, s, nil), true)
		if err == nil && !gjson.Valid(text) {
			err = errors.New("plan is not valid JSON")
		}
		if err != nil {
			ctx.Logger().Warn("planning failed", slog.String("error", err.Error()))
			return taskgraph.Delta{
				"plan":     "error creating plan: " + err.Error(),
				"messages": taskgraph.Items("planner: no plan, answering directly"),
			}, nil
		}

		plan := gjson.Parse(text)
		research, code := plan.Get("research").Bool(), plan.Get("code").Bool()
		return taskgraph.Delta{
			"plan":           plan.Get("reasoning").String(),
			"needs_research": research,
			"needs_code":     code,
			"messages":       taskgraph.Items(fmt.Sprintf("planner: research=%t code=%t", research, code)),
		}, nil
	}
}

// routeNextWork sends the run to the first planned stage not yet approved.
func routeNextWork(_ taskgraph.Context, s taskgraph.State) string {
	done := s.Strings("completed")
	switch {
	case s.Bool("needs_research") && !slices.Contains(done, nodeResearcher):
		return nodeResearcher
	case s.Bool("needs_code") && !slices.Contains(done, nodeCoder):
		return nodeCoder
	default:
		return nodeSynthesizer
	}
}

func routeAfterReview(maxRevisions int) taskgraph.RouterFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) string {
		if lastReviewApproved(s) {
			return routeNextWork(ctx, s)
		}
		if s.Int("revisions") > maxRevisions {
			return "end"
		}
		return s.String("stage")
	}
}

func lastReviewApproved(s taskgraph.State) bool {
	last, ok := s.Last("reviews")
	if !ok {
		return false
	}
	review, _ := last.(map[string]any)
	approved, _ := review["approved"].(bool)
	return approved
}

// lastFeedback returns the latest review feedback for stage, if any.
func lastFeedback(s taskgraph.State, stage string) string {
	reviews := s.List("reviews")
	for i := len(reviews) - 1; i >= 0; i-- {
		review, _ := reviews[i].(map[string]any)
		if review["stage"] == stage {
			feedback, _ := review["feedback"].(string)
			return feedback
		}
	}
	return "none"
}

func researcherNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		sources := "none"
		if deps.Search != nil {
			snippets, err := deps.Search.Search(ctx, s.String("query"), deps.SearchResults)
			if err != nil {
				ctx.Logger().Warn("web search failed", slog.String("error", err.Error()))
			} else if len(snippets) > 0 {
				sources = tools.FormatSnippets(snippets)
			}
		}

		findings, err := complete(ctx, deps.LLM, researchSystem, render(researchUser, s, map[string]any{
			"sources":  sources,
			"feedback": lastFeedback(s, nodeResearcher),
		}), false)
		if err != nil {
			return nil, fmt.Errorf("research: %w", err)
		}
		return taskgraph.Delta{
			"research": findings,
			"stage":    nodeResearcher,
			"messages": taskgraph.Items("researcher: findings ready for review"),
		}, nil
	}
}

func coderNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		code, err := complete(ctx, deps.LLM, codeSystem, render(codeUser, s, map[string]any{
			"feedback": lastFeedback(s, nodeCoder),
		}), false)
		if err != nil {
			return nil, fmt.Errorf("code: %w", err)
		}
		return taskgraph.Delta{
			"code":     code,
			"stage":    nodeCoder,
			"messages": taskgraph.Items("coder: code ready for review"),
		}, nil
	}
}

func reviewerNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		stage := s.String("stage")
		work := s.String("research")
		if stage == nodeCoder {
			work = s.String("code")
		}

		text, err := complete(ctx, deps.LLM, reviewSystem, render(reviewUser, s, map[string]any{
			"work": work,
		}), false)
		if err != nil {
			text = "REVISE\nreview error: " + err.Error()
		}
		approved, feedback := ParseVerdict(text)

		delta := taskgraph.Delta{
			"reviews": taskgraph.Items(map[string]any{
				"stage":    stage,
				"approved": approved,
				"feedback": feedback,
			}),
		}
		if approved {
			delta["completed"] = taskgraph.Items(stage)
			delta["messages"] = taskgraph.Items("reviewer: approved " + stage)
			return delta, nil
		}

		revisions := s.Int("revisions") + 1
		delta["revisions"] = revisions
		delta["messages"] = taskgraph.Items(fmt.Sprintf("reviewer: %s needs revision (%d)", stage, revisions))
		if revisions > deps.MaxRevisions {
			delta["answer"] = fmt.Sprintf("Stopped after %d revisions of %s. Last feedback: %s", revisions, stage, feedback)
		}
		return delta, nil
	}
}

// ParseVerdict reads a review reply whose first line is APPROVE or REVISE.
// Anything else counts as a request for revision.
func ParseVerdict(text string) (approved bool, feedback string) {
	text = strings.TrimSpace(text)
	first, rest, _ := strings.Cut(text, "\n")
	verdict := strings.ToUpper(strings.Trim(strings.TrimSpace(first), "*#:. "))
	feedback = strings.TrimSpace(rest)
	if feedback == "" {
		feedback = text
	}
	return strings.HasPrefix(verdict, "APPROVE"), feedback
}

func synthesizerNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		answer, err := complete(ctx, deps.LLM, synthesizeSystem, render(synthesizeUser, s, nil), false)
		if err != nil {
			return nil, fmt.Errorf("synthesize: %w", err)
		}
		return taskgraph.Delta{
			"answer":   answer,
			"messages": taskgraph.Items("synthesizer: answer ready"),
		}, nil
	}
}
