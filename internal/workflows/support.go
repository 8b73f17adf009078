package workflows

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tidwall/gjson"

	"github.com/randalmurphal/taskgraph/internal/tools"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
)

// Intents and urgencies a classification may carry.
var (
	Intents   = []string{"question", "bug", "billing", "feature", "complex"}
	Urgencies = []string{"low", "medium", "high", "critical"}
)

// Review decisions accepted on resume.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// HoldingReply is sent when there is no approved response to send.
const HoldingReply = "Thank you for contacting us. We have received your email and a member of our team will follow up shortly."

const (
	draftFallback  = "We apologize, but we could not prepare a response to your email. Our team will review it shortly."
	webResultLimit = 500
)

// SupportArticles seeds the support knowledge base.
var SupportArticles = []tools.Document{
	{ID: "password-reset", Text: "To reset your password, go to Settings > Security > Reset Password. You'll receive an email with reset instructions."},
	{ID: "export", Text: "The export feature supports PDF, CSV, and Excel formats. Click the Export button in the top menu."},
	{ID: "billing", Text: "You can view your billing information in Settings > Billing. For billing issues, contact support@example.com."},
	{ID: "api", Text: "Our API documentation is available at api.example.com/docs. API keys can be generated in Settings > API."},
}

// Classification is the triage verdict for an email.
type Classification struct {
	Intent  string
	Urgency string
	Topic   string
	Summary string
}

// ParseClassification reads a classification from a model's JSON reply.
func ParseClassification(text string) (Classification, error) {
	if !gjson.Valid(text) {
		return Classification{}, errors.New("classification is not valid JSON")
	}
	c := Classification{
		Intent:  strings.ToLower(gjson.Get(text, "intent").String()),
		Urgency: strings.ToLower(gjson.Get(text, "urgency").String()),
		Topic:   gjson.Get(text, "topic").String(),
		Summary: gjson.Get(text, "summary").String(),
	}
	if !slices.Contains(Intents, c.Intent) {
		return Classification{}, fmt.Errorf("unknown intent %q", c.Intent)
	}
	if !slices.Contains(Urgencies, c.Urgency) {
		return Classification{}, fmt.Errorf("unknown urgency %q", c.Urgency)
	}
	return c, nil
}

// Map returns the classification as stored in state.
func (c Classification) Map() map[string]any {
	return map[string]any{
		"intent":  c.Intent,
		"urgency": c.Urgency,
		"topic":   c.Topic,
		"summary": c.Summary,
	}
}

func classificationFrom(s taskgraph.State) (Classification, bool) {
	m := s.Map("classification")
	if len(m) == 0 {
		return Classification{}, false
	}
	str := func(k string) string {
		v, _ := m[k].(string)
		return v
	}
	return Classification{Intent: str("intent"), Urgency: str("urgency"), Topic: str("topic"), Summary: str("summary")}, true
}

// NeedsReview reports whether a reply must be approved by a person.
func (c Classification) NeedsReview() bool {
	return c.Urgency == "critical" || c.Intent == "complex" || c.Intent == "billing"
}

// SupportSchema declares the support workflow state.
func SupportSchema() *taskgraph.Schema {
	return taskgraph.NewSchema().
		Overwrite("email_id", taskgraph.KindString).
		Overwrite("sender_email", taskgraph.KindString).
		Overwrite("email_content", taskgraph.KindString).
		Overwrite("classification", taskgraph.KindMap).
		Append("search_results", taskgraph.KindString).
		Overwrite("bug_ticket_id", taskgraph.KindString).
		Overwrite("draft_response", taskgraph.KindString).
		Overwrite("requires_review", taskgraph.KindBool).
		Overwrite("review_decision", taskgraph.KindString).
		Overwrite("edited_response", taskgraph.KindString).
		Overwrite("approved", taskgraph.KindBool).
		Overwrite("final_response", taskgraph.KindString).
		Append("messages", taskgraph.KindString).
		Append("errors", taskgraph.KindString)
}

// Support builds the email triage workflow:
//
//	read_email -> classify -> {doc_search | bug_tracking | human_review | draft_response}
//	doc_search, bug_tracking -> draft_response -> human_review -> send_reply -> END
//
// human_review suspends the run until a review_decision is supplied,
// unless the reply can be sent without approval.
func Support(deps Deps) (*definition.Workflow, error) {
	deps = deps.withDefaults()
	if deps.LLM == nil {
		return nil, ErrNoLLM
	}

	g := taskgraph.NewGraph(SupportSchema()).
		AddNode("read_email", readEmail).
		AddNode("classify", classifyNode(deps)).
		AddNode("doc_search", docSearchNode(deps)).
		AddNode("bug_tracking", bugTrackingNode(deps)).
		AddNode("draft_response", draftNode(deps)).
		AddNode("human_review", humanReview).
		AddNode("send_reply", sendReply).
		AddEdge("read_email", "classify").
		AddConditionalEdges("classify", RouteAfterClassify, map[string]string{
			"doc_search":     "doc_search",
			"bug_tracking":   "bug_tracking",
			"human_review":   "human_review",
			"draft_response": "draft_response",
		}).
		AddEdge("doc_search", "draft_response").
		AddEdge("bug_tracking", "draft_response").
		AddEdge("draft_response", "human_review").
		AddEdge("human_review", "send_reply").
		AddEdge("send_reply", taskgraph.END).
		SetEntry("read_email")

	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return &definition.Workflow{
		Name:        "support",
		Description: "Triages a customer email and drafts a reply, suspending for human review when required.",
		Graph:       compiled,
		Input:       "email_content",
	}, nil
}

func readEmail(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	content := strings.TrimSpace(s.String("email_content"))
	if content == "" {
		return taskgraph.Delta{"errors": taskgraph.Items("no email content provided")}, nil
	}
	ctx.Logger().Debug("email received",
		slog.String("email_id", s.String("email_id")),
		slog.String("sender", s.String("sender_email")))
	return taskgraph.Delta{
		"messages": taskgraph.Items(fmt.Sprintf("email from %s: %s", s.String("sender_email"), content)),
	}, nil
}

// classifyNode never fails: a model error or an unusable reply becomes a
// complex/high classification so the email reaches a person.
func classifyNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		text, err := complete(ctx, deps.LLM, classifySystem, render(classifyUser, s, nil), true)
		var c Classification
		if err == nil {
			c, err = ParseClassification(text)
		}
		if err != nil {
			msg := "classification error: " + err.Error()
			ctx.Logger().Warn("classification failed, escalating", slog.String("error", err.Error()))
			return taskgraph.Delta{
				"classification": Classification{Intent: "complex", Urgency: "high", Topic: "error", Summary: msg}.Map(),
				"errors":         taskgraph.Items(msg),
			}, nil
		}
		return taskgraph.Delta{
			"classification": c.Map(),
			"messages": taskgraph.Items(fmt.Sprintf("classification: %s (%s urgency) - %s",
				c.Intent, c.Urgency, c.Summary)),
		}, nil
	}
}

// RouteAfterClassify picks the next support step from the classification.
// An email without a classification goes to human review.
func RouteAfterClassify(_ taskgraph.Context, s taskgraph.State) string {
	c, ok := classificationFrom(s)
	switch {
	case !ok:
		return "human_review"
	case c.Intent == "bug":
		return "bug_tracking"
	case c.Urgency == "critical" || c.Intent == "complex":
		return "human_review"
	case c.Intent == "question":
		return "doc_search"
	default:
		return "draft_response"
	}
}

// docSearchNode looks in the knowledge base first and falls back to the web.
// Search failures are logged, not fatal; the draft is written without them.
func docSearchNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		c, _ := classificationFrom(s)
		query := strings.TrimSpace(c.Topic + " " + s.String("email_content"))

		var results []string
		if deps.Knowledge != nil {
			matches, err := deps.Knowledge.Search(ctx, query, 3)
			if err != nil {
				ctx.Logger().Warn("knowledge search failed", slog.String("error", err.Error()))
			}
			for _, m := range matches {
				if m.Score >= minRelevance {
					results = append(results, m.Document.Text)
				}
			}
		}

		if len(results) == 0 && deps.Search != nil {
			snippets, err := deps.Search.Search(ctx, strings.TrimSpace(c.Topic+" "+c.Summary), deps.SearchResults)
			if err != nil {
				ctx.Logger().Warn("web search failed", slog.String("error", err.Error()))
			} else if len(snippets) > 0 {
				results = append(results, truncate(tools.FormatSnippets(snippets), webResultLimit))
			}
		}

		msg := "no relevant documentation found"
		if len(results) > 0 {
			msg = fmt.Sprintf("found %d relevant documentation results", len(results))
		}
		return taskgraph.Delta{"search_results": results, "messages": taskgraph.Items(msg)}, nil
	}
}

func bugTrackingNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		id := TicketID(s.String("email_content"), deps.Now().Format("20060102"))
		ctx.Logger().Info("bug ticket created",
			slog.String("ticket_id", id),
			slog.String("reporter", s.String("sender_email")))
		return taskgraph.Delta{
			"bug_ticket_id": id,
			"messages":      taskgraph.Items("bug ticket created: " + id),
		}, nil
	}
}

// TicketID derives a stable ticket identifier from the report and a date.
func TicketID(report, date string) string {
	return fmt.Sprintf("BUG-%s-%04d", date, xxhash.Sum64String(report)%10000)
}

func draftNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		draft, err := complete(ctx, deps.LLM, draftSystem, render(draftUser, s, nil), false)
		if err != nil {
			msg := "response drafting error: " + err.Error()
			ctx.Logger().Warn("drafting failed", slog.String("error", err.Error()))
			return taskgraph.Delta{"draft_response": draftFallback, "errors": taskgraph.Items(msg)}, nil
		}
		return taskgraph.Delta{
			"draft_response": draft,
			"messages":       taskgraph.Items(fmt.Sprintf("draft response generated (%d characters)", len(draft))),
		}, nil
	}
}

// humanReview approves replies that need no review and otherwise suspends
// until review_decision is set by the resuming caller.
func humanReview(_ taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	c, classified := classificationFrom(s)
	required := !classified || c.NeedsReview() || s.String("draft_response") == ""
	if !required {
		return taskgraph.Delta{
			"requires_review": false,
			"approved":        true,
			"messages":        taskgraph.Items("review: auto-approved"),
		}, nil
	}

	switch decision := s.String("review_decision"); decision {
	case "":
		return nil, taskgraph.Interrupt("awaiting human review")
	case DecisionApprove, DecisionReject:
		return taskgraph.Delta{
			"requires_review": true,
			"approved":        decision == DecisionApprove,
			"messages":        taskgraph.Items("review: " + decision),
		}, nil
	default:
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}
}

func sendReply(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	reply := HoldingReply
	if s.Bool("approved") {
		switch {
		case s.String("edited_response") != "":
			reply = s.String("edited_response")
		case s.String("draft_response") != "":
			reply = s.String("draft_response")
		}
	}
	ctx.Logger().Info("reply sent",
		slog.String("email_id", s.String("email_id")),
		slog.String("to", s.String("sender_email")))
	return taskgraph.Delta{
		"final_response": reply,
		"messages":       taskgraph.Items("reply sent to " + s.String("sender_email")),
	}, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
