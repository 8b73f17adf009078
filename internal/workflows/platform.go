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

// Request types the platform planner assigns.
const (
	RequestSupport = "support"
	RequestFraud   = "fraud"
	RequestAccount = "account"
	RequestMulti   = "multi"
)

// Platform node names. Specialists are also the agent names a plan lists.
const (
	nodePlatformPlanner = "planner"
	agentSupport        = "support"
	agentFraud          = "fraud"
	agentAccountIntel   = "account_intel"
	nodeCompliance      = "compliance"
	nodePlatformReview  = "reviewer"
	nodeHumanReview     = "human_review"
	nodeSynthesize      = "synthesize"
)

// Specialists lists the agents a plan may require, in the order they run.
var Specialists = []string{agentSupport, agentFraud, agentAccountIntel}

const (
	fraudHistoryDays   = 30
	accountHistoryDays = 90
	// PlatformJurisdiction selects the regulations cited by compliance.
	PlatformJurisdiction = "US"
)

// PlatformFallback is the reply when no specialist produced anything.
const PlatformFallback = "Thank you for your inquiry. We're processing your request."

// Plan is the planner's routing decision.
type Plan struct {
	RequestType string
	Priority    string
	Agents      []string
	Reasoning   string
}

// KeywordPlan routes a request by keywords. It is used when the model
// cannot produce a plan.
func KeywordPlan(query string) Plan {
	q := strings.ToLower(query)
	has := func(words ...string) bool {
		return slices.ContainsFunc(words, func(w string) bool { return strings.Contains(q, w) })
	}
	switch {
	case has("fraud", "unauthorized", "stolen"):
		return Plan{RequestType: RequestFraud, Priority: "high", Agents: []string{agentFraud}, Reasoning: "keyword routing: fraud"}
	case has("spending", "rewards", "insights"):
		return Plan{RequestType: RequestAccount, Priority: "medium", Agents: []string{agentAccountIntel}, Reasoning: "keyword routing: account"}
	case has("dispute", "charge"):
		return Plan{RequestType: RequestMulti, Priority: "high", Agents: []string{agentSupport, agentFraud}, Reasoning: "keyword routing: dispute"}
	default:
		return Plan{RequestType: RequestSupport, Priority: "medium", Agents: []string{agentSupport}, Reasoning: "keyword routing: support"}
	}
}

// ParsePlan reads a plan from a model's JSON reply. Agents outside
// Specialists are dropped; compliance always runs and need not be listed.
// A plan without agents gets the default agents for its request type.
func ParsePlan(text string) (Plan, error) {
	if !gjson.Valid(text) {
		return Plan{}, errors.New("plan is not valid JSON")
	}
	p := Plan{
		RequestType: strings.ToLower(gjson.Get(text, "request_type").String()),
		Priority:    strings.ToLower(gjson.Get(text, "priority").String()),
		Reasoning:   gjson.Get(text, "reasoning").String(),
	}
	if !slices.Contains([]string{RequestSupport, RequestFraud, RequestAccount, RequestMulti}, p.RequestType) {
		return Plan{}, fmt.Errorf("unknown request type %q", p.RequestType)
	}
	if !slices.Contains(Urgencies, p.Priority) {
		return Plan{}, fmt.Errorf("unknown priority %q", p.Priority)
	}
	for _, a := range gjson.Get(text, "required_agents").Array() {
		agent := strings.ToLower(a.String())
		if slices.Contains(Specialists, agent) && !slices.Contains(p.Agents, agent) {
			p.Agents = append(p.Agents, agent)
		}
	}
	if len(p.Agents) == 0 {
		p.Agents = defaultAgents(p.RequestType)
	}
	return p, nil
}

func defaultAgents(requestType string) []string {
	switch requestType {
	case RequestFraud:
		return []string{agentFraud}
	case RequestAccount:
		return []string{agentAccountIntel}
	case RequestMulti:
		return []string{agentSupport, agentFraud}
	default:
		return []string{agentSupport}
	}
}

// PlatformSchema declares the banking platform workflow state.
func PlatformSchema() *taskgraph.Schema {
	return taskgraph.NewSchema().
		Overwrite("customer_id", taskgraph.KindString).
		Overwrite("query", taskgraph.KindString).
		Overwrite("request_type", taskgraph.KindString).
		Overwrite("priority", taskgraph.KindString).
		Overwrite("plan", taskgraph.KindString).
		Append("required_agents", taskgraph.KindString).
		Append("completed", taskgraph.KindString).
		Overwrite("support_result", taskgraph.KindString).
		Overwrite("fraud_result", taskgraph.KindMap).
		Overwrite("account_result", taskgraph.KindMap).
		Overwrite("compliance_result", taskgraph.KindMap).
		Append("risk_scores", taskgraph.KindFloat).
		Append("compliance_checks", taskgraph.KindMap).
		Overwrite("compliance_status", taskgraph.KindString).
		Overwrite("requires_review", taskgraph.KindBool).
		Overwrite("review_decision", taskgraph.KindString).
		Overwrite("human_notes", taskgraph.KindString).
		Overwrite("approved", taskgraph.KindBool).
		Overwrite("review_rounds", taskgraph.KindInt).
		Overwrite("disputes_this_month", taskgraph.KindInt).
		Overwrite("reward_points", taskgraph.KindInt).
		Overwrite("final_response", taskgraph.KindString).
		Append("recommendations", taskgraph.KindString).
		Append("messages", taskgraph.KindString).
		Append("errors", taskgraph.KindString)
}

// Platform builds the card services workflow:
//
//	planner -> {support | fraud | account_intel}
//	each specialist -> {next required specialist | compliance}
//	compliance -> reviewer -> {human_review | synthesize}
//	human_review -> {synthesize | reviewer}
//	synthesize -> END
//
// human_review suspends the run until a review_decision is supplied. A
// rejection goes back to the reviewer, which suspends again for a new
// decision.
func Platform(deps Deps) (*definition.Workflow, error) {
	deps = deps.withDefaults()
	if deps.LLM == nil {
		return nil, ErrNoLLM
	}

	specialists := map[string]string{
		agentSupport:      agentSupport,
		agentFraud:        agentFraud,
		agentAccountIntel: agentAccountIntel,
		nodeCompliance:    nodeCompliance,
	}
	g := taskgraph.NewGraph(PlatformSchema()).
		AddNode(nodePlatformPlanner, platformPlannerNode(deps)).
		AddNode(agentSupport, supportAgentNode(deps)).
		AddNode(agentFraud, fraudAgentNode(deps)).
		AddNode(agentAccountIntel, accountIntelNode(deps)).
		AddNode(nodeCompliance, complianceNode).
		AddNode(nodePlatformReview, platformReviewer).
		AddNode(nodeHumanReview, platformHumanReview).
		AddNode(nodeSynthesize, synthesizePlatform).
		AddConditionalEdges(nodePlatformPlanner, routeNextAgent, specialists).
		AddConditionalEdges(agentSupport, routeNextAgent, specialists).
		AddConditionalEdges(agentFraud, routeNextAgent, specialists).
		AddConditionalEdges(agentAccountIntel, routeNextAgent, specialists).
		AddEdge(nodeCompliance, nodePlatformReview).
		AddConditionalEdges(nodePlatformReview, routeAfterPlatformReview, map[string]string{
			nodeHumanReview: nodeHumanReview,
			nodeSynthesize:  nodeSynthesize,
		}).
		AddConditionalEdges(nodeHumanReview, routeAfterHumanReview, map[string]string{
			nodeSynthesize:     nodeSynthesize,
			nodePlatformReview: nodePlatformReview,
		}).
		AddEdge(nodeSynthesize, taskgraph.END).
		SetEntry(nodePlatformPlanner)

	compiled, err := g.Compile()
	if err != nil {
		return nil, err
	}
	return &definition.Workflow{
		Name:        "platform",
		Description: "Routes a card customer request to support, fraud and account specialists, checks compliance and holds risky outcomes for human review.",
		Graph:       compiled,
		Input:       "query",
	}, nil
}

// platformPlannerNode never fails: without a usable model plan the request
// is routed by keywords.
func platformPlannerNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		text, err := complete(ctx, deps.LLM, platformPlanSystem, render(platformPlanUser, s, nil), true)
		var plan Plan
		if err == nil {
			plan, err = ParsePlan(text)
		}
		delta := taskgraph.Delta{}
		if err != nil {
			ctx.Logger().Warn("planning failed, routing by keywords", slog.String("error", err.Error()))
			plan = KeywordPlan(s.String("query"))
			delta["errors"] = taskgraph.Items("planning error: " + err.Error())
		}

		ctx.Logger().Info("request planned",
			slog.String("customer_id", s.String("customer_id")),
			slog.String("request_type", plan.RequestType),
			slog.String("priority", plan.Priority),
			slog.Any("agents", plan.Agents))
		delta["request_type"] = plan.RequestType
		delta["priority"] = plan.Priority
		delta["plan"] = plan.Reasoning
		delta["required_agents"] = plan.Agents
		delta["messages"] = taskgraph.Items(fmt.Sprintf("planner: %s request, %s priority, agents %s",
			plan.RequestType, plan.Priority, strings.Join(plan.Agents, ", ")))
		return delta, nil
	}
}

// routeNextAgent sends the run to the first required specialist that has
// not run yet, then to compliance.
func routeNextAgent(_ taskgraph.Context, s taskgraph.State) string {
	done := s.Strings("completed")
	required := s.Strings("required_agents")
	for _, agent := range Specialists {
		if slices.Contains(required, agent) && !slices.Contains(done, agent) {
			return agent
		}
	}
	return nodeCompliance
}

// supportAgentNode answers from the knowledge base when one is configured.
func supportAgentNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		documents := []string{}
		if deps.Knowledge != nil {
			matches, err := deps.Knowledge.Search(ctx, s.String("query"), 3)
			if err != nil {
				ctx.Logger().Warn("knowledge search failed", slog.String("error", err.Error()))
			}
			for _, m := range matches {
				if m.Score >= minRelevance {
					documents = append(documents, m.Document.Text)
				}
			}
		}

		reply, err := complete(ctx, deps.LLM, platformSupportSystem, render(platformSupportUser, s, map[string]any{
			"documents": documents,
		}), false)
		delta := taskgraph.Delta{"completed": taskgraph.Items(agentSupport)}
		if err != nil {
			ctx.Logger().Warn("support agent failed", slog.String("error", err.Error()))
			delta["errors"] = taskgraph.Items("support agent error: " + err.Error())
			delta["messages"] = taskgraph.Items("support: no response")
			return delta, nil
		}
		delta["support_result"] = reply
		delta["messages"] = taskgraph.Items("support: response ready")
		return delta, nil
	}
}

// fraudAgentNode scores the transaction referenced in the request against
// the last month of activity. A score of HighRiskScore or more needs a
// person.
func fraudAgentNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		customer := s.String("customer_id")
		delta := taskgraph.Delta{"completed": taskgraph.Items(agentFraud)}
		var problems []string

		history, err := deps.Ledger.History(ctx, customer, fraudHistoryDays)
		if err != nil {
			ctx.Logger().Warn("transaction history unavailable", slog.String("error", err.Error()))
			problems = append(problems, "fraud history error: "+err.Error())
		}
		patterns := tools.AnalyzePatterns(history)
		result := map[string]any{"patterns": patternMap(patterns)}

		var recommendations []string
		if id := tools.TransactionID(s.String("query")); id != "" {
			txn, err := deps.Ledger.Transaction(ctx, customer, id)
			if err != nil {
				ctx.Logger().Warn("transaction lookup failed", slog.String("transaction_id", id), slog.String("error", err.Error()))
				problems = append(problems, "fraud transaction error: "+err.Error())
			} else {
				risk := tools.ScoreRisk(txn, history)
				result["transaction"] = transactionMap(txn)
				result["risk"] = riskMap(risk)
				delta["risk_scores"] = taskgraph.Items(float64(risk.Score))
				if risk.Score >= tools.HighRiskScore {
					delta["requires_review"] = true
					recommendations = append(recommendations, "Requires immediate human review")
				}
				ctx.Logger().Info("transaction scored",
					slog.String("transaction_id", id),
					slog.Int("risk_score", risk.Score),
					slog.String("risk_level", risk.Level))
			}
		}

		analysis, err := complete(ctx, deps.LLM, fraudSystem, render(fraudUser, s, map[string]any{
			"history": patternSummary(patterns),
			"risk":    result["risk"],
		}), false)
		if err != nil {
			ctx.Logger().Warn("fraud analysis failed", slog.String("error", err.Error()))
			problems = append(problems, "fraud analysis error: "+err.Error())
		} else {
			result["analysis"] = analysis
		}

		delta["fraud_result"] = result
		delta["messages"] = taskgraph.Items(fmt.Sprintf("fraud: %d transactions reviewed", patterns.Transactions))
		if len(recommendations) > 0 {
			delta["recommendations"] = recommendations
		}
		if len(problems) > 0 {
			delta["errors"] = problems
		}
		return delta, nil
	}
}

// accountIntelNode summarises the last quarter of spending and values the
// customer's reward points when the request asks about them.
func accountIntelNode(deps Deps) taskgraph.NodeFunc {
	return func(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		query := strings.ToLower(s.String("query"))
		delta := taskgraph.Delta{"completed": taskgraph.Items(agentAccountIntel)}
		var problems, recommendations []string

		history, err := deps.Ledger.History(ctx, s.String("customer_id"), accountHistoryDays)
		if err != nil {
			ctx.Logger().Warn("transaction history unavailable", slog.String("error", err.Error()))
			problems = append(problems, "account history error: "+err.Error())
		}
		patterns := tools.AnalyzePatterns(history)
		result := map[string]any{"patterns": patternMap(patterns)}

		if strings.Contains(query, "rewards") || strings.Contains(query, "points") {
			rewards := tools.Rewards(s.Int("reward_points"), topCategory(patterns))
			result["rewards"] = map[string]any{
				"points":     rewards.Points,
				"category":   rewards.Category,
				"multiplier": rewards.Multiplier,
				"cash_value": rewards.CashValue,
				"travel":     rewards.Travel,
				"gift_cards": rewards.GiftCards,
			}
		}
		if strings.Contains(query, "travel") {
			recommendations = append(recommendations, "Consider using points for travel to maximize value (1.5x multiplier)")
		}
		if len(patterns.Anomalies) > 0 {
			recommendations = append(recommendations, "Review unusual transactions for accuracy")
		}

		insights, err := complete(ctx, deps.LLM, insightsSystem, render(insightsUser, s, map[string]any{
			"history": patternSummary(patterns),
			"rewards": result["rewards"],
		}), false)
		if err != nil {
			ctx.Logger().Warn("insights failed", slog.String("error", err.Error()))
			problems = append(problems, "account insights error: "+err.Error())
		} else {
			result["insights"] = insights
		}

		delta["account_result"] = result
		delta["messages"] = taskgraph.Items(fmt.Sprintf("account intel: %d transactions, %d anomalies",
			patterns.Transactions, len(patterns.Anomalies)))
		if len(recommendations) > 0 {
			delta["recommendations"] = recommendations
		}
		if len(problems) > 0 {
			delta["errors"] = problems
		}
		return delta, nil
	}
}

// complianceNode validates the action the request asks for. The customer
// ID stands in for the account ID and the request text for the reason.
func complianceNode(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	query := s.String("query")
	action := tools.DetectAction(query)
	facts := map[string]any{
		"customer_id":              s.String("customer_id"),
		"account_id":               s.String("customer_id"),
		"transaction_id":           tools.TransactionID(query),
		"reason":                   query,
		"dispute_count_this_month": s.Int("disputes_this_month"),
	}
	check := tools.ValidateCompliance(action, facts, PlatformJurisdiction)

	regs := check.Regulations
	if slices.Contains(s.Strings("completed"), agentFraud) {
		regs = append(regs, tools.Regulations("fraud_detection", PlatformJurisdiction)...)
	}
	result := map[string]any{
		"action":                check.Action,
		"compliant":             check.Compliant,
		"violations":            check.Violations,
		"requires_human_review": check.RequiresReview,
		"regulations":           regs,
	}

	status := "passed"
	if !check.Compliant {
		status = "failed"
		ctx.Logger().Warn("compliance check failed",
			slog.String("action", action),
			slog.Any("violations", check.Violations))
	}
	delta := taskgraph.Delta{
		"compliance_result": result,
		"compliance_checks": taskgraph.Items(result),
		"compliance_status": status,
		"completed":         taskgraph.Items(nodeCompliance),
		"messages":          taskgraph.Items(fmt.Sprintf("compliance: %s %s", action, status)),
	}
	if check.RequiresReview {
		delta["requires_review"] = true
	}
	return delta, nil
}

// NeedsHumanReview reports whether a platform run must be approved by a
// person.
func NeedsHumanReview(s taskgraph.State) bool {
	if s.Bool("requires_review") || s.String("compliance_status") == "failed" {
		return true
	}
	if p := s.String("priority"); p == "high" || p == "critical" {
		return true
	}
	return slices.ContainsFunc(s.List("risk_scores"), func(v any) bool {
		score, _ := v.(float64)
		return score >= tools.HighRiskScore
	})
}

func platformReviewer(_ taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	if NeedsHumanReview(s) {
		return taskgraph.Delta{
			"requires_review": true,
			"messages":        taskgraph.Items("reviewer: human review required"),
		}, nil
	}
	return taskgraph.Delta{
		"approved": true,
		"messages": taskgraph.Items("reviewer: auto-approved"),
	}, nil
}

func routeAfterPlatformReview(_ taskgraph.Context, s taskgraph.State) string {
	if s.Bool("requires_review") && !s.Bool("approved") {
		return nodeHumanReview
	}
	return nodeSynthesize
}

// platformHumanReview suspends until review_decision is set. A rejection
// clears the decision so the next pass suspends again.
func platformHumanReview(_ taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	switch decision := s.String("review_decision"); decision {
	case "":
		return nil, taskgraph.Interrupt("awaiting human review")
	case DecisionApprove:
		return taskgraph.Delta{
			"approved": true,
			"messages": taskgraph.Items("human review: approved"),
		}, nil
	case DecisionReject:
		rounds := s.Int("review_rounds") + 1
		return taskgraph.Delta{
			"approved":        false,
			"review_decision": "",
			"review_rounds":   rounds,
			"messages":        taskgraph.Items(fmt.Sprintf("human review: rejected (round %d)", rounds)),
		}, nil
	default:
		return nil, fmt.Errorf("unknown review decision %q", decision)
	}
}

func routeAfterHumanReview(_ taskgraph.Context, s taskgraph.State) string {
	if s.Bool("approved") {
		return nodeSynthesize
	}
	return nodePlatformReview
}

func synthesizePlatform(ctx taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
	var parts []string
	if r := s.String("support_result"); r != "" {
		parts = append(parts, "Support Response: "+r)
	}
	if a, _ := s.Map("fraud_result")["analysis"].(string); a != "" {
		parts = append(parts, "Fraud Analysis: "+a)
	}
	if i, _ := s.Map("account_result")["insights"].(string); i != "" {
		parts = append(parts, "Account Insights: "+i)
	}
	if recs := s.Strings("recommendations"); len(recs) > 0 {
		parts = append(parts, "Recommendations: "+strings.Join(recs, "; "))
	}

	response := PlatformFallback
	if len(parts) > 0 {
		response = strings.Join(parts, "\n\n")
	}
	ctx.Logger().Info("response ready",
		slog.String("customer_id", s.String("customer_id")),
		slog.String("request_type", s.String("request_type")),
		slog.Bool("reviewed", s.Bool("requires_review")))
	return taskgraph.Delta{
		"final_response": response,
		"messages":       taskgraph.Items("synthesize: response ready"),
	}, nil
}

func topCategory(p tools.PatternReport) string {
	top, spent := "other", 0.0
	for category, amount := range p.Categories {
		if amount > spent || (amount == spent && category < top) {
			top, spent = category, amount
		}
	}
	return top
}

func patternSummary(p tools.PatternReport) string {
	if p.Transactions == 0 {
		return "no recent transactions"
	}
	return fmt.Sprintf("%d transactions, $%.2f total, $%.2f average, %d anomalies",
		p.Transactions, p.Spending, p.Average, len(p.Anomalies))
}

func patternMap(p tools.PatternReport) map[string]any {
	categories := make(map[string]any, len(p.Categories))
	for k, v := range p.Categories {
		categories[k] = v
	}
	anomalies := make([]any, 0, len(p.Anomalies))
	for _, a := range p.Anomalies {
		anomalies = append(anomalies, map[string]any{
			"transaction_id": a.TransactionID,
			"amount":         a.Amount,
			"average":        a.Average,
		})
	}
	return map[string]any{
		"total_transactions":  p.Transactions,
		"total_spending":      p.Spending,
		"average_transaction": p.Average,
		"category_breakdown":  categories,
		"anomalies":           anomalies,
	}
}

func transactionMap(t tools.Transaction) map[string]any {
	return map[string]any{
		"transaction_id": t.ID,
		"merchant":       t.Merchant,
		"amount":         t.Amount,
		"category":       t.Category,
		"location":       t.Location,
		"date":           t.Date.Format("2006-01-02"),
	}
}

func riskMap(r tools.RiskAssessment) map[string]any {
	return map[string]any{
		"risk_score":         r.Score,
		"risk_level":         r.Level,
		"flags":              r.Flags,
		"recommended_action": r.Action,
		"confidence":         r.Confidence,
	}
}
