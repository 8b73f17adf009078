package workflows

import (
	"maps"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/template"
)

// prompts renders ${field} placeholders against the run state. Long lists
// keep only their most recent entries.
var prompts = template.NewExpander(template.WithMaxItems(12))

const summarizeSystem = `You are a research assistant. Answer the question using only the findings provided. If they are insufficient, say what is missing.`

const summarizeUser = `Question: ${query}

Findings:
${findings}`

const classifySystem = `You are an email classification system for customer support.

Classify the email into one intent:
- "question": product questions answerable from documentation
- "bug": reports of software bugs or errors
- "billing": billing, payment or subscription issues
- "feature": feature requests or suggestions
- "complex": technical issues that need human expertise

Urgency is one of "low", "medium", "high", "critical".

Respond with a JSON object with the keys intent, urgency, topic and summary.`

const classifyUser = `From: ${sender_email}
Content: ${email_content}`

const draftSystem = `You are a professional customer support agent. Draft a helpful, empathetic reply.
Address the concern directly, use the documentation when available, include bug ticket numbers, and match the urgency in your tone. If information is missing, acknowledge it and offer next steps.`

const draftUser = `Original email:
${email_content}

Classification:
- Intent: ${classification.intent}
- Urgency: ${classification.urgency}
- Topic: ${classification.topic}
- Summary: ${classification.summary}

Documentation:
${search_results}

Bug ticket: ${bug_ticket_id}`

const planSystem = `You are a planning agent. Decide which specialists a request needs.
Respond with a JSON object: {"research": bool, "code": bool, "reasoning": string}.
Set research when information must be gathered and code when code must be written.`

const planUser = `Request: ${query}`

const researchSystem = `You are a research specialist. Produce concise, factual findings for the request. Address any reviewer feedback.`

const researchUser = `Request: ${query}

Search results:
${sources}

Reviewer feedback:
${feedback}`

const codeSystem = `You are a senior software engineer. Write the code the request asks for with a short explanation. Use the research when relevant and address any reviewer feedback.`

const codeUser = `Request: ${query}

Research:
${research}

Reviewer feedback:
${feedback}`

const reviewSystem = `You are a quality reviewer. Check the work for accuracy, completeness and alignment with the request.
Start your reply with APPROVE or REVISE on its own line, followed by your feedback.`

const reviewUser = `Request: ${query}

Work (${stage}):
${work}`

const synthesizeSystem = `You combine specialist output into a single, well-organised answer for the user.`

const synthesizeUser = `Request: ${query}

Plan: ${plan}

Research:
${research}

Code:
${code}`

const platformPlanSystem = `You are the planner for a card services platform. Decide how to handle a customer request.
Request types: "support" (general questions), "fraud" (suspicious or unauthorized activity), "account" (spending, rewards and insights), "multi" (disputes and anything needing several specialists).
Agents: "support", "fraud", "account_intel". Compliance always runs.
Respond with a JSON object: {"request_type": string, "priority": "low"|"medium"|"high"|"critical", "required_agents": [string], "reasoning": string}.`

const platformPlanUser = `Customer: ${customer_id}
Request: ${query}`

const platformSupportSystem = `You are a card services support agent. Answer the customer clearly and professionally. Never promise refunds or credits; say what happens next instead.`

const platformSupportUser = `Customer: ${customer_id}
Request: ${query}

Policy documents:
${documents}`

const fraudSystem = `You are a fraud analyst. Explain the risk assessment in plain language and recommend next steps for the customer and the bank.`

const fraudUser = `Request: ${query}

Recent activity: ${history}

Risk assessment:
${risk}`

const insightsSystem = `You are an account insights specialist. Summarise the customer's spending and suggest practical ways to get more value from their card.`

const insightsUser = `Request: ${query}

Spending: ${history}

Rewards:
${rewards}`

// render expands tmpl against the state with extra values layered on top.
func render(tmpl string, s taskgraph.State, extra map[string]any) string {
	vars := s.Snapshot()
	maps.Copy(vars, extra)
	out, _ := prompts.Expand(tmpl, vars)
	return out
}
