// Package workflows builds the task-routing workflows served by
// taskgraph-server:
//
//   - research: search, then summarize the findings into an answer
//   - support: triage a customer email, draft a reply and hold it for
//     human review when needed
//   - team: a planner hands work to a researcher and a coder whose output
//     is checked by a reviewer before a synthesizer writes the answer
//   - calc: evaluate an arithmetic expression
//   - platform: route a card customer request to support, fraud and
//     account specialists, check compliance and hold risky outcomes for
//     human review
//
// Every node receives its services through Deps when the workflow is built;
// nothing is looked up globally.
package workflows
