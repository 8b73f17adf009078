package workflows

import (
	"embed"
	"fmt"

	"github.com/randalmurphal/taskgraph/internal/tools"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
)

//go:embed definitions/*.yaml
var definitions embed.FS

// NodeRegistry returns the node implementations that YAML definitions may
// refer to with "uses".
func NodeRegistry(deps Deps) *registry.Registry[taskgraph.NodeFunc] {
	deps = deps.withDefaults()
	nodes := registry.New[taskgraph.NodeFunc]("node")
	nodes.MustRegister("calculate", calculateNode(deps.Calculator))
	if deps.LLM != nil {
		nodes.MustRegister("research", researchNode(deps))
		nodes.MustRegister("summarize", summarizeNode(deps))
		nodes.MustRegister("classify", classifyNode(deps))
		nodes.MustRegister("draft_response", draftNode(deps))
		nodes.MustRegister("doc_search", docSearchNode(deps))
	}
	nodes.MustRegister("read_email", readEmail)
	nodes.MustRegister("bug_tracking", bugTrackingNode(deps))
	nodes.MustRegister("human_review", humanReview)
	nodes.MustRegister("send_reply", sendReply)
	nodes.MustRegister("compliance", complianceNode)
	return nodes
}

// Calc builds the calculator workflow from its embedded definition.
func Calc(deps Deps) (*definition.Workflow, error) {
	data, err := definitions.ReadFile("definitions/calc.yaml")
	if err != nil {
		return nil, err
	}
	def, err := definition.Parse(data)
	if err != nil {
		return nil, err
	}
	return definition.Build(def, NodeRegistry(deps))
}

func calculateNode(calc *tools.Calculator) taskgraph.NodeFunc {
	return func(_ taskgraph.Context, s taskgraph.State) (taskgraph.Delta, error) {
		expression := s.String("expression")
		v, err := calc.Evaluate(expression)
		if err != nil {
			return nil, err
		}
		return taskgraph.Delta{
			"result": v,
			"answer": fmt.Sprintf("%s = %s", expression, tools.FormatNumber(v)),
		}, nil
	}
}
