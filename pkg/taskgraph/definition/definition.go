// Package definition loads workflow graphs from YAML documents.
//
// A definition declares the state schema, names the node implementations to
// use, and wires them with fixed edges and expression routes:
//
//	name: triage
//	entry: classify
//	input: ticket
//	fields:
//	  - {name: ticket, kind: string}
//	  - {name: urgency, kind: string}
//	  - {name: notes, kind: string, strategy: append}
//	nodes:
//	  - {name: classify}
//	  - {name: escalate, uses: page_oncall}
//	  - {name: reply}
//	edges:
//	  - {from: escalate, to: END}
//	  - {from: reply, to: END}
//	routes:
//	  - from: classify
//	    cases:
//	      - {when: 'urgency == "critical"', to: escalate}
//	    default: reply
//
// Documents are validated against an embedded JSON Schema before they are
// built. Node implementations are resolved by name through a
// registry.Registry. Route conditions are expr-lang expressions evaluated
// against a snapshot of the state; the first true case wins.
package definition

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is a parsed workflow document. Input optionally names the
// field that receives a request's query.
type Definition struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Entry       string      `yaml:"entry" json:"entry"`
	Input       string      `yaml:"input,omitempty" json:"input,omitempty"`
	MaxSteps    int         `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`
	ErrorField  string      `yaml:"error_field,omitempty" json:"error_field,omitempty"`
	Fields      []FieldSpec `yaml:"fields" json:"fields"`
	Nodes       []NodeSpec  `yaml:"nodes" json:"nodes"`
	Edges       []EdgeSpec  `yaml:"edges,omitempty" json:"edges,omitempty"`
	Routes      []RouteSpec `yaml:"routes,omitempty" json:"routes,omitempty"`
}

// FieldSpec declares a state field.
type FieldSpec struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"`
	// Strategy is "overwrite" (default) or "append".
	Strategy string `yaml:"strategy,omitempty" json:"strategy,omitempty"`
	Default  any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// NodeSpec places a registered node implementation in the graph.
type NodeSpec struct {
	Name string `yaml:"name" json:"name"`
	// Uses names the registered implementation; defaults to Name.
	Uses string `yaml:"uses,omitempty" json:"uses,omitempty"`
	// OnError routes failures of this node to another node.
	OnError string `yaml:"on_error,omitempty" json:"on_error,omitempty"`
}

// EdgeSpec is a fixed edge. To may be "END".
type EdgeSpec struct {
	From string `yaml:"from" json:"from"`
	To   string `yaml:"to" json:"to"`
}

// RouteSpec is a conditional edge.
type RouteSpec struct {
	From    string     `yaml:"from" json:"from"`
	Cases   []CaseSpec `yaml:"cases" json:"cases"`
	Default string     `yaml:"default,omitempty" json:"default,omitempty"`
}

// CaseSpec is one route condition.
type CaseSpec struct {
	When string `yaml:"when" json:"when"`
	To   string `yaml:"to" json:"to"`
}

// Parse decodes and validates a YAML document.
func Parse(data []byte) (*Definition, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := Validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("decode definition: %w", err)
	}
	return &def, nil
}

// ParseFile reads and parses the document at path.
func ParseFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}
