package definition

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "https://taskgraph.dev/schemas/definition.json"

var definitionSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		panic(fmt.Sprintf("definition: unmarshal schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		panic(fmt.Sprintf("definition: add schema: %v", err))
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		panic(fmt.Sprintf("definition: compile schema: %v", err))
	}
	return s
}

// ValidationError lists every way a document violates the definition
// schema.
type ValidationError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "invalid definition: " + e.Violations[0]
	}
	return fmt.Sprintf("invalid definition: %d violations: %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

// Validate checks a decoded document (as produced by yaml or json
// unmarshalling into any) against the definition schema.
func Validate(doc any) error {
	if doc == nil {
		return &ValidationError{Violations: []string{"/: document is empty"}}
	}
	value, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("normalise definition: %w", err)
	}
	err = definitionSchema.Validate(value)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return err
	}
	return &ValidationError{Violations: collectViolations(verr)}
}

// toJSONValue round-trips v through encoding/json so numbers become
// json.Number, which the schema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		return []string{fmt.Sprintf("/%s: %s", strings.Join(verr.InstanceLocation, "/"), verr.Error())}
	}
	var out []string
	for _, cause := range verr.Causes {
		out = append(out, collectViolations(cause)...)
	}
	return out
}
