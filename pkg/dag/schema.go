package dag

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// definitionSchema describes the shape of a raw graph definition document.
// Semantic checks (cycles, dangling edges) live in Parse; this only rejects
// structurally malformed input before it reaches the domain model.
const definitionSchema = `{
	"type": "object",
	"required": ["nodes"],
	"properties": {
		"nodes": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "type"],
				"properties": {
					"id":     {"type": "string", "minLength": 1},
					"type":   {"type": "string", "minLength": 1},
					"name":   {"type": "string"},
					"config": {"type": "object"}
				}
			}
		},
		"edges": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["source", "target"],
				"properties": {
					"id":     {"type": "string"},
					"source": {"type": "string", "minLength": 1},
					"target": {"type": "string", "minLength": 1},
					"type":   {"type": "string", "enum": ["success", "error", "always"]},
					"label":  {"type": "string"}
				}
			}
		}
	}
}`

// ValidateDocument checks a raw graph definition document against the
// definition schema and returns one error message per violation.
func ValidateDocument(raw []byte) []string {
	schema := gojsonschema.NewStringLoader(definitionSchema)
	document := gojsonschema.NewBytesLoader(raw)

	result, err := gojsonschema.Validate(schema, document)
	if err != nil {
		return []string{fmt.Sprintf("definition is not valid JSON: %v", err)}
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return violations
}
