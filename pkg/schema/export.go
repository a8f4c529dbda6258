package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaID is the canonical identifier of the workflow JSON Schema.
const SchemaID = "https://github.com/ormasoftchile/autopilot/schemas/workflow-v0.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document from
// the Go Workflow struct using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Workflow{})
	s.ID = SchemaID
	s.Title = "Autopilot Workflow v0"
	s.Description = "Schema for autopilot workflow YAML documents (Draft 2020-12)"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}
