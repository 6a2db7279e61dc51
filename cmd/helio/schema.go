package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"github.com/luxsim/helio/pkg/config"
)

// SchemaCmd generates a JSON Schema for configuration files, suitable for
// editor completion and CI-side validation. Output goes to stdout.
type SchemaCmd struct {
	Compact bool `short:"c" help:"Compact JSON output (no indentation)"`
}

// Run executes the schema generation command.
func (c *SchemaCmd) Run() error {
	reflector := &jsonschema.Reflector{
		// Reject unknown keys so typos fail validation.
		AllowAdditionalProperties: false,
		// Inline all definitions; downstream tooling handles flat schemas
		// better than $ref chains.
		DoNotReference: true,
		// Config structs carry yaml tags, not json tags.
		FieldNameTag: "yaml",
	}

	schema := reflector.Reflect(&config.Config{})

	schema.ID = "https://luxsim.io/schemas/helio.json"
	schema.Title = "Helio Gateway Configuration"
	schema.Description = "Configuration schema for the helio daylight simulation gateway"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	schema.Examples = []interface{}{
		map[string]interface{}{
			"deployment_mode": "production",
			"server": map[string]interface{}{
				"host": "0.0.0.0",
				"port": 8080,
			},
			"services": map[string]interface{}{
				"obstruction": map[string]interface{}{
					"url": "http://obstruction.internal:5001",
				},
				"model": map[string]interface{}{
					"url":          "http://model.internal:5003",
					"read_timeout": "600s",
				},
			},
			"auth": map[string]interface{}{
				"type":      "token",
				"api_token": "${API_TOKEN}",
			},
		},
	}

	encoder := json.NewEncoder(os.Stdout)
	if !c.Compact {
		encoder.SetIndent("", "  ")
	}
	if err := encoder.Encode(schema); err != nil {
		return fmt.Errorf("failed to encode schema: %w", err)
	}
	return nil
}
