package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/conduit/pkg/schema"
)

// definitionSchemaJSON is the JSON Schema for Definition validation.
// Embedded as a constant to avoid filesystem dependencies.
const definitionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://conduit.dev/schemas/definition.json",
  "type": "object",
  "required": ["nodes", "edges"],
  "properties": {
    "name": { "type": "string" },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": "array",
      "items": { "$ref": "#/$defs/edge" }
    },
    "metadata": { "type": "object" }
  },
  "additionalProperties": false,
  "$defs": {
    "node": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": {
          "type": "string",
          "enum": ["trigger", "ai", "action", "condition", "approval", "external-fetch", "external-parse", "external-notify", "retrieval", "adaptation"]
        },
        "config": { "type": "object" }
      },
      "additionalProperties": false
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "sourceHandle": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

// DefinitionValidator validates raw definition JSON against the embedded
// JSON Schema (Draft 2020-12). Safe for concurrent use once constructed.
type DefinitionValidator struct {
	compiled *jsonschema.Schema
}

// NewDefinitionValidator compiles the embedded definition schema.
func NewDefinitionValidator() (*DefinitionValidator, error) {
	c := jsonschema.NewCompiler()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(definitionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal definition schema: %w", err)
	}
	if err := c.AddResource("https://conduit.dev/schemas/definition.json", doc); err != nil {
		return nil, fmt.Errorf("add definition schema resource: %w", err)
	}

	compiled, err := c.Compile("https://conduit.dev/schemas/definition.json")
	if err != nil {
		return nil, fmt.Errorf("compile definition schema: %w", err)
	}

	return &DefinitionValidator{compiled: compiled}, nil
}

// ValidateJSON validates raw definition bytes and decodes them on success.
func (v *DefinitionValidator) ValidateJSON(raw []byte) (*schema.Definition, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "definition is not valid JSON: %s", err.Error()).WithCause(err)
	}

	if err := v.compiled.Validate(doc); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "definition schema violation: %s", err.Error()).WithCause(err)
	}

	var def schema.Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "decode definition: %s", err.Error()).WithCause(err)
	}
	return &def, nil
}

// ValidateDefinition validates an already-decoded Definition by round-
// tripping it through JSON, then applies the structural graph checks.
func (v *DefinitionValidator) ValidateDefinition(def *schema.Definition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}

	// A nil slice marshals as null, which the schema's array type rejects.
	cp := *def
	if cp.Edges == nil {
		cp.Edges = []schema.Edge{}
	}
	raw, err := json.Marshal(&cp)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize definition").WithCause(err)
	}
	if _, err := v.ValidateJSON(raw); err != nil {
		return err
	}

	if issues := CheckGraph(def); len(issues) > 0 {
		return schema.NewErrorf(schema.ErrCodeValidation, "graph check failed: %s", strings.Join(issues, "; ")).
			WithDetails(map[string]any{"issues": issues})
	}
	return nil
}
