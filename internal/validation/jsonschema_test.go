package validation

import (
	"strings"
	"testing"

	"github.com/rendis/conduit/pkg/schema"
)

func newValidator(t *testing.T) *DefinitionValidator {
	t.Helper()
	v, err := NewDefinitionValidator()
	if err != nil {
		t.Fatalf("build validator: %v", err)
	}
	return v
}

func TestValidateJSON_Valid(t *testing.T) {
	raw := []byte(`{
		"name": "review-flow",
		"nodes": [
			{"id": "t", "type": "trigger"},
			{"id": "a", "type": "action", "config": {"value": "{{t.event}}"}}
		],
		"edges": [
			{"id": "e1", "source": "t", "target": "a"}
		]
	}`)

	def, err := newValidator(t).ValidateJSON(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if def.Name != "review-flow" || len(def.Nodes) != 2 || len(def.Edges) != 1 {
		t.Errorf("decoded definition mismatch: %+v", def)
	}
}

func TestValidateJSON_Rejections(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{nope`},
		{"missing nodes", `{"edges": []}`},
		{"empty nodes", `{"nodes": [], "edges": []}`},
		{"node without type", `{"nodes": [{"id": "t"}], "edges": []}`},
		{"bad node type", `{"nodes": [{"id": "t", "type": "warp"}], "edges": []}`},
		{"edge without target", `{"nodes": [{"id": "t", "type": "trigger"}], "edges": [{"id": "e", "source": "t"}]}`},
		{"unknown top-level key", `{"nodes": [{"id": "t", "type": "trigger"}], "edges": [], "extra": 1}`},
	}

	v := newValidator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ValidateJSON([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected validation error")
			}
			cErr, ok := err.(*schema.ConduitError)
			if !ok || cErr.Code != schema.ErrCodeValidation {
				t.Errorf("expected VALIDATION_ERROR, got %v", err)
			}
		})
	}
}

func TestValidateDefinition_RunsGraphChecks(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateDefinition(&schema.Definition{
		Nodes: []schema.Node{
			{ID: "t", Type: schema.NodeTypeTrigger},
			{ID: "a", Type: schema.NodeTypeAction},
			{ID: "b", Type: schema.NodeTypeAction},
		},
		Edges: []schema.Edge{edge("t", "a"), edge("a", "b"), edge("b", "a")},
	})
	if err == nil {
		t.Fatal("expected cycle to fail validation")
	}
	if !strings.Contains(err.Error(), "cycle") {
		t.Errorf("error should mention the cycle: %v", err)
	}
}

func TestValidateDefinition_NoEdges(t *testing.T) {
	v := newValidator(t)

	err := v.ValidateDefinition(&schema.Definition{
		Nodes: []schema.Node{{ID: "t", Type: schema.NodeTypeTrigger}},
	})
	if err != nil {
		t.Fatalf("single trigger with no edges should validate: %v", err)
	}
}

func TestValidateDefinition_Nil(t *testing.T) {
	if err := newValidator(t).ValidateDefinition(nil); err == nil {
		t.Fatal("expected error for nil definition")
	}
}
