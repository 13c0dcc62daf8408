package executors

import (
	"context"
	"encoding/json"

	"github.com/rendis/conduit/pkg/schema"
)

// AdaptationExecutor handles adaptation nodes: it produces a replacement
// graph definition intended for future runs. The engine never interprets the
// returned definition — persisting or applying it is the caller's decision.
//
// Config: "definition" (a nodes+edges object). The executor checks that it
// decodes into a well-formed Definition before passing it through.
// Output: {"definition": map, "nodes": int, "edges": int}.
type AdaptationExecutor struct{}

func NewAdaptationExecutor() *AdaptationExecutor { return &AdaptationExecutor{} }

func (x *AdaptationExecutor) Type() schema.NodeType { return schema.NodeTypeAdaptation }

func (x *AdaptationExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	raw := mapParam(in.Config, "definition")
	if raw == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "adaptation node has no definition").WithNode(in.NodeID)
	}

	def, err := DecodeDefinition(raw)
	if err != nil {
		return nil, err
	}
	if len(def.Nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "adapted definition has no nodes").WithNode(in.NodeID)
	}

	return map[string]any{
		"definition": raw,
		"nodes":      len(def.Nodes),
		"edges":      len(def.Edges),
	}, nil
}

// DecodeDefinition converts a generic map (an adaptation node's output) into
// a typed Definition. Callers use it when deciding whether to adopt a graph
// returned by a run.
func DecodeDefinition(raw map[string]any) (*schema.Definition, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "encode definition: %s", err.Error()).WithCause(err)
	}
	var def schema.Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "malformed definition: %s", err.Error()).WithCause(err)
	}
	return &def, nil
}
