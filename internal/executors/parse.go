package executors

import (
	"context"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// ParseExecutor handles external-parse nodes: a jq program run over the
// gathered data, used to extract fields from fetched documents or reshape
// upstream outputs.
//
// Config: "expression" (jq program). The program's input is
// {"inputs": ..., "trigger": ..., "business": ...}.
// Output: {"result": any}.
type ParseExecutor struct {
	jq *expressions.GoJQEngine
}

func NewParseExecutor(jq *expressions.GoJQEngine) *ParseExecutor {
	return &ParseExecutor{jq: jq}
}

func (x *ParseExecutor) Type() schema.NodeType { return schema.NodeTypeExternalParse }

func (x *ParseExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	expression := stringParam(in.Config, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "external-parse node has no expression").WithNode(in.NodeID)
	}

	result, err := x.jq.Evaluate(ctx, expression, scopeData(in))
	if err != nil {
		return nil, err
	}

	return map[string]any{"result": result}, nil
}
