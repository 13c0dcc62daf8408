package executors

import (
	"context"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// ConditionExecutor evaluates a boolean expression against gathered inputs
// and returns {"result": bool}. Downstream edge selection by sourceHandle
// ("true"/"false") is the engine's concern.
//
// The expression runs through a sandboxed evaluator — expr-lang by default,
// CEL when config sets {"engine": "cel"} — never dynamically compiled code.
// Available variables: inputs (upstream outputs by node ID), trigger,
// business.
type ConditionExecutor struct {
	expr *expressions.ExprEngine
	cel  *expressions.CELEngine
}

// NewConditionExecutor creates a ConditionExecutor. cel may be nil, in which
// case requesting the CEL engine is a node error.
func NewConditionExecutor(exprEngine *expressions.ExprEngine, celEngine *expressions.CELEngine) *ConditionExecutor {
	return &ConditionExecutor{expr: exprEngine, cel: celEngine}
}

func (x *ConditionExecutor) Type() schema.NodeType { return schema.NodeTypeCondition }

func (x *ConditionExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	expression := stringParam(in.Config, "expression", "")
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "condition node has no expression").WithNode(in.NodeID)
	}

	var engine expressions.Engine = x.expr
	if stringParam(in.Config, "engine", "expr") == "cel" {
		if x.cel == nil {
			return nil, schema.NewError(schema.ErrCodeValidation, "CEL engine not available").WithNode(in.NodeID)
		}
		engine = x.cel
	}

	result, err := expressions.EvaluateBool(ctx, engine, expression, scopeData(in))
	if err != nil {
		return nil, err
	}

	return map[string]any{"result": result}, nil
}
