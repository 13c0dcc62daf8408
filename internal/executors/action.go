package executors

import (
	"context"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// ActionExecutor is the generic templating node: it resolves every {{...}}
// placeholder in its config against trigger data and upstream outputs and
// returns the resolved config as output. An optional "expression" config is
// evaluated with expr-lang and returned under "computed".
type ActionExecutor struct {
	expr *expressions.ExprEngine
}

func NewActionExecutor(exprEngine *expressions.ExprEngine) *ActionExecutor {
	return &ActionExecutor{expr: exprEngine}
}

func (x *ActionExecutor) Type() schema.NodeType { return schema.NodeTypeAction }

func (x *ActionExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	out := expressions.ResolveConfig(in.Config, in.Trigger, in.Results)
	if out == nil {
		out = map[string]any{}
	}

	if expression := stringParam(in.Config, "expression", ""); expression != "" {
		val, err := x.expr.Evaluate(ctx, expression, scopeData(in))
		if err != nil {
			return nil, err
		}
		delete(out, "expression")
		out["computed"] = val
	}

	return out, nil
}
