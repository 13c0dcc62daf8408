package expressions

import "context"

// Engine evaluates expressions against gathered node data.
// Two implementations evaluate conditions (Expr, CEL); GoJQ transforms data.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}

// EvaluateBool evaluates an expression and coerces the result to a boolean.
// Non-boolean results follow truthiness rules: nil and empty string are
// false, zero numbers are false, everything else is true.
func EvaluateBool(ctx context.Context, e Engine, expression string, data map[string]any) (bool, error) {
	out, err := e.Evaluate(ctx, expression, data)
	if err != nil {
		return false, err
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	case string:
		return v != "", nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	default:
		return true, nil
	}
}
