package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/conduit/pkg/schema"
)

func TestExprEngineEvaluate(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	data := map[string]any{
		"trigger": map[string]any{"amount": 250.0, "region": "eu"},
		"inputs": map[string]any{
			"fetch": map[string]any{"status": 200},
		},
	}

	tests := []struct {
		name       string
		expression string
		expected   any
	}{
		{"comparison", `trigger.amount > 100`, true},
		{"string equality", `trigger.region == "eu"`, true},
		{"nested input", `inputs.fetch.status == 200`, true},
		{"arithmetic", `trigger.amount * 2`, 500.0},
		{"undefined variable is nil", `missing == nil`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := e.Evaluate(ctx, tt.expression, data)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestExprEngineEmptyExpression(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.ConduitError).Code)
}

func TestExprEngineCompileError(t *testing.T) {
	e := NewExprEngine()
	_, err := e.Evaluate(context.Background(), `1 +* 2`, nil)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, err.(*schema.ConduitError).Code)
}

func TestExprEngineCachesPrograms(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := e.Evaluate(ctx, `x + 1`, map[string]any{"x": i})
		require.NoError(t, err)
		assert.Equal(t, i+1, out)
	}
	assert.Len(t, e.cache, 1)
}

// One cached program must serve every run, whatever shape the data takes.
func TestExprEngineCacheIndependentOfDataShape(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	out, err := e.Evaluate(ctx, `x`, map[string]any{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, out)

	out, err = e.Evaluate(ctx, `x`, map[string]any{"x": "text"})
	require.NoError(t, err)
	assert.Equal(t, "text", out)

	out, err = e.Evaluate(ctx, `x`, nil)
	require.NoError(t, err)
	assert.Nil(t, out)

	assert.Len(t, e.cache, 1)
}

func TestEvaluateBoolCoercion(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	tests := []struct {
		expression string
		expected   bool
	}{
		{`true`, true},
		{`false`, false},
		{`"non-empty"`, true},
		{`""`, false},
		{`0`, false},
		{`42`, true},
		{`0.0`, false},
		{`nil`, false},
		{`[1, 2]`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expression, func(t *testing.T) {
			out, err := EvaluateBool(ctx, e, tt.expression, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}
