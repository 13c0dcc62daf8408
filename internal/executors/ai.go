package executors

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// ModelClient is the boundary to an external AI model. The engine knows
// nothing about providers; callers inject their own implementation.
type ModelClient interface {
	Complete(ctx context.Context, prompt string, data map[string]any) (string, error)
}

// ModelClientFunc adapts a function to the ModelClient interface.
type ModelClientFunc func(ctx context.Context, prompt string, data map[string]any) (string, error)

func (f ModelClientFunc) Complete(ctx context.Context, prompt string, data map[string]any) (string, error) {
	return f(ctx, prompt, data)
}

// AIExecutor resolves the configured prompt against trigger data and
// upstream outputs, then asks the injected model for a completion.
//
// Config: "prompt" (interpolated). Output: {"response", "prompt"}.
type AIExecutor struct {
	client ModelClient
}

// NewAIExecutor creates an AIExecutor. A nil client makes every ai node fail
// with a validation error, keeping the run's other branches intact.
func NewAIExecutor(client ModelClient) *AIExecutor {
	return &AIExecutor{client: client}
}

func (x *AIExecutor) Type() schema.NodeType { return schema.NodeTypeAI }

func (x *AIExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	if x.client == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "no model client configured").WithNode(in.NodeID)
	}

	prompt := expressions.Resolve(stringParam(in.Config, "prompt", ""), in.Trigger, in.Results)
	if strings.TrimSpace(prompt) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "ai node has no prompt").WithNode(in.NodeID)
	}

	response, err := x.client.Complete(ctx, prompt, scopeData(in))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "model completion failed: %s", err.Error()).
			WithNode(in.NodeID).WithCause(err)
	}

	return map[string]any{
		"response": response,
		"prompt":   prompt,
	}, nil
}

// Findings assembles a human-readable digest from upstream node outputs,
// used for approver messages and reports.
func Findings(inputs map[string]any) string {
	if len(inputs) == 0 {
		return ""
	}
	ids := make([]string, 0, len(inputs))
	for nodeID := range inputs {
		ids = append(ids, nodeID)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, nodeID := range ids {
		fmt.Fprintf(&b, "[%s] %v\n", nodeID, inputs[nodeID])
	}
	return b.String()
}
