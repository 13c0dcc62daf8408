package executors

import (
	"context"

	"github.com/rendis/conduit/pkg/schema"
)

// TriggerExecutor handles trigger nodes: it succeeds immediately with the
// run's trigger payload as output and consumes no inputs.
type TriggerExecutor struct{}

func NewTriggerExecutor() *TriggerExecutor { return &TriggerExecutor{} }

func (x *TriggerExecutor) Type() schema.NodeType { return schema.NodeTypeTrigger }

func (x *TriggerExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	if in.Trigger == nil {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(in.Trigger))
	for k, v := range in.Trigger {
		out[k] = v
	}
	return out, nil
}
