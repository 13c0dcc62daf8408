package executors

import (
	"context"

	"github.com/rendis/conduit/pkg/schema"
)

// ExecInput is the data handed to a node executor at execution time.
type ExecInput struct {
	// Config is the node's raw configuration. Placeholders are resolved by
	// each executor against Trigger and Results as needed.
	Config map[string]any

	// Inputs maps upstream node IDs to their output data, one entry per
	// incoming edge whose source completed successfully. Executors must
	// tolerate missing entries: a failed dependency simply contributes no
	// input.
	Inputs map[string]any

	// Trigger is the payload that started the run.
	Trigger map[string]any

	// Business is auxiliary read-only state passed into the run.
	Business map[string]any

	// Results is the run's results map so far, for qualified
	// {{nodeId.field}} interpolation. Read-only by contract.
	Results map[string]*schema.ExecutionResult

	// RunID identifies the run, used for run-scoped resources such as
	// approval waiters.
	RunID string

	// NodeID identifies the node being executed.
	NodeID string
}

// Executor is a pluggable handler for one node type. The engine is agnostic
// to its internals: it returns opaque output data or an error, which the
// engine records as that node's isolated result.
type Executor interface {
	Type() schema.NodeType
	Execute(ctx context.Context, in ExecInput) (map[string]any, error)
}
