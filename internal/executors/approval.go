package executors

import (
	"context"
	"fmt"
	"time"

	"github.com/rendis/conduit/internal/approval"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// DefaultApprovalTimeout bounds the wait when a node doesn't configure one.
const DefaultApprovalTimeout = 4 * time.Hour

// ApprovalExecutor parks the run on the approval gate until a human decision
// or timeout. The approval is keyed per run and node, so one pending
// approval never blocks another run.
//
// Config: "message" (interpolated, shown to the approver) and "timeoutMs".
// Output: {"approved": bool} or {"approved": false, "timedOut": true}.
type ApprovalExecutor struct {
	gate           *approval.Gate
	defaultTimeout time.Duration
}

// NewApprovalExecutor creates an ApprovalExecutor bound to a gate.
func NewApprovalExecutor(gate *approval.Gate) *ApprovalExecutor {
	return &ApprovalExecutor{gate: gate, defaultTimeout: DefaultApprovalTimeout}
}

func (x *ApprovalExecutor) Type() schema.NodeType { return schema.NodeTypeApproval }

func (x *ApprovalExecutor) Execute(ctx context.Context, in ExecInput) (map[string]any, error) {
	timeout := x.defaultTimeout
	if ms := intParam(in.Config, "timeoutMs", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}

	message := expressions.Resolve(stringParam(in.Config, "message", ""), in.Trigger, in.Results)
	payload := map[string]any{
		"node_id": in.NodeID,
		"inputs":  in.Inputs,
	}
	if message != "" {
		payload["message"] = message
	}

	// Run-scoped identity: distinct approvals per run and per approval node.
	id := fmt.Sprintf("%s:%s", in.RunID, in.NodeID)

	decision, err := x.gate.Request(ctx, id, payload, timeout)
	if err != nil {
		return nil, err
	}

	out := map[string]any{"approved": decision.Approved}
	if decision.TimedOut {
		out["timedOut"] = true
	}
	if decision.Reason != "" {
		out["reason"] = decision.Reason
	}
	return out, nil
}
