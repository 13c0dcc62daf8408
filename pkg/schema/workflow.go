package schema

import "time"

// Definition is the JSON-serializable workflow graph format: typed nodes
// joined by directed edges. Callers validate it (validation.CheckGraph)
// before handing it to the engine.
type Definition struct {
	Name     string         `json:"name,omitempty"`
	Nodes    []Node         `json:"nodes"`
	Edges    []Edge         `json:"edges"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Node is one typed unit of work in a workflow graph.
// Immutable once a run starts.
type Node struct {
	ID     string         `json:"id"`
	Type   NodeType       `json:"type"`
	Config map[string]any `json:"config,omitempty"` // type-specific, may contain {{...}} placeholders
}

// Edge is a directed dependency/data-flow link between two nodes.
// SourceHandle labels branch outputs (a condition node's "true"/"false").
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	Target       string `json:"target"`
	SourceHandle string `json:"sourceHandle,omitempty"`
}

// NodeType enumerates the kinds of nodes in a workflow graph.
type NodeType string

const (
	NodeTypeTrigger        NodeType = "trigger"
	NodeTypeAI             NodeType = "ai"
	NodeTypeAction         NodeType = "action"
	NodeTypeCondition      NodeType = "condition"
	NodeTypeApproval       NodeType = "approval"
	NodeTypeExternalFetch  NodeType = "external-fetch"
	NodeTypeExternalParse  NodeType = "external-parse"
	NodeTypeExternalNotify NodeType = "external-notify"
	NodeTypeRetrieval      NodeType = "retrieval"
	NodeTypeAdaptation     NodeType = "adaptation"
)

// ValidNodeTypes is the set of recognized node types.
var ValidNodeTypes = map[NodeType]bool{
	NodeTypeTrigger:        true,
	NodeTypeAI:             true,
	NodeTypeAction:         true,
	NodeTypeCondition:      true,
	NodeTypeApproval:       true,
	NodeTypeExternalFetch:  true,
	NodeTypeExternalParse:  true,
	NodeTypeExternalNotify: true,
	NodeTypeRetrieval:      true,
	NodeTypeAdaptation:     true,
}

// ResultStatus is the recorded outcome of a node within one run.
type ResultStatus string

const (
	ResultSuccess ResultStatus = "success"
	ResultError   ResultStatus = "error"
	ResultSkipped ResultStatus = "skipped" // pruned by an untaken condition branch
)

// ExecutionResult is produced exactly once per node per run.
type ExecutionResult struct {
	NodeID     string         `json:"node_id"`
	Status     ResultStatus   `json:"status"`
	Data       map[string]any `json:"data,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	Error      string         `json:"error,omitempty"`
}

// ApprovalStatus is the lifecycle state of one pending approval.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
	ApprovalTimedOut ApprovalStatus = "timed_out"
)

// PendingApproval is one suspension point awaiting a human decision.
// Status transitions pending → {approved, rejected, timed_out}; a single
// late resolution after timeout is recorded for audit (see approval.Gate).
type PendingApproval struct {
	RunID      string         `json:"run_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	Status     ApprovalStatus `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Late       bool           `json:"late,omitempty"` // resolution arrived after the waiter timed out
}
