package schema

import "time"

// Event type constants for the lifecycle stream.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"

	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"
	EventNodeSkipped   = "node_skipped"

	EventApprovalRequested = "approval_requested"
	EventApprovalResolved  = "approval_resolved"
	EventApprovalTimedOut  = "approval_timed_out"

	EventScheduleFired = "schedule_fired"
)

// RunStatus summarizes how a run finished. Partial completion is a
// first-class outcome: a run completes even when individual nodes failed.
type RunStatus string

const (
	RunStatusActive    RunStatus = "active"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunRecord is the audit summary of one run.
type RunRecord struct {
	RunID       string     `json:"run_id"`
	Workflow    string     `json:"workflow,omitempty"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
