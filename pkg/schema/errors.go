package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeExecution       = "EXECUTION_ERROR"
	ErrCodeTimeout         = "TIMEOUT_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeConflict        = "CONFLICT"
	ErrCodeCycleDetected   = "CYCLE_DETECTED"
	ErrCodeNodeFailed      = "NODE_FAILED"
	ErrCodeUnknownType     = "UNKNOWN_NODE_TYPE"
	ErrCodeAlreadyResolved = "ALREADY_RESOLVED"
	ErrCodeCancelled       = "CANCELLED"
	ErrCodeNotify          = "NOTIFY_ERROR"
	ErrCodeStore           = "STORE_ERROR"
)

// ConduitError is the structured error type for all conduit operations.
type ConduitError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ConduitError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ConduitError) Unwrap() error {
	return e.Cause
}

// NewError creates a new ConduitError.
func NewError(code, message string) *ConduitError {
	return &ConduitError{Code: code, Message: message}
}

// NewErrorf creates a new ConduitError with a formatted message.
func NewErrorf(code, format string, args ...any) *ConduitError {
	return &ConduitError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *ConduitError) WithNode(nodeID string) *ConduitError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *ConduitError) WithCause(err error) *ConduitError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ConduitError) WithDetails(details map[string]any) *ConduitError {
	e.Details = details
	return e
}
