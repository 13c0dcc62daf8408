package approval

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/conduit/internal/streaming"
	"github.com/rendis/conduit/pkg/schema"
)

// Decision is the outcome delivered to a waiting run.
// TimedOut is a distinguished non-error outcome, never Approved.
type Decision struct {
	Approved bool   `json:"approved"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// AuditSink records approval state changes for later inspection.
// Satisfied by *store.AuditLog; nil disables auditing.
type AuditSink interface {
	RecordApproval(ctx context.Context, rec *schema.PendingApproval) error
}

// Gate is the process-wide human-in-the-loop suspension primitive.
//
// Request parks the calling goroutine until an external Resolve arrives or
// the timeout elapses, whichever is first. Each pending approval is keyed by
// a run-scoped ID with its own timer and channel; no approval's timer or
// resolution affects another's, and a parked waiter holds no lock.
//
// Timeout policy: the waiter resolves timed-out and the run moves on, but the
// registry entry accepts exactly one late Resolve, recorded for audit.
// Entries are never evicted automatically; callers that care can Purge.
type Gate struct {
	notifier Notifier
	audit    AuditSink
	hub      streaming.EventHub
	baseURL  string
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*entry
}

type entry struct {
	record *schema.PendingApproval
	done   chan Decision // buffered 1: at most one send ever happens
}

// NewGate creates a Gate. notifier may be nil (no side-channel notification),
// audit may be nil (no audit trail). baseURL prefixes the callback URLs
// included in notifications.
func NewGate(notifier Notifier, audit AuditSink, baseURL string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		notifier: notifier,
		audit:    audit,
		baseURL:  baseURL,
		logger:   logger,
		pending:  make(map[string]*entry),
	}
}

// AttachHub enables approval lifecycle events on the given hub.
// Call once during wiring, before any Request.
func (g *Gate) AttachHub(hub streaming.EventHub) {
	g.hub = hub
}

// Request registers a pending approval, fires the side-channel notification,
// and blocks until resolution, timeout, or context cancellation.
func (g *Gate) Request(ctx context.Context, id string, payload map[string]any, timeout time.Duration) (Decision, error) {
	if id == "" {
		return Decision{}, schema.NewError(schema.ErrCodeValidation, "approval id is empty")
	}

	e := &entry{
		record: &schema.PendingApproval{
			RunID:     id,
			Payload:   payload,
			Status:    schema.ApprovalPending,
			CreatedAt: time.Now().UTC(),
		},
		done: make(chan Decision, 1),
	}

	g.mu.Lock()
	if _, exists := g.pending[id]; exists {
		g.mu.Unlock()
		return Decision{}, schema.NewErrorf(schema.ErrCodeConflict, "approval %q already pending", id)
	}
	g.pending[id] = e
	g.mu.Unlock()

	g.recordAudit(ctx, e.record)
	g.publish(ctx, schema.EventApprovalRequested, id, payload)

	// Fire-and-forget notification. Failure is logged, never propagated:
	// the approver may still arrive via another channel, and the timeout
	// bounds the wait either way.
	if g.notifier != nil {
		approveURL, rejectURL := CallbackURLs(g.baseURL, id)
		go func() {
			notifyCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := g.notifier.Notify(notifyCtx, id, payload, approveURL, rejectURL); err != nil {
				g.logger.Warn("approval notification failed",
					slog.String("approval_id", id),
					slog.String("error", err.Error()),
				)
			}
		}()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case d := <-e.done:
		return d, nil

	case <-timer.C:
		g.mu.Lock()
		if e.record.Status != schema.ApprovalPending {
			// Resolution won the race just before the timer; the decision
			// is already buffered.
			g.mu.Unlock()
			return <-e.done, nil
		}
		e.record.Status = schema.ApprovalTimedOut
		now := time.Now().UTC()
		e.record.ResolvedAt = &now
		rec := snapshot(e.record)
		g.mu.Unlock()

		g.recordAudit(ctx, rec)
		g.publish(ctx, schema.EventApprovalTimedOut, id, nil)
		return Decision{TimedOut: true}, nil

	case <-ctx.Done():
		g.mu.Lock()
		if e.record.Status == schema.ApprovalPending {
			e.record.Status = schema.ApprovalTimedOut
			now := time.Now().UTC()
			e.record.ResolvedAt = &now
			e.record.Reason = "run cancelled"
		}
		g.mu.Unlock()
		return Decision{}, schema.NewError(schema.ErrCodeCancelled, "approval wait cancelled").WithCause(ctx.Err())
	}
}

// Resolve delivers an external decision for a pending approval.
// The first resolution wins; a second one reports already-resolved rather
// than silently overwriting. A single resolution arriving after timeout is
// still recorded for audit (marked late) while returning nil — the run has
// already moved on with a timed-out result.
func (g *Gate) Resolve(ctx context.Context, id string, approved bool, reason string) error {
	g.mu.Lock()
	e, ok := g.pending[id]
	if !ok {
		g.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeNotFound, "approval %q not found", id)
	}

	switch e.record.Status {
	case schema.ApprovalPending:
		now := time.Now().UTC()
		e.record.ResolvedAt = &now
		e.record.Reason = reason
		if approved {
			e.record.Status = schema.ApprovalApproved
		} else {
			e.record.Status = schema.ApprovalRejected
		}
		rec := snapshot(e.record)
		g.mu.Unlock()

		e.done <- Decision{Approved: approved, Reason: reason}
		g.recordAudit(ctx, rec)
		g.publish(ctx, schema.EventApprovalResolved, id, map[string]any{"approved": approved})
		return nil

	case schema.ApprovalTimedOut:
		if e.record.Late {
			g.mu.Unlock()
			return schema.NewErrorf(schema.ErrCodeAlreadyResolved, "approval %q already resolved", id)
		}
		now := time.Now().UTC()
		e.record.ResolvedAt = &now
		e.record.Reason = reason
		e.record.Late = true
		if approved {
			e.record.Status = schema.ApprovalApproved
		} else {
			e.record.Status = schema.ApprovalRejected
		}
		rec := snapshot(e.record)
		g.mu.Unlock()

		g.logger.Info("late approval resolution recorded",
			slog.String("approval_id", id),
			slog.Bool("approved", approved),
		)
		g.recordAudit(ctx, rec)
		g.publish(ctx, schema.EventApprovalResolved, id, map[string]any{"approved": approved, "late": true})
		return nil

	default:
		g.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeAlreadyResolved, "approval %q already resolved", id)
	}
}

// Get returns a copy of the approval record, or a not-found error.
func (g *Gate) Get(id string) (*schema.PendingApproval, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.pending[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "approval %q not found", id)
	}
	return snapshot(e.record), nil
}

// List returns copies of all approval records, pending and settled.
func (g *Gate) List() []*schema.PendingApproval {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*schema.PendingApproval, 0, len(g.pending))
	for _, e := range g.pending {
		out = append(out, snapshot(e.record))
	}
	return out
}

// Purge removes settled entries created before the cutoff and returns how
// many were removed. Pending entries are never purged.
func (g *Gate) Purge(before time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	removed := 0
	for id, e := range g.pending {
		if e.record.Status == schema.ApprovalPending {
			continue
		}
		if e.record.CreatedAt.Before(before) {
			delete(g.pending, id)
			removed++
		}
	}
	return removed
}

// publish emits an approval lifecycle event. Hub errors never affect the
// approval itself.
func (g *Gate) publish(ctx context.Context, eventType, id string, payload any) {
	if g.hub == nil {
		return
	}
	_ = g.hub.Publish(context.WithoutCancel(ctx), streaming.StreamEvent{
		RunID:     id,
		EventType: eventType,
		Payload:   payload,
	})
}

func (g *Gate) recordAudit(ctx context.Context, rec *schema.PendingApproval) {
	if g.audit == nil {
		return
	}
	if err := g.audit.RecordApproval(ctx, rec); err != nil {
		g.logger.Warn("approval audit write failed",
			slog.String("approval_id", rec.RunID),
			slog.String("error", err.Error()),
		)
	}
}

// snapshot copies a record so callers never observe later mutations.
func snapshot(rec *schema.PendingApproval) *schema.PendingApproval {
	cp := *rec
	if rec.ResolvedAt != nil {
		t := *rec.ResolvedAt
		cp.ResolvedAt = &t
	}
	return &cp
}
