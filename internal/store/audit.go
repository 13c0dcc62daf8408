package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/conduit/pkg/schema"
)

// AuditLog persists run outcomes and approval decisions to an embedded
// libSQL database. Execution state itself stays in memory — this is a
// write-behind trail, not a recovery mechanism. It satisfies both the
// engine's and the approval gate's audit sink interfaces.
type AuditLog struct {
	db *sql.DB
}

// Open opens (or creates) a libSQL database at the given path and applies
// migrations. The path should be a file URI, e.g. "file:/path/to/audit.db".
func Open(ctx context.Context, dbPath string) (*AuditLog, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &AuditLog{db: db}, nil
}

// Close closes the database.
func (a *AuditLog) Close() error { return a.db.Close() }

// RecordRun upserts a run summary.
func (a *AuditLog) RecordRun(ctx context.Context, rec *schema.RunRecord) error {
	var completed any
	if rec.CompletedAt != nil {
		completed = rec.CompletedAt.UTC()
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, workflow, status, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET status=excluded.status, completed_at=excluded.completed_at`,
		rec.RunID, rec.Workflow, string(rec.Status), rec.StartedAt.UTC(), completed,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record run: %s", err.Error()).WithCause(err)
	}
	return nil
}

// RecordResult upserts one node's recorded outcome for a run.
func (a *AuditLog) RecordResult(ctx context.Context, runID string, res *schema.ExecutionResult) error {
	data, err := nullableJSON(res.Data)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal result data: %s", err.Error()).WithCause(err)
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO node_results (run_id, node_id, status, data, error, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, node_id) DO UPDATE SET
		   status=excluded.status, data=excluded.data, error=excluded.error, duration_ms=excluded.duration_ms`,
		runID, res.NodeID, string(res.Status), data, nullStr(res.Error), res.DurationMs,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record result: %s", err.Error()).WithCause(err)
	}
	return nil
}

// RecordApproval upserts an approval record, including late post-timeout
// resolutions.
func (a *AuditLog) RecordApproval(ctx context.Context, rec *schema.PendingApproval) error {
	payload, err := nullableJSON(rec.Payload)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "marshal approval payload: %s", err.Error()).WithCause(err)
	}
	var resolved any
	if rec.ResolvedAt != nil {
		resolved = rec.ResolvedAt.UTC()
	}
	late := 0
	if rec.Late {
		late = 1
	}
	_, err = a.db.ExecContext(ctx,
		`INSERT INTO approvals (approval_id, payload, status, reason, late, created_at, resolved_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(approval_id) DO UPDATE SET
		   status=excluded.status, reason=excluded.reason, late=excluded.late, resolved_at=excluded.resolved_at`,
		rec.RunID, payload, string(rec.Status), nullStr(rec.Reason), late, rec.CreatedAt.UTC(), resolved,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "record approval: %s", err.Error()).WithCause(err)
	}
	return nil
}

// GetRun reads one run summary.
func (a *AuditLog) GetRun(ctx context.Context, runID string) (*schema.RunRecord, error) {
	rec := &schema.RunRecord{}
	var status string
	var completed sql.NullTime
	err := a.db.QueryRowContext(ctx,
		`SELECT run_id, workflow, status, started_at, completed_at FROM runs WHERE run_id = ?`, runID,
	).Scan(&rec.RunID, &rec.Workflow, &status, &rec.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run %q not found", runID)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get run: %s", err.Error()).WithCause(err)
	}
	rec.Status = schema.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	return rec, nil
}

// ListResults returns all node results recorded for a run.
func (a *AuditLog) ListResults(ctx context.Context, runID string) ([]*schema.ExecutionResult, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT node_id, status, data, error, duration_ms FROM node_results WHERE run_id = ? ORDER BY node_id`, runID,
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list results: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*schema.ExecutionResult
	for rows.Next() {
		res := &schema.ExecutionResult{}
		var status string
		var data, errMsg sql.NullString
		if err := rows.Scan(&res.NodeID, &status, &data, &errMsg, &res.DurationMs); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan result: %s", err.Error()).WithCause(err)
		}
		res.Status = schema.ResultStatus(status)
		if data.Valid {
			_ = json.Unmarshal([]byte(data.String), &res.Data)
		}
		res.Error = errMsg.String
		out = append(out, res)
	}
	return out, rows.Err()
}

// ListApprovals returns approval records, optionally filtered by status.
func (a *AuditLog) ListApprovals(ctx context.Context, status schema.ApprovalStatus) ([]*schema.PendingApproval, error) {
	query := `SELECT approval_id, payload, status, reason, late, created_at, resolved_at FROM approvals`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at`

	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list approvals: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*schema.PendingApproval
	for rows.Next() {
		rec := &schema.PendingApproval{}
		var st string
		var payload, reason sql.NullString
		var late int
		var resolved sql.NullTime
		if err := rows.Scan(&rec.RunID, &payload, &st, &reason, &late, &rec.CreatedAt, &resolved); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan approval: %s", err.Error()).WithCause(err)
		}
		rec.Status = schema.ApprovalStatus(st)
		rec.Reason = reason.String
		rec.Late = late != 0
		if payload.Valid {
			_ = json.Unmarshal([]byte(payload.String), &rec.Payload)
		}
		if resolved.Valid {
			t := resolved.Time
			rec.ResolvedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullableJSON(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
