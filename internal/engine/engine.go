package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/conduit/internal/executors"
	"github.com/rendis/conduit/internal/logging"
	"github.com/rendis/conduit/internal/streaming"
	"github.com/rendis/conduit/pkg/schema"
)

// Observer receives best-effort lifecycle notifications for live-progress
// UIs. Callbacks are never awaited and a panicking observer never affects
// execution.
type Observer interface {
	OnNodeStarting(nodeID string, nodeType schema.NodeType, inputs map[string]any)
	OnNodeComplete(nodeID string, nodeType schema.NodeType, result *schema.ExecutionResult, inputs map[string]any)
}

// AuditSink records run outcomes for later inspection.
// Satisfied by *store.AuditLog; nil disables auditing.
type AuditSink interface {
	RecordRun(ctx context.Context, rec *schema.RunRecord) error
	RecordResult(ctx context.Context, runID string, res *schema.ExecutionResult) error
}

// Engine drives level-by-level concurrent execution of a workflow graph.
//
// Levels execute sequentially; nodes within a level execute concurrently.
// A node failure is isolated to that node's result — downstream nodes run
// with the failed input absent. The only shared mutable state of a run is
// its results map, guarded for intra-level concurrency; concurrent runs
// share nothing.
type Engine struct {
	registry *executors.Registry
	hub      streaming.EventHub
	observer Observer
	audit    AuditSink
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithHub attaches an event hub for lifecycle streaming.
func WithHub(hub streaming.EventHub) Option {
	return func(e *Engine) { e.hub = hub }
}

// WithObserver attaches a lifecycle observer.
func WithObserver(obs Observer) Option {
	return func(e *Engine) { e.observer = obs }
}

// WithAudit attaches an audit sink for run and result records.
func WithAudit(audit AuditSink) Option {
	return func(e *Engine) { e.audit = audit }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an Engine dispatching to the given executor registry.
func New(registry *executors.Registry, opts ...Option) *Engine {
	e := &Engine{
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// runState is the ephemeral state of one run. It is owned by Run and
// discarded when Run returns; nothing about a run outlives the call.
type runState struct {
	runID    string
	nodes    map[string]*schema.Node
	incoming map[string][]schema.Edge
	trigger  map[string]any
	business map[string]any

	mu      sync.Mutex
	results map[string]*schema.ExecutionResult
}

// Run executes one graph instance against one trigger payload.
//
// It returns the map of nodeID → result; every node reachable through live
// edges gets exactly one recorded outcome (success, error, or skipped).
// The only top-level error is a graph that cannot be leveled — callers are
// expected to pre-validate with the validation package.
func (e *Engine) Run(ctx context.Context, def *schema.Definition, triggerData, businessContext map[string]any) (map[string]*schema.ExecutionResult, error) {
	if def == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "definition is nil")
	}

	levels, err := Levels(def.Nodes, def.Edges)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.LogWith(ctx, e.logger)

	rs := &runState{
		runID:    runID,
		nodes:    make(map[string]*schema.Node, len(def.Nodes)),
		incoming: make(map[string][]schema.Edge),
		trigger:  triggerData,
		business: businessContext,
		results:  make(map[string]*schema.ExecutionResult, len(def.Nodes)),
	}
	for i := range def.Nodes {
		rs.nodes[def.Nodes[i].ID] = &def.Nodes[i]
	}
	for _, edge := range def.Edges {
		rs.incoming[edge.Target] = append(rs.incoming[edge.Target], edge)
	}

	startedAt := time.Now().UTC()
	logger.InfoContext(ctx, "run started",
		slog.String("workflow", def.Name),
		slog.Int("nodes", len(def.Nodes)),
		slog.Int("levels", len(levels)),
	)
	e.publish(ctx, streaming.StreamEvent{RunID: runID, EventType: schema.EventRunStarted, Payload: def.Name})

	for _, level := range levels {
		if ctx.Err() != nil {
			break
		}

		var wg sync.WaitGroup
		for _, nodeID := range level {
			node := rs.nodes[nodeID]

			if e.pruned(rs, nodeID) {
				res := &schema.ExecutionResult{NodeID: nodeID, Status: schema.ResultSkipped}
				rs.setResult(res)
				e.publish(ctx, streaming.StreamEvent{RunID: runID, NodeID: nodeID, EventType: schema.EventNodeSkipped})
				e.notifyComplete(nodeID, node.Type, res, nil)
				continue
			}

			inputs := e.gatherInputs(rs, nodeID)

			wg.Add(1)
			go func(n *schema.Node, inputs map[string]any) {
				defer wg.Done()
				e.executeNode(ctx, rs, n, inputs)
			}(node, inputs)
		}
		wg.Wait()
	}

	status := schema.RunStatusCompleted
	if ctx.Err() != nil {
		status = schema.RunStatusCancelled
	}
	completedAt := time.Now().UTC()

	e.publish(ctx, streaming.StreamEvent{RunID: runID, EventType: schema.EventRunCompleted, Payload: string(status)})
	logger.InfoContext(ctx, "run finished",
		slog.String("status", string(status)),
		slog.Duration("elapsed", completedAt.Sub(startedAt)),
	)

	rs.mu.Lock()
	out := make(map[string]*schema.ExecutionResult, len(rs.results))
	for id, res := range rs.results {
		out[id] = res
	}
	rs.mu.Unlock()

	e.recordRun(ctx, &schema.RunRecord{
		RunID:       runID,
		Workflow:    def.Name,
		Status:      status,
		StartedAt:   startedAt,
		CompletedAt: &completedAt,
	}, out)

	return out, nil
}

// executeNode dispatches one node to its executor and records the result.
// Failure is contained here: every exit path records exactly one result.
func (e *Engine) executeNode(ctx context.Context, rs *runState, node *schema.Node, inputs map[string]any) {
	ctx = logging.WithNodeID(ctx, node.ID)
	logger := logging.LogWith(ctx, e.logger)

	e.notifyStarting(node.ID, node.Type, inputs)
	e.publish(ctx, streaming.StreamEvent{RunID: rs.runID, NodeID: node.ID, EventType: schema.EventNodeStarted, Payload: string(node.Type)})

	// Optional per-node deadline. Approval nodes are exempt: the gate owns
	// its own timer and must report timed-out, not a cancelled context.
	nodeCtx := ctx
	if ms := timeoutMs(node.Config); ms > 0 && node.Type != schema.NodeTypeApproval {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	data, execErr := e.dispatch(nodeCtx, rs, node, inputs)
	elapsed := time.Since(start).Milliseconds()

	res := &schema.ExecutionResult{
		NodeID:     node.ID,
		DurationMs: elapsed,
	}
	if execErr != nil {
		res.Status = schema.ResultError
		res.Error = execErr.Error()
		logger.WarnContext(ctx, "node failed",
			slog.String("type", string(node.Type)),
			slog.String("error", execErr.Error()),
		)
		e.publish(ctx, streaming.StreamEvent{RunID: rs.runID, NodeID: node.ID, EventType: schema.EventNodeFailed, Payload: execErr.Error()})
	} else {
		res.Status = schema.ResultSuccess
		res.Data = data
		e.publish(ctx, streaming.StreamEvent{RunID: rs.runID, NodeID: node.ID, EventType: schema.EventNodeCompleted})
	}

	rs.setResult(res)
	e.notifyComplete(node.ID, node.Type, res, inputs)
}

// dispatch resolves the executor for the node type and invokes it,
// converting panics into ordinary node errors.
func (e *Engine) dispatch(ctx context.Context, rs *runState, node *schema.Node, inputs map[string]any) (data map[string]any, err error) {
	exec, lookupErr := e.registry.Get(node.Type)
	if lookupErr != nil {
		return nil, lookupErr
	}

	defer func() {
		if r := recover(); r != nil {
			err = schema.NewErrorf(schema.ErrCodeExecution, "executor panic: %v", r).WithNode(node.ID)
		}
	}()

	rs.mu.Lock()
	resultsView := make(map[string]*schema.ExecutionResult, len(rs.results))
	for id, res := range rs.results {
		resultsView[id] = res
	}
	rs.mu.Unlock()

	return exec.Execute(ctx, executors.ExecInput{
		Config:   node.Config,
		Inputs:   inputs,
		Trigger:  rs.trigger,
		Business: rs.business,
		Results:  resultsView,
		RunID:    rs.runID,
		NodeID:   node.ID,
	})
}

// gatherInputs builds {sourceNodeID → resultData} for every live incoming
// edge. Safe by construction: a node's dependencies are complete before its
// level starts. Failed or skipped sources contribute no entry.
func (e *Engine) gatherInputs(rs *runState, nodeID string) map[string]any {
	edges := rs.incoming[nodeID]
	if len(edges) == 0 {
		return map[string]any{}
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	inputs := make(map[string]any, len(edges))
	for _, edge := range edges {
		res, ok := rs.results[edge.Source]
		if !ok || res.Status != schema.ResultSuccess {
			continue
		}
		inputs[edge.Source] = res.Data
	}
	return inputs
}

// pruned reports whether every incoming edge of the node is dead: its source
// was skipped, or its source is a condition whose taken branch doesn't match
// the edge's handle. Nodes without incoming edges are never pruned, and a
// failed source keeps its edges live — downstream runs with absent input.
func (e *Engine) pruned(rs *runState, nodeID string) bool {
	edges := rs.incoming[nodeID]
	if len(edges) == 0 {
		return false
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	for _, edge := range edges {
		if e.edgeLive(rs, edge) {
			return false
		}
	}
	return true
}

// edgeLive is called with rs.mu held.
func (e *Engine) edgeLive(rs *runState, edge schema.Edge) bool {
	res, ok := rs.results[edge.Source]
	if !ok {
		// No recorded result means the source never ran (dangling edge
		// survived validation); treat as live-but-empty.
		return true
	}
	if res.Status == schema.ResultSkipped {
		return false
	}

	src := rs.nodes[edge.Source]
	if src == nil || src.Type != schema.NodeTypeCondition || edge.SourceHandle == "" {
		return true
	}
	if res.Status != schema.ResultSuccess {
		return true
	}

	taken, ok := res.Data["result"].(bool)
	if !ok {
		return true
	}
	return edge.SourceHandle == fmt.Sprintf("%t", taken)
}

func (e *Engine) publish(ctx context.Context, event streaming.StreamEvent) {
	if e.hub == nil {
		return
	}
	// Hub errors never affect execution.
	_ = e.hub.Publish(context.WithoutCancel(ctx), event)
}

func (e *Engine) notifyStarting(nodeID string, nodeType schema.NodeType, inputs map[string]any) {
	if e.observer == nil {
		return
	}
	defer func() { _ = recover() }()
	e.observer.OnNodeStarting(nodeID, nodeType, inputs)
}

func (e *Engine) notifyComplete(nodeID string, nodeType schema.NodeType, res *schema.ExecutionResult, inputs map[string]any) {
	if e.observer == nil {
		return
	}
	defer func() { _ = recover() }()
	e.observer.OnNodeComplete(nodeID, nodeType, res, inputs)
}

func (e *Engine) recordRun(ctx context.Context, rec *schema.RunRecord, results map[string]*schema.ExecutionResult) {
	if e.audit == nil {
		return
	}
	auditCtx := context.WithoutCancel(ctx)
	if err := e.audit.RecordRun(auditCtx, rec); err != nil {
		e.logger.Warn("run audit write failed", slog.String("run_id", rec.RunID), slog.String("error", err.Error()))
		return
	}
	for _, res := range results {
		if err := e.audit.RecordResult(auditCtx, rec.RunID, res); err != nil {
			e.logger.Warn("result audit write failed", slog.String("run_id", rec.RunID), slog.String("error", err.Error()))
		}
	}
}

func (rs *runState) setResult(res *schema.ExecutionResult) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.results[res.NodeID] = res
}

// timeoutMs reads the optional per-node "timeoutMs" config value.
func timeoutMs(cfg map[string]any) int64 {
	if cfg == nil {
		return 0
	}
	switch v := cfg["timeoutMs"].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	default:
		return 0
	}
}
