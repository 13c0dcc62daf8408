package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rendis/conduit/internal/approval"
	"github.com/rendis/conduit/internal/executors"
	"github.com/rendis/conduit/internal/expressions"
	"github.com/rendis/conduit/pkg/schema"
)

// stubExecutor lets a test supply arbitrary node behavior for a type.
type stubExecutor struct {
	typ schema.NodeType
	fn  func(ctx context.Context, in executors.ExecInput) (map[string]any, error)
}

func (s *stubExecutor) Type() schema.NodeType { return s.typ }

func (s *stubExecutor) Execute(ctx context.Context, in executors.ExecInput) (map[string]any, error) {
	return s.fn(ctx, in)
}

func newTestRegistry(t *testing.T, extra ...executors.Executor) *executors.Registry {
	t.Helper()
	registry := executors.NewRegistry()
	if err := registry.Register(executors.NewTriggerExecutor()); err != nil {
		t.Fatalf("register trigger: %v", err)
	}
	for _, exec := range extra {
		if err := registry.Register(exec); err != nil {
			t.Fatalf("register %s: %v", exec.Type(), err)
		}
	}
	return registry
}

func actionStub(fn func(ctx context.Context, in executors.ExecInput) (map[string]any, error)) *stubExecutor {
	return &stubExecutor{typ: schema.NodeTypeAction, fn: fn}
}

func definition(nodes []schema.Node, edges []schema.Edge) *schema.Definition {
	return &schema.Definition{Name: "test-workflow", Nodes: nodes, Edges: edges}
}

func TestRun_LinearChainPropagatesOutputs(t *testing.T) {
	var seen sync.Map
	registry := newTestRegistry(t, actionStub(func(_ context.Context, in executors.ExecInput) (map[string]any, error) {
		seen.Store(in.NodeID, in.Inputs)
		return map[string]any{"from": in.NodeID}, nil
	}))

	eng := New(registry)
	results, err := eng.Run(context.Background(), definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("a", schema.NodeTypeAction),
			node("b", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "a"), edge("a", "b")},
	), map[string]any{"event": "push"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for _, id := range []string{"t", "a", "b"} {
		res := results[id]
		if res == nil || res.Status != schema.ResultSuccess {
			t.Fatalf("node %s: expected success, got %+v", id, res)
		}
	}

	if results["t"].Data["event"] != "push" {
		t.Errorf("trigger output should carry the trigger payload, got %v", results["t"].Data)
	}

	bInputs, _ := seen.Load("b")
	inputs := bInputs.(map[string]any)
	upstream, ok := inputs["a"].(map[string]any)
	if !ok || upstream["from"] != "a" {
		t.Errorf("b should receive a's output keyed by node ID, got %v", inputs)
	}
}

func TestRun_FailureIsolatedDownstreamGetsAbsentInput(t *testing.T) {
	var bInputs map[string]any
	var mu sync.Mutex
	registry := newTestRegistry(t, actionStub(func(_ context.Context, in executors.ExecInput) (map[string]any, error) {
		if in.NodeID == "a" {
			return nil, errors.New("upstream exploded")
		}
		mu.Lock()
		bInputs = in.Inputs
		mu.Unlock()
		return map[string]any{"ok": true}, nil
	}))

	eng := New(registry)
	results, err := eng.Run(context.Background(), definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("a", schema.NodeTypeAction),
			node("b", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "a"), edge("a", "b")},
	), nil, nil)
	if err != nil {
		t.Fatalf("a failed node must not fail the run: %v", err)
	}

	if results["a"].Status != schema.ResultError {
		t.Fatalf("expected a to fail, got %+v", results["a"])
	}
	if !strings.Contains(results["a"].Error, "upstream exploded") {
		t.Errorf("error message not preserved: %q", results["a"].Error)
	}
	if results["b"].Status != schema.ResultSuccess {
		t.Fatalf("b must still run after a's failure, got %+v", results["b"])
	}

	mu.Lock()
	defer mu.Unlock()
	if _, present := bInputs["a"]; present {
		t.Errorf("failed dependency must contribute no input, got %v", bInputs)
	}
}

func TestRun_SameLevelNodesExecuteConcurrently(t *testing.T) {
	started := make(chan string, 2)
	release := make(chan struct{})

	go func() {
		<-started
		<-started
		close(release)
	}()

	registry := newTestRegistry(t, actionStub(func(_ context.Context, in executors.ExecInput) (map[string]any, error) {
		started <- in.NodeID
		select {
		case <-release:
			return map[string]any{}, nil
		case <-time.After(3 * time.Second):
			return nil, errors.New("sibling never started: level not concurrent")
		}
	}))

	eng := New(registry)
	results, err := eng.Run(context.Background(), definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("x", schema.NodeTypeAction),
			node("y", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "x"), edge("t", "y")},
	), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, id := range []string{"x", "y"} {
		if results[id].Status != schema.ResultSuccess {
			t.Errorf("node %s: %+v", id, results[id])
		}
	}
}

func TestRun_ConditionPrunesUntakenBranch(t *testing.T) {
	registry := newTestRegistry(t,
		executors.NewConditionExecutor(expressions.NewExprEngine(), nil),
		actionStub(func(_ context.Context, in executors.ExecInput) (map[string]any, error) {
			return map[string]any{"ran": in.NodeID}, nil
		}),
	)

	cond := schema.Node{ID: "gate", Type: schema.NodeTypeCondition, Config: map[string]any{
		"expression": `trigger.amount > 100`,
	}}

	def := definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			cond,
			node("big", schema.NodeTypeAction),
			node("small", schema.NodeTypeAction),
		},
		[]schema.Edge{
			edge("t", "gate"),
			{ID: "gate-big", Source: "gate", Target: "big", SourceHandle: "true"},
			{ID: "gate-small", Source: "gate", Target: "small", SourceHandle: "false"},
		},
	)

	results, err := New(registry).Run(context.Background(), def, map[string]any{"amount": 250.0}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results["gate"].Data["result"] != true {
		t.Fatalf("condition should be true for 250: %+v", results["gate"])
	}
	if results["big"].Status != schema.ResultSuccess {
		t.Errorf("taken branch should run: %+v", results["big"])
	}
	if results["small"].Status != schema.ResultSkipped {
		t.Errorf("untaken branch should be skipped: %+v", results["small"])
	}
}

func TestRun_SkipPropagatesThroughDeadEdges(t *testing.T) {
	registry := newTestRegistry(t,
		executors.NewConditionExecutor(expressions.NewExprEngine(), nil),
		actionStub(func(_ context.Context, in executors.ExecInput) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	)

	cond := schema.Node{ID: "gate", Type: schema.NodeTypeCondition, Config: map[string]any{
		"expression": `false`,
	}}

	results, err := New(registry).Run(context.Background(), definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			cond,
			node("a", schema.NodeTypeAction),
			node("b", schema.NodeTypeAction),
		},
		[]schema.Edge{
			edge("t", "gate"),
			{ID: "gate-a", Source: "gate", Target: "a", SourceHandle: "true"},
			edge("a", "b"),
		},
	), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results["a"].Status != schema.ResultSkipped {
		t.Fatalf("a should be pruned: %+v", results["a"])
	}
	if results["b"].Status != schema.ResultSkipped {
		t.Errorf("b depends only on a skipped node and should be skipped too: %+v", results["b"])
	}
}

func TestRun_UnknownNodeTypeIsNodeError(t *testing.T) {
	registry := newTestRegistry(t)

	results, err := New(registry).Run(context.Background(), definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("mystery", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "mystery")},
	), nil, nil)
	if err != nil {
		t.Fatalf("unknown type must not fail the run: %v", err)
	}

	res := results["mystery"]
	if res.Status != schema.ResultError {
		t.Fatalf("expected error result, got %+v", res)
	}
	if !strings.Contains(res.Error, string(schema.NodeTypeAction)) {
		t.Errorf("error should name the missing type: %q", res.Error)
	}
}

func TestRun_ExecutorPanicBecomesNodeError(t *testing.T) {
	registry := newTestRegistry(t, actionStub(func(_ context.Context, _ executors.ExecInput) (map[string]any, error) {
		panic("boom")
	}))

	results, err := New(registry).Run(context.Background(), definition(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("a", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "a")},
	), nil, nil)
	if err != nil {
		t.Fatalf("panic must be contained: %v", err)
	}
	res := results["a"]
	if res.Status != schema.ResultError || !strings.Contains(res.Error, "boom") {
		t.Errorf("expected panic converted to node error, got %+v", res)
	}
}

func TestRun_ApprovalTimesOutAndRunCompletes(t *testing.T) {
	gate := approval.NewGate(nil, nil, "", nil)
	registry := newTestRegistry(t, executors.NewApprovalExecutor(gate))

	approvalNode := schema.Node{ID: "gate", Type: schema.NodeTypeApproval, Config: map[string]any{
		"timeoutMs": 50,
	}}

	start := time.Now()
	results, err := New(registry).Run(context.Background(), definition(
		[]schema.Node{node("t", schema.NodeTypeTrigger), approvalNode},
		[]schema.Edge{edge("t", "gate")},
	), nil, nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("run should return promptly after the approval timeout, took %v", elapsed)
	}

	res := results["gate"]
	if res.Status != schema.ResultSuccess {
		t.Fatalf("timeout is a distinguished outcome, not a node error: %+v", res)
	}
	if res.Data["approved"] != false || res.Data["timedOut"] != true {
		t.Errorf("expected approved=false timedOut=true, got %v", res.Data)
	}
}

func TestRun_ApprovalResolvedMidRun(t *testing.T) {
	gate := approval.NewGate(nil, nil, "", nil)
	registry := newTestRegistry(t, executors.NewApprovalExecutor(gate))

	approvalNode := schema.Node{ID: "gate", Type: schema.NodeTypeApproval, Config: map[string]any{
		"timeoutMs": 5000,
	}}

	// Approve from the outside once the waiter is parked.
	go func() {
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			for _, rec := range gate.List() {
				if rec.Status == schema.ApprovalPending {
					_ = gate.Resolve(context.Background(), rec.RunID, true, "looks good")
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	results, err := New(registry).Run(context.Background(), definition(
		[]schema.Node{node("t", schema.NodeTypeTrigger), approvalNode},
		[]schema.Edge{edge("t", "gate")},
	), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := results["gate"]
	if res.Status != schema.ResultSuccess || res.Data["approved"] != true {
		t.Fatalf("expected approved=true, got %+v", res)
	}
	if res.Data["reason"] != "looks good" {
		t.Errorf("reason not propagated: %v", res.Data)
	}
}

func TestRun_PerNodeTimeoutCancelsExecutor(t *testing.T) {
	registry := newTestRegistry(t, actionStub(func(ctx context.Context, _ executors.ExecInput) (map[string]any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return map[string]any{}, nil
		}
	}))

	slow := schema.Node{ID: "slow", Type: schema.NodeTypeAction, Config: map[string]any{"timeoutMs": 50}}

	start := time.Now()
	results, err := New(registry).Run(context.Background(), definition(
		[]schema.Node{node("t", schema.NodeTypeTrigger), slow},
		[]schema.Edge{edge("t", "slow")},
	), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("per-node deadline not enforced, took %v", elapsed)
	}
	if results["slow"].Status != schema.ResultError {
		t.Errorf("expected deadline error result, got %+v", results["slow"])
	}
}

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	complete []string
}

func (o *recordingObserver) OnNodeStarting(nodeID string, _ schema.NodeType, _ map[string]any) {
	o.mu.Lock()
	o.started = append(o.started, nodeID)
	o.mu.Unlock()
}

func (o *recordingObserver) OnNodeComplete(nodeID string, _ schema.NodeType, _ *schema.ExecutionResult, _ map[string]any) {
	o.mu.Lock()
	o.complete = append(o.complete, nodeID)
	o.mu.Unlock()
}

func TestRun_ObserverSeesEveryOutcome(t *testing.T) {
	obs := &recordingObserver{}
	registry := newTestRegistry(t, actionStub(func(_ context.Context, _ executors.ExecInput) (map[string]any, error) {
		return map[string]any{}, nil
	}))

	_, err := New(registry, WithObserver(obs)).Run(context.Background(), definition(
		[]schema.Node{node("t", schema.NodeTypeTrigger), node("a", schema.NodeTypeAction)},
		[]schema.Edge{edge("t", "a")},
	), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.started) != 2 || len(obs.complete) != 2 {
		t.Errorf("observer missed callbacks: started=%v complete=%v", obs.started, obs.complete)
	}
}

func TestRun_NilDefinition(t *testing.T) {
	_, err := New(newTestRegistry(t)).Run(context.Background(), nil, nil, nil)
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestRun_CyclicDefinitionFailsUpfront(t *testing.T) {
	_, err := New(newTestRegistry(t)).Run(context.Background(), definition(
		[]schema.Node{node("a", schema.NodeTypeAction), node("b", schema.NodeTypeAction)},
		[]schema.Edge{edge("a", "b"), edge("b", "a")},
	), nil, nil)
	assertCode(t, err, schema.ErrCodeCycleDetected)
}

func TestRun_ConcurrentRunsAreIndependent(t *testing.T) {
	registry := newTestRegistry(t, actionStub(func(_ context.Context, in executors.ExecInput) (map[string]any, error) {
		return map[string]any{"echo": in.Trigger["tag"]}, nil
	}))
	eng := New(registry)

	def := definition(
		[]schema.Node{node("t", schema.NodeTypeTrigger), node("a", schema.NodeTypeAction)},
		[]schema.Edge{edge("t", "a")},
	)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	outs := make([]map[string]*schema.ExecutionResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := string(rune('a' + i))
			outs[i], errs[i] = eng.Run(context.Background(), def, map[string]any{"tag": tag}, nil)
		}(i)
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		if errs[i] != nil {
			t.Fatalf("run %d: %v", i, errs[i])
		}
		want := string(rune('a' + i))
		if got := outs[i]["a"].Data["echo"]; got != want {
			t.Errorf("run %d leaked state: echo=%v want %v", i, got, want)
		}
	}
}
