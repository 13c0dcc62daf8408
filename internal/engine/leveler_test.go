package engine

import (
	"testing"

	"github.com/rendis/conduit/pkg/schema"
)

// --- helpers ---

func node(id string, t schema.NodeType) schema.Node {
	return schema.Node{ID: id, Type: t}
}

func edge(source, target string) schema.Edge {
	return schema.Edge{ID: source + "-" + target, Source: source, Target: target}
}

func levelIndex(levels [][]string) map[string]int {
	m := make(map[string]int)
	for i, level := range levels {
		for _, id := range level {
			m[id] = i
		}
	}
	return m
}

func assertCode(t *testing.T, err error, expectedCode string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	cErr, ok := err.(*schema.ConduitError)
	if !ok {
		t.Fatalf("expected ConduitError, got %T: %v", err, err)
	}
	if cErr.Code != expectedCode {
		t.Errorf("expected code %s, got %s: %s", expectedCode, cErr.Code, cErr.Message)
	}
}

// --- tests ---

func TestLevels_LinearChain(t *testing.T) {
	levels, err := Levels(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("a", schema.NodeTypeAction),
			node("b", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "a"), edge("a", "b")},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]string{{"t"}, {"a"}, {"b"}}
	if len(levels) != len(want) {
		t.Fatalf("expected %d levels, got %d: %v", len(want), len(levels), levels)
	}
	for i := range want {
		if len(levels[i]) != 1 || levels[i][0] != want[i][0] {
			t.Errorf("level %d: expected %v, got %v", i, want[i], levels[i])
		}
	}
}

func TestLevels_IndependentBranches(t *testing.T) {
	levels, err := Levels(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("x", schema.NodeTypeAction),
			node("y", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "x"), edge("t", "y")},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(levels) != 2 {
		t.Fatalf("expected 2 levels, got %d: %v", len(levels), levels)
	}
	if len(levels[1]) != 2 {
		t.Errorf("expected x and y in level 1, got %v", levels[1])
	}
}

func TestLevels_Diamond(t *testing.T) {
	levels, err := Levels(
		[]schema.Node{
			node("t", schema.NodeTypeTrigger),
			node("x", schema.NodeTypeAction),
			node("y", schema.NodeTypeAction),
			node("join", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("t", "x"), edge("t", "y"), edge("x", "join"), edge("y", "join")},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("expected 3 levels, got %d: %v", len(levels), levels)
	}
	if levels[2][0] != "join" {
		t.Errorf("expected join in last level, got %v", levels[2])
	}
}

// Every node partitioned exactly once, dependencies in strictly earlier levels.
func TestLevels_DependencyBeforeDependent(t *testing.T) {
	nodes := []schema.Node{
		node("t", schema.NodeTypeTrigger),
		node("a", schema.NodeTypeAction),
		node("b", schema.NodeTypeAction),
		node("c", schema.NodeTypeAction),
		node("d", schema.NodeTypeAction),
	}
	edges := []schema.Edge{
		edge("t", "a"), edge("t", "b"), edge("a", "c"), edge("b", "c"), edge("c", "d"), edge("t", "d"),
	}

	levels, err := Levels(nodes, edges)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	idx := levelIndex(levels)
	if len(idx) != len(nodes) {
		t.Fatalf("partition does not cover every node exactly once: %v", levels)
	}
	for _, e := range edges {
		if idx[e.Source] >= idx[e.Target] {
			t.Errorf("edge %s->%s: source level %d not before target level %d",
				e.Source, e.Target, idx[e.Source], idx[e.Target])
		}
	}
}

func TestLevels_CycleIsHardError(t *testing.T) {
	_, err := Levels(
		[]schema.Node{
			node("a", schema.NodeTypeAction),
			node("b", schema.NodeTypeAction),
		},
		[]schema.Edge{edge("a", "b"), edge("b", "a")},
	)
	assertCode(t, err, schema.ErrCodeCycleDetected)
}

func TestLevels_MissingDependencyIsHardError(t *testing.T) {
	_, err := Levels(
		[]schema.Node{node("a", schema.NodeTypeAction)},
		[]schema.Edge{{ID: "e", Source: "ghost", Target: "a"}},
	)
	assertCode(t, err, schema.ErrCodeCycleDetected)
}

func TestLevels_DuplicateNodeID(t *testing.T) {
	_, err := Levels(
		[]schema.Node{node("a", schema.NodeTypeAction), node("a", schema.NodeTypeAction)},
		nil,
	)
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestLevels_EmptyGraph(t *testing.T) {
	_, err := Levels(nil, nil)
	assertCode(t, err, schema.ErrCodeValidation)
}

func TestLevels_SingleNode(t *testing.T) {
	levels, err := Levels([]schema.Node{node("t", schema.NodeTypeTrigger)}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || levels[0][0] != "t" {
		t.Errorf("expected [[t]], got %v", levels)
	}
}
