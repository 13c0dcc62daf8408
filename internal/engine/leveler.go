package engine

import (
	"sort"
	"strings"

	"github.com/rendis/conduit/pkg/schema"
)

// Levels partitions the graph's nodes into ordered execution levels: every
// node's dependencies land in a strictly earlier level, so nodes within one
// level can run concurrently.
//
// A node's dependency set is the distinct sources of its incoming edges.
// The algorithm repeatedly collects the not-yet-placed nodes whose full
// dependency set is already placed. An iteration that places nothing while
// nodes remain means a cycle or a dependency on a non-existent node; that is
// a hard error here — the pre-flight validator is expected to catch it first,
// and executing a malformed graph with incomplete inputs would only hide the
// caller's bug.
//
// O(V+E) per level, O(V*(V+E)) worst case. Fine for human-authored graphs
// of tens of nodes.
func Levels(nodes []schema.Node, edges []schema.Edge) ([][]string, error) {
	if len(nodes) == 0 {
		return nil, schema.NewError(schema.ErrCodeValidation, "graph has no nodes")
	}

	ids := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			return nil, schema.NewError(schema.ErrCodeValidation, "node has empty ID")
		}
		if ids[n.ID] {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate node ID: %s", n.ID)
		}
		ids[n.ID] = true
	}

	// deps[id] = distinct source nodes of incoming edges.
	deps := make(map[string]map[string]bool, len(nodes))
	for _, n := range nodes {
		deps[n.ID] = make(map[string]bool)
	}
	for _, e := range edges {
		if _, ok := deps[e.Target]; !ok {
			continue // dangling target; surfaces as unplaceable source refs below
		}
		deps[e.Target][e.Source] = true
	}

	placed := make(map[string]bool, len(nodes))
	levels := make([][]string, 0, 4)

	for len(placed) < len(nodes) {
		var level []string
		for _, n := range nodes {
			if placed[n.ID] {
				continue
			}
			ready := true
			for dep := range deps[n.ID] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, n.ID)
			}
		}

		if len(level) == 0 {
			remaining := make([]string, 0, len(nodes)-len(placed))
			for _, n := range nodes {
				if !placed[n.ID] {
					remaining = append(remaining, n.ID)
				}
			}
			sort.Strings(remaining)
			return nil, schema.NewErrorf(schema.ErrCodeCycleDetected,
				"graph cannot be leveled: cycle or missing dependency among [%s]",
				strings.Join(remaining, ", ")).
				WithDetails(map[string]any{"unplaced_nodes": remaining})
		}

		for _, id := range level {
			placed[id] = true
		}
		levels = append(levels, level)
	}

	return levels, nil
}
