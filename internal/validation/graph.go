package validation

import (
	"fmt"
	"sort"

	"github.com/rendis/conduit/pkg/schema"
)

// CheckGraph runs the pre-flight structural checks on a definition and
// returns human-readable issues. An empty list means the graph is acceptable
// to execute. The engine assumes callers ran this first: it hard-fails on a
// graph it cannot level but produces far less useful diagnostics.
func CheckGraph(def *schema.Definition) []string {
	var issues []string
	if def == nil {
		return []string{"definition is nil"}
	}
	if len(def.Nodes) == 0 {
		return []string{"workflow has no nodes"}
	}

	ids := make(map[string]*schema.Node, len(def.Nodes))
	triggers := 0
	for i := range def.Nodes {
		n := &def.Nodes[i]
		if n.ID == "" {
			issues = append(issues, fmt.Sprintf("node at index %d has an empty id", i))
			continue
		}
		if _, dup := ids[n.ID]; dup {
			issues = append(issues, fmt.Sprintf("duplicate node id %q", n.ID))
			continue
		}
		ids[n.ID] = n
		if !schema.ValidNodeTypes[n.Type] {
			issues = append(issues, fmt.Sprintf("node %q has unknown type %q", n.ID, n.Type))
		}
		if n.Type == schema.NodeTypeTrigger {
			triggers++
		}
	}

	if triggers == 0 {
		issues = append(issues, "workflow has no trigger node")
	}

	// Edge references and per-node connectivity.
	referenced := make(map[string]bool, len(ids))
	adjacency := make(map[string][]string, len(ids))
	for _, e := range def.Edges {
		if _, ok := ids[e.Source]; !ok {
			issues = append(issues, fmt.Sprintf("edge %q references missing source node %q", e.ID, e.Source))
			continue
		}
		if _, ok := ids[e.Target]; !ok {
			issues = append(issues, fmt.Sprintf("edge %q references missing target node %q", e.ID, e.Target))
			continue
		}
		referenced[e.Source] = true
		referenced[e.Target] = true
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
	}

	// Every node except trigger nodes must be attached to the graph.
	orphans := make([]string, 0)
	for id, n := range ids {
		if n.Type == schema.NodeTypeTrigger {
			continue
		}
		if !referenced[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		issues = append(issues, fmt.Sprintf("node %q is not connected to any edge", id))
	}

	if cycle := findCycle(ids, adjacency); cycle != "" {
		issues = append(issues, fmt.Sprintf("workflow contains a cycle involving node %q", cycle))
	}

	return issues
}

// findCycle runs DFS with a recursion stack and returns a node on the first
// cycle found, or "" when the graph is acyclic.
func findCycle(ids map[string]*schema.Node, adjacency map[string][]string) string {
	visited := make(map[string]bool, len(ids))
	onStack := make(map[string]bool, len(ids))

	// Deterministic traversal order for stable messages.
	ordered := make([]string, 0, len(ids))
	for id := range ids {
		ordered = append(ordered, id)
	}
	sort.Strings(ordered)

	var visit func(id string) string
	visit = func(id string) string {
		visited[id] = true
		onStack[id] = true
		for _, next := range adjacency[id] {
			if onStack[next] {
				return next
			}
			if !visited[next] {
				if hit := visit(next); hit != "" {
					return hit
				}
			}
		}
		onStack[id] = false
		return ""
	}

	for _, id := range ordered {
		if !visited[id] {
			if hit := visit(id); hit != "" {
				return hit
			}
		}
	}
	return ""
}
