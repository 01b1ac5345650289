// Package graph holds the pure algorithms over the blocked_by relation:
// cycle detection, phase computation and the blocks transpose.
//
// Edges are always given as ticket -> predecessors (the blocked_by direction).
package graph

import (
	"sort"
)

// Edges maps a ticket id to the ids it is blocked by.
type Edges map[string][]string

const (
	white = iota // unvisited
	grey         // on the current DFS path
	black        // fully explored
)

// DetectCycle returns the first cycle found as an ordered path that closes on
// its starting node (e.g. [A B A]), or nil when the graph is acyclic.
// Nodes and neighbours are visited in ascending id order so the reported path
// is stable across runs.
func DetectCycle(edges Edges) []string {
	color := make(map[string]int, len(edges))
	var path []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = grey
		path = append(path, id)

		for _, next := range sortedCopy(edges[id]) {
			switch color[next] {
			case grey:
				// Back edge: slice the path from the first occurrence of next.
				for i, p := range path {
					if p == next {
						cycle = append(append([]string{}, path[i:]...), next)
						return true
					}
				}
			case white:
				if visit(next) {
					return true
				}
			}
		}

		path = path[:len(path)-1]
		color[id] = black
		return false
	}

	for _, id := range nodes(edges) {
		if color[id] == white && visit(id) {
			return cycle
		}
	}
	return nil
}

// ComputePhases assigns every ticket the length of the longest blocked_by
// chain beneath it: 0 for tickets without predecessors, otherwise one more
// than the highest predecessor phase. Predecessor ids that are not keys of
// edges are ignored. The graph must be acyclic; tickets on a cycle are left
// out of the result.
func ComputePhases(edges Edges) map[string]int {
	indegree := make(map[string]int, len(edges))
	successors := make(map[string][]string, len(edges))
	for id, preds := range edges {
		if _, ok := indegree[id]; !ok {
			indegree[id] = 0
		}
		for _, p := range dedupe(preds) {
			if _, known := edges[p]; !known || p == id {
				continue
			}
			indegree[id]++
			successors[p] = append(successors[p], id)
		}
	}

	phases := make(map[string]int, len(edges))
	var queue []string
	for _, id := range nodes(edges) {
		if indegree[id] == 0 {
			queue = append(queue, id)
			phases[id] = 0
		}
	}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range successors[id] {
			if phases[id]+1 > phases[succ] {
				phases[succ] = phases[id] + 1
			}
			indegree[succ]--
			if indegree[succ] == 0 {
				queue = append(queue, succ)
			}
		}
	}

	// Anything never reaching indegree 0 sits on a cycle.
	for id, deg := range indegree {
		if deg > 0 {
			delete(phases, id)
		}
	}
	return phases
}

// Transpose returns the successor ("blocks") lists for every ticket in edges.
// Each list is sorted and every key of edges is present.
func Transpose(edges Edges) map[string][]string {
	out := make(map[string][]string, len(edges))
	for id := range edges {
		out[id] = []string{}
	}
	for id, preds := range edges {
		for _, p := range dedupe(preds) {
			if _, ok := out[p]; !ok {
				continue
			}
			out[p] = append(out[p], id)
		}
	}
	for id := range out {
		sort.Strings(out[id])
	}
	return out
}

// PathTo returns the longest blocked_by chain from ticket `from` down to a
// ticket with no predecessors, ordered from the root to `from`. It is the
// critical path for that ticket. Returns nil for unknown ids.
func PathTo(edges Edges, from string) []string {
	if _, ok := edges[from]; !ok {
		return nil
	}
	phases := ComputePhases(edges)
	var chain []string
	cur := from
	for {
		chain = append(chain, cur)
		best := ""
		for _, p := range sortedCopy(edges[cur]) {
			ph, ok := phases[p]
			if !ok {
				continue
			}
			if best == "" || ph > phases[best] {
				best = p
			}
		}
		if best == "" {
			break
		}
		cur = best
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// CriticalPath returns the longest chain in the whole graph, root first.
// Ties go to the lexicographically smallest leaf.
func CriticalPath(edges Edges) []string {
	phases := ComputePhases(edges)
	leaf := ""
	for _, id := range nodes(edges) {
		ph, ok := phases[id]
		if !ok {
			continue
		}
		if leaf == "" || ph > phases[leaf] {
			leaf = id
		}
	}
	if leaf == "" {
		return nil
	}
	return PathTo(edges, leaf)
}

func nodes(edges Edges) []string {
	ids := make([]string, 0, len(edges))
	for id := range edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sortedCopy(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
