// Package dag provides the dependency and workflow orchestration engine
// for TaskGraph-Go.
//
// The package is a pure decision library: it consumes read-only snapshots
// of a task-blocking graph or a workflow definition and returns plain data
// (booleans, ordered id slices, validation results). It never persists
// anything itself. Callers commit accepted mutations to a store (see the
// store subpackage) and re-invoke readiness computation to discover newly
// unblocked nodes.
//
// Because cycle pre-check and the eventual edge write are two separate
// steps, callers must serialize "read graph -> validate -> write graph"
// per affected graph under their own consistency boundary. The engine
// holds no locks and performs no I/O of its own.
package dag

import (
	"container/heap"
	"errors"
	"sort"
)

// ErrCyclic is returned when an operation that requires an acyclic graph
// encounters a cycle. Callers must treat this as a hard validation
// failure, never as a partial success.
var ErrCyclic = errors.New("graph contains a cycle")

// Successors is an abstract adjacency view: given a node id it returns the
// ids of that node's direct successors. Ids outside the known node set may
// appear in the result; traversals ignore them.
//
// Implementations should be cheap and deterministic for a single snapshot.
type Successors func(id string) []string

// HasCycle reports whether the directed graph formed by nodes and next
// contains a cycle. A node with an edge to itself is a cycle of length one.
//
// The traversal is a depth-first search maintaining an on-stack set; a
// back-edge into the stack signals a cycle. Disconnected components are
// each visited once, so the overall cost is O(V+E).
func HasCycle(nodes []string, next Successors) bool {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS stack
		black = 2 // fully explored
	)
	color := make(map[string]int, len(nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, succ := range next(id) {
			if !known[succ] {
				// Dangling reference: absent nodes contribute nothing.
				continue
			}
			switch color[succ] {
			case gray:
				return true
			case white:
				if visit(succ) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for _, id := range nodes {
		if color[id] == white && visit(id) {
			return true
		}
	}
	return false
}

// TopologicalOrder returns an ordering of nodes such that every edge points
// from an earlier to a later position, computed with Kahn's algorithm.
//
// If the graph contains a cycle, TopologicalOrder returns (nil, ErrCyclic)
// rather than a partial order.
//
// The ready queue is a min-heap keyed by node id, so the returned order is
// deterministic regardless of map iteration or input order. Edges that
// reference ids outside nodes are ignored.
func TopologicalOrder(nodes []string, next Successors) ([]string, error) {
	known := make(map[string]bool, len(nodes))
	for _, id := range nodes {
		known[id] = true
	}

	indeg := make(map[string]int, len(nodes))
	for _, id := range nodes {
		if _, ok := indeg[id]; !ok {
			indeg[id] = 0
		}
		for _, succ := range next(id) {
			if known[succ] {
				indeg[succ]++
			}
		}
	}

	ready := &stringMinHeap{}
	heap.Init(ready)
	for id, d := range indeg {
		if d == 0 {
			heap.Push(ready, id)
		}
	}

	order := make([]string, 0, len(indeg))
	for ready.Len() > 0 {
		id := heap.Pop(ready).(string)
		order = append(order, id)
		for _, succ := range next(id) {
			if !known[succ] {
				continue
			}
			indeg[succ]--
			if indeg[succ] == 0 {
				heap.Push(ready, succ)
			}
		}
	}

	if len(order) != len(indeg) {
		return nil, ErrCyclic
	}
	return order, nil
}

// stringMinHeap is a min-heap of node ids used to make Kahn's algorithm
// deterministic: the lexicographically smallest ready node is dequeued
// first.
type stringMinHeap []string

func (h stringMinHeap) Len() int           { return len(h) }
func (h stringMinHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h stringMinHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *stringMinHeap) Push(x any) {
	*h = append(*h, x.(string))
}

func (h *stringMinHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// sortedIDs returns the keys of set in lexicographic order. Shared helper
// for deterministic closure and readiness results.
func sortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
