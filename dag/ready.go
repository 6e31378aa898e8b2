package dag

// ReadySteps returns the ids of all nodes in the definition that are
// eligible to execute: not yet completed, with every existing direct
// predecessor in completed.
//
// A node with zero predecessors is ready as soon as it is not completed;
// this is how the entry node becomes ready before anything else finishes.
// Predecessors referencing nodes absent from the definition are ignored.
//
// The function is pure and stateless. The engine has no notion of
// "in-flight" versus "not yet started", only completed versus not: the
// caller re-invokes ReadySteps after every completion event to discover
// newly unblocked nodes. Given the same completed set the result is
// identical, and completing strictly more nodes never removes a node from
// eventual readiness.
//
// The result is sorted lexicographically for determinism.
func ReadySteps(def Definition, completed map[string]bool) []string {
	// Invert the successor map once, then check each candidate.
	preds := make(map[string][]string, len(def.Nodes))
	for from, tos := range def.Edges {
		if _, ok := def.Nodes[from]; !ok {
			continue
		}
		for _, to := range tos {
			if _, ok := def.Nodes[to]; !ok {
				continue
			}
			preds[to] = append(preds[to], from)
		}
	}

	ready := make(map[string]bool)
	for id := range def.Nodes {
		if completed[id] {
			continue
		}
		satisfied := true
		for _, p := range preds[id] {
			if !completed[p] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready[id] = true
		}
	}
	return sortedIDs(ready)
}
