package dag

import (
	"fmt"
	"sort"
)

// NodeSpec describes the unit of work a workflow node performs. The engine
// treats it as opaque execution parameters; only node identity and edges
// matter for validation and scheduling.
type NodeSpec struct {
	// Handler names the operation the execution layer should invoke.
	Handler string `json:"handler" yaml:"handler"`

	// Params are handler-specific execution parameters.
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Definition is a named workflow DAG: a set of nodes, an adjacency map of
// direct successors per node, and a unique entry node.
//
// A Definition is immutable once validated and activated: it is created
// once (typically from a template or a YAML file, see the load subpackage)
// and read many times during a run.
type Definition struct {
	// Name identifies the definition. Not required for validity.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Nodes maps node id to its spec.
	Nodes map[string]NodeSpec `json:"nodes" yaml:"nodes"`

	// Edges maps a node id to the ordered list of its direct successors.
	Edges map[string][]string `json:"edges,omitempty" yaml:"edges,omitempty"`

	// EntryNodeID is the unique starting node.
	EntryNodeID string `json:"entry_node_id" yaml:"entry_node_id"`
}

// ValidationResult reports the outcome of Definition.Validate as plain
// data. Errors holds one human-readable reason per failed check.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Validate checks the definition for structural well-formedness.
//
// Checks are independent and all reported together rather than
// short-circuited, with one exception: an empty node set fails immediately
// since the remaining checks are meaningless without nodes.
//
// Checks:
//   - at least one node exists
//   - EntryNodeID refers to an existing node
//   - every edge source and every edge target refers to an existing node
//   - the graph formed by the edges is acyclic
//
// Validate never mutates the definition and is safe for concurrent use on
// an unshared or immutable value.
func (d Definition) Validate() ValidationResult {
	if len(d.Nodes) == 0 {
		return ValidationResult{
			Valid:  false,
			Errors: []string{"definition has no nodes"},
		}
	}

	var errs []string

	if _, ok := d.Nodes[d.EntryNodeID]; !ok {
		errs = append(errs, fmt.Sprintf("entry node %q does not exist", d.EntryNodeID))
	}

	// Report dangling edge references deterministically by source id.
	for _, from := range sortedEdgeSources(d.Edges) {
		if _, ok := d.Nodes[from]; !ok {
			errs = append(errs, fmt.Sprintf("edge source %q does not exist", from))
		}
		for _, to := range d.Edges[from] {
			if _, ok := d.Nodes[to]; !ok {
				errs = append(errs, fmt.Sprintf("edge %s -> %s targets unknown node %q", from, to, to))
			}
		}
	}

	// Cycle check runs over existing nodes only; dangling references were
	// already reported above and contribute nothing to the traversal.
	if HasCycle(d.nodeIDs(), d.successors()) {
		errs = append(errs, "definition contains a cycle")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// Order returns a deterministic topological order of the definition's
// nodes, or ErrCyclic when no order exists.
func (d Definition) Order() ([]string, error) {
	return TopologicalOrder(d.nodeIDs(), d.successors())
}

// nodeIDs returns the node ids in lexicographic order.
func (d Definition) nodeIDs() []string {
	ids := make([]string, 0, len(d.Nodes))
	for id := range d.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// successors returns an adjacency view over the definition's edge map.
func (d Definition) successors() Successors {
	return func(id string) []string {
		return d.Edges[id]
	}
}

func sortedEdgeSources(edges map[string][]string) []string {
	srcs := make([]string, 0, len(edges))
	for from := range edges {
		srcs = append(srcs, from)
	}
	sort.Strings(srcs)
	return srcs
}
