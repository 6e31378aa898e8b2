package dag

import (
	"context"
	"fmt"
	"sort"

	"github.com/dshills/taskgraph-go/dag/emit"
)

// GraphView is the minimal read capability the dependency validator needs
// over the task-blocking graph. It is typically backed by a document store
// (see the store subpackage) or by in-memory maps (see MapView).
//
// Both methods must treat a reference to a missing node as "no such
// predecessor": querying a missing node returns an empty list and a nil
// error, and stored edges naming missing nodes are dropped from results
// rather than reported. A non-nil error is reserved for genuine lookup
// failures (store I/O), which the validator propagates unchanged so the
// caller can translate it into its own error taxonomy.
//
// Implementations must present a consistent snapshot for the duration of
// one validator call. The validator itself holds no locks; callers must
// serialize "read graph -> validate -> write graph" per affected graph.
type GraphView interface {
	// Predecessors returns the ids of tasks that must complete before id
	// (the task's blockedBy set).
	Predecessors(ctx context.Context, id string) ([]string, error)

	// Successors returns the ids of tasks gated by id (the task's blocks
	// set).
	Successors(ctx context.Context, id string) ([]string, error)
}

// Options configures a Validator. The zero value is valid.
type Options struct {
	// GraphID tags emitted events with the graph they concern, e.g. a
	// tenant or project id. Optional.
	GraphID string

	// Metrics receives operation counters and closure sizes. Optional.
	Metrics *Metrics
}

// Validator exposes cycle pre-checks, transitive closure queries and
// critical-path extraction over a caller-supplied GraphView.
//
// All methods are pure with respect to the graph: the Validator never
// mutates anything. On acceptance the caller commits the change to storage
// and recomputes readiness; on refusal the caller must not write.
type Validator struct {
	view    GraphView
	emitter emit.Emitter
	opts    Options
}

// NewValidator creates a Validator over the given view. The emitter is
// optional and may be nil.
func NewValidator(view GraphView, emitter emit.Emitter, opts Options) *Validator {
	return &Validator{
		view:    view,
		emitter: emitter,
		opts:    opts,
	}
}

// WouldCreateCycleIfDependsOn reports whether adding the dependency edge
// "task requires onTask to finish first" to the existing graph would
// create a cycle.
//
// The check computes the transitive closure of everything onTask already
// requires, directly or indirectly; if task appears in that closure the
// new edge closes a loop back to itself and must be refused. The trivial
// case task == onTask is always a cycle.
//
// The caller must invoke this before persisting any new dependency edge,
// under a consistency boundary that also covers the write: two concurrent
// insertions can each individually pass and together form a cycle.
func (v *Validator) WouldCreateCycleIfDependsOn(ctx context.Context, task, onTask string) (bool, error) {
	if task == onTask {
		v.emitCycleCheck(task, onTask, true)
		v.opts.Metrics.RecordCycleCheck(true)
		return true, nil
	}

	closure, err := v.closure(ctx, onTask, v.view.Predecessors)
	if err != nil {
		return false, fmt.Errorf("cycle pre-check for %s -> %s: %w", task, onTask, err)
	}

	wouldCycle := closure[task]
	v.emitCycleCheck(task, onTask, wouldCycle)
	v.opts.Metrics.RecordCycleCheck(wouldCycle)
	return wouldCycle, nil
}

// TransitiveDependencies returns every task that id transitively requires,
// following blockedBy edges. The start node is excluded. Dangling
// references contribute nothing. The result is sorted.
func (v *Validator) TransitiveDependencies(ctx context.Context, id string) ([]string, error) {
	closure, err := v.closure(ctx, id, v.view.Predecessors)
	if err != nil {
		return nil, fmt.Errorf("transitive dependencies of %s: %w", id, err)
	}
	v.opts.Metrics.RecordClosureSize(len(closure))
	return sortedIDs(closure), nil
}

// TransitiveDependents returns every task that transitively requires id,
// following blocks edges. Symmetric to TransitiveDependencies.
func (v *Validator) TransitiveDependents(ctx context.Context, id string) ([]string, error) {
	closure, err := v.closure(ctx, id, v.view.Successors)
	if err != nil {
		return nil, fmt.Errorf("transitive dependents of %s: %w", id, err)
	}
	v.opts.Metrics.RecordClosureSize(len(closure))
	return sortedIDs(closure), nil
}

// closure performs a breadth-first traversal from start following the
// given direction, returning all reached nodes excluding start.
func (v *Validator) closure(ctx context.Context, start string, next func(context.Context, string) ([]string, error)) (map[string]bool, error) {
	seen := map[string]bool{start: true}
	frontier := []string{start}

	for len(frontier) > 0 {
		id := frontier[0]
		frontier = frontier[1:]

		neighbors, err := next(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if !seen[n] {
				seen[n] = true
				frontier = append(frontier, n)
			}
		}
	}

	delete(seen, start)
	return seen, nil
}

// CriticalPath returns the longest predecessor chain ending at id,
// expressed as an ordered sequence starting at id and walking backward
// through blockedBy edges. At each step it follows whichever predecessor
// itself has the longest remaining chain, not necessarily the first
// listed one; ties break toward the lexicographically smallest id so the
// result is deterministic. A task with no predecessors yields [id].
//
// Chain lengths are memoized within the call, so repeated fan-in is
// computed once per node.
func (v *Validator) CriticalPath(ctx context.Context, id string) ([]string, error) {
	memo := make(map[string]int)
	onStack := make(map[string]bool)

	// chainLen is the number of nodes on the longest chain ending at the
	// given task, counting the task itself. A predecessor currently on the
	// DFS stack indicates a cycle in stored data; it contributes nothing
	// so the walk still terminates.
	var chainLen func(string) (int, error)
	chainLen = func(task string) (int, error) {
		if l, ok := memo[task]; ok {
			return l, nil
		}
		if onStack[task] {
			return 0, nil
		}
		onStack[task] = true
		defer delete(onStack, task)

		preds, err := v.view.Predecessors(ctx, task)
		if err != nil {
			return 0, err
		}
		best := 0
		for _, p := range preds {
			l, err := chainLen(p)
			if err != nil {
				return 0, err
			}
			if l > best {
				best = l
			}
		}
		memo[task] = best + 1
		return best + 1, nil
	}

	if _, err := chainLen(id); err != nil {
		return nil, fmt.Errorf("critical path of %s: %w", id, err)
	}

	path := []string{id}
	visited := map[string]bool{id: true}
	current := id
	for {
		preds, err := v.view.Predecessors(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("critical path of %s: %w", id, err)
		}
		sort.Strings(preds)

		next := ""
		best := 0
		for _, p := range preds {
			if visited[p] {
				continue
			}
			l, err := chainLen(p)
			if err != nil {
				return nil, fmt.Errorf("critical path of %s: %w", id, err)
			}
			if l > best {
				best = l
				next = p
			}
		}
		if next == "" {
			return path, nil
		}
		path = append(path, next)
		visited[next] = true
		current = next
	}
}

func (v *Validator) emitCycleCheck(task, onTask string, wouldCycle bool) {
	if v.emitter == nil {
		return
	}
	v.emitter.Emit(emit.Event{
		GraphID: v.opts.GraphID,
		NodeID:  task,
		Msg:     "cycle_check",
		Meta: map[string]interface{}{
			"depends_on":  onTask,
			"would_cycle": wouldCycle,
		},
	})
}

// MapView is an in-memory GraphView over plain adjacency maps. Useful for
// tests, examples and one-shot CLI invocations where the graph is already
// in hand.
//
// The maps are read directly; callers must not mutate them while a
// validator call is in flight.
type MapView struct {
	// BlockedBy maps a task id to its direct predecessors.
	BlockedBy map[string][]string

	// Blocks maps a task id to its direct successors.
	Blocks map[string][]string
}

// Predecessors implements GraphView.
func (m MapView) Predecessors(_ context.Context, id string) ([]string, error) {
	return m.BlockedBy[id], nil
}

// Successors implements GraphView.
func (m MapView) Successors(_ context.Context, id string) ([]string, error) {
	return m.Blocks[id], nil
}
