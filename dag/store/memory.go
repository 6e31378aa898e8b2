package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/taskgraph-go/dag"
	"github.com/dshills/taskgraph-go/dag/emit"
)

// Options configures observability for a store. The zero value is valid.
type Options struct {
	// Emitter receives events for cycle checks, validations and status
	// transitions. Optional.
	Emitter emit.Emitter

	// Metrics receives operation counters. Optional.
	Metrics *dag.Metrics

	// GraphID tags emitted events, e.g. a tenant or project id. Optional.
	GraphID string
}

// MemStore is an in-memory implementation of Store.
//
// Designed for testing, development and single-process use. All data is
// lost when the process terminates; use the SQLite, MySQL or Postgres
// store for durability.
//
// MemStore is thread-safe. Its RWMutex is the consistency boundary: the
// cycle pre-check in AddDependency and the subsequent edge write happen
// under one critical section, so concurrent insertions cannot race a
// cycle into the graph.
type MemStore struct {
	mu   sync.RWMutex
	opts Options

	tasks map[string]dag.TaskStatus
	deps  map[string]map[string]bool // task id -> set of ids it depends on
	defs  map[string]DefinitionRecord
	runs  map[string]*RunRecord
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts Options) *MemStore {
	return &MemStore{
		opts:  opts,
		tasks: make(map[string]dag.TaskStatus),
		deps:  make(map[string]map[string]bool),
		defs:  make(map[string]DefinitionRecord),
		runs:  make(map[string]*RunRecord),
	}
}

// memView reads the adjacency maps without locking. It is used inside
// write paths that already hold the store lock; the exported GraphView
// methods lock and delegate to it.
//
// Dangling references (edges naming deleted tasks) are filtered out here,
// so traversals see a missing node as "no such predecessor".
type memView struct {
	s *MemStore
}

func (v memView) Predecessors(_ context.Context, id string) ([]string, error) {
	set := v.s.deps[id]
	out := make([]string, 0, len(set))
	for dep := range set {
		if _, ok := v.s.tasks[dep]; ok {
			out = append(out, dep)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (v memView) Successors(_ context.Context, id string) ([]string, error) {
	var out []string
	for task, set := range v.s.deps {
		if set[id] {
			if _, ok := v.s.tasks[task]; ok {
				out = append(out, task)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// Predecessors implements dag.GraphView. A missing task yields an empty
// list, never an error.
func (m *MemStore) Predecessors(ctx context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.Predecessors(ctx, id)
}

// Successors implements dag.GraphView.
func (m *MemStore) Successors(ctx context.Context, id string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return memView{m}.Successors(ctx, id)
}

// CreateTask creates a task in the backlog status with no edges.
func (m *MemStore) CreateTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[id]; exists {
		return ErrExists
	}
	m.tasks[id] = dag.TaskBacklog
	return nil
}

// Task returns the task with both adjacency lists derived from the
// canonical edge set. Dangling edges (referencing deleted tasks) are
// filtered out of the derived lists.
func (m *MemStore) Task(ctx context.Context, id string) (TaskRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, ok := m.tasks[id]
	if !ok {
		return TaskRecord{}, ErrNotFound
	}

	preds, _ := memView{m}.Predecessors(ctx, id)
	succs, _ := memView{m}.Successors(ctx, id)
	return TaskRecord{
		ID:        id,
		Status:    status,
		BlockedBy: preds,
		Blocks:    succs,
	}, nil
}

// DeleteTask removes the task without cascading edge cleanup.
func (m *MemStore) DeleteTask(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[id]; !ok {
		return ErrNotFound
	}
	delete(m.tasks, id)
	// Edges involving id stay behind as dangling references; traversals
	// treat them as absent contributors.
	return nil
}

// SetTaskStatus applies a transition under the task transition table.
func (m *MemStore) SetTaskStatus(_ context.Context, id string, to dag.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	allowed := cur.CanTransitionTo(to)
	m.opts.Metrics.RecordTransitionCheck("task", allowed)
	m.emitTransition("task_transition", id, string(cur), string(to), allowed)
	if !allowed {
		return dag.ErrIllegalTransition
	}
	m.tasks[id] = to
	return nil
}

// AddDependency records the edge task -> dependsOn after the cycle
// pre-check, all under the store's write lock.
func (m *MemStore) AddDependency(ctx context.Context, task, dependsOn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tasks[task]; !ok {
		return ErrNotFound
	}
	if _, ok := m.tasks[dependsOn]; !ok {
		return ErrNotFound
	}

	validator := dag.NewValidator(memView{m}, m.opts.Emitter, dag.Options{
		GraphID: m.opts.GraphID,
		Metrics: m.opts.Metrics,
	})
	wouldCycle, err := validator.WouldCreateCycleIfDependsOn(ctx, task, dependsOn)
	if err != nil {
		return err
	}
	if wouldCycle {
		return refusedDependency(task, dependsOn)
	}

	if m.deps[task] == nil {
		m.deps[task] = make(map[string]bool)
	}
	m.deps[task][dependsOn] = true
	return nil
}

// RemoveDependency deletes the edge task -> dependsOn if present.
func (m *MemStore) RemoveDependency(_ context.Context, task, dependsOn string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if set, ok := m.deps[task]; ok {
		delete(set, dependsOn)
		if len(set) == 0 {
			delete(m.deps, task)
		}
	}
	return nil
}

// PutDefinition stores or replaces a definition in the inactive state.
func (m *MemStore) PutDefinition(_ context.Context, id string, def dag.Definition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.defs[id] = DefinitionRecord{ID: id, Definition: def, Active: false}
	return nil
}

// Definition returns the stored definition record.
func (m *MemStore) Definition(_ context.Context, id string) (DefinitionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.defs[id]
	if !ok {
		return DefinitionRecord{}, ErrNotFound
	}
	return rec, nil
}

// ActivateDefinition validates and, on success, activates the definition.
func (m *MemStore) ActivateDefinition(_ context.Context, id string) (dag.ValidationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.defs[id]
	if !ok {
		return dag.ValidationResult{}, ErrNotFound
	}

	result := rec.Definition.Validate()
	m.opts.Metrics.RecordValidation(result.Valid)
	m.emitValidation(id, result)
	if result.Valid {
		rec.Active = true
		m.defs[id] = rec
	}
	return result, nil
}

// CreateRun starts a run of an active definition with every step pending.
func (m *MemStore) CreateRun(_ context.Context, definitionID string) (RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.defs[definitionID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	if !rec.Active {
		return RunRecord{}, ErrNotActive
	}

	steps := make(map[string]dag.StepStatus, len(rec.Definition.Nodes))
	for nodeID := range rec.Definition.Nodes {
		steps[nodeID] = dag.StepPending
	}
	run := &RunRecord{
		ID:           uuid.NewString(),
		DefinitionID: definitionID,
		Status:       dag.RunPending,
		Steps:        steps,
	}
	m.runs[run.ID] = run
	return m.snapshotRun(run), nil
}

// Run returns a copy of the run record.
func (m *MemStore) Run(_ context.Context, runID string) (RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return RunRecord{}, ErrNotFound
	}
	return m.snapshotRun(run), nil
}

func (m *MemStore) snapshotRun(run *RunRecord) RunRecord {
	steps := make(map[string]dag.StepStatus, len(run.Steps))
	for id, s := range run.Steps {
		steps[id] = s
	}
	return RunRecord{
		ID:           run.ID,
		DefinitionID: run.DefinitionID,
		Status:       run.Status,
		Steps:        steps,
	}
}

// SetStepStatus applies a step transition, then folds the new step set
// into the run status where the run transition table permits.
func (m *MemStore) SetStepStatus(_ context.Context, runID, nodeID string, to dag.StepStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	cur, ok := run.Steps[nodeID]
	if !ok {
		return ErrNotFound
	}

	allowed := cur.CanTransitionTo(to)
	m.opts.Metrics.RecordTransitionCheck("step", allowed)
	m.emitTransition("step_transition", nodeID, string(cur), string(to), allowed)
	if !allowed {
		return dag.ErrIllegalTransition
	}

	run.Steps[nodeID] = to
	if next := dag.ComputeRunStatus(run.Steps); next != run.Status && run.Status.CanTransitionTo(next) {
		run.Status = next
	}
	return nil
}

// SetRunStatus applies a run transition under the run transition table.
func (m *MemStore) SetRunStatus(_ context.Context, runID string, to dag.RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	allowed := run.Status.CanTransitionTo(to)
	m.opts.Metrics.RecordTransitionCheck("run", allowed)
	m.emitTransition("run_transition", runID, string(run.Status), string(to), allowed)
	if !allowed {
		return dag.ErrIllegalTransition
	}
	run.Status = to
	return nil
}

// ReadySteps returns the run's startable steps.
func (m *MemStore) ReadySteps(_ context.Context, runID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := m.defs[run.DefinitionID]
	if !ok {
		return nil, ErrNotFound
	}

	m.opts.Metrics.RecordReadyComputation()
	ready := dag.ReadySteps(rec.Definition, completedSteps(run.Steps))
	return startableSteps(ready, run.Steps), nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }

func (m *MemStore) emitTransition(msg, nodeID, from, to string, allowed bool) {
	if m.opts.Emitter == nil {
		return
	}
	m.opts.Emitter.Emit(emit.Event{
		GraphID: m.opts.GraphID,
		NodeID:  nodeID,
		Msg:     msg,
		Meta: map[string]interface{}{
			"from":    from,
			"to":      to,
			"allowed": allowed,
		},
	})
}

func (m *MemStore) emitValidation(id string, result dag.ValidationResult) {
	if m.opts.Emitter == nil {
		return
	}
	m.opts.Emitter.Emit(emit.Event{
		GraphID: m.opts.GraphID,
		NodeID:  id,
		Msg:     "definition_validated",
		Meta: map[string]interface{}{
			"valid":  result.Valid,
			"errors": result.Errors,
		},
	})
}

// refusedDependency builds the structured refusal for a cycle-creating
// edge.
func refusedDependency(task, dependsOn string) *dag.DependencyError {
	code := "CYCLE"
	msg := "adding dependency " + task + " -> " + dependsOn + " would create a cycle"
	if task == dependsOn {
		code = "SELF_DEPENDENCY"
		msg = "task " + task + " cannot depend on itself"
	}
	return &dag.DependencyError{
		Task:      task,
		DependsOn: dependsOn,
		Code:      code,
		Message:   msg,
	}
}
