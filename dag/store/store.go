// Package store provides persistence backends for the taskgraph engine.
//
// A Store owns the consistency boundary the engine itself refuses to own:
// every mutating method runs the relevant pure check from the dag package
// (cycle pre-check, definition validation, status transition table) and
// commits the write only on acceptance, serialized so that two concurrent
// mutations cannot each pass validation and together violate an invariant.
//
// Edges are held in a single canonical "depends on" set per task; the
// blockedBy and blocks lists a TaskRecord exposes are both derived from
// it, so the two directions can never drift out of sync.
package store

import (
	"context"
	"errors"

	"github.com/dshills/taskgraph-go/dag"
)

// ErrNotFound is returned when a requested task, definition or run id
// does not exist.
var ErrNotFound = errors.New("not found")

// ErrExists is returned when creating an entity whose id is already in
// use.
var ErrExists = errors.New("already exists")

// ErrNotActive is returned when starting a run for a definition that has
// not been validated and activated.
var ErrNotActive = errors.New("definition is not active")

// TaskRecord is a task node as seen by the engine: an opaque id, a status
// governed by the task transition table, and the two derived adjacency
// lists of the blocking graph.
type TaskRecord struct {
	ID     string         `json:"id"`
	Status dag.TaskStatus `json:"status"`

	// BlockedBy lists direct predecessors: tasks that must complete first.
	BlockedBy []string `json:"blocked_by,omitempty"`

	// Blocks lists direct successors: tasks this one gates.
	Blocks []string `json:"blocks,omitempty"`
}

// DefinitionRecord is a stored workflow definition plus its activation
// flag. Only active definitions may be run.
type DefinitionRecord struct {
	ID         string         `json:"id"`
	Definition dag.Definition `json:"definition"`
	Active     bool           `json:"active"`
}

// RunRecord is a snapshot of a workflow run: one run status plus one step
// status per definition node.
type RunRecord struct {
	ID           string                    `json:"id"`
	DefinitionID string                    `json:"definition_id"`
	Status       dag.RunStatus             `json:"status"`
	Steps        map[string]dag.StepStatus `json:"steps"`
}

// Store persists tasks, dependency edges, workflow definitions and runs.
//
// Implementations embed the engine's pure checks inside their write paths:
//   - AddDependency refuses edges that would create a cycle, returning a
//     *dag.DependencyError; nothing is written on refusal.
//   - SetTaskStatus, SetStepStatus and SetRunStatus refuse transitions not
//     in the respective tables, returning dag.ErrIllegalTransition.
//   - ActivateDefinition runs Definition.Validate and refuses invalid
//     definitions, reporting the errors as data.
//
// DeleteTask does not cascade: dependency edges referencing the deleted
// task are left in place and the engine treats them as absent
// contributors. Cleanup is eventual-consistency work for the caller.
//
// A Store also implements dag.GraphView, so a dag.Validator can query it
// directly for ad-hoc closure and critical-path queries.
type Store interface {
	dag.GraphView

	// CreateTask creates a task with empty blocking lists in the backlog
	// status. Returns ErrExists if the id is taken.
	CreateTask(ctx context.Context, id string) error

	// Task returns the task with derived BlockedBy/Blocks lists, or
	// ErrNotFound.
	Task(ctx context.Context, id string) (TaskRecord, error)

	// DeleteTask removes the task. Edges referencing it remain as
	// dangling references by design. Returns ErrNotFound if absent.
	DeleteTask(ctx context.Context, id string) error

	// SetTaskStatus applies a task status transition under the task
	// transition table.
	SetTaskStatus(ctx context.Context, id string, to dag.TaskStatus) error

	// AddDependency records "task requires dependsOn to finish first"
	// after a cycle pre-check under the store's write boundary. Both
	// tasks must exist. Adding an existing edge is a no-op.
	AddDependency(ctx context.Context, task, dependsOn string) error

	// RemoveDependency deletes the edge if present. Removing a missing
	// edge is a no-op.
	RemoveDependency(ctx context.Context, task, dependsOn string) error

	// PutDefinition stores or replaces a workflow definition in the
	// inactive state. Replacing an active definition deactivates it.
	PutDefinition(ctx context.Context, id string, def dag.Definition) error

	// Definition returns the stored definition, or ErrNotFound.
	Definition(ctx context.Context, id string) (DefinitionRecord, error)

	// ActivateDefinition validates the definition and marks it active on
	// success. The ValidationResult is returned either way; an invalid
	// definition stays inactive and is not an error.
	ActivateDefinition(ctx context.Context, id string) (dag.ValidationResult, error)

	// CreateRun starts a run of an active definition: every node begins
	// as a pending step and the run status is pending. Returns
	// ErrNotActive for inactive definitions.
	CreateRun(ctx context.Context, definitionID string) (RunRecord, error)

	// Run returns a snapshot of the run, or ErrNotFound.
	Run(ctx context.Context, runID string) (RunRecord, error)

	// SetStepStatus applies a step transition under the step transition
	// table, then folds the step statuses into the run status where the
	// run transition table permits.
	SetStepStatus(ctx context.Context, runID, nodeID string, to dag.StepStatus) error

	// SetRunStatus applies a run status transition under the run
	// transition table (e.g. aborting a running workflow).
	SetRunStatus(ctx context.Context, runID string, to dag.RunStatus) error

	// ReadySteps returns the run's currently startable steps: pending
	// steps whose every direct predecessor has completed (success or
	// skipped). Callers re-invoke this after every step completion.
	ReadySteps(ctx context.Context, runID string) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// completedSteps derives the completed-id set readiness is computed from:
// a step contributes once it has terminated without failure.
func completedSteps(steps map[string]dag.StepStatus) map[string]bool {
	done := make(map[string]bool, len(steps))
	for id, s := range steps {
		if s == dag.StepSuccess || s == dag.StepSkipped {
			done[id] = true
		}
	}
	return done
}

// startableSteps filters the ready set down to steps still pending; a
// running or failed step is not startable again.
func startableSteps(ready []string, steps map[string]dag.StepStatus) []string {
	out := make([]string, 0, len(ready))
	for _, id := range ready {
		if steps[id] == dag.StepPending {
			out = append(out, id)
		}
	}
	return out
}
