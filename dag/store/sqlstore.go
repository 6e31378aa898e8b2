package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/dshills/taskgraph-go/dag"
	"github.com/dshills/taskgraph-go/dag/emit"
)

// sqlStore is the shared implementation behind the SQLite, MySQL and
// Postgres stores. Backend differences are confined to the constructor
// (driver, DSN handling, pool settings, DDL) and the placeholder style.
//
// Writes are serialized by an in-process mutex spanning check and commit,
// and multi-statement writes additionally run inside a transaction. This
// is the same per-process consistency boundary the in-memory store
// provides; deployments with multiple writer processes must add their own
// serialization (e.g. an advisory lock per graph).
type sqlStore struct {
	db   *sql.DB
	mu   sync.Mutex
	opts Options

	// numberedArgs selects $1-style placeholders (Postgres) over ?.
	numberedArgs bool
}

// q rewrites ? placeholders into $1..$n form when the backend needs it.
func (s *sqlStore) q(query string) string {
	if !s.numberedArgs {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Predecessors implements dag.GraphView. The join filters out dangling
// references so a deleted task contributes nothing; a missing task yields
// an empty list and only query failures surface as errors.
func (s *sqlStore) Predecessors(ctx context.Context, id string) ([]string, error) {
	return s.column(ctx,
		"SELECT d.depends_on FROM task_deps d JOIN tasks t ON t.id = d.depends_on WHERE d.task_id = ? ORDER BY d.depends_on", id)
}

// Successors implements dag.GraphView.
func (s *sqlStore) Successors(ctx context.Context, id string) ([]string, error) {
	return s.column(ctx,
		"SELECT d.task_id FROM task_deps d JOIN tasks t ON t.id = d.task_id WHERE d.depends_on = ? ORDER BY d.task_id", id)
}

func (s *sqlStore) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CreateTask creates a task in the backlog status.
func (s *sqlStore) CreateTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.taskExists(ctx, id)
	if err != nil {
		return err
	}
	if exists {
		return ErrExists
	}
	_, err = s.db.ExecContext(ctx, s.q("INSERT INTO tasks (id, status) VALUES (?, ?)"), id, string(dag.TaskBacklog))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *sqlStore) taskExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, s.q("SELECT 1 FROM tasks WHERE id = ?"), id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("task lookup: %w", err)
	}
	return true, nil
}

// Task returns the task with derived adjacency lists, filtered to tasks
// that still exist.
func (s *sqlStore) Task(ctx context.Context, id string) (TaskRecord, error) {
	var status string
	err := s.db.QueryRowContext(ctx, s.q("SELECT status FROM tasks WHERE id = ?"), id).Scan(&status)
	if err == sql.ErrNoRows {
		return TaskRecord{}, ErrNotFound
	}
	if err != nil {
		return TaskRecord{}, fmt.Errorf("task lookup: %w", err)
	}

	blockedBy, err := s.Predecessors(ctx, id)
	if err != nil {
		return TaskRecord{}, err
	}
	blocks, err := s.Successors(ctx, id)
	if err != nil {
		return TaskRecord{}, err
	}

	return TaskRecord{
		ID:        id,
		Status:    dag.TaskStatus(status),
		BlockedBy: blockedBy,
		Blocks:    blocks,
	}, nil
}

// DeleteTask removes the task row only; dependency rows referencing it
// remain as dangling references by design.
func (s *sqlStore) DeleteTask(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, s.q("DELETE FROM tasks WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTaskStatus applies a transition under the task transition table.
func (s *sqlStore) SetTaskStatus(ctx context.Context, id string, to dag.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var curStr string
	err := s.db.QueryRowContext(ctx, s.q("SELECT status FROM tasks WHERE id = ?"), id).Scan(&curStr)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("task lookup: %w", err)
	}

	cur := dag.TaskStatus(curStr)
	allowed := cur.CanTransitionTo(to)
	s.opts.Metrics.RecordTransitionCheck("task", allowed)
	s.emitTransition("task_transition", id, curStr, string(to), allowed)
	if !allowed {
		return dag.ErrIllegalTransition
	}

	_, err = s.db.ExecContext(ctx, s.q("UPDATE tasks SET status = ? WHERE id = ?"), string(to), id)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return nil
}

// AddDependency records the edge task -> dependsOn after a cycle
// pre-check, all under the store's write boundary.
func (s *sqlStore) AddDependency(ctx context.Context, task, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range []string{task, dependsOn} {
		exists, err := s.taskExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
	}

	// Idempotent: an existing edge is a no-op.
	var one int
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT 1 FROM task_deps WHERE task_id = ? AND depends_on = ?"), task, dependsOn).Scan(&one)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("edge lookup: %w", err)
	}

	validator := dag.NewValidator(s, s.opts.Emitter, dag.Options{
		GraphID: s.opts.GraphID,
		Metrics: s.opts.Metrics,
	})
	wouldCycle, err := validator.WouldCreateCycleIfDependsOn(ctx, task, dependsOn)
	if err != nil {
		return err
	}
	if wouldCycle {
		return refusedDependency(task, dependsOn)
	}

	_, err = s.db.ExecContext(ctx,
		s.q("INSERT INTO task_deps (task_id, depends_on) VALUES (?, ?)"), task, dependsOn)
	if err != nil {
		return fmt.Errorf("insert dependency: %w", err)
	}
	return nil
}

// RemoveDependency deletes the edge if present.
func (s *sqlStore) RemoveDependency(ctx context.Context, task, dependsOn string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		s.q("DELETE FROM task_deps WHERE task_id = ? AND depends_on = ?"), task, dependsOn)
	if err != nil {
		return fmt.Errorf("delete dependency: %w", err)
	}
	return nil
}

// PutDefinition stores or replaces a definition in the inactive state.
// The definition is serialized as JSON.
func (s *sqlStore) PutDefinition(ctx context.Context, id string, def dag.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(def)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM definitions WHERE id = ?"), id); err != nil {
		return fmt.Errorf("replace definition: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.q("INSERT INTO definitions (id, definition, active) VALUES (?, ?, 0)"), id, string(payload)); err != nil {
		return fmt.Errorf("insert definition: %w", err)
	}
	return tx.Commit()
}

// Definition returns the stored definition record.
func (s *sqlStore) Definition(ctx context.Context, id string) (DefinitionRecord, error) {
	var payload string
	var active int
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT definition, active FROM definitions WHERE id = ?"), id).Scan(&payload, &active)
	if err == sql.ErrNoRows {
		return DefinitionRecord{}, ErrNotFound
	}
	if err != nil {
		return DefinitionRecord{}, fmt.Errorf("definition lookup: %w", err)
	}

	var def dag.Definition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return DefinitionRecord{}, fmt.Errorf("unmarshal definition: %w", err)
	}
	return DefinitionRecord{ID: id, Definition: def, Active: active != 0}, nil
}

// ActivateDefinition validates and, on success, activates the definition.
func (s *sqlStore) ActivateDefinition(ctx context.Context, id string) (dag.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.definitionLocked(ctx, id)
	if err != nil {
		return dag.ValidationResult{}, err
	}

	result := rec.Definition.Validate()
	s.opts.Metrics.RecordValidation(result.Valid)
	s.emitValidation(id, result)
	if !result.Valid {
		return result, nil
	}

	if _, err := s.db.ExecContext(ctx, s.q("UPDATE definitions SET active = 1 WHERE id = ?"), id); err != nil {
		return dag.ValidationResult{}, fmt.Errorf("activate definition: %w", err)
	}
	return result, nil
}

// definitionLocked reads a definition while the caller holds the mutex.
func (s *sqlStore) definitionLocked(ctx context.Context, id string) (DefinitionRecord, error) {
	var payload string
	var active int
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT definition, active FROM definitions WHERE id = ?"), id).Scan(&payload, &active)
	if err == sql.ErrNoRows {
		return DefinitionRecord{}, ErrNotFound
	}
	if err != nil {
		return DefinitionRecord{}, fmt.Errorf("definition lookup: %w", err)
	}
	var def dag.Definition
	if err := json.Unmarshal([]byte(payload), &def); err != nil {
		return DefinitionRecord{}, fmt.Errorf("unmarshal definition: %w", err)
	}
	return DefinitionRecord{ID: id, Definition: def, Active: active != 0}, nil
}

// CreateRun starts a run of an active definition with every step pending.
func (s *sqlStore) CreateRun(ctx context.Context, definitionID string) (RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.definitionLocked(ctx, definitionID)
	if err != nil {
		return RunRecord{}, err
	}
	if !rec.Active {
		return RunRecord{}, ErrNotActive
	}

	runID := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return RunRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.q("INSERT INTO runs (id, definition_id, status) VALUES (?, ?, ?)"),
		runID, definitionID, string(dag.RunPending)); err != nil {
		return RunRecord{}, fmt.Errorf("insert run: %w", err)
	}

	steps := make(map[string]dag.StepStatus, len(rec.Definition.Nodes))
	for nodeID := range rec.Definition.Nodes {
		steps[nodeID] = dag.StepPending
		if _, err := tx.ExecContext(ctx,
			s.q("INSERT INTO run_steps (run_id, node_id, status) VALUES (?, ?, ?)"),
			runID, nodeID, string(dag.StepPending)); err != nil {
			return RunRecord{}, fmt.Errorf("insert run step: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return RunRecord{}, fmt.Errorf("commit run: %w", err)
	}

	return RunRecord{
		ID:           runID,
		DefinitionID: definitionID,
		Status:       dag.RunPending,
		Steps:        steps,
	}, nil
}

// Run returns a snapshot of the run.
func (s *sqlStore) Run(ctx context.Context, runID string) (RunRecord, error) {
	var defID, status string
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT definition_id, status FROM runs WHERE id = ?"), runID).Scan(&defID, &status)
	if err == sql.ErrNoRows {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("run lookup: %w", err)
	}

	steps, err := s.runSteps(ctx, runID)
	if err != nil {
		return RunRecord{}, err
	}
	return RunRecord{
		ID:           runID,
		DefinitionID: defID,
		Status:       dag.RunStatus(status),
		Steps:        steps,
	}, nil
}

func (s *sqlStore) runSteps(ctx context.Context, runID string) (map[string]dag.StepStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q("SELECT node_id, status FROM run_steps WHERE run_id = ?"), runID)
	if err != nil {
		return nil, fmt.Errorf("run steps lookup: %w", err)
	}
	defer rows.Close()

	steps := make(map[string]dag.StepStatus)
	for rows.Next() {
		var nodeID, status string
		if err := rows.Scan(&nodeID, &status); err != nil {
			return nil, fmt.Errorf("scan run step: %w", err)
		}
		steps[nodeID] = dag.StepStatus(status)
	}
	return steps, rows.Err()
}

// SetStepStatus applies a step transition, then folds the step statuses
// into the run status where the run transition table permits.
func (s *sqlStore) SetStepStatus(ctx context.Context, runID, nodeID string, to dag.StepStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var curStr string
	err := s.db.QueryRowContext(ctx,
		s.q("SELECT status FROM run_steps WHERE run_id = ? AND node_id = ?"), runID, nodeID).Scan(&curStr)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("run step lookup: %w", err)
	}

	cur := dag.StepStatus(curStr)
	allowed := cur.CanTransitionTo(to)
	s.opts.Metrics.RecordTransitionCheck("step", allowed)
	s.emitTransition("step_transition", nodeID, curStr, string(to), allowed)
	if !allowed {
		return dag.ErrIllegalTransition
	}

	// Read everything the fold needs before opening the transaction: with
	// a single-connection backend (SQLite) a read on s.db while the tx
	// holds the connection would deadlock.
	steps, err := s.runSteps(ctx, runID)
	if err != nil {
		return err
	}
	steps[nodeID] = to

	var runStatusStr string
	if err := s.db.QueryRowContext(ctx,
		s.q("SELECT status FROM runs WHERE id = ?"), runID).Scan(&runStatusStr); err != nil {
		return fmt.Errorf("run lookup: %w", err)
	}
	runStatus := dag.RunStatus(runStatusStr)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		s.q("UPDATE run_steps SET status = ? WHERE run_id = ? AND node_id = ?"),
		string(to), runID, nodeID); err != nil {
		return fmt.Errorf("update run step: %w", err)
	}
	if next := dag.ComputeRunStatus(steps); next != runStatus && runStatus.CanTransitionTo(next) {
		if _, err := tx.ExecContext(ctx,
			s.q("UPDATE runs SET status = ? WHERE id = ?"), string(next), runID); err != nil {
			return fmt.Errorf("update run status: %w", err)
		}
	}
	return tx.Commit()
}

// SetRunStatus applies a run transition under the run transition table.
func (s *sqlStore) SetRunStatus(ctx context.Context, runID string, to dag.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var curStr string
	err := s.db.QueryRowContext(ctx, s.q("SELECT status FROM runs WHERE id = ?"), runID).Scan(&curStr)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("run lookup: %w", err)
	}

	cur := dag.RunStatus(curStr)
	allowed := cur.CanTransitionTo(to)
	s.opts.Metrics.RecordTransitionCheck("run", allowed)
	s.emitTransition("run_transition", runID, curStr, string(to), allowed)
	if !allowed {
		return dag.ErrIllegalTransition
	}

	if _, err := s.db.ExecContext(ctx,
		s.q("UPDATE runs SET status = ? WHERE id = ?"), string(to), runID); err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

// ReadySteps returns the run's startable steps.
func (s *sqlStore) ReadySteps(ctx context.Context, runID string) ([]string, error) {
	run, err := s.Run(ctx, runID)
	if err != nil {
		return nil, err
	}
	rec, err := s.Definition(ctx, run.DefinitionID)
	if err != nil {
		return nil, err
	}

	s.opts.Metrics.RecordReadyComputation()
	ready := dag.ReadySteps(rec.Definition, completedSteps(run.Steps))
	return startableSteps(ready, run.Steps), nil
}

// Close closes the underlying database handle.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) emitTransition(msg, nodeID, from, to string, allowed bool) {
	if s.opts.Emitter == nil {
		return
	}
	s.opts.Emitter.Emit(emit.Event{
		GraphID: s.opts.GraphID,
		NodeID:  nodeID,
		Msg:     msg,
		Meta: map[string]interface{}{
			"from":    from,
			"to":      to,
			"allowed": allowed,
		},
	})
}

func (s *sqlStore) emitValidation(id string, result dag.ValidationResult) {
	if s.opts.Emitter == nil {
		return
	}
	s.opts.Emitter.Emit(emit.Event{
		GraphID: s.opts.GraphID,
		NodeID:  id,
		Msg:     "definition_validated",
		Meta: map[string]interface{}{
			"valid":  result.Valid,
			"errors": result.Errors,
		},
	})
}
