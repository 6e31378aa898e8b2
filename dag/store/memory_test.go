package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/dshills/taskgraph-go/dag"
	"github.com/dshills/taskgraph-go/dag/emit"
)

func newTestStore() *MemStore {
	return NewMemStore(Options{})
}

func mustCreateTasks(t *testing.T, s Store, ids ...string) {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		if err := s.CreateTask(ctx, id); err != nil {
			t.Fatalf("CreateTask(%s): %v", id, err)
		}
	}
}

func mustAddDependency(t *testing.T, s Store, task, dependsOn string) {
	t.Helper()
	if err := s.AddDependency(context.Background(), task, dependsOn); err != nil {
		t.Fatalf("AddDependency(%s, %s): %v", task, dependsOn, err)
	}
}

func TestMemStoreTasks(t *testing.T) {
	ctx := context.Background()

	t.Run("create and fetch", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")

		rec, err := s.Task(ctx, "a")
		if err != nil {
			t.Fatalf("Task: %v", err)
		}
		if rec.Status != dag.TaskBacklog {
			t.Errorf("new task status = %s, want backlog", rec.Status)
		}
		if len(rec.BlockedBy) != 0 || len(rec.Blocks) != 0 {
			t.Errorf("new task should have no edges, got %+v", rec)
		}
	})

	t.Run("duplicate id refused", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")
		if err := s.CreateTask(ctx, "a"); !errors.Is(err, ErrExists) {
			t.Errorf("expected ErrExists, got %v", err)
		}
	})

	t.Run("missing task", func(t *testing.T) {
		s := newTestStore()
		if _, err := s.Task(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.DeleteTask(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound on delete, got %v", err)
		}
	})

	t.Run("delete leaves dangling edges inert", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b")
		mustAddDependency(t, s, "b", "a")

		if err := s.DeleteTask(ctx, "a"); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}

		rec, err := s.Task(ctx, "b")
		if err != nil {
			t.Fatalf("Task: %v", err)
		}
		if len(rec.BlockedBy) != 0 {
			t.Errorf("deleted predecessor should vanish from BlockedBy, got %v", rec.BlockedBy)
		}
		preds, err := s.Predecessors(ctx, "b")
		if err != nil {
			t.Fatalf("Predecessors: %v", err)
		}
		if len(preds) != 0 {
			t.Errorf("expected no predecessors after delete, got %v", preds)
		}
	})
}

func TestMemStoreTaskStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("happy path to done", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")
		for _, to := range []dag.TaskStatus{dag.TaskReady, dag.TaskInProgress, dag.TaskDone} {
			if err := s.SetTaskStatus(ctx, "a", to); err != nil {
				t.Fatalf("SetTaskStatus(%s): %v", to, err)
			}
		}
		rec, _ := s.Task(ctx, "a")
		if rec.Status != dag.TaskDone {
			t.Errorf("status = %s, want done", rec.Status)
		}
	})

	t.Run("illegal transition refused and not written", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")
		err := s.SetTaskStatus(ctx, "a", dag.TaskDone)
		if !errors.Is(err, dag.ErrIllegalTransition) {
			t.Fatalf("expected ErrIllegalTransition, got %v", err)
		}
		rec, _ := s.Task(ctx, "a")
		if rec.Status != dag.TaskBacklog {
			t.Errorf("refused transition must not change status, got %s", rec.Status)
		}
	})

	t.Run("done is terminal", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")
		for _, to := range []dag.TaskStatus{dag.TaskReady, dag.TaskInProgress, dag.TaskDone} {
			if err := s.SetTaskStatus(ctx, "a", to); err != nil {
				t.Fatalf("SetTaskStatus(%s): %v", to, err)
			}
		}
		if err := s.SetTaskStatus(ctx, "a", dag.TaskDone); !errors.Is(err, dag.ErrIllegalTransition) {
			t.Errorf("done -> done should be refused, got %v", err)
		}
	})
}

func TestMemStoreDependencies(t *testing.T) {
	ctx := context.Background()

	t.Run("edge derives both directions", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b")
		mustAddDependency(t, s, "b", "a")

		b, _ := s.Task(ctx, "b")
		if !reflect.DeepEqual(b.BlockedBy, []string{"a"}) {
			t.Errorf("b.BlockedBy = %v, want [a]", b.BlockedBy)
		}
		a, _ := s.Task(ctx, "a")
		if !reflect.DeepEqual(a.Blocks, []string{"b"}) {
			t.Errorf("a.Blocks = %v, want [b]", a.Blocks)
		}
	})

	t.Run("both endpoints must exist", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")
		if err := s.AddDependency(ctx, "a", "ghost"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing dependsOn, got %v", err)
		}
		if err := s.AddDependency(ctx, "ghost", "a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound for missing task, got %v", err)
		}
	})

	t.Run("duplicate edge is a no-op", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b")
		mustAddDependency(t, s, "b", "a")
		mustAddDependency(t, s, "b", "a")

		b, _ := s.Task(ctx, "b")
		if !reflect.DeepEqual(b.BlockedBy, []string{"a"}) {
			t.Errorf("duplicate add should not duplicate the edge, got %v", b.BlockedBy)
		}
	})

	t.Run("self dependency refused with code", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a")

		err := s.AddDependency(ctx, "a", "a")
		var depErr *dag.DependencyError
		if !errors.As(err, &depErr) {
			t.Fatalf("expected *dag.DependencyError, got %v", err)
		}
		if depErr.Code != "SELF_DEPENDENCY" {
			t.Errorf("code = %s, want SELF_DEPENDENCY", depErr.Code)
		}
	})

	t.Run("cycle refused and nothing written", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b", "c")
		mustAddDependency(t, s, "b", "a")
		mustAddDependency(t, s, "c", "b")

		err := s.AddDependency(ctx, "a", "c")
		var depErr *dag.DependencyError
		if !errors.As(err, &depErr) {
			t.Fatalf("expected *dag.DependencyError, got %v", err)
		}
		if depErr.Code != "CYCLE" {
			t.Errorf("code = %s, want CYCLE", depErr.Code)
		}

		a, _ := s.Task(ctx, "a")
		if len(a.BlockedBy) != 0 {
			t.Errorf("refused edge must not be written, got %v", a.BlockedBy)
		}
	})

	t.Run("transitive shortcut accepted", func(t *testing.T) {
		// c already requires a through b; the direct edge is redundant
		// but harmless.
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b", "c")
		mustAddDependency(t, s, "b", "a")
		mustAddDependency(t, s, "c", "b")
		mustAddDependency(t, s, "c", "a")
	})

	t.Run("remove then re-add reversed", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b")
		mustAddDependency(t, s, "b", "a")

		if err := s.RemoveDependency(ctx, "b", "a"); err != nil {
			t.Fatalf("RemoveDependency: %v", err)
		}
		// With the edge gone the reverse direction is fine.
		mustAddDependency(t, s, "a", "b")
	})

	t.Run("removing a missing edge is a no-op", func(t *testing.T) {
		s := newTestStore()
		mustCreateTasks(t, s, "a", "b")
		if err := s.RemoveDependency(ctx, "a", "b"); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})
}

func TestMemStoreAsGraphView(t *testing.T) {
	// A store doubles as the view behind a validator for ad-hoc queries.
	ctx := context.Background()
	s := newTestStore()
	mustCreateTasks(t, s, "a", "b", "c", "d")
	mustAddDependency(t, s, "b", "a")
	mustAddDependency(t, s, "c", "b")
	mustAddDependency(t, s, "d", "a")

	v := dag.NewValidator(s, nil, dag.Options{})

	deps, err := v.TransitiveDependencies(ctx, "c")
	if err != nil {
		t.Fatalf("TransitiveDependencies: %v", err)
	}
	if !reflect.DeepEqual(deps, []string{"a", "b"}) {
		t.Errorf("deps of c = %v, want [a b]", deps)
	}

	path, err := v.CriticalPath(ctx, "c")
	if err != nil {
		t.Fatalf("CriticalPath: %v", err)
	}
	if !reflect.DeepEqual(path, []string{"c", "b", "a"}) {
		t.Errorf("critical path = %v, want [c b a]", path)
	}
}

func TestMemStoreDefinitions(t *testing.T) {
	ctx := context.Background()

	validDef := dag.Definition{
		Nodes: map[string]dag.NodeSpec{
			"start": {Handler: "noop"},
			"end":   {Handler: "noop"},
		},
		Edges:       map[string][]string{"start": {"end"}},
		EntryNodeID: "start",
	}

	t.Run("put activate run", func(t *testing.T) {
		s := newTestStore()
		if err := s.PutDefinition(ctx, "wf", validDef); err != nil {
			t.Fatalf("PutDefinition: %v", err)
		}

		rec, err := s.Definition(ctx, "wf")
		if err != nil {
			t.Fatalf("Definition: %v", err)
		}
		if rec.Active {
			t.Error("fresh definition must start inactive")
		}

		result, err := s.ActivateDefinition(ctx, "wf")
		if err != nil {
			t.Fatalf("ActivateDefinition: %v", err)
		}
		if !result.Valid {
			t.Fatalf("expected valid, got %v", result.Errors)
		}

		rec, _ = s.Definition(ctx, "wf")
		if !rec.Active {
			t.Error("definition should be active after validation")
		}
	})

	t.Run("invalid definition stays inactive without error", func(t *testing.T) {
		s := newTestStore()
		bad := validDef
		bad.EntryNodeID = "missing"
		if err := s.PutDefinition(ctx, "wf", bad); err != nil {
			t.Fatalf("PutDefinition: %v", err)
		}

		result, err := s.ActivateDefinition(ctx, "wf")
		if err != nil {
			t.Fatalf("invalid definition is data, not an error: %v", err)
		}
		if result.Valid {
			t.Fatal("expected invalid")
		}
		rec, _ := s.Definition(ctx, "wf")
		if rec.Active {
			t.Error("invalid definition must stay inactive")
		}
	})

	t.Run("run requires an active definition", func(t *testing.T) {
		s := newTestStore()
		if _, err := s.CreateRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if err := s.PutDefinition(ctx, "wf", validDef); err != nil {
			t.Fatalf("PutDefinition: %v", err)
		}
		if _, err := s.CreateRun(ctx, "wf"); !errors.Is(err, ErrNotActive) {
			t.Errorf("expected ErrNotActive, got %v", err)
		}
	})

	t.Run("replacing deactivates", func(t *testing.T) {
		s := newTestStore()
		if err := s.PutDefinition(ctx, "wf", validDef); err != nil {
			t.Fatalf("PutDefinition: %v", err)
		}
		if _, err := s.ActivateDefinition(ctx, "wf"); err != nil {
			t.Fatalf("ActivateDefinition: %v", err)
		}
		if err := s.PutDefinition(ctx, "wf", validDef); err != nil {
			t.Fatalf("PutDefinition: %v", err)
		}
		if _, err := s.CreateRun(ctx, "wf"); !errors.Is(err, ErrNotActive) {
			t.Errorf("replaced definition should be inactive, got %v", err)
		}
	})
}

// activateDiamond stores and activates a diamond workflow, returning the
// store and a fresh run.
func activateDiamond(t *testing.T) (Store, RunRecord) {
	t.Helper()
	ctx := context.Background()
	s := newTestStore()

	def := dag.Definition{
		Nodes: map[string]dag.NodeSpec{
			"a": {Handler: "noop"},
			"b": {Handler: "noop"},
			"c": {Handler: "noop"},
			"d": {Handler: "noop"},
		},
		Edges: map[string][]string{
			"a": {"b", "c"},
			"b": {"d"},
			"c": {"d"},
		},
		EntryNodeID: "a",
	}
	if err := s.PutDefinition(ctx, "diamond", def); err != nil {
		t.Fatalf("PutDefinition: %v", err)
	}
	if result, err := s.ActivateDefinition(ctx, "diamond"); err != nil || !result.Valid {
		t.Fatalf("ActivateDefinition: %v / %v", err, result.Errors)
	}
	run, err := s.CreateRun(ctx, "diamond")
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return s, run
}

func stepThrough(t *testing.T, s Store, runID, nodeID string, to dag.StepStatus) {
	t.Helper()
	if err := s.SetStepStatus(context.Background(), runID, nodeID, to); err != nil {
		t.Fatalf("SetStepStatus(%s, %s): %v", nodeID, to, err)
	}
}

func completeStep(t *testing.T, s Store, runID, nodeID string) {
	t.Helper()
	stepThrough(t, s, runID, nodeID, dag.StepRunning)
	stepThrough(t, s, runID, nodeID, dag.StepSuccess)
}

func TestMemStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("new run starts pending with all steps pending", func(t *testing.T) {
		_, run := activateDiamond(t)
		if run.Status != dag.RunPending {
			t.Errorf("run status = %s, want pending", run.Status)
		}
		if len(run.Steps) != 4 {
			t.Fatalf("expected 4 steps, got %d", len(run.Steps))
		}
		for id, st := range run.Steps {
			if st != dag.StepPending {
				t.Errorf("step %s = %s, want pending", id, st)
			}
		}
	})

	t.Run("readiness follows completions", func(t *testing.T) {
		s, run := activateDiamond(t)

		ready, err := s.ReadySteps(ctx, run.ID)
		if err != nil {
			t.Fatalf("ReadySteps: %v", err)
		}
		if !reflect.DeepEqual(ready, []string{"a"}) {
			t.Errorf("initial ready = %v, want [a]", ready)
		}

		completeStep(t, s, run.ID, "a")
		ready, _ = s.ReadySteps(ctx, run.ID)
		if !reflect.DeepEqual(ready, []string{"b", "c"}) {
			t.Errorf("after a: ready = %v, want [b c]", ready)
		}

		completeStep(t, s, run.ID, "b")
		ready, _ = s.ReadySteps(ctx, run.ID)
		if !reflect.DeepEqual(ready, []string{"c"}) {
			t.Errorf("after a,b: ready = %v, want [c]", ready)
		}

		completeStep(t, s, run.ID, "c")
		ready, _ = s.ReadySteps(ctx, run.ID)
		if !reflect.DeepEqual(ready, []string{"d"}) {
			t.Errorf("after a,b,c: ready = %v, want [d]", ready)
		}
	})

	t.Run("a running step is not startable", func(t *testing.T) {
		s, run := activateDiamond(t)
		stepThrough(t, s, run.ID, "a", dag.StepRunning)

		ready, err := s.ReadySteps(ctx, run.ID)
		if err != nil {
			t.Fatalf("ReadySteps: %v", err)
		}
		if len(ready) != 0 {
			t.Errorf("running step must not be offered again, got %v", ready)
		}
	})

	t.Run("skipped unblocks successors", func(t *testing.T) {
		s, run := activateDiamond(t)
		completeStep(t, s, run.ID, "a")
		stepThrough(t, s, run.ID, "b", dag.StepSkipped)
		completeStep(t, s, run.ID, "c")

		ready, _ := s.ReadySteps(ctx, run.ID)
		if !reflect.DeepEqual(ready, []string{"d"}) {
			t.Errorf("skipped should count as complete, ready = %v", ready)
		}
	})

	t.Run("run status follows the fold", func(t *testing.T) {
		s, run := activateDiamond(t)

		stepThrough(t, s, run.ID, "a", dag.StepRunning)
		snap, _ := s.Run(ctx, run.ID)
		if snap.Status != dag.RunRunning {
			t.Errorf("run status = %s, want running", snap.Status)
		}

		stepThrough(t, s, run.ID, "a", dag.StepSuccess)
		completeStep(t, s, run.ID, "b")
		completeStep(t, s, run.ID, "c")
		completeStep(t, s, run.ID, "d")

		snap, _ = s.Run(ctx, run.ID)
		if snap.Status != dag.RunSuccess {
			t.Errorf("run status = %s, want success", snap.Status)
		}
	})

	t.Run("failed step fails the run", func(t *testing.T) {
		s, run := activateDiamond(t)
		stepThrough(t, s, run.ID, "a", dag.StepRunning)
		stepThrough(t, s, run.ID, "a", dag.StepFailed)

		snap, _ := s.Run(ctx, run.ID)
		if snap.Status != dag.RunFailed {
			t.Errorf("run status = %s, want failed", snap.Status)
		}
	})

	t.Run("illegal step transition refused", func(t *testing.T) {
		s, run := activateDiamond(t)
		if err := s.SetStepStatus(ctx, run.ID, "a", dag.StepSuccess); !errors.Is(err, dag.ErrIllegalTransition) {
			t.Errorf("pending -> success should be refused, got %v", err)
		}
		if err := s.SetStepStatus(ctx, run.ID, "ghost", dag.StepRunning); !errors.Is(err, ErrNotFound) {
			t.Errorf("unknown step should be ErrNotFound, got %v", err)
		}
	})

	t.Run("abort a running workflow", func(t *testing.T) {
		s, run := activateDiamond(t)
		stepThrough(t, s, run.ID, "a", dag.StepRunning)

		if err := s.SetRunStatus(ctx, run.ID, dag.RunAborted); err != nil {
			t.Fatalf("SetRunStatus: %v", err)
		}
		snap, _ := s.Run(ctx, run.ID)
		if snap.Status != dag.RunAborted {
			t.Errorf("run status = %s, want aborted", snap.Status)
		}

		// Aborted is terminal.
		if err := s.SetRunStatus(ctx, run.ID, dag.RunRunning); !errors.Is(err, dag.ErrIllegalTransition) {
			t.Errorf("aborted -> running should be refused, got %v", err)
		}
	})

	t.Run("run snapshot is a copy", func(t *testing.T) {
		s, run := activateDiamond(t)
		snap, _ := s.Run(ctx, run.ID)
		snap.Steps["a"] = dag.StepFailed

		again, _ := s.Run(ctx, run.ID)
		if again.Steps["a"] != dag.StepPending {
			t.Error("mutating a snapshot must not affect the store")
		}
	})
}

func TestMemStoreEmitsEvents(t *testing.T) {
	ctx := context.Background()
	buf := emit.NewBufferedEmitter()
	s := NewMemStore(Options{Emitter: buf, GraphID: "g1"})
	mustCreateTasks(t, s, "a", "b")

	mustAddDependency(t, s, "b", "a")
	if err := s.SetTaskStatus(ctx, "a", dag.TaskDone); !errors.Is(err, dag.ErrIllegalTransition) {
		t.Fatalf("expected refusal, got %v", err)
	}

	checks := buf.HistoryWithFilter("g1", emit.HistoryFilter{Msg: "cycle_check"})
	if len(checks) != 1 {
		t.Errorf("expected 1 cycle_check event, got %d", len(checks))
	}

	transitions := buf.HistoryWithFilter("g1", emit.HistoryFilter{Msg: "task_transition"})
	if len(transitions) != 1 {
		t.Fatalf("expected 1 task_transition event, got %d", len(transitions))
	}
	if transitions[0].Meta["allowed"] != false {
		t.Errorf("expected allowed=false, got %v", transitions[0].Meta)
	}
}
