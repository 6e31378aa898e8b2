package dag

// Status state machines for tasks, workflow runs and step runs.
//
// Each machine is a fixed transition table exposed as a pure
// CanTransitionTo method. Any pair not listed in the table is rejected,
// including same-state "transitions" and transitions involving an
// unrecognized status string. The engine never applies a transition
// itself; callers check CanTransitionTo before writing a status.

// TaskStatus is the lifecycle state of a task node.
type TaskStatus string

// Task statuses. Done is terminal: it permits no outgoing transition,
// not even done -> done.
const (
	TaskBacklog    TaskStatus = "backlog"
	TaskReady      TaskStatus = "ready"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
)

// taskTransitions is the allowed forward-edge table for task statuses.
var taskTransitions = map[TaskStatus][]TaskStatus{
	TaskBacklog:    {TaskReady, TaskBlocked},
	TaskReady:      {TaskInProgress, TaskBacklog, TaskBlocked},
	TaskInProgress: {TaskReview, TaskBlocked, TaskDone, TaskReady},
	TaskReview:     {TaskDone, TaskInProgress, TaskBlocked},
	TaskBlocked:    {TaskReady, TaskBacklog},
	TaskDone:       {},
}

// CanTransitionTo reports whether the task status change s -> to is in the
// allowed transition table.
func (s TaskStatus) CanTransitionTo(to TaskStatus) bool {
	for _, allowed := range taskTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

// Run statuses. Success, failed and aborted are terminal.
const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunAborted RunStatus = "aborted"
)

var runTransitions = map[RunStatus][]RunStatus{
	RunPending: {RunRunning},
	RunRunning: {RunSuccess, RunFailed, RunAborted},
}

// CanTransitionTo reports whether the run status change s -> to is allowed.
func (s RunStatus) CanTransitionTo(to RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// StepStatus is the lifecycle state of a single step within a workflow run.
type StepStatus string

// Step statuses. Skipped models cancellation before start; a running step
// may not be skipped, and no backward transitions are allowed.
const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

var stepTransitions = map[StepStatus][]StepStatus{
	StepPending: {StepRunning, StepSkipped},
	StepRunning: {StepSuccess, StepFailed},
}

// CanTransitionTo reports whether the step status change s -> to is allowed.
func (s StepStatus) CanTransitionTo(to StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the step status permits no further transition.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepSuccess, StepFailed, StepSkipped:
		return true
	default:
		return false
	}
}

// ComputeRunStatus folds per-step statuses into one workflow-run status
// using a fixed priority, evaluated in order:
//
//  1. any step failed  => failed
//  2. any step running => running
//  3. any step pending => pending
//  4. otherwise (all success or skipped) => success
//
// A single failure dominates an otherwise-successful run, and partial
// progress is reported as still running even if most steps are done. An
// empty step map folds to success (a run with nothing to do is complete).
func ComputeRunStatus(steps map[string]StepStatus) RunStatus {
	anyRunning := false
	anyPending := false
	for _, s := range steps {
		switch s {
		case StepFailed:
			return RunFailed
		case StepRunning:
			anyRunning = true
		case StepPending:
			anyPending = true
		}
	}
	if anyRunning {
		return RunRunning
	}
	if anyPending {
		return RunPending
	}
	return RunSuccess
}
