package dag

import "errors"

// ErrIllegalTransition is returned when a requested status change is not in
// the allowed transition table for the entity's state machine. Callers must
// leave the entity's status untouched and report a conflict.
var ErrIllegalTransition = errors.New("illegal status transition")

// DependencyError describes a refused dependency mutation. It is reported
// as data so the caller can refuse the underlying write and surface the
// reason upward without any partial state change.
type DependencyError struct {
	// Task is the would-be dependent task id.
	Task string

	// DependsOn is the proposed prerequisite task id.
	DependsOn string

	// Code is a machine-readable reason (e.g. "CYCLE", "SELF_DEPENDENCY").
	Code string

	// Message is the human-readable reason.
	Message string
}

func (e *DependencyError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}
