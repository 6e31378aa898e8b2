package dag

import (
	"errors"
	"fmt"
	"testing"
)

func TestDependencyErrorMessage(t *testing.T) {
	err := &DependencyError{
		Task:      "deploy",
		DependsOn: "test",
		Code:      "CYCLE",
		Message:   "adding dependency deploy -> test would create a cycle",
	}
	want := "CYCLE: adding dependency deploy -> test would create a cycle"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &DependencyError{Message: "refused"}
	if bare.Error() != "refused" {
		t.Errorf("Error() without code = %q, want %q", bare.Error(), "refused")
	}
}

func TestDependencyErrorUnwrapsWithAs(t *testing.T) {
	var err error = fmt.Errorf("add dependency: %w", &DependencyError{Code: "SELF_DEPENDENCY", Message: "task a cannot depend on itself"})

	var depErr *DependencyError
	if !errors.As(err, &depErr) {
		t.Fatal("errors.As should find the wrapped *DependencyError")
	}
	if depErr.Code != "SELF_DEPENDENCY" {
		t.Errorf("code = %s, want SELF_DEPENDENCY", depErr.Code)
	}
}
