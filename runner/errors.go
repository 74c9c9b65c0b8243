package runner

import (
	"errors"
	"fmt"
)

// Sentinel errors for the runner package.
var (
	// ErrStopRun tells the runner to stop scheduling new scenarios. A Writer
	// returns it (possibly wrapped) to end the run early without marking it
	// as an infrastructure failure; in-flight scenarios still finish.
	ErrStopRun = errors.New("runner: stop requested")

	// Test errors for use in unit tests.
	errTestStepFailed = errors.New("test: step failed")
	errTestHookFailed = errors.New("test: hook failed")
)

// PanicError wraps a panic recovered from a step handler or hook. The
// original panic value and the stack captured at the recovery point are
// preserved for writers that want to show them.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the panic value formatted as a message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
