package wipe

import (
	"errors"
	"fmt"
)

// ErrOperationInProgress is returned when a destructive operation is
// already running against the same device path.
var ErrOperationInProgress = errors.New("operation already in progress for device")

// ErrCapabilityUnsupported marks a non-fatal step skipped because the
// device controller does not support it.
var ErrCapabilityUnsupported = errors.New("capability unsupported by device")

// GuardViolationError reports a single failed safety gate. All gates
// are evaluated before any destructive command runs.
type GuardViolationError struct {
	Guard  string
	Reason string
}

func (e *GuardViolationError) Error() string {
	return fmt.Sprintf("guard %s: %s", e.Guard, e.Reason)
}

// GuardViolations aggregates every failed gate of one evaluation pass.
type GuardViolations []*GuardViolationError

func (v GuardViolations) Error() string {
	if len(v) == 1 {
		return v[0].Error()
	}
	return fmt.Sprintf("%d guard violations, first: %s", len(v), v[0].Error())
}

// ExecutionFailureError reports a fatal step whose command failed.
type ExecutionFailureError struct {
	Cmd  string
	Exit int
}

func (e *ExecutionFailureError) Error() string {
	return fmt.Sprintf("command failed (exit %d): %s", e.Exit, e.Cmd)
}

// VerificationFailureError reports a post-wipe sampling pass whose
// failure rate breached the threshold. The run itself completed; the
// outcome is recorded as FAIL.
type VerificationFailureError struct {
	Samples  int
	Failures int
}

func (e *VerificationFailureError) Error() string {
	return fmt.Sprintf("verification failed: %d of %d sampled sectors did not match expected state",
		e.Failures, e.Samples)
}
