package engine

import (
	"errors"
	"fmt"
)

// Structural errors.
var ErrInvalidDefinition = errors.New("invalid workflow definition")

// State errors. The instance is left unchanged when one of these is returned.
var (
	ErrInstanceNotActive     = errors.New("instance is not active")
	ErrInvalidState          = errors.New("instance is in an invalid state")
	ErrDeadEnd               = errors.New("step has no outgoing transitions")
	ErrNoDecisionPathMatched = errors.New("no decision path matched")
	ErrTimerNotElapsed       = errors.New("timer has not elapsed")
)

// Execution errors.
var ErrStepExecutionFailed = errors.New("step execution failed")

// StepExecutionFailedError reports a step whose handlers could not recover
// from a failure. The instance stays active at the same step.
type StepExecutionFailedError struct {
	StepID   string
	StepName string
	Err      error
}

func (e *StepExecutionFailedError) Error() string {
	return fmt.Sprintf("step %s (%s) failed: %v", e.StepID, e.StepName, e.Err)
}

func (e *StepExecutionFailedError) Unwrap() error {
	return e.Err
}

func (e *StepExecutionFailedError) Is(target error) bool {
	return target == ErrStepExecutionFailed
}

// InstanceError wraps a failed engine operation on one instance.
type InstanceError struct {
	Op         string
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s instance %s: %v", e.Op, e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

func newInstanceError(op, instanceID string, err error) error {
	return &InstanceError{Op: op, InstanceID: instanceID, Err: err}
}

// IsStructuralError reports whether err must be fixed by editing the definition.
func IsStructuralError(err error) bool {
	return errors.Is(err, ErrInvalidDefinition)
}

// IsStateError reports whether err was caused by the instance's current state.
func IsStateError(err error) bool {
	return errors.Is(err, ErrInstanceNotActive) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrDeadEnd) ||
		errors.Is(err, ErrNoDecisionPathMatched) ||
		errors.Is(err, ErrTimerNotElapsed)
}

// IsExecutionError reports whether a step failed while executing.
func IsExecutionError(err error) bool {
	return errors.Is(err, ErrStepExecutionFailed)
}
