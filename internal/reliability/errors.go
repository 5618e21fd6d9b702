package reliability

import (
	"errors"
	"fmt"
	"time"
)

// PlanningError wraps a failure of the planning collaborator. It is retried
// under the planning budget, never under the per-step one.
type PlanningError struct {
	Err error
}

func (e *PlanningError) Error() string {
	return fmt.Sprintf("planning failed: %v", e.Err)
}

func (e *PlanningError) Unwrap() error { return e.Err }

// StepExecutionError marks a recoverable step failure (transient I/O or
// collaborator error). Retried up to the task's maxRetries.
type StepExecutionError struct {
	Err error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step execution failed: %v", e.Err)
}

func (e *StepExecutionError) Unwrap() error { return e.Err }

// FatalStepError marks a failure the step executor declared non-recoverable.
// Never retried.
type FatalStepError struct {
	Err error
}

func (e *FatalStepError) Error() string {
	return fmt.Sprintf("step failed fatally: %v", e.Err)
}

func (e *FatalStepError) Unwrap() error { return e.Err }

// TimeoutError reports a chunk exceeding its cumulative execution budget.
type TimeoutError struct {
	Elapsed time.Duration
	Limit   time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("chunk exceeded %s budget after %s", e.Limit, e.Elapsed)
}

// IsFatalStep reports whether a step error must not be retried.
func IsFatalStep(err error) bool {
	var fatal *FatalStepError
	return errors.As(err, &fatal)
}

// IsPlanning reports whether an error came from the planning collaborator.
func IsPlanning(err error) bool {
	var planning *PlanningError
	return errors.As(err, &planning)
}
