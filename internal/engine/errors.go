package engine

import (
	"fmt"

	"github.com/celestiaorg/shipyard/internal/db/models"
)

// ValidationError reports an operation that is illegal given the current state.
// It is never retried.
type ValidationError struct {
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Validationf returns a ValidationError with a formatted message
func Validationf(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a referenced record that does not exist
type NotFoundError struct {
	Resource string
	ID       uint
	Cause    error
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// Unwrap returns the underlying cause, if any
func (e *NotFoundError) Unwrap() error {
	return e.Cause
}

// AlreadyRunningError is returned when a job already has an active execution
type AlreadyRunningError struct {
	Ref Ref
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s %d already has an active execution", e.Ref.Kind.Noun(), e.Ref.ID)
}

// IllegalTransitionError is the state machine's rejection of an event
type IllegalTransitionError struct {
	Ref     Ref
	Current models.JobStatus
	Event   Event
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition for %s %d: %s not allowed from %s",
		e.Ref.Kind.Noun(), e.Ref.ID, e.Event, e.Current)
}

// Message returns the caller facing description of the rejection
func (e *IllegalTransitionError) Message() string {
	return fmt.Sprintf("Cannot %s %s with status: %s", e.Event.verb(), e.Ref.Kind.Noun(), e.Current)
}

// AsValidation converts the rejection into the error surfaced at the API boundary
func (e *IllegalTransitionError) AsValidation() *ValidationError {
	return &ValidationError{Message: e.Message(), Cause: e}
}

// ExecutionError is a Runner failure. It is recorded on the job, never returned
// to the caller that dispatched it.
type ExecutionError struct {
	Ref         Ref
	ExecutionID string
	Panicked    bool
	Err         error
}

func (e *ExecutionError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("execution %s of %s %d panicked: %v", e.ExecutionID, e.Ref.Kind.Noun(), e.Ref.ID, e.Err)
	}
	return fmt.Sprintf("execution %s of %s %d failed: %v", e.ExecutionID, e.Ref.Kind.Noun(), e.Ref.ID, e.Err)
}

// Unwrap returns the runner error
func (e *ExecutionError) Unwrap() error {
	return e.Err
}
