package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyQuery     = errors.New("query is required")
	ErrMissingSession = errors.New("session id is required")
)

// ValidationError rejects a request before any stage runs.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// FaultError is an unexpected failure inside the run itself. It is the only
// error that aborts a run once it has started.
type FaultError struct {
	Stage Stage
	Cause error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Cause)
}

func (e *FaultError) Unwrap() error { return e.Cause }

// IsValidation reports whether err rejects the request input.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
