package errors

import (
	"errors"
	"fmt"

	"github.com/BranchIntl/ojsworker/job"
)

// Error types reported to the server
const (
	TypeHandlerNotFound = "HandlerNotFound"
	TypeHandlerError    = "HandlerError"
)

// Typed is implemented by errors that choose their own nack type
type Typed interface {
	ErrorType() string
}

// Classify converts a dispatch failure into the structured nack payload.
// The outermost error that implements Typed decides the type; everything
// else is reported as a HandlerError with the full message.
func Classify(err error) *job.Error {
	if err == nil {
		return nil
	}

	var jobErr *job.Error
	if errors.As(err, &jobErr) {
		return jobErr
	}

	out := &job.Error{
		Type:    TypeHandlerError,
		Message: err.Error(),
	}

	var typed Typed
	if errors.As(err, &typed) {
		out.Type = typed.ErrorType()
	}

	var he *HandlerError
	if errors.As(err, &he) {
		if he.Err != nil {
			out.Message = he.Err.Error()
		}
		out.Backtrace = he.Backtrace
	}

	return out
}

// HandlerNotFound builds the nack payload for a job type with no handler
func HandlerNotFound(jobType string) *job.Error {
	return &job.Error{
		Type:    TypeHandlerNotFound,
		Message: fmt.Sprintf("no handler registered for job type %q", jobType),
	}
}
