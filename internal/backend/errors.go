package backend

import (
	"errors"
	"fmt"
)

var (
	// ErrConnection is returned when the event stream cannot be established
	// or ends before the awaited job completes.
	ErrConnection = errors.New("event stream connection failed")

	// ErrSubmission is returned when the service rejects a job.
	ErrSubmission = errors.New("job submission rejected")

	// ErrExecutionTimeout is returned when no completion event arrives in time.
	ErrExecutionTimeout = errors.New("job completion timed out")

	// ErrExecution is returned when a job fails on the service or its result
	// cannot be retrieved.
	ErrExecution = errors.New("job execution failed")

	// ErrInterrupt is returned when the service refuses an interrupt.
	ErrInterrupt = errors.New("interrupt rejected")
)

// SubmissionError describes a rejected submission.
type SubmissionError struct {
	StatusCode int
	Body       string
	Msg        string
}

func (e *SubmissionError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("%s: %s", ErrSubmission, e.Msg)
	}
	return fmt.Sprintf("%s: status %d: %s", ErrSubmission, e.StatusCode, e.Body)
}

func (e *SubmissionError) Unwrap() error { return ErrSubmission }

// ExecutionError describes a job that failed or whose result is unusable.
type ExecutionError struct {
	JobID string
	Node  string
	Msg   string
	Err   error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s: job %s", ErrExecution, e.JobID)
	if e.Node != "" {
		msg += fmt.Sprintf(" node %s", e.Node)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrExecution, e.Err}
	}
	return []error{ErrExecution}
}
