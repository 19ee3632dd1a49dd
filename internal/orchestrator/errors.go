package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrTaskNotFound is returned for unknown task ids.
	ErrTaskNotFound = errors.New("task not found")

	// ErrValidation is returned for malformed batch requests.
	ErrValidation = errors.New("invalid batch request")
)

// ValidationError describes why a batch request was rejected.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }
