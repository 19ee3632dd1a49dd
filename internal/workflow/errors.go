package workflow

import "errors"

var (
	// ErrNotFound is returned when no template resolves for a name.
	ErrNotFound = errors.New("workflow template not found")

	// ErrInvalidGraph is returned when a document is not a node-keyed object.
	ErrInvalidGraph = errors.New("invalid workflow graph")

	// ErrDanglingReference is returned by Validate when a reference points at
	// a node that is not part of the graph.
	ErrDanglingReference = errors.New("dangling node reference")
)
