package orchestrator

// Status is the lifecycle state of a task.
type Status string

const (
	StatusRunning    Status = "running"
	StatusCancelling Status = "cancelling"
	StatusCancelled  Status = "cancelled"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the task can no longer change state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusError:
		return true
	}
	return false
}

// cancelRequested reports whether the worker must stop at the next item
// boundary.
func (s Status) cancelRequested() bool {
	return s == StatusCancelling || s == StatusCancelled
}
