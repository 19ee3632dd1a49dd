package backend

import (
	"encoding/json"
)

// Event types the client reacts to.
const (
	EventExecuting      = "executing"
	EventExecutionError = "execution_error"
	EventStatus         = "status"
	EventProgress       = "progress"
)

// streamEvents are the event names subscribed to on transports that
// dispatch by name.
var streamEvents = []string{EventStatus, EventProgress, EventExecuting, EventExecutionError}

// Event is a message pushed by the service on the event stream.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// ExecutingData is the payload of an executing event. A nil Node means the
// job is no longer executing any node, i.e. it finished.
type ExecutingData struct {
	JobID string  `json:"job_id"`
	Node  *string `json:"node"`
}

// Executing decodes the payload of an executing event.
func (e Event) Executing() (ExecutingData, bool) {
	var data ExecutingData
	if e.Type != EventExecuting || len(e.Data) == 0 {
		return data, false
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return data, false
	}
	return data, true
}

// ExecutionErrorData is the payload of an execution_error event.
type ExecutionErrorData struct {
	JobID     string `json:"job_id"`
	NodeID    string `json:"node_id"`
	NodeType  string `json:"node_type"`
	Exception string `json:"exception_message"`
}

// ExecutionError decodes the payload of an execution_error event.
func (e Event) ExecutionError() (ExecutionErrorData, bool) {
	var data ExecutionErrorData
	if e.Type != EventExecutionError || len(e.Data) == 0 {
		return data, false
	}
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return data, false
	}
	return data, true
}

// Stream is one event-stream connection. Events is fed by a single reader
// and closed when the connection ends; Close ends it early.
type Stream interface {
	Events() <-chan Event
	Close() error
}
