package orchestrator

import (
	"time"

	"github.com/vk/genflow/internal/backend"
)

// Output is one artifact-producing node of a finished item.
type Output struct {
	Item   int
	Node   string
	Images []backend.ImageRef
	// Location is where the first image was stored, if it was.
	Location string
}

// Progress is the externally visible progress of a task.
type Progress struct {
	Status      Status
	Current     int
	Total       int
	CurrentItem string
	Errors      []string
}

// Snapshot is a copy of a task record.
type Snapshot struct {
	Progress
	ID         string
	Workflow   string
	Outputs    map[string]Output
	CreatedAt  time.Time
	FinishedAt time.Time
}

// task is a registry entry. Every field is guarded by Manager.mu except id,
// workflow, total and done, which never change after creation.
type task struct {
	id       string
	workflow string
	total    int
	done     chan struct{}
	seq      int

	status      Status
	current     int
	currentItem string
	errors      []string
	outputs     map[string]Output
	createdAt   time.Time
	finishedAt  time.Time

	// workerDone and finalStatus let a failed Cancel restore the outcome
	// of a worker that exited while the cancel was in flight.
	workerDone  bool
	finalStatus Status
}

func newTask(id, workflow string, total int) *task {
	return &task{
		id:        id,
		workflow:  workflow,
		total:     total,
		done:      make(chan struct{}),
		status:    StatusRunning,
		outputs:   make(map[string]Output),
		createdAt: time.Now(),
	}
}

func (t *task) progress() Progress {
	return Progress{
		Status:      t.status,
		Current:     t.current,
		Total:       t.total,
		CurrentItem: t.currentItem,
		Errors:      append([]string(nil), t.errors...),
	}
}

func (t *task) snapshot() Snapshot {
	outputs := make(map[string]Output, len(t.outputs))
	for k, o := range t.outputs {
		o.Images = append([]backend.ImageRef(nil), o.Images...)
		outputs[k] = o
	}
	return Snapshot{
		Progress:   t.progress(),
		ID:         t.id,
		Workflow:   t.workflow,
		Outputs:    outputs,
		CreatedAt:  t.createdAt,
		FinishedAt: t.finishedAt,
	}
}
