package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/genflow/internal/artifact"
	"github.com/vk/genflow/internal/backend"
	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/workflow"
)

// MaxSeed bounds the random seeds assigned to items.
const MaxSeed = 1_000_000_000

// Backend runs jobs. *backend.Client satisfies it.
type Backend interface {
	Connect(ctx context.Context) (backend.Stream, error)
	Submit(ctx context.Context, g *workflow.Graph) (string, error)
	AwaitCompletion(ctx context.Context, stream backend.Stream, jobID string) (*backend.JobResult, error)
	Interrupt(ctx context.Context) error
	FetchArtifact(ctx context.Context, ref backend.ImageRef) ([]byte, error)
}

// TemplateSource loads graph templates by name. *workflow.Loader satisfies it.
type TemplateSource interface {
	Load(ctx context.Context, name string) (*workflow.Graph, error)
}

// Options configures a Manager.
type Options struct {
	Templates TemplateSource
	Backend   Backend
	// Sink stores fetched artifacts; nil records outputs without fetching.
	Sink artifact.Sink
	// Seeds returns the seed of each item; nil draws from [1, MaxSeed].
	Seeds func() int64
	// ReferenceImages enables reference image wiring. When a batch carries
	// any reference image, ReferenceWorkflow replaces the requested template.
	ReferenceImages   bool
	ReferenceWorkflow string
}

var (
	_ Backend        = (*backend.Client)(nil)
	_ TemplateSource = (*workflow.Loader)(nil)
)

func randomSeed() int64 {
	return rand.Int64N(MaxSeed) + 1
}

// Manager owns the task registry and the workers that drive it.
type Manager struct {
	ctx  context.Context
	opts Options

	mu    sync.Mutex
	tasks map[string]*task
	seq   int
}

// NewManager creates a manager whose workers run under ctx; cancelling ctx
// stops every worker at its next item boundary.
func NewManager(ctx context.Context, opts Options) (*Manager, error) {
	if opts.Templates == nil {
		return nil, fmt.Errorf("orchestrator: template source is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("orchestrator: backend is required")
	}
	if opts.Seeds == nil {
		opts.Seeds = randomSeed
	}
	return &Manager{
		ctx:   ctx,
		opts:  opts,
		tasks: make(map[string]*task),
	}, nil
}

// SubmitBatch validates req, loads its template and starts a worker. A
// template that fails to load still yields a task, already in the error
// state; only an invalid request returns an error.
func (m *Manager) SubmitBatch(ctx context.Context, req BatchRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	name := req.Workflow
	useReferences := m.opts.ReferenceImages && req.hasReferences()
	if useReferences && m.opts.ReferenceWorkflow != "" {
		name = m.opts.ReferenceWorkflow
	}

	t := newTask(uuid.NewString(), name, len(req.Prompts))
	logger := ctxlog.FromContext(ctx).With("task_id", t.id, "workflow", name)

	template, err := m.opts.Templates.Load(ctx, name)
	if err != nil {
		logger.Error("Failed to load workflow template.", "error", err)
		t.status = StatusError
		t.errors = append(t.errors, fmt.Sprintf("failed to load workflow %q: %v", name, err))
		t.workerDone = true
		t.finalStatus = StatusError
		t.finishedAt = time.Now()
		close(t.done)
		m.register(t)
		return t.id, nil
	}

	m.register(t)
	logger.Info("Batch submitted.", "items", t.total, "references", useReferences)

	w := &worker{
		m:             m,
		t:             t,
		req:           req,
		template:      template,
		useReferences: useReferences,
	}
	go w.run(ctxlog.WithLogger(m.ctx, logger))
	return t.id, nil
}

func (m *Manager) register(t *task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t.seq = m.seq
	m.tasks[t.id] = t
}

// lookup returns the task with the given id. Callers must hold m.mu.
func (m *Manager) lookup(id string) (*task, error) {
	t, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// Progress returns a snapshot of the task's progress.
func (m *Manager) Progress(id string) (Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup(id)
	if err != nil {
		return Progress{}, err
	}
	return t.progress(), nil
}

// Task returns a snapshot of the full task record.
func (m *Manager) Task(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return t.snapshot(), nil
}

// List returns snapshots of every task in submission order.
func (m *Manager) List() []Snapshot {
	m.mu.Lock()
	tasks := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, t)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].seq < tasks[j].seq })
	out := make([]Snapshot, len(tasks))
	for i, t := range tasks {
		out[i] = t.snapshot()
	}
	m.mu.Unlock()
	return out
}

// Cancel asks a running task to stop and interrupts the backend. It returns
// true once the backend acknowledged the interrupt. A task that already
// finished or is being cancelled yields false. When the interrupt fails the
// task returns to the status it had, or to its final status if the worker
// exited meanwhile.
func (m *Manager) Cancel(ctx context.Context, id string) (bool, error) {
	logger := ctxlog.FromContext(ctx).With("task_id", id)

	m.mu.Lock()
	t, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return false, err
	}
	if t.status.Terminal() || t.status == StatusCancelling {
		status := t.status
		m.mu.Unlock()
		logger.Debug("Task cannot be cancelled.", "status", status)
		return false, nil
	}
	prior := t.status
	t.status = StatusCancelling
	m.mu.Unlock()

	logger.Info("Cancelling task.")
	interruptErr := m.opts.Backend.Interrupt(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if interruptErr != nil {
		if t.workerDone {
			t.status = t.finalStatus
		} else {
			t.status = prior
		}
		logger.Warn("Backend refused interrupt; task keeps running.", "error", interruptErr, "status", t.status)
		return false, nil
	}
	t.status = StatusCancelled
	if t.finishedAt.IsZero() {
		t.finishedAt = time.Now()
	}
	logger.Info("Task cancelled.")
	return true, nil
}

// Wait blocks until the task's worker has exited and returns the final
// snapshot. The status may still change afterwards if a Cancel is in flight.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	t, err := m.lookup(id)
	m.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return m.Task(id)
}
