package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vk/genflow/internal/artifact"
	"github.com/vk/genflow/internal/backend"
	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/workflow"
)

// worker drives one task. It is the only writer of the task's progress,
// errors and outputs.
type worker struct {
	m             *Manager
	t             *task
	req           BatchRequest
	template      *workflow.Graph
	useReferences bool
}

func (w *worker) run(ctx context.Context) {
	defer close(w.t.done)
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "items", w.t.total)

	stopped := false
	for i, prompt := range w.req.Prompts {
		if !w.beginItem(ctx, i, prompt) {
			logger.Info("Cancellation observed, stopping before item.", "item", i+1)
			stopped = true
			break
		}

		itemCtx := ctxlog.With(ctx, "item", i+1)
		outputs, err := w.processItem(itemCtx, i, prompt)
		if err != nil {
			ctxlog.FromContext(itemCtx).Error("Item failed.", "error", err)
		}
		w.finishItem(i, prompt, outputs, err)
	}

	status := w.finish(stopped)
	logger.Info("Task finished.", "status", status)
}

// beginItem publishes progress for item i, or reports false when the task
// must stop instead.
func (w *worker) beginItem(ctx context.Context, i int, prompt string) bool {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if w.t.status.cancelRequested() || ctx.Err() != nil {
		return false
	}
	w.t.current = i
	w.t.currentItem = prompt
	return true
}

func (w *worker) finishItem(i int, prompt string, outputs []Output, err error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	for _, o := range outputs {
		w.t.outputs[outputKey(o.Item, o.Node)] = o
	}
	if err != nil {
		w.t.errors = append(w.t.errors, fmt.Sprintf("item %d (%s): %v", i+1, prompt, err))
	}
}

// finish settles the task's status and returns it. A pending Cancel owns
// the status; the worker only records its own outcome for it.
func (w *worker) finish(stopped bool) Status {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()

	final := StatusCompleted
	switch {
	case stopped:
		final = StatusCancelled
	case len(w.t.errors) > 0:
		final = StatusError
	}
	if !stopped {
		w.t.current = w.t.total
	}
	w.t.currentItem = ""
	w.t.workerDone = true
	w.t.finalStatus = final

	switch w.t.status {
	case StatusCancelling, StatusCancelled:
	default:
		w.t.status = final
	}
	if w.t.finishedAt.IsZero() {
		w.t.finishedAt = time.Now()
	}
	return w.t.status
}

func outputKey(item int, node string) string {
	return fmt.Sprintf("%d/%s", item, node)
}

// prepare builds the job graph of item i.
func (w *worker) prepare(ctx context.Context, i int, prompt string) (*workflow.Graph, error) {
	logger := ctxlog.FromContext(ctx)

	g := w.template.Clone()
	seed := w.m.opts.Seeds()
	encoders := workflow.SetText(g, prompt, w.req.Params.NegativePrompt)
	if !workflow.SetSeed(g, seed) {
		logger.Debug("Template has no seed node.")
	}
	workflow.SetDimensions(g, w.req.Params.Width, w.req.Params.Height)

	if w.useReferences && i < len(w.req.References) {
		removed := workflow.WireReferenceImages(g, w.req.References[i])
		if len(removed) > 0 {
			logger.Debug("Removed nodes without reference images.", "nodes", removed)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("Job graph prepared.", "seed", seed, "text_encoders", encoders, "nodes", g.Len())
	return g, nil
}

// processItem runs one job to completion and stores its artifacts.
func (w *worker) processItem(ctx context.Context, i int, prompt string) ([]Output, error) {
	g, err := w.prepare(ctx, i, prompt)
	if err != nil {
		return nil, err
	}

	b := w.m.opts.Backend
	stream, err := b.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	jobID, err := b.Submit(ctx, g)
	if err != nil {
		return nil, err
	}
	ctx = ctxlog.With(ctx, "job_id", jobID)

	result, err := b.AwaitCompletion(ctx, stream, jobID)
	if err != nil {
		return nil, err
	}
	return w.collect(ctx, i, result)
}

// collect records every node that produced images and stores the first
// image of each in the item's output directory. A node whose image cannot be
// stored is still recorded; the storage errors are returned with the outputs.
func (w *worker) collect(ctx context.Context, i int, result *backend.JobResult) ([]Output, error) {
	dir := w.req.outputDir(i)
	sink := w.m.opts.Sink

	var (
		outputs   []Output
		storeErrs []error
	)
	for _, node := range result.NodeIDs() {
		images := result.Outputs[node].Images
		if len(images) == 0 {
			continue
		}
		o := Output{Item: i + 1, Node: node, Images: images}

		if dir != "" && sink != nil {
			name := artifact.DefaultName
			if len(outputs) > 0 {
				name = fmt.Sprintf("image_%s.png", node)
			}
			loc, err := w.store(ctx, dir, name, images[0])
			if err != nil {
				storeErrs = append(storeErrs, fmt.Errorf("failed to store artifact of node %s: %w", node, err))
			}
			o.Location = loc
		}
		outputs = append(outputs, o)
	}

	if len(outputs) == 0 {
		return nil, &backend.ExecutionError{JobID: result.JobID, Msg: "result contains no artifacts"}
	}
	if err := errors.Join(storeErrs...); err != nil {
		return outputs, err
	}
	ctxlog.FromContext(ctx).Info("Item completed.", "outputs", len(outputs))
	return outputs, nil
}

func (w *worker) store(ctx context.Context, dir, name string, ref backend.ImageRef) (string, error) {
	data, err := w.m.opts.Backend.FetchArtifact(ctx, ref)
	if err != nil {
		return "", err
	}
	return w.m.opts.Sink.Save(ctx, artifact.Artifact{Dir: dir, Name: name, Data: data})
}
