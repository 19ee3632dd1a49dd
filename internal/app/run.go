package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vk/genflow/internal/contentstore"
	"github.com/vk/genflow/internal/ctxlog"
	"github.com/vk/genflow/internal/orchestrator"
)

// cancelTimeout bounds the interrupt request sent when Run is interrupted.
const cancelTimeout = 10 * time.Second

// Run executes the main application logic based on the provided configuration.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	a.healthCheckServer()

	switch {
	case a.config.List:
		return a.listTemplates(ctx)
	case a.config.Describe != "":
		return a.describeTemplate(ctx, a.config.Describe)
	}

	req, err := a.batchRequest()
	if err != nil {
		return err
	}
	id, err := a.manager.SubmitBatch(ctx, req)
	if err != nil {
		return err
	}
	a.logger.Info("🚀 Batch started.", "task_id", id, "items", len(req.Prompts))

	snap, err := a.follow(ctx, id)
	if err != nil {
		return err
	}
	a.report(snap)

	if snap.Status != orchestrator.StatusCompleted {
		return fmt.Errorf("task %s ended with status %s: %s", id, snap.Status, strings.Join(snap.Errors, "; "))
	}
	a.logger.Info("🏁 Batch finished.", "task_id", id, "outputs", len(snap.Outputs))
	return nil
}

func (a *App) listTemplates(ctx context.Context) error {
	infos, err := a.templates.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		a.logger.Warn("No templates found.", "dir", a.templates.Dir())
	}
	for _, info := range infos {
		fmt.Fprintf(a.outW, "%s\t%d\t%s\n", info.Name, info.Size, info.Modified.Format(time.RFC3339))
	}
	return nil
}

func (a *App) describeTemplate(ctx context.Context, name string) error {
	detail, err := a.templates.Describe(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.outW, "%s (%d nodes)\n", detail.Name, detail.Graph.Len())
	for _, id := range detail.Graph.IDs() {
		n := detail.Nodes[id]
		names := make([]string, 0, len(n.Inputs))
		for input := range n.Inputs {
			names = append(names, input)
		}
		sort.Strings(names)

		parts := make([]string, len(names))
		for i, input := range names {
			parts[i] = input + "=" + n.Inputs[input].String()
		}
		fmt.Fprintf(a.outW, "%s\t%s\t%q\t%s\n", id, n.Type, n.Title, strings.Join(parts, " "))
	}
	return nil
}

// batchRequest turns the run configuration into a batch: prompts are styled,
// and items get output directories and reference images from the project.
func (a *App) batchRequest() (orchestrator.BatchRequest, error) {
	cfg := a.config
	req := orchestrator.BatchRequest{
		Workflow: cfg.Workflow,
		Prompts:  append([]string(nil), cfg.Prompts...),
		Params: orchestrator.Params{
			Width:          cfg.Width,
			Height:         cfg.Height,
			NegativePrompt: cfg.Negative,
		},
	}

	if cfg.Style != "" {
		style, err := a.service.Styles.Lookup(cfg.Style)
		if err != nil {
			return req, err
		}
		for i, p := range req.Prompts {
			styled, err := style.Apply(p)
			if err != nil {
				return req, err
			}
			req.Prompts[i] = styled
		}
		if req.Params.NegativePrompt == "" {
			req.Params.NegativePrompt = style.NegativePrompt
		}
	}

	if cfg.Project != "" {
		req.OutputDirs = make([]string, len(req.Prompts))
		for i := range req.Prompts {
			req.OutputDirs[i] = a.content.ItemDir(cfg.Project, cfg.Chapter, strconv.Itoa(i+1))
		}
	}
	for _, r := range cfg.References {
		req.References = append(req.References, contentstore.References(a.content, cfg.Project, r.Character1, r.Character2, r.Scene))
	}
	return req, nil
}

// follow logs the task's progress until its worker exits. When ctx is
// cancelled first, the task is cancelled and followed to its end.
func (a *App) follow(ctx context.Context, id string) (orchestrator.Snapshot, error) {
	logger := a.logger.With("task_id", id)

	done := make(chan error, 1)
	go func() {
		_, err := a.manager.Wait(context.Background(), id)
		done <- err
	}()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	interrupted := ctx.Done()
	for {
		select {
		case err := <-done:
			if err != nil {
				return orchestrator.Snapshot{}, err
			}
			// Re-read: a cancel may have settled the status after the worker exited.
			return a.manager.Task(id)
		case <-ticker.C:
			p, err := a.manager.Progress(id)
			if err != nil {
				return orchestrator.Snapshot{}, err
			}
			logger.Info("Batch progress.", "status", p.Status, "current", p.Current, "total", p.Total, "errors", len(p.Errors), "item", p.CurrentItem)
		case <-interrupted:
			interrupted = nil
			logger.Warn("Interrupted, cancelling task.")
			cancelCtx, cancel := context.WithTimeout(ctxlog.WithLogger(context.Background(), logger), cancelTimeout)
			ok, err := a.manager.Cancel(cancelCtx, id)
			cancel()
			if err != nil {
				return orchestrator.Snapshot{}, err
			}
			if !ok {
				logger.Warn("Task could not be cancelled; waiting for it to finish.")
			}
		}
	}
}

func (a *App) report(snap orchestrator.Snapshot) {
	keys := make([]string, 0, len(snap.Outputs))
	for k := range snap.Outputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		o := snap.Outputs[k]
		a.logger.Info("Artifact produced.", "item", o.Item, "node", o.Node, "images", len(o.Images), "location", o.Location)
	}
	for _, e := range snap.Errors {
		a.logger.Error("Item failed.", "task_id", snap.ID, "error", e)
	}
}
