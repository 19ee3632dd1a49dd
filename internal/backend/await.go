package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/genflow/internal/ctxlog"
)

// AwaitCompletion consumes stream until jobID finishes and returns its
// history record. The stream is not closed; the caller owns it.
func (c *Client) AwaitCompletion(ctx context.Context, stream Stream, jobID string) (*JobResult, error) {
	logger := ctxlog.FromContext(ctx).With("job_id", jobID)

	timer := time.NewTimer(c.cfg.CompletionTimeout)
	defer timer.Stop()

	events := stream.Events()
wait:
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: job %s after %s", ErrExecutionTimeout, jobID, c.cfg.CompletionTimeout)
		case ev, ok := <-events:
			if !ok {
				return nil, fmt.Errorf("%w: stream closed before job %s completed", ErrConnection, jobID)
			}
			switch ev.Type {
			case EventExecuting:
				data, ok := ev.Executing()
				if !ok || data.JobID != jobID {
					continue
				}
				if data.Node == nil {
					break wait
				}
				logger.Debug("Executing node.", "node", *data.Node)
			case EventExecutionError:
				data, ok := ev.ExecutionError()
				if !ok || data.JobID != jobID {
					continue
				}
				return nil, &ExecutionError{
					JobID: jobID,
					Node:  data.NodeID,
					Msg:   fmt.Sprintf("%s: %s", data.NodeType, data.Exception),
				}
			}
		}
	}
	logger.Debug("Job finished.")

	if c.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.SettleDelay):
		}
	}

	result, err := c.History(ctx, jobID)
	if err != nil {
		return nil, &ExecutionError{JobID: jobID, Msg: "history lookup failed", Err: err}
	}
	return result, nil
}
