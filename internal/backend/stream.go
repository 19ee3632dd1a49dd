package backend

import (
	"context"
	"fmt"
)

// Connect opens an event stream for the client's session. It fails with
// ErrConnection when the stream is not established within the connect
// timeout.
func (c *Client) Connect(ctx context.Context) (Stream, error) {
	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	switch c.cfg.Transport {
	case TransportSocketIO:
		return c.connectSocketIO(connectCtx)
	case TransportWebSocket:
		return c.connectWebSocket(connectCtx)
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrConnection, c.cfg.Transport)
	}
}
