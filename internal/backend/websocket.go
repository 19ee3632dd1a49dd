package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vk/genflow/internal/ctxlog"
)

// eventsURL returns the websocket address of the session's event stream.
func (c *Client) eventsURL() string {
	u := *c.base
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = path.Join("/", c.base.Path, "events")
	u.RawQuery = url.Values{"session": {c.sessionID}}.Encode()
	return u.String()
}

func (c *Client) connectWebSocket(ctx context.Context) (Stream, error) {
	logger := ctxlog.FromContext(ctx).With("transport", TransportWebSocket)
	target := c.eventsURL()

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.cfg.ConnectTimeout,
	}
	if c.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: timed out connecting to %s", ErrConnection, target)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, target, err)
	}
	logger.Debug("Event stream connected.", "url", target)

	s := &wsStream{
		conn:   conn,
		events: make(chan Event, c.cfg.EventBuffer),
		closed: make(chan struct{}),
	}
	go s.read(logger)
	return s, nil
}

// wsStream reads JSON text frames from a websocket connection. The read
// goroutine is the only sender on events and closes it when it exits.
type wsStream struct {
	conn      *websocket.Conn
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

func (s *wsStream) Events() <-chan Event {
	return s.events
}

func (s *wsStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close()
	})
	return err
}

func (s *wsStream) read(logger *slog.Logger) {
	defer close(s.events)
	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
			default:
				logger.Debug("Event stream ended.", "error", err)
			}
			return
		}
		// Binary frames carry previews and are not events.
		if kind != websocket.TextMessage {
			continue
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Warn("Discarding malformed event.", "error", err)
			continue
		}
		select {
		case s.events <- ev:
		case <-s.closed:
			return
		}
	}
}
