package backend

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vk/genflow/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// subscribeEvent is emitted after connecting so that the gateway relays the
// session's events to this socket.
const subscribeEvent = "subscribe"

func (c *Client) connectSocketIO(ctx context.Context) (Stream, error) {
	logger := ctxlog.FromContext(ctx).With("transport", TransportSocketIO)

	origin := fmt.Sprintf("%s://%s", c.base.Scheme, c.base.Host)
	opts := socket.DefaultOptions()
	if p := strings.TrimSuffix(c.base.Path, "/"); p != "" {
		opts.SetPath(p + "/socket.io")
	}
	if c.cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(origin, opts)
	io := manager.Socket("/", opts)

	s := &sioStream{
		io:           io,
		inbox:        make(chan Event, c.cfg.EventBuffer),
		events:       make(chan Event, c.cfg.EventBuffer),
		closed:       make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	connected := make(chan error, 1)

	io.On(types.EventName("connect"), func(...any) {
		logger.Debug("Event stream connected.", "origin", origin, "sid", io.Id())
		io.Emit(subscribeEvent, map[string]any{"session": c.sessionID})
		select {
		case connected <- nil:
		default:
		}
	})
	io.On(types.EventName("connect_error"), func(args ...any) {
		err := errors.New("connect_error")
		if len(args) > 0 {
			if e, ok := args[0].(error); ok {
				err = e
			}
		}
		select {
		case connected <- err:
		default:
		}
	})
	io.On(types.EventName("disconnect"), func(...any) {
		s.disconnectOnce.Do(func() { close(s.disconnected) })
	})
	for _, name := range streamEvents {
		io.On(types.EventName(name), func(args ...any) {
			s.deliver(logger, name, args)
		})
	}

	io.Connect()

	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("%w: %s: %v", ErrConnection, origin, err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("%w: timed out connecting to %s", ErrConnection, origin)
	}

	go s.pump()
	return s, nil
}

// sioStream adapts socket.io callbacks to a Stream. Callbacks only ever send
// on inbox; the pump goroutine is the only sender on events and closes it.
type sioStream struct {
	io *socket.Socket

	inbox  chan Event
	events chan Event

	closed         chan struct{}
	closeOnce      sync.Once
	disconnected   chan struct{}
	disconnectOnce sync.Once
}

func (s *sioStream) Events() <-chan Event {
	return s.events
}

func (s *sioStream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.io.Disconnect()
	})
	return nil
}

func (s *sioStream) deliver(logger *slog.Logger, name string, args []any) {
	ev := Event{Type: name}
	if len(args) > 0 {
		data, err := json.Marshal(args[0])
		if err != nil {
			logger.Warn("Discarding undecodable event.", "event", name, "error", err)
			return
		}
		ev.Data = data
	}
	select {
	case s.inbox <- ev:
	case <-s.closed:
	}
}

func (s *sioStream) pump() {
	defer close(s.events)
	for {
		select {
		case ev := <-s.inbox:
			select {
			case s.events <- ev:
			case <-s.closed:
				return
			}
		case <-s.disconnected:
			return
		case <-s.closed:
			return
		}
	}
}
