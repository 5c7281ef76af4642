// Package events carries registry events to clients. A Stream is the registry-facing sink: it never
// blocks and reports a full buffer as an error so the registry drops the subscriber. Pump drains a
// Stream into a transport writer such as WriteSSE or WriteWebSocket.
package events

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/contrib/websocket"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/arena/registry"
)

const (
	DefaultBuffer = 64

	writeDeadline = 5 * time.Second
)

var (
	ErrStreamFull   = errors.New("event stream buffer is full")
	ErrStreamClosed = errors.New("event stream is closed")
)

var _ registry.Sink = (*Stream)(nil)

type Stream struct {
	mu     sync.Mutex
	events chan registry.Event
	closed bool
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Stream{events: make(chan registry.Event, buffer)}
}

func (s *Stream) Send(ev registry.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	select {
	case s.events <- ev:
		return nil
	default:
		return ErrStreamFull
	}
}

func (s *Stream) Events() <-chan registry.Event {
	return s.events
}

// Close stops accepting events. Events already buffered can still be drained. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// Pump writes buffered events until ctx is done, done is closed, the stream is closed and drained, or
// write fails.
func (s *Stream) Pump(ctx context.Context, done <-chan struct{}, write func(registry.Event) error) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case ev, ok := <-s.events:
			if !ok {
				return nil
			}
			if err := write(ev); err != nil {
				return err
			}
		}
	}
}

// WriteSSE writes one server-sent event and flushes it. Heartbeats are sent as comments.
func WriteSSE(w *bufio.Writer, ev registry.Event) error {
	if ev.Type == registry.EventHeartbeat {
		if _, err := w.WriteString(": heartbeat\n\n"); err != nil {
			return eris.Wrap(err, "failed to write heartbeat")
		}
		return eris.Wrap(w.Flush(), "failed to flush heartbeat")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "failed to encode event")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return eris.Wrap(err, "failed to write event")
	}
	return eris.Wrap(w.Flush(), "failed to flush event")
}

// WriteWebSocket writes one event as a text frame. Heartbeats are sent as ping frames.
func WriteWebSocket(conn *websocket.Conn, ev registry.Event) error {
	deadline := time.Now().Add(writeDeadline)
	if ev.Type == registry.EventHeartbeat {
		return eris.Wrap(conn.WriteControl(websocket.PingMessage, nil, deadline), "failed to write ping")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return eris.Wrap(err, "failed to encode event")
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return eris.Wrap(err, "failed to set write deadline")
	}
	return eris.Wrap(conn.WriteMessage(websocket.TextMessage, data), "failed to write event")
}
