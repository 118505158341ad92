// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimBridge Contributors

// Package transport carries relay events over a WebSocket with optional
// acknowledgments.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/simbridge/simbridge/internal/relay"
	"github.com/simbridge/simbridge/pkg/errutil"
)

// Error codes for transport failures.
const (
	CodeClosed   = "TRANSPORT_CLOSED"
	CodeBadFrame = "TRANSPORT_BAD_FRAME"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20
)

// Frame is the JSON message exchanged on the socket. An event frame carries
// Event and Data, plus ID when the sender wants an acknowledgment. An
// acknowledgment frame carries Ack, echoing that ID, and optional Data.
type Frame struct {
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	ID    *uint64         `json:"id,omitempty"`
	Ack   *uint64         `json:"ack,omitempty"`
}

// Handler receives events read from a connection.
type Handler interface {
	Handle(event string, payload json.RawMessage, ack relay.AckFunc) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(event string, payload json.RawMessage, ack relay.AckFunc) error

// Handle calls f.
func (f HandlerFunc) Handle(event string, payload json.RawMessage, ack relay.AckFunc) error {
	return f(event, payload, ack)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Both hosts are served by this process on a developer machine; pages may
	// be opened through any local hostname.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Accept upgrades an HTTP request to a connection.
func Accept(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, oops.Wrapf(err, "upgrade websocket")
	}
	return NewConn(ws, logger), nil
}

// Conn is a relay connection over a WebSocket. Emit appends frames to an
// unbounded outbox drained in order by a single writer goroutine, so it never
// blocks on the network and never drops a frame while the connection is open.
type Conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	outMu  sync.Mutex
	outbox [][]byte
	closed bool
	wake   chan struct{}

	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]relay.AckFunc
}

// NewConn wraps an established WebSocket.
func NewConn(ws *websocket.Conn, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	id := ulid.Make().String()
	return &Conn{
		id:      id,
		ws:      ws,
		logger:  logger.With("conn_id", id),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		pending: make(map[uint64]relay.AckFunc),
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string {
	return c.id
}

// Emit queues an event frame. A non-nil ack is called when the peer
// acknowledges it.
func (c *Conn) Emit(event string, payload json.RawMessage, ack relay.AckFunc) error {
	f := Frame{Event: event, Data: payload}
	if ack != nil {
		c.mu.Lock()
		c.nextID++
		id := c.nextID
		c.pending[id] = ack
		c.mu.Unlock()
		f.ID = &id
	}
	if err := c.write(f); err != nil {
		if f.ID != nil {
			c.mu.Lock()
			delete(c.pending, *f.ID)
			c.mu.Unlock()
		}
		return oops.With("event", event).Wrap(err)
	}
	return nil
}

func (c *Conn) write(f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return oops.Code(CodeBadFrame).Wrap(err)
	}
	c.outMu.Lock()
	if c.closed {
		c.outMu.Unlock()
		return oops.Code(CodeClosed).With("conn_id", c.id).Errorf("connection closed")
	}
	c.outbox = append(c.outbox, data)
	c.outMu.Unlock()

	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// take empties the outbox.
func (c *Conn) take() [][]byte {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	batch := c.outbox
	c.outbox = nil
	return batch
}

// drain writes queued frames in order until the outbox is empty.
func (c *Conn) drain() error {
	for {
		batch := c.take()
		if len(batch) == 0 {
			return nil
		}
		for _, data := range batch {
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return err
			}
		}
	}
}

// Serve reads frames and passes events to h until the peer disconnects, ctx
// is canceled, or Close is called.
func (c *Conn) Serve(ctx context.Context, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump(ctx)
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	err := c.readLoop(h)
	c.Close()
	wg.Wait()
	_ = c.ws.Close()
	return err
}

func (c *Conn) readLoop(h Handler) error {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				return nil
			}
			return oops.With("conn_id", c.id).Wrapf(err, "read frame")
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			errutil.LogWarn(c.logger, "dropping malformed frame", oops.Code(CodeBadFrame).Wrap(err))
			continue
		}
		c.dispatch(h, f)
	}
}

func (c *Conn) dispatch(h Handler, f Frame) {
	if f.Ack != nil {
		c.mu.Lock()
		ack, ok := c.pending[*f.Ack]
		delete(c.pending, *f.Ack)
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("acknowledgment for unknown frame", "ack", *f.Ack)
			return
		}
		ack(f.Data)
		return
	}

	if f.Event == "" {
		c.logger.Debug("dropping frame without event")
		return
	}

	var ack relay.AckFunc
	if f.ID != nil {
		id := *f.ID
		ack = func(data json.RawMessage) {
			if err := c.write(Frame{Ack: &id, Data: data}); err != nil {
				errutil.LogWarn(c.logger, "acknowledgment not sent", err)
			}
		}
	}
	if err := h.Handle(f.Event, f.Data, ack); err != nil {
		errutil.LogError(c.logger, "event handling failed", err, "event", f.Event)
	}
}

func (c *Conn) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.wake:
			if err := c.drain(); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			_ = c.drain()
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case <-ctx.Done():
			c.Close()
		}
	}
}

// Close stops the connection. Serve returns once the reader notices.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		// frames accepted before this point are still flushed by the writer
		c.outMu.Lock()
		c.closed = true
		c.outMu.Unlock()
		close(c.done)
		// unblock the reader
		_ = c.ws.SetReadDeadline(time.Now())
	})
}

// Done is closed when the connection stops.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}
