package socket

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20

	sendBufferSize = 256
	// live events held back while a replay is written
	maxPending = 4096
)

var errConnClosed = errors.New("connection closed")

// Conn is one websocket client. Writes go through send and are performed by
// WritePump only. send is never closed; done signals shutdown instead.
type Conn struct {
	ID string

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu        sync.Mutex
	replaying bool
	pending   [][]byte
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{
		ID:   uuid.NewString(),
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// Close asks the writer to shut the socket down. It is safe to call more
// than once and from any goroutine.
func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Enqueue waits until msg fits in the send buffer.
func (c *Conn) Enqueue(ctx context.Context, msg []byte) error {
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return errConnClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer queues a live event without blocking. It reports false when the
// connection cannot keep up.
func (c *Conn) offer(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.replaying {
		if len(c.pending) >= maxPending {
			return false
		}
		c.pending = append(c.pending, msg)
		return true
	}

	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// BeginReplay holds back live events until EndReplay.
func (c *Conn) BeginReplay() {
	c.mu.Lock()
	c.replaying = true
	c.mu.Unlock()
}

// EndReplay writes the live events held back during the replay, then lets
// live events through again. Held events for which skip reports true are
// dropped; skip may be nil.
func (c *Conn) EndReplay(ctx context.Context, skip func(msg []byte) bool) error {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.replaying = false
			c.mu.Unlock()
			return nil
		}
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()

		for _, msg := range batch {
			if skip != nil && skip(msg) {
				continue
			}
			if err := c.Enqueue(ctx, msg); err != nil {
				c.mu.Lock()
				c.replaying = false
				c.pending = nil
				c.mu.Unlock()
				return err
			}
		}
	}
}

// ReadPump reads frames until the socket fails and hands each to handle.
func (c *Conn) ReadPump(ctx context.Context, handle func(ctx context.Context, frame []byte)) {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				slog.DebugContext(
					ctx, "WebSocket closed",
					slog.String("conn", c.ID),
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
			}
			return
		}
		handle(ctx, frame)
	}
}

// WritePump drains send into the socket and keeps it alive with pings. It
// closes the socket when it returns, which also ends ReadPump.
func (c *Conn) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.ErrorContext(
					ctx, "Error writing message",
					slog.String("conn", c.ID),
					slog.String("error", err.Error()),
					slog.String("module", "socket"),
				)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			return
		}
	}
}
