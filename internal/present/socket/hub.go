package socket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/metrics"
	"github.com/totegamma/community-server/internal/service"
	"github.com/totegamma/community-server/internal/usecase"
)

// Hub is the registry of live connections and their rooms. With a signal
// service attached, broadcasts go through the bus and every node delivers
// them to its own members; without one they are delivered locally.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	rooms map[string]map[string]*Conn

	signal  *service.SignalService
	metrics *metrics.Metrics
}

func NewHub(m *metrics.Metrics) *Hub {
	return &Hub{
		conns:   make(map[string]*Conn),
		rooms:   make(map[string]map[string]*Conn),
		metrics: m,
	}
}

// UseSignal routes broadcasts through s. Call Start to receive them.
func (h *Hub) UseSignal(s *service.SignalService) {
	h.signal = s
}

// Start subscribes to the bus and delivers its events until ctx is
// cancelled. The returned channel receives the error that ended delivery.
// Without a signal service it returns a nil channel.
func (h *Hub) Start(ctx context.Context) (<-chan error, error) {
	if h.signal == nil {
		return nil, nil
	}
	return h.signal.Subscribe(ctx, func(ctx context.Context, env service.Envelope) {
		h.Deliver(ctx, env.Room, env.Event)
	})
}

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c.ID] = c
	h.metrics.ActiveConnections.Set(float64(len(h.conns)))
}

// Unregister removes c from the registry and from every room.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, c.ID)
	for room, members := range h.rooms {
		if _, ok := members[c.ID]; !ok {
			continue
		}
		delete(members, c.ID)
		h.setRoomGauge(room, len(members))
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	h.metrics.ActiveConnections.Set(float64(len(h.conns)))
}

func (h *Hub) Join(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.ID] = c
	h.setRoomGauge(room, len(members))
}

func (h *Hub) Leave(c *Conn, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, c.ID)
	h.setRoomGauge(room, len(members))
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

func (h *Hub) Members(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) setRoomGauge(room string, n int) {
	h.metrics.RoomMembers.WithLabelValues(room).Set(float64(n))
}

func (h *Hub) Broadcast(ctx context.Context, room string, event community.Event) error {
	h.metrics.Broadcasts.WithLabelValues(event.Name).Inc()

	if h.signal != nil {
		err := h.signal.Publish(ctx, room, event)
		if err == nil {
			return nil
		}
		slog.WarnContext(
			ctx, "Signal publish failed, delivering locally",
			slog.String("room", room),
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
	}

	h.Deliver(ctx, room, event)
	return nil
}

// Deliver fans event out to the local members of room. Members whose send
// buffer is full are disconnected.
func (h *Hub) Deliver(ctx context.Context, room string, event community.Event) {
	msg, err := json.Marshal(event)
	if err != nil {
		slog.ErrorContext(
			ctx, "Failed to encode event",
			slog.String("event", event.Name),
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return
	}

	h.mu.RLock()
	members := make([]*Conn, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		if c.offer(msg) {
			continue
		}
		h.metrics.SlowConsumers.Inc()
		slog.WarnContext(
			ctx, "Dropping slow consumer",
			slog.String("conn", c.ID),
			slog.String("room", room),
			slog.String("module", "socket"),
		)
		c.Close()
	}
}

var _ usecase.Broadcaster = (*Hub)(nil)
