package socket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/metrics"
	"github.com/totegamma/community-server/internal/usecase"
)

var tracer = otel.Tracer("socket")

// Server runs the protocol on accepted websockets.
type Server struct {
	hub       *Hub
	community *usecase.CommunityUsecase
	metrics   *metrics.Metrics
}

func NewServer(hub *Hub, community *usecase.CommunityUsecase, m *metrics.Metrics) *Server {
	return &Server{
		hub:       hub,
		community: community,
		metrics:   m,
	}
}

// Serve blocks until the client goes away.
func (s *Server) Serve(ctx context.Context, ws *websocket.Conn) {
	conn := NewConn(ws)
	sess := &session{
		server: s,
		conn:   conn,
	}

	s.hub.Register(conn)
	defer s.hub.Unregister(conn)

	go conn.WritePump(ctx)
	defer conn.Close()

	sess.send(ctx, community.EventOK, community.OKMessage{Data: "Connected"})

	conn.ReadPump(ctx, sess.handle)
	sess.close(ctx)
}

// session is the per-connection protocol state. It is only touched by the
// connection's reader goroutine.
type session struct {
	server   *Server
	conn     *Conn
	identity string
}

func (s *session) handle(ctx context.Context, frame []byte) {
	var req community.Event
	if err := json.Unmarshal(frame, &req); err != nil || req.Name == "" {
		s.server.metrics.Requests.WithLabelValues("invalid", "error").Inc()
		s.sendError(ctx, "", domain.InvalidRequestError{Field: "event", Reason: "frame is not an event"})
		return
	}

	ctx, span := tracer.Start(ctx, "Socket.Session."+req.Name)
	defer span.End()
	span.SetAttributes(attribute.String("conn", s.conn.ID))

	err := s.dispatch(ctx, req)
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		s.sendError(ctx, req.Name, err)
	}
	s.server.metrics.Requests.WithLabelValues(knownEvent(req.Name), status).Inc()
}

func knownEvent(name string) string {
	switch name {
	case community.EventSession, community.EventLog, community.EventShare,
		community.EventUpvote, community.EventJoin, community.EventLeave:
		return name
	}
	return "unknown"
}

func (s *session) dispatch(ctx context.Context, req community.Event) error {
	if req.Name == community.EventSession {
		return s.handleSession(ctx, req.Data)
	}
	if s.identity == "" {
		return domain.ErrUnauthenticated
	}

	switch req.Name {
	case community.EventLog:
		var fields map[string]json.RawMessage
		if err := decode(req.Data, &fields); err != nil {
			return err
		}
		return s.server.community.Log(ctx, s.identity, fields)
	case community.EventShare:
		var share community.ShareRequest
		if err := decode(req.Data, &share); err != nil {
			return err
		}
		return s.server.community.Share(ctx, s.identity, share.Struct)
	case community.EventUpvote:
		var upvote community.UpvoteRequest
		if err := decode(req.Data, &upvote); err != nil {
			return err
		}
		return s.server.community.Upvote(ctx, s.identity, upvote.UID, upvote.LocalID())
	case community.EventJoin:
		var join community.RoomRequest
		if err := decode(req.Data, &join); err != nil {
			return err
		}
		return s.join(ctx, join.Room)
	case community.EventLeave:
		var leave community.RoomRequest
		if err := decode(req.Data, &leave); err != nil {
			return err
		}
		s.server.hub.Leave(s.conn, leave.Room)
		return nil
	default:
		return domain.InvalidRequestError{Field: "event", Reason: "is not supported"}
	}
}

func (s *session) handleSession(ctx context.Context, data json.RawMessage) error {
	var req community.SessionRequest
	if err := decode(data, &req); err != nil {
		return err
	}
	if req.SessionID == "" {
		return domain.InvalidRequestError{Field: "sessionId"}
	}
	if s.identity != "" {
		if s.identity == req.SessionID {
			return nil
		}
		return domain.InvalidRequestError{Field: "sessionId", Reason: "cannot change once set"}
	}

	if err := s.server.community.Connect(ctx, req.SessionID); err != nil {
		return err
	}
	s.identity = req.SessionID
	slog.DebugContext(
		ctx, "Session established",
		slog.String("conn", s.conn.ID),
		slog.String("uid", community.PublicID(s.identity)),
		slog.String("module", "socket"),
	)
	return nil
}

// join adds the connection to room. Joining the community room replays the
// current state to this connection before any later live event.
func (s *session) join(ctx context.Context, room string) error {
	if room == "" {
		return domain.InvalidRequestError{Field: "room"}
	}
	if room != community.RoomCommunity {
		s.server.hub.Join(s.conn, room)
		return nil
	}

	start := time.Now()
	s.conn.BeginReplay()
	s.server.hub.Join(s.conn, room)

	events, err := s.server.community.Replay(ctx)
	if err != nil {
		s.conn.EndReplay(ctx, nil)
		return err
	}
	for _, event := range events {
		msg, err := json.Marshal(event)
		if err != nil {
			continue
		}
		if err := s.conn.Enqueue(ctx, msg); err != nil {
			break
		}
	}
	err = s.conn.EndReplay(ctx, replayedStructs(events))
	s.server.metrics.ReplayDuration.Observe(time.Since(start).Seconds())
	if err != nil && !errors.Is(err, errConnClosed) {
		return err
	}
	return nil
}

type structKey struct {
	uid string
	id  string
}

// replayedStructs matches held struct events for records the replay already
// sent. A record shared between the join and the state read shows up in both.
func replayedStructs(events []community.Event) func(msg []byte) bool {
	sent := make(map[structKey]bool)
	for _, event := range events {
		if event.Name != community.EventStruct {
			continue
		}
		var sm community.StructMessage
		if err := json.Unmarshal(event.Data, &sm); err != nil {
			continue
		}
		sent[structKey{sm.UID, sm.ID}] = true
	}
	if len(sent) == 0 {
		return nil
	}

	return func(msg []byte) bool {
		var event community.Event
		if err := json.Unmarshal(msg, &event); err != nil || event.Name != community.EventStruct {
			return false
		}
		var sm community.StructMessage
		if err := json.Unmarshal(event.Data, &sm); err != nil {
			return false
		}
		return sent[structKey{sm.UID, sm.ID}]
	}
}

func (s *session) close(ctx context.Context) {
	if s.identity == "" {
		return
	}
	if err := s.server.community.Disconnect(ctx, s.identity); err != nil {
		slog.ErrorContext(
			ctx, "Failed to log disconnect",
			slog.String("uid", community.PublicID(s.identity)),
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
	}
}

func (s *session) send(ctx context.Context, name string, payload any) {
	event, err := community.NewEvent(name, payload)
	if err != nil {
		return
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.conn.Enqueue(ctx, msg)
}

func (s *session) sendError(ctx context.Context, eventName string, err error) {
	if domain.IsStorageFailure(err) {
		slog.ErrorContext(
			ctx, "Storage failure",
			slog.String("event", eventName),
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
	}
	s.send(ctx, community.EventError, community.ErrorMessage{
		Event: eventName,
		Error: err.Error(),
	})
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.InvalidRequestError{Field: "data", Reason: "is malformed"}
	}
	return nil
}
