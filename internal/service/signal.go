package service

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/community-server"
)

var tracer = otel.Tracer("signal")

const DefaultSignalChannel = "community:events"

// Envelope is what travels over the bus: one event addressed to a room.
type Envelope struct {
	Room  string          `msgpack:"room"`
	Event community.Event `msgpack:"event"`
}

// SignalService relays room broadcasts between server nodes over redis
// pub/sub. Every node, the publisher included, delivers what it receives to
// its local members.
type SignalService struct {
	rdb     *redis.Client
	channel string
}

func NewSignalService(redisClient *redis.Client, channel string) *SignalService {
	if channel == "" {
		channel = DefaultSignalChannel
	}
	return &SignalService{
		rdb:     redisClient,
		channel: channel,
	}
}

func (s *SignalService) Publish(ctx context.Context, room string, event community.Event) error {
	ctx, span := tracer.Start(ctx, "Signal.Service.Publish")
	defer span.End()
	span.SetAttributes(
		attribute.String("room", room),
		attribute.String("event", event.Name),
	)

	payload, err := msgpack.Marshal(Envelope{Room: room, Event: event})
	if err != nil {
		span.RecordError(err)
		return err
	}

	err = s.rdb.Publish(ctx, s.channel, payload).Err()
	if err != nil {
		span.RecordError(err)
		return err
	}

	return nil
}

// Subscribe waits for the subscription to be confirmed, then calls deliver
// for every envelope published on the channel until ctx is cancelled. The
// returned channel receives the error that ended delivery.
func (s *SignalService) Subscribe(ctx context.Context, deliver func(ctx context.Context, env Envelope)) (<-chan error, error) {
	pubsub := s.rdb.Subscribe(ctx, s.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				done <- ctx.Err()
				return
			case msg, ok := <-messages:
				if !ok {
					done <- redis.ErrClosed
					return
				}
				var env Envelope
				if err := msgpack.Unmarshal([]byte(msg.Payload), &env); err != nil {
					slog.WarnContext(
						ctx, "Dropping undecodable signal",
						slog.String("error", err.Error()),
						slog.String("module", "signal"),
					)
					continue
				}
				deliver(ctx, env)
			}
		}
	}()

	return done, nil
}
