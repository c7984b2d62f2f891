package usecase

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
)

// CommunityUsecase implements the protocol handlers: it turns client
// requests into store operations and room events.
type CommunityUsecase struct {
	record      *RecordUsecase
	activity    *ActivityUsecase
	broadcaster Broadcaster
}

func NewCommunityUsecase(record *RecordUsecase, activity *ActivityUsecase, broadcaster Broadcaster) *CommunityUsecase {
	return &CommunityUsecase{
		record:      record,
		activity:    activity,
		broadcaster: broadcaster,
	}
}

func (uc *CommunityUsecase) Connect(ctx context.Context, identity string) error {
	if !community.IsValidIdentity(identity) {
		return domain.InvalidRequestError{Field: "sessionId", Reason: "is not a usable identity"}
	}
	_, err := uc.activity.Log(ctx, identity, map[string]json.RawMessage{
		"type": mustRaw(domain.ActivityConnect),
	})
	return err
}

func (uc *CommunityUsecase) Disconnect(ctx context.Context, identity string) error {
	_, err := uc.activity.Log(ctx, identity, map[string]json.RawMessage{
		"sessionId": mustRaw(identity),
		"type":      mustRaw(domain.ActivityDisconnect),
	})
	return err
}

// Log appends fields to identity's activity log and announces accepted and
// defined utterances to the community room.
func (uc *CommunityUsecase) Log(ctx context.Context, identity string, fields map[string]json.RawMessage) error {
	ctx, span := tracer.Start(ctx, "Community.Usecase.Log")
	defer span.End()

	entry, err := uc.activity.Log(ctx, identity, fields)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("Type", entry.Type))

	var event community.Event
	switch entry.Type {
	case domain.ActivityAccept:
		event, err = community.NewEvent(community.EventNewAccept, community.NewAcceptMessage{
			UID:       community.PublicID(identity),
			Query:     msgField(fields, "query"),
			Timestamp: entry.Timestamp,
		})
	case domain.ActivityDefine:
		event, err = community.NewEvent(community.EventNewDefine, community.NewDefineMessage{
			UID:       community.PublicID(identity),
			Defined:   msgField(fields, "defineAs"),
			Timestamp: entry.Timestamp,
		})
	default:
		return nil
	}
	if err != nil {
		return err
	}

	return uc.broadcaster.Broadcast(ctx, community.RoomCommunity, event)
}

func (uc *CommunityUsecase) Share(ctx context.Context, identity string, payload json.RawMessage) error {
	ctx, span := tracer.Start(ctx, "Community.Usecase.Share")
	defer span.End()

	record, err := uc.record.Share(ctx, identity, payload)
	if err != nil {
		return err
	}

	event, err := community.NewEvent(community.EventStruct, structMessage(record))
	if err != nil {
		return err
	}
	return uc.broadcaster.Broadcast(ctx, community.RoomCommunity, event)
}

// Upvote applies identity's upvote and announces the new score. Upvotes on
// records that do not exist are dropped without an error.
func (uc *CommunityUsecase) Upvote(ctx context.Context, identity string, uid string, id string) error {
	ctx, span := tracer.Start(ctx, "Community.Usecase.Upvote")
	defer span.End()

	if uid == "" {
		return domain.InvalidRequestError{Field: "uid"}
	}
	if id == "" {
		return domain.InvalidRequestError{Field: "id"}
	}
	localID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || localID < 1 {
		return nil
	}

	result, score, err := uc.record.Upvote(ctx, uid, localID, identity)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}

	event, err := community.NewEvent(community.EventUpvote, community.UpvoteMessage{
		UID:   community.PublicID(result.Owner),
		ID:    strconv.FormatInt(result.LocalID, 10),
		Up:    community.PublicID(identity),
		Score: score,
	})
	if err != nil {
		return err
	}
	return uc.broadcaster.Broadcast(ctx, community.RoomCommunity, event)
}

// Replay builds the events a client receives when it joins the community
// room: every struct, then the latest utterances of the most recently active
// identities.
func (uc *CommunityUsecase) Replay(ctx context.Context) ([]community.Event, error) {
	ctx, span := tracer.Start(ctx, "Community.Usecase.Replay")
	defer span.End()

	records, err := uc.record.List(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]community.Event, 0, len(records))
	for _, record := range records {
		event, err := community.NewEvent(community.EventStruct, structMessage(record))
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	identities, err := uc.activity.RecentlyActive(ctx)
	if err != nil {
		return nil, err
	}
	for _, identity := range identities {
		entries, err := uc.activity.Utterances(ctx, identity)
		if err != nil {
			return nil, err
		}
		utterances := make([]string, 0, len(entries))
		for _, entry := range entries {
			utterances = append(utterances, string(entry.Raw))
		}
		event, err := community.NewEvent(community.EventUtterances, community.UtterancesMessage{
			UID:        community.PublicID(identity),
			Utterances: utterances,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}

	span.SetAttributes(attribute.Int("Events", len(events)))
	return events, nil
}

func structMessage(record ScoredRecord) community.StructMessage {
	// upvoters are identities; only their public form leaves the server
	upvotes := make([]string, 0, len(record.Upvoters))
	for _, voter := range record.Upvoters {
		upvotes = append(upvotes, community.PublicID(voter))
	}
	return community.StructMessage{
		UID:     community.PublicID(record.Owner),
		ID:      strconv.FormatInt(record.LocalID, 10),
		Score:   record.Score,
		Upvotes: upvotes,
		Struct:  record.Payload,
	}
}

// msgField reads fields["msg"][name], or JSON null when either is missing.
func msgField(fields map[string]json.RawMessage, name string) json.RawMessage {
	null := json.RawMessage("null")
	raw, ok := fields["msg"]
	if !ok {
		return null
	}
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return null
	}
	v, ok := msg[name]
	if !ok {
		return null
	}
	return v
}

func mustRaw(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}
