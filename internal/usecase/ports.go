package usecase

import (
	"context"
	"encoding/json"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
)

var tracer = otel.Tracer("usecase")

// RecordRepository defines storage operations for shared structs.
type RecordRepository interface {
	// Create stores a new record for owner and returns its local id.
	Create(ctx context.Context, owner string, payload json.RawMessage, submittedAt int64) (int64, error)
	// Upvote adds voter to the record's upvoters unless already present.
	Upvote(ctx context.Context, owner string, localID int64, voter string) (domain.UpvoteResult, error)
	// ResolveOwner maps the uid a client saw (public id or full identity)
	// to the owner of record localID.
	ResolveOwner(ctx context.Context, uid string, localID int64) (string, error)
	ListAll(ctx context.Context) ([]domain.Record, error)
}

// ActivityRepository defines storage operations for per-identity activity logs.
type ActivityRepository interface {
	Append(ctx context.Context, identity string, entry domain.ActivityEntry) error
	Recent(ctx context.Context, identity string, maxCount int, match func(domain.ActivityEntry) bool) ([]domain.ActivityEntry, error)
	MostRecentlyActive(ctx context.Context, maxCount int) ([]string, error)
}

// UtteranceCache keeps the replayed utterances of an identity between appends.
type UtteranceCache interface {
	Get(ctx context.Context, identity string) ([]domain.ActivityEntry, bool)
	Set(ctx context.Context, identity string, entries []domain.ActivityEntry)
	Invalidate(ctx context.Context, identity string)
}

// Broadcaster delivers an event to every member of a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room string, event community.Event) error
}

// Clock abstracts time retrieval so scores and timestamps are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
