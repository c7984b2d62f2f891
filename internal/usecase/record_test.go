package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/totegamma/community-server/internal/domain"
)

func TestRecordUsecaseShare(t *testing.T) {
	repo := newMockRecordRepo()
	clock := newStubClock(time.Unix(1_700_000_000, 0))
	uc := NewRecordUsecase(repo, clock)

	record, err := uc.Share(context.Background(), "abcdef1234567890", json.RawMessage(`{"shape":"cube"}`))
	if err != nil {
		t.Fatalf("share failed: %v", err)
	}
	if record.LocalID != 1 {
		t.Fatalf("expected local id 1 got %d", record.LocalID)
	}
	if record.SubmittedAt != clock.Now().Unix() {
		t.Fatalf("unexpected submittedAt %d", record.SubmittedAt)
	}
	if math.Abs(record.Score-0.379) > 0.001 {
		t.Fatalf("expected score ~0.379 got %f", record.Score)
	}
}

func TestRecordUsecaseShareRejectsMissingStruct(t *testing.T) {
	repo := newMockRecordRepo()
	uc := NewRecordUsecase(repo, RealClock{})

	for _, payload := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`{"broken"`)} {
		_, err := uc.Share(context.Background(), "alice", payload)
		if !errors.Is(err, domain.ErrInvalidRequest) {
			t.Fatalf("expected invalid request for %q, got %v", payload, err)
		}
	}
	if len(repo.records) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestRecordUsecaseUpvoteUsesStoredTimestamp(t *testing.T) {
	repo := newMockRecordRepo()
	clock := newStubClock(time.Unix(1_700_000_000, 0))
	uc := NewRecordUsecase(repo, clock)

	ctx := context.Background()
	if _, err := uc.Share(ctx, "abcdef1234567890", json.RawMessage(`{}`)); err != nil {
		t.Fatalf("share failed: %v", err)
	}

	clock.Advance(time.Hour)
	result, score, err := uc.Upvote(ctx, "abcdef12", 1, "voter-one")
	if err != nil {
		t.Fatalf("upvote failed: %v", err)
	}
	if result.Upvotes != 1 || !result.Applied {
		t.Fatalf("unexpected result %+v", result)
	}
	if math.Abs(score-0.297) > 0.001 {
		t.Fatalf("expected ~0.297 got %f", score)
	}

	// idempotent path still scores from the stored record
	result, again, err := uc.Upvote(ctx, "abcdef12", 1, "voter-one")
	if err != nil {
		t.Fatalf("second upvote failed: %v", err)
	}
	if result.Applied || result.Upvotes != 1 {
		t.Fatalf("second upvote must be a no-op: %+v", result)
	}
	if again != score {
		t.Fatalf("expected the same score %f got %f", score, again)
	}
}

func TestRecordUsecaseUpvoteMissingRecord(t *testing.T) {
	repo := newMockRecordRepo()
	uc := NewRecordUsecase(repo, RealClock{})

	_, _, err := uc.Upvote(context.Background(), "nobody", 3, "voter")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordUsecaseList(t *testing.T) {
	repo := newMockRecordRepo()
	clock := newStubClock(time.Unix(1_700_000_000, 0))
	uc := NewRecordUsecase(repo, clock)

	ctx := context.Background()
	uc.Share(ctx, "alice", json.RawMessage(`1`))
	uc.Share(ctx, "alice", json.RawMessage(`2`))
	uc.Share(ctx, "bob", json.RawMessage(`3`))

	records, err := uc.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records got %d", len(records))
	}
	for _, r := range records {
		if r.Score <= 0 {
			t.Fatalf("expected positive score, got %f", r.Score)
		}
	}
}
