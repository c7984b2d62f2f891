package usecase

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/community-server/internal/domain"
)

// ScoredRecord is a record with its score at the time it was read.
type ScoredRecord struct {
	domain.Record
	Score float64
}

type RecordUsecase struct {
	repo  RecordRepository
	clock Clock
}

func NewRecordUsecase(repo RecordRepository, clock Clock) *RecordUsecase {
	return &RecordUsecase{repo: repo, clock: clock}
}

func (uc *RecordUsecase) Share(ctx context.Context, owner string, payload json.RawMessage) (ScoredRecord, error) {
	ctx, span := tracer.Start(ctx, "Record.Usecase.Share")
	defer span.End()

	if len(payload) == 0 || string(payload) == "null" {
		return ScoredRecord{}, domain.InvalidRequestError{Field: "struct"}
	}
	if !json.Valid(payload) {
		return ScoredRecord{}, domain.InvalidRequestError{Field: "struct", Reason: "is not valid JSON"}
	}

	now := uc.clock.Now()
	localID, err := uc.repo.Create(ctx, owner, payload, now.Unix())
	if err != nil {
		span.RecordError(err)
		return ScoredRecord{}, errors.Wrap(err, "RecordUsecase.Share: repo.Create failed")
	}
	span.SetAttributes(attribute.Int64("LocalID", localID))

	return ScoredRecord{
		Record: domain.Record{
			Owner:       owner,
			LocalID:     localID,
			Upvoters:    []string{},
			SubmittedAt: now.Unix(),
			Payload:     payload,
		},
		Score: domain.Score(now.Unix(), 0, now),
	}, nil
}

// Upvote records voter's upvote on the record addressed by uid and localID.
// The score is always computed from the stored submission time, also when
// the voter had already upvoted.
func (uc *RecordUsecase) Upvote(ctx context.Context, uid string, localID int64, voter string) (domain.UpvoteResult, float64, error) {
	ctx, span := tracer.Start(ctx, "Record.Usecase.Upvote")
	defer span.End()

	owner, err := uc.repo.ResolveOwner(ctx, uid, localID)
	if err != nil {
		return domain.UpvoteResult{}, 0, errors.Wrap(err, "RecordUsecase.Upvote: repo.ResolveOwner failed")
	}

	result, err := uc.repo.Upvote(ctx, owner, localID, voter)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
		}
		return domain.UpvoteResult{}, 0, errors.Wrap(err, "RecordUsecase.Upvote: repo.Upvote failed")
	}
	span.SetAttributes(attribute.Bool("Applied", result.Applied))

	return result, domain.Score(result.SubmittedAt, result.Upvotes, uc.clock.Now()), nil
}

func (uc *RecordUsecase) List(ctx context.Context) ([]ScoredRecord, error) {
	ctx, span := tracer.Start(ctx, "Record.Usecase.List")
	defer span.End()

	records, err := uc.repo.ListAll(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, errors.Wrap(err, "RecordUsecase.List: repo.ListAll failed")
	}

	now := uc.clock.Now()
	scored := make([]ScoredRecord, 0, len(records))
	for _, record := range records {
		scored = append(scored, ScoredRecord{
			Record: record,
			Score:  domain.Score(record.SubmittedAt, len(record.Upvoters), now),
		})
	}
	return scored, nil
}
