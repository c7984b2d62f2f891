package repository

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/infra/database/models"
	"github.com/totegamma/community-server/internal/usecase"
)

// PostgresRecordRepository keeps shared structs in postgres. Local ids are assigned
// under a transaction-scoped advisory lock keyed by the owner.
type PostgresRecordRepository struct {
	db *gorm.DB
}

func NewPostgresRecordRepository(db *gorm.DB) *PostgresRecordRepository {
	return &PostgresRecordRepository{db: db}
}

func ownerLockKey(owner string) int64 {
	return int64(xxh3.HashString("record-owner:" + owner))
}

func (r *PostgresRecordRepository) Create(ctx context.Context, owner string, payload json.RawMessage, submittedAt int64) (int64, error) {
	if !community.IsValidIdentity(owner) {
		return 0, domain.InvalidRequestError{Field: "sessionId", Reason: "is not a usable identity"}
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, payload); err != nil {
		return 0, domain.InvalidRequestError{Field: "struct", Reason: "is not valid JSON"}
	}

	var localID int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", ownerLockKey(owner)).Error; err != nil {
			return err
		}

		var maxID int64
		err := tx.Model(&models.Record{}).
			Where("owner = ?", owner).
			Select("COALESCE(MAX(local_id), 0)").
			Scan(&maxID).Error
		if err != nil {
			return err
		}

		localID = maxID + 1
		return tx.Create(&models.Record{
			Owner:       owner,
			LocalID:     localID,
			Upvoters:    "[]",
			SubmittedAt: submittedAt,
			Payload:     compact.String(),
		}).Error
	})
	if err != nil {
		return 0, domain.NewStorageError("create", err)
	}
	return localID, nil
}

func (r *PostgresRecordRepository) Upvote(ctx context.Context, owner string, localID int64, voter string) (domain.UpvoteResult, error) {
	var result domain.UpvoteResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.Record
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner = ? AND local_id = ?", owner, localID).
			Take(&row).Error
		if err != nil {
			return err
		}

		var upvoters []string
		if err := json.Unmarshal([]byte(row.Upvoters), &upvoters); err != nil {
			return errors.Wrap(err, "invalid upvoters column")
		}

		result = domain.UpvoteResult{
			Owner:       owner,
			LocalID:     localID,
			Upvotes:     len(upvoters),
			SubmittedAt: row.SubmittedAt,
		}
		for _, u := range upvoters {
			if u == voter {
				return nil
			}
		}

		upvoters = append(upvoters, voter)
		encoded, err := json.Marshal(upvoters)
		if err != nil {
			return err
		}
		err = tx.Model(&models.Record{}).
			Where("owner = ? AND local_id = ?", owner, localID).
			Update("upvoters", string(encoded)).Error
		if err != nil {
			return err
		}

		result.Upvotes = len(upvoters)
		result.Applied = true
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.UpvoteResult{}, domain.NotFoundError{Resource: "record"}
		}
		return domain.UpvoteResult{}, domain.NewStorageError("upvote", err)
	}
	return result, nil
}

func (r *PostgresRecordRepository) ResolveOwner(ctx context.Context, uid string, localID int64) (string, error) {
	var owners []string
	err := r.db.WithContext(ctx).Model(&models.Record{}).
		Where("(owner = ? OR left(owner, 8) = ?) AND local_id = ?", uid, uid, localID).
		Order("owner").
		Pluck("owner", &owners).Error
	if err != nil {
		return "", domain.NewStorageError("resolve owner", err)
	}

	for _, owner := range owners {
		if owner == uid {
			return owner, nil
		}
	}
	for _, owner := range owners {
		if community.PublicID(owner) == uid {
			return owner, nil
		}
	}
	return "", domain.NotFoundError{Resource: "record"}
}

func (r *PostgresRecordRepository) ListAll(ctx context.Context) ([]domain.Record, error) {
	var rows []models.Record
	err := r.db.WithContext(ctx).Order("owner").Order("local_id").Find(&rows).Error
	if err != nil {
		return nil, domain.NewStorageError("list", err)
	}

	records := make([]domain.Record, 0, len(rows))
	for _, row := range rows {
		var upvoters []string
		if err := json.Unmarshal([]byte(row.Upvoters), &upvoters); err != nil {
			continue
		}
		if upvoters == nil {
			upvoters = []string{}
		}
		records = append(records, domain.Record{
			Owner:       row.Owner,
			LocalID:     row.LocalID,
			Upvoters:    upvoters,
			SubmittedAt: row.SubmittedAt,
			Payload:     json.RawMessage(row.Payload),
		})
	}
	return records, nil
}

var _ usecase.RecordRepository = (*PostgresRecordRepository)(nil)
