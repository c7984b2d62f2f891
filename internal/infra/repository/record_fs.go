package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/usecase"
	"github.com/totegamma/community-server/internal/utils"
)

const recordFileExt = ".json"

// FileRecordRepository stores records as files:
//
//	<root>/
//	  <owner>/
//	    <localId>.json
//
// Each file holds three lines: the JSON array of upvoters, the submission
// timestamp, and the compact JSON payload. Files are replaced atomically so a
// reader sees either the old or the new record.
type FileRecordRepository struct {
	root  string
	locks *utils.KeyedMutex
}

func NewFileRecordRepository(root string) (*FileRecordRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create structs directory: %w", err)
	}
	return &FileRecordRepository{
		root:  root,
		locks: utils.NewKeyedMutex(),
	}, nil
}

func (r *FileRecordRepository) recordPath(owner string, localID int64) string {
	return filepath.Join(r.root, owner, strconv.FormatInt(localID, 10)+recordFileExt)
}

func (r *FileRecordRepository) Create(ctx context.Context, owner string, payload json.RawMessage, submittedAt int64) (int64, error) {
	if !community.IsValidIdentity(owner) {
		return 0, domain.InvalidRequestError{Field: "sessionId", Reason: "is not a usable identity"}
	}

	unlock := r.locks.Lock("owner:" + owner)
	defer unlock()

	dir := filepath.Join(r.root, owner)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, domain.NewStorageError("create", err)
	}

	ids, err := listRecordIDs(dir)
	if err != nil {
		return 0, domain.NewStorageError("create", err)
	}
	localID := int64(1)
	if len(ids) > 0 {
		localID = ids[len(ids)-1] + 1
	}

	data, err := encodeRecord([]string{}, submittedAt, payload)
	if err != nil {
		return 0, domain.InvalidRequestError{Field: "struct", Reason: "is not valid JSON"}
	}

	if err := writeFileAtomic(r.recordPath(owner, localID), data); err != nil {
		return 0, domain.NewStorageError("create", err)
	}
	return localID, nil
}

func (r *FileRecordRepository) Upvote(ctx context.Context, owner string, localID int64, voter string) (domain.UpvoteResult, error) {
	if !community.IsValidIdentity(owner) {
		return domain.UpvoteResult{}, domain.NotFoundError{Resource: "record"}
	}

	path := r.recordPath(owner, localID)
	unlock := r.locks.Lock("record:" + path)
	defer unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.UpvoteResult{}, domain.NotFoundError{Resource: "record"}
		}
		return domain.UpvoteResult{}, domain.NewStorageError("upvote", err)
	}

	record, err := decodeRecord(data)
	if err != nil {
		return domain.UpvoteResult{}, domain.NewStorageError("upvote", errors.Wrap(err, path))
	}

	result := domain.UpvoteResult{
		Owner:       owner,
		LocalID:     localID,
		Upvotes:     len(record.Upvoters),
		SubmittedAt: record.SubmittedAt,
	}
	if record.HasUpvoter(voter) {
		return result, nil
	}

	upvoters := append(record.Upvoters, voter)
	data, err = encodeRecord(upvoters, record.SubmittedAt, record.Payload)
	if err != nil {
		return domain.UpvoteResult{}, domain.NewStorageError("upvote", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return domain.UpvoteResult{}, domain.NewStorageError("upvote", err)
	}

	result.Upvotes = len(upvoters)
	result.Applied = true
	return result, nil
}

func (r *FileRecordRepository) ResolveOwner(ctx context.Context, uid string, localID int64) (string, error) {
	if community.IsValidIdentity(uid) {
		if _, err := os.Stat(r.recordPath(uid, localID)); err == nil {
			return uid, nil
		}
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		return "", domain.NewStorageError("resolve owner", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || community.PublicID(entry.Name()) != uid {
			continue
		}
		if _, err := os.Stat(r.recordPath(entry.Name(), localID)); err == nil {
			return entry.Name(), nil
		}
	}
	return "", domain.NotFoundError{Resource: "record"}
}

// ListAll returns every record, owners in directory order and local ids
// ascending. Files that are not three-line records are skipped.
func (r *FileRecordRepository) ListAll(ctx context.Context) ([]domain.Record, error) {
	owners, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewStorageError("list", err)
	}

	var records []domain.Record
	for _, owner := range owners {
		if !owner.IsDir() {
			continue
		}
		ids, err := listRecordIDs(filepath.Join(r.root, owner.Name()))
		if err != nil {
			return nil, domain.NewStorageError("list", err)
		}
		for _, id := range ids {
			path := r.recordPath(owner.Name(), id)
			data, err := os.ReadFile(path)
			if err != nil {
				if os.IsNotExist(err) {
					continue
				}
				return nil, domain.NewStorageError("list", err)
			}
			record, err := decodeRecord(data)
			if err != nil {
				slog.WarnContext(
					ctx, "Skipping malformed record",
					slog.String("path", path),
					slog.String("error", err.Error()),
					slog.String("module", "repository"),
				)
				continue
			}
			record.Owner = owner.Name()
			record.LocalID = id
			records = append(records, record)
		}
	}
	return records, nil
}

func listRecordIDs(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordFileExt) {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSuffix(name, recordFileExt), 10, 64)
		if err != nil || id < 1 {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

func encodeRecord(upvoters []string, submittedAt int64, payload json.RawMessage) ([]byte, error) {
	if upvoters == nil {
		upvoters = []string{}
	}
	ups, err := json.Marshal(upvoters)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(ups)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatInt(submittedAt, 10))
	buf.WriteByte('\n')
	if err := json.Compact(&buf, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (domain.Record, error) {
	lines := bytes.Split(bytes.TrimSuffix(data, []byte{'\n'}), []byte{'\n'})
	if len(lines) != 3 {
		return domain.Record{}, fmt.Errorf("expected 3 lines, got %d", len(lines))
	}

	var upvoters []string
	if err := json.Unmarshal(lines[0], &upvoters); err != nil {
		return domain.Record{}, errors.Wrap(err, "invalid upvoters line")
	}
	if upvoters == nil {
		upvoters = []string{}
	}

	var ts json.Number
	if err := json.Unmarshal(bytes.TrimSpace(lines[1]), &ts); err != nil {
		return domain.Record{}, errors.Wrap(err, "invalid timestamp line")
	}
	submittedAt, err := ts.Int64()
	if err != nil {
		f, ferr := ts.Float64()
		if ferr != nil {
			return domain.Record{}, errors.Wrap(err, "invalid timestamp line")
		}
		submittedAt = int64(f)
	}

	payload := bytes.TrimSpace(lines[2])
	if !json.Valid(payload) {
		return domain.Record{}, fmt.Errorf("invalid payload line")
	}

	return domain.Record{
		Upvoters:    upvoters,
		SubmittedAt: submittedAt,
		Payload:     json.RawMessage(payload),
	}, nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

var _ usecase.RecordRepository = (*FileRecordRepository)(nil)
