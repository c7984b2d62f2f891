package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/usecase"
	"github.com/totegamma/community-server/internal/utils"
)

const activityFileExt = ".json"

// FileActivityRepository keeps one append-only JSON-lines file per identity
// under root. Recent reads the file from the end.
type FileActivityRepository struct {
	root      string
	locks     *utils.KeyedMutex
	chunkSize int
}

func NewFileActivityRepository(root string, chunkSize int) (*FileActivityRepository, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	if chunkSize <= 0 {
		chunkSize = utils.DefaultReverseChunkSize
	}
	return &FileActivityRepository{
		root:      root,
		locks:     utils.NewKeyedMutex(),
		chunkSize: chunkSize,
	}, nil
}

func (r *FileActivityRepository) logPath(identity string) string {
	return filepath.Join(r.root, identity+activityFileExt)
}

func (r *FileActivityRepository) Append(ctx context.Context, identity string, entry domain.ActivityEntry) error {
	if !community.IsValidIdentity(identity) {
		return domain.InvalidRequestError{Field: "sessionId", Reason: "is not a usable identity"}
	}

	line := make([]byte, 0, len(entry.Raw)+1)
	line = append(line, entry.Raw...)
	line = append(line, '\n')

	unlock := r.locks.Lock(identity)
	defer unlock()

	f, err := os.OpenFile(r.logPath(identity), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return domain.NewStorageError("append", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return domain.NewStorageError("append", err)
	}

	if _, err := f.Write(line); err != nil {
		// drop the partial line
		if terr := f.Truncate(info.Size()); terr != nil {
			slog.ErrorContext(
				ctx, "failed to roll back partial log line",
				slog.String("identity", identity),
				slog.String("error", terr.Error()),
				slog.String("module", "repository"),
			)
		}
		return domain.NewStorageError("append", err)
	}
	return nil
}

// Recent returns up to maxCount entries accepted by match, newest first.
// Lines that do not decode are skipped.
func (r *FileActivityRepository) Recent(ctx context.Context, identity string, maxCount int, match func(domain.ActivityEntry) bool) ([]domain.ActivityEntry, error) {
	if maxCount <= 0 || !community.IsValidIdentity(identity) {
		return nil, nil
	}

	f, err := os.Open(r.logPath(identity))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewStorageError("read log", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, domain.NewStorageError("read log", err)
	}

	var entries []domain.ActivityEntry
	scanner := utils.NewReverseLineScanner(f, info.Size(), r.chunkSize)
	for len(entries) < maxCount && scanner.Scan() {
		entry, err := domain.ParseActivityEntry(scanner.Bytes())
		if err != nil {
			continue
		}
		if match == nil || match(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, domain.NewStorageError("read log", err)
	}
	return entries, nil
}

type activeLog struct {
	identity string
	modTime  time.Time
}

// MostRecentlyActive returns the identities whose logs were modified most
// recently, newest first.
func (r *FileActivityRepository) MostRecentlyActive(ctx context.Context, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return nil, nil
	}

	entries, err := os.ReadDir(r.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.NewStorageError("list logs", err)
	}

	top := utils.NewTopK(maxCount, func(a, b activeLog) bool {
		if a.modTime.Equal(b.modTime) {
			return a.identity > b.identity
		}
		return a.modTime.Before(b.modTime)
	})
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, activityFileExt) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		top.Push(activeLog{
			identity: strings.TrimSuffix(name, activityFileExt),
			modTime:  info.ModTime(),
		})
	}

	sorted := top.Sorted()
	identities := make([]string, 0, len(sorted))
	for _, l := range sorted {
		identities = append(identities, l.identity)
	}
	return identities, nil
}

var _ usecase.ActivityRepository = (*FileActivityRepository)(nil)
