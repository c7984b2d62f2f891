package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/usecase"
)

const memcachedKeyPrefix = "utterances:"

// MemcachedCache shares replayed utterances between nodes. Failures are
// logged and treated as misses.
type MemcachedCache struct {
	mc  *memcache.Client
	ttl int32
}

func NewMemcachedCache(mc *memcache.Client, ttl time.Duration) *MemcachedCache {
	return &MemcachedCache{
		mc:  mc,
		ttl: int32(ttl / time.Second),
	}
}

// identities are arbitrary strings; memcached keys may not contain spaces
// or control characters.
func memcachedKey(identity string) string {
	h := xxh3.HashString128(identity)
	return fmt.Sprintf("%s%016x%016x", memcachedKeyPrefix, h.Hi, h.Lo)
}

func (m *MemcachedCache) Get(ctx context.Context, identity string) ([]domain.ActivityEntry, bool) {
	item, err := m.mc.Get(memcachedKey(identity))
	if err != nil {
		if err != memcache.ErrCacheMiss {
			m.warn(ctx, "get", err)
		}
		return nil, false
	}

	var lines []json.RawMessage
	if err := json.Unmarshal(item.Value, &lines); err != nil {
		m.warn(ctx, "decode", err)
		return nil, false
	}
	entries := make([]domain.ActivityEntry, 0, len(lines))
	for _, line := range lines {
		e, err := domain.ParseActivityEntry(line)
		if err != nil {
			m.warn(ctx, "decode", err)
			return nil, false
		}
		entries = append(entries, e)
	}
	return entries, true
}

func (m *MemcachedCache) Set(ctx context.Context, identity string, entries []domain.ActivityEntry) {
	if entries == nil {
		entries = []domain.ActivityEntry{}
	}
	value, err := json.Marshal(entries)
	if err != nil {
		m.warn(ctx, "encode", err)
		return
	}
	err = m.mc.Set(&memcache.Item{
		Key:        memcachedKey(identity),
		Value:      value,
		Expiration: m.ttl,
	})
	if err != nil {
		m.warn(ctx, "set", err)
	}
}

func (m *MemcachedCache) Invalidate(ctx context.Context, identity string) {
	err := m.mc.Delete(memcachedKey(identity))
	if err != nil && err != memcache.ErrCacheMiss {
		m.warn(ctx, "delete", err)
	}
}

func (m *MemcachedCache) warn(ctx context.Context, op string, err error) {
	slog.WarnContext(
		ctx, "utterance cache failure",
		slog.String("op", op),
		slog.String("error", err.Error()),
		slog.String("module", "cache"),
	)
}

var _ usecase.UtteranceCache = (*MemcachedCache)(nil)
