package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/totegamma/community-server/internal/domain"
	"github.com/totegamma/community-server/internal/usecase"
)

// LocalCache keeps replayed utterances in process memory.
type LocalCache struct {
	c *cache.Cache
}

func NewLocalCache(ttl time.Duration) *LocalCache {
	return &LocalCache{
		c: cache.New(ttl, 2*ttl),
	}
}

func (l *LocalCache) Get(ctx context.Context, identity string) ([]domain.ActivityEntry, bool) {
	v, ok := l.c.Get(identity)
	if !ok {
		return nil, false
	}
	entries, ok := v.([]domain.ActivityEntry)
	return entries, ok
}

func (l *LocalCache) Set(ctx context.Context, identity string, entries []domain.ActivityEntry) {
	l.c.SetDefault(identity, entries)
}

func (l *LocalCache) Invalidate(ctx context.Context, identity string) {
	l.c.Delete(identity)
}

var _ usecase.UtteranceCache = (*LocalCache)(nil)
