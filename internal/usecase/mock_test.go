package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/totegamma/community-server"
	"github.com/totegamma/community-server/internal/domain"
)

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock(t time.Time) *stubClock { return &stubClock{now: t} }

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockRecordRepo struct {
	mu        sync.Mutex
	records   map[string][]domain.Record
	createErr error
}

func newMockRecordRepo() *mockRecordRepo {
	return &mockRecordRepo{records: map[string][]domain.Record{}}
}

func (m *mockRecordRepo) Create(ctx context.Context, owner string, payload json.RawMessage, submittedAt int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return 0, m.createErr
	}
	id := int64(len(m.records[owner]) + 1)
	m.records[owner] = append(m.records[owner], domain.Record{
		Owner:       owner,
		LocalID:     id,
		Upvoters:    []string{},
		SubmittedAt: submittedAt,
		Payload:     payload,
	})
	return id, nil
}

func (m *mockRecordRepo) Upvote(ctx context.Context, owner string, localID int64, voter string) (domain.UpvoteResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	records := m.records[owner]
	if localID < 1 || int(localID) > len(records) {
		return domain.UpvoteResult{}, domain.NotFoundError{Resource: "record"}
	}
	r := &records[localID-1]
	applied := false
	if !r.HasUpvoter(voter) {
		r.Upvoters = append(r.Upvoters, voter)
		applied = true
	}
	return domain.UpvoteResult{
		Owner:       owner,
		LocalID:     localID,
		Upvotes:     len(r.Upvoters),
		SubmittedAt: r.SubmittedAt,
		Applied:     applied,
	}, nil
}

func (m *mockRecordRepo) ResolveOwner(ctx context.Context, uid string, localID int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[uid]; ok {
		return uid, nil
	}
	for owner := range m.records {
		if community.PublicID(owner) == uid {
			return owner, nil
		}
	}
	return "", domain.NotFoundError{Resource: "record"}
}

func (m *mockRecordRepo) ListAll(ctx context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Record
	for _, records := range m.records {
		out = append(out, records...)
	}
	return out, nil
}

type mockActivityRepo struct {
	mu      sync.Mutex
	logs    map[string][]domain.ActivityEntry
	order   []string
	recents int
	// afterRecent runs once Recent has read the log, outside the lock
	afterRecent func()
}

func newMockActivityRepo() *mockActivityRepo {
	return &mockActivityRepo{logs: map[string][]domain.ActivityEntry{}}
}

func (m *mockActivityRepo) Append(ctx context.Context, identity string, entry domain.ActivityEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[identity] = append(m.logs[identity], entry)
	for i, id := range m.order {
		if id == identity {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.order = append([]string{identity}, m.order...)
	return nil
}

func (m *mockActivityRepo) Recent(ctx context.Context, identity string, maxCount int, match func(domain.ActivityEntry) bool) ([]domain.ActivityEntry, error) {
	m.mu.Lock()
	m.recents++
	var out []domain.ActivityEntry
	entries := m.logs[identity]
	for i := len(entries) - 1; i >= 0 && len(out) < maxCount; i-- {
		if match(entries[i]) {
			out = append(out, entries[i])
		}
	}
	hook := m.afterRecent
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *mockActivityRepo) MostRecentlyActive(ctx context.Context, maxCount int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) < maxCount {
		maxCount = len(m.order)
	}
	return append([]string(nil), m.order[:maxCount]...), nil
}

type mockCache struct {
	mu      sync.Mutex
	entries map[string][]domain.ActivityEntry
}

func newMockCache() *mockCache {
	return &mockCache{entries: map[string][]domain.ActivityEntry{}}
}

func (m *mockCache) Get(ctx context.Context, identity string) ([]domain.ActivityEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[identity]
	return v, ok
}

func (m *mockCache) Set(ctx context.Context, identity string, entries []domain.ActivityEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[identity] = entries
}

func (m *mockCache) Invalidate(ctx context.Context, identity string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, identity)
}

func (m *mockCache) has(identity string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[identity]
	return ok
}

type broadcastCall struct {
	room  string
	event community.Event
}

type mockBroadcaster struct {
	mu    sync.Mutex
	calls []broadcastCall
}

func (m *mockBroadcaster) Broadcast(ctx context.Context, room string, event community.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, broadcastCall{room: room, event: event})
	return nil
}

func (m *mockBroadcaster) last() broadcastCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[len(m.calls)-1]
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
