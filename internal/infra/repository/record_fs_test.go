package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/totegamma/community-server/internal/domain"
)

func newTestRecordRepo(t *testing.T) (*FileRecordRepository, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "structs")
	repo, err := NewFileRecordRepository(root)
	if err != nil {
		t.Fatalf("new repository: %v", err)
	}
	return repo, root
}

func TestFileRecordCreateLayout(t *testing.T) {
	repo, root := newTestRecordRepo(t)
	ctx := context.Background()

	id, err := repo.Create(ctx, "alice-session", json.RawMessage("{\n  \"shape\": \"cube\"\n}"), 1700000000)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected id 1 got %d", id)
	}

	data, err := os.ReadFile(filepath.Join(root, "alice-session", "1.json"))
	if err != nil {
		t.Fatalf("read record file: %v", err)
	}
	expected := "[]\n1700000000\n{\"shape\":\"cube\"}"
	if string(data) != expected {
		t.Fatalf("unexpected file content %q", data)
	}

	id, _ = repo.Create(ctx, "alice-session", json.RawMessage(`2`), 1700000001)
	if id != 2 {
		t.Fatalf("expected id 2 got %d", id)
	}
	id, _ = repo.Create(ctx, "bob-session", json.RawMessage(`3`), 1700000002)
	if id != 1 {
		t.Fatalf("ids are per owner, got %d", id)
	}
}

func TestFileRecordCreateRejectsBadOwner(t *testing.T) {
	repo, _ := newTestRecordRepo(t)

	_, err := repo.Create(context.Background(), "../escape", json.RawMessage(`{}`), 1)
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request got %v", err)
	}
}

func TestFileRecordConcurrentCreate(t *testing.T) {
	repo, _ := newTestRecordRepo(t)
	ctx := context.Background()

	const n = 32
	ids := make(chan int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := repo.Create(ctx, "alice", json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)), 1)
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			ids <- id
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := map[int64]bool{}
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = true
	}
	for i := int64(1); i <= n; i++ {
		if !seen[i] {
			t.Fatalf("missing id %d", i)
		}
	}
}

func TestFileRecordUpvote(t *testing.T) {
	repo, _ := newTestRecordRepo(t)
	ctx := context.Background()
	repo.Create(ctx, "alice", json.RawMessage(`{}`), 1700000000)

	result, err := repo.Upvote(ctx, "alice", 1, "bob")
	if err != nil {
		t.Fatalf("upvote failed: %v", err)
	}
	if !result.Applied || result.Upvotes != 1 || result.SubmittedAt != 1700000000 {
		t.Fatalf("unexpected result %+v", result)
	}

	result, err = repo.Upvote(ctx, "alice", 1, "bob")
	if err != nil {
		t.Fatalf("second upvote failed: %v", err)
	}
	if result.Applied || result.Upvotes != 1 {
		t.Fatalf("repeated upvote must not apply: %+v", result)
	}

	_, err = repo.Upvote(ctx, "alice", 7, "bob")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestFileRecordConcurrentUpvotes(t *testing.T) {
	repo, _ := newTestRecordRepo(t)
	ctx := context.Background()
	repo.Create(ctx, "alice", json.RawMessage(`{"k":"v"}`), 1700000000)

	const n = 24
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := repo.Upvote(ctx, "alice", 1, fmt.Sprintf("voter-%d", i)); err != nil {
				t.Errorf("upvote failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	records, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 1 || len(records[0].Upvoters) != n {
		t.Fatalf("expected %d upvoters got %+v", n, records)
	}
	if string(records[0].Payload) != `{"k":"v"}` {
		t.Fatalf("payload changed: %s", records[0].Payload)
	}
}

func TestFileRecordResolveOwner(t *testing.T) {
	repo, _ := newTestRecordRepo(t)
	ctx := context.Background()
	repo.Create(ctx, "abcdef1234567890", json.RawMessage(`{}`), 1)

	owner, err := repo.ResolveOwner(ctx, "abcdef12", 1)
	if err != nil || owner != "abcdef1234567890" {
		t.Fatalf("resolve by public id: %q %v", owner, err)
	}
	owner, err = repo.ResolveOwner(ctx, "abcdef1234567890", 1)
	if err != nil || owner != "abcdef1234567890" {
		t.Fatalf("resolve by identity: %q %v", owner, err)
	}
	if _, err := repo.ResolveOwner(ctx, "abcdef12", 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found got %v", err)
	}
}

func TestFileRecordListAllSkipsMalformed(t *testing.T) {
	repo, root := newTestRecordRepo(t)
	ctx := context.Background()
	repo.Create(ctx, "bob", json.RawMessage(`"b1"`), 2)
	repo.Create(ctx, "alice", json.RawMessage(`"a1"`), 1)
	repo.Create(ctx, "alice", json.RawMessage(`"a2"`), 3)

	// files written by an older server keep a trailing newline
	legacy := "[\"carol\"]\n1600000000\n{\"legacy\":true}\n"
	os.MkdirAll(filepath.Join(root, "dave"), 0o755)
	os.WriteFile(filepath.Join(root, "dave", "1.json"), []byte(legacy), 0o644)
	os.WriteFile(filepath.Join(root, "dave", "2.json"), []byte("[]\n12\n"), 0o644)
	os.WriteFile(filepath.Join(root, "dave", "notes.txt"), []byte("ignored"), 0o644)

	records, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}

	var got []string
	for _, r := range records {
		got = append(got, fmt.Sprintf("%s/%d", r.Owner, r.LocalID))
	}
	if strings.Join(got, ",") != "alice/1,alice/2,bob/1,dave/1" {
		t.Fatalf("unexpected records %v", got)
	}
	last := records[3]
	if last.SubmittedAt != 1600000000 || len(last.Upvoters) != 1 || last.Upvoters[0] != "carol" {
		t.Fatalf("unexpected legacy record %+v", last)
	}
}

func TestFileRecordListAllEmpty(t *testing.T) {
	repo, _ := newTestRecordRepo(t)

	records, err := repo.ListAll(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no records got %d", len(records))
	}
}
