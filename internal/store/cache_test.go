package store

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus/hooks/test"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/notes"
)

// countingStore wraps a RecordStore and counts reads.
type countingStore struct {
	board.RecordStore
	lists  int
	counts int
}

func (c *countingStore) ListTasksByStatus(ctx context.Context, p board.Page) ([]model.Task, error) {
	c.lists++
	return c.RecordStore.ListTasksByStatus(ctx, p)
}

func (c *countingStore) CountByStatus(ctx context.Context, q string) (map[model.Status]int, error) {
	c.counts++
	return c.RecordStore.CountByStatus(ctx, q)
}

func newTestCache(t *testing.T) (*Cache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	backing := &countingStore{RecordStore: openTestSQLite(t)}
	logger, _ := test.NewNullLogger()
	return NewCache(backing, client, time.Minute, logger), backing, m
}

func TestCache_ServesRepeatReadsFromRedis(t *testing.T) {
	t.Parallel()

	c, backing, _ := newTestCache(t)
	ctx := context.Background()
	if _, err := c.CreateTask(ctx, model.Task{ID: "task-1", TargetName: "One", Notes: notes.Log{{Shape: notes.ShapeLegacy, Content: "A", CreatedAt: "10:00 01/01/2024"}}}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	p := board.Page{Status: model.StatusTodo, Limit: 20}
	first, err := c.ListTasksByStatus(ctx, p)
	if err != nil {
		t.Fatalf("ListTasksByStatus: %v", err)
	}
	second, err := c.ListTasksByStatus(ctx, p)
	if err != nil {
		t.Fatalf("ListTasksByStatus: %v", err)
	}
	if backing.lists != 1 {
		t.Fatalf("expected one backing read, got %d", backing.lists)
	}
	if len(second) != 1 || second[0].ID != first[0].ID || len(second[0].Notes) != 1 || second[0].Notes[0].Shape != notes.ShapeLegacy {
		t.Fatalf("cached page differs: %+v", second)
	}
	if !second[0].CreatedAt.Equal(first[0].CreatedAt) {
		t.Fatalf("cached timestamps differ")
	}

	for i := 0; i < 2; i++ {
		counts, err := c.CountByStatus(ctx, "")
		if err != nil || counts[model.StatusTodo] != 1 {
			t.Fatalf("CountByStatus: %+v err=%v", counts, err)
		}
	}
	if backing.counts != 1 {
		t.Fatalf("expected one backing count, got %d", backing.counts)
	}
}

func TestCache_WritesInvalidate(t *testing.T) {
	t.Parallel()

	c, backing, _ := newTestCache(t)
	ctx := context.Background()
	if _, err := c.CreateTask(ctx, model.Task{ID: "task-1"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if _, err := c.CountByStatus(ctx, ""); err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	before, _ := c.Generation(ctx)

	res, err := c.UpdateStatus(ctx, "task-1", model.StatusDone)
	if err != nil || !res.Success {
		t.Fatalf("UpdateStatus: %+v err=%v", res, err)
	}
	after, _ := c.Generation(ctx)
	if after != before+1 {
		t.Fatalf("expected generation bump, %d -> %d", before, after)
	}
	counts, err := c.CountByStatus(ctx, "")
	if err != nil || counts[model.StatusDone] != 1 || backing.counts != 2 {
		t.Fatalf("expected fresh counts: %+v backing=%d err=%v", counts, backing.counts, err)
	}

	// A rejected write does not invalidate.
	res, err = c.UpdateStatus(ctx, "task-missing", model.StatusDone)
	if err != nil || res.Success {
		t.Fatalf("expected rejection, got %+v err=%v", res, err)
	}
	if g, _ := c.Generation(ctx); g != after {
		t.Fatalf("rejected write bumped generation")
	}
}

func TestCache_InvalidateForcesRefill(t *testing.T) {
	t.Parallel()

	c, backing, _ := newTestCache(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := c.CountByStatus(ctx, ""); err != nil {
			t.Fatalf("CountByStatus: %v", err)
		}
	}
	if backing.counts != 1 {
		t.Fatalf("expected second read from cache, backing=%d", backing.counts)
	}
	c.Invalidate(ctx)
	if _, err := c.CountByStatus(ctx, ""); err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if backing.counts != 2 {
		t.Fatalf("expected refill after Invalidate, backing=%d", backing.counts)
	}
}

func TestCache_FallsBackWhenRedisIsDown(t *testing.T) {
	t.Parallel()

	c, backing, m := newTestCache(t)
	ctx := context.Background()
	if _, err := c.CreateTask(ctx, model.Task{ID: "task-1"}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	m.Close()

	for i := 0; i < 2; i++ {
		rows, err := c.ListTasksByStatus(ctx, board.Page{Status: model.StatusTodo, Limit: 5})
		if err != nil || len(rows) != 1 {
			t.Fatalf("expected backing store result, got %d rows err=%v", len(rows), err)
		}
	}
	if backing.lists != 2 {
		t.Fatalf("expected every read to reach the backing store, got %d", backing.lists)
	}
	res, err := c.Delete(ctx, "task-1")
	if err != nil || !res.Success {
		t.Fatalf("writes must not depend on redis: %+v err=%v", res, err)
	}
}
