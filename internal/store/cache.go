package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"caseboard/internal/board"
	"caseboard/internal/model"
	"caseboard/internal/notes"
)

const (
	DefaultCacheTTL    = 5 * time.Minute
	defaultCachePrefix = "cb:"
)

// Cache is a read-through cache for list pages and counts. Keys carry a
// generation number; any successful write bumps it, so readers never see a
// page from before their own write.
type Cache struct {
	next   board.RecordStore
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	log    log.FieldLogger
}

var _ board.RecordStore = (*Cache)(nil)

func NewCache(next board.RecordStore, client *redis.Client, ttl time.Duration, logger log.FieldLogger) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{next: next, redis: client, ttl: ttl, prefix: defaultCachePrefix, log: logger}
}

func (c *Cache) genKey() string { return c.prefix + "gen" }

// generation returns the current generation, or ok=false when redis cannot
// be used right now.
func (c *Cache) generation(ctx context.Context) (string, bool) {
	v, err := c.redis.Get(ctx, c.genKey()).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "0", true
	case err != nil:
		c.log.WithError(err).Warn("cache unavailable")
		return "", false
	default:
		return v, true
	}
}

// Invalidate drops every cached read. Use it after writing to the wrapped
// store directly, e.g. a bulk import.
func (c *Cache) Invalidate(ctx context.Context) { c.bump(ctx) }

func (c *Cache) bump(ctx context.Context) {
	if err := c.redis.Incr(ctx, c.genKey()).Err(); err != nil {
		c.log.WithError(err).Warn("cache invalidation failed")
	}
}

// cached returns the value stored at key, or calls fill and stores its result.
func cached[T any](ctx context.Context, c *Cache, key string, fill func() (T, error)) (T, error) {
	if raw, err := c.redis.Get(ctx, key).Bytes(); err == nil {
		var out T
		if err := sonic.Unmarshal(raw, &out); err == nil {
			return out, nil
		}
		c.log.WithField("key", key).Warn("dropping undecodable cache entry")
	} else if !errors.Is(err, redis.Nil) {
		c.log.WithError(err).WithField("key", key).Warn("cache read failed")
	}

	v, err := fill()
	if err != nil {
		return v, err
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache encode failed")
		return v, nil
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache write failed")
	}
	return v, nil
}

func (c *Cache) ListTasksByStatus(ctx context.Context, p board.Page) ([]model.Task, error) {
	gen, ok := c.generation(ctx)
	if !ok {
		return c.next.ListTasksByStatus(ctx, p)
	}
	key := fmt.Sprintf("%slist:%s:%s:%d:%d:%s", c.prefix, gen, p.Status.Normalize(), p.Offset, p.Limit, p.Query)
	return cached(ctx, c, key, func() ([]model.Task, error) {
		return c.next.ListTasksByStatus(ctx, p)
	})
}

func (c *Cache) CountByStatus(ctx context.Context, query string) (map[model.Status]int, error) {
	gen, ok := c.generation(ctx)
	if !ok {
		return c.next.CountByStatus(ctx, query)
	}
	key := c.prefix + "counts:" + gen + ":" + query
	return cached(ctx, c, key, func() (map[model.Status]int, error) {
		return c.next.CountByStatus(ctx, query)
	})
}

func (c *Cache) GetTask(ctx context.Context, id string) (model.Task, error) {
	return c.next.GetTask(ctx, id)
}

func (c *Cache) CreateTask(ctx context.Context, t model.Task) (model.Task, error) {
	created, err := c.next.CreateTask(ctx, t)
	if err == nil {
		c.bump(ctx)
	}
	return created, err
}

func (c *Cache) wrote(ctx context.Context, res board.Result, err error) (board.Result, error) {
	if err == nil && res.Success {
		c.bump(ctx)
	}
	return res, err
}

func (c *Cache) UpdateTask(ctx context.Context, t model.Task) (board.Result, error) {
	res, err := c.next.UpdateTask(ctx, t)
	return c.wrote(ctx, res, err)
}

func (c *Cache) UpdateStatus(ctx context.Context, id string, st model.Status) (board.Result, error) {
	res, err := c.next.UpdateStatus(ctx, id, st)
	return c.wrote(ctx, res, err)
}

func (c *Cache) Delete(ctx context.Context, id string) (board.Result, error) {
	res, err := c.next.Delete(ctx, id)
	return c.wrote(ctx, res, err)
}

func (c *Cache) ReplaceNotes(ctx context.Context, id string, l notes.Log) (board.Result, error) {
	res, err := c.next.ReplaceNotes(ctx, id, l)
	return c.wrote(ctx, res, err)
}

func (c *Cache) SetAttachments(ctx context.Context, id string, atts []model.Attachment) (board.Result, error) {
	res, err := c.next.SetAttachments(ctx, id, atts)
	return c.wrote(ctx, res, err)
}

// Generation is exposed for diagnostics.
func (c *Cache) Generation(ctx context.Context) (int64, error) {
	v, err := c.redis.Get(ctx, c.genKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
