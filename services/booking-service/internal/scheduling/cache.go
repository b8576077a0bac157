package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joaocarlostuc75/ciliosdeluxo/services/booking-service/internal/model"
)

// CachedProvider keeps provider results in Redis. Entries are namespaced by
// a generation counter; Invalidate bumps it, which orphans every entry at
// once and lets the TTL reclaim them.
type CachedProvider struct {
	next   Provider
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

func NewCachedProvider(next Provider, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{next: next, rdb: rdb, ttl: ttl, prefix: "booking:schedule", logger: logger}
}

// Invalidate drops every cached entry.
func (c *CachedProvider) Invalidate(ctx context.Context) error {
	return c.rdb.Incr(ctx, c.prefix+":gen").Err()
}

func (c *CachedProvider) OperatingHours(ctx context.Context) ([]model.OperatingHours, error) {
	return cached(ctx, c, "hours", func(ctx context.Context) ([]model.OperatingHours, error) {
		return c.next.OperatingHours(ctx)
	})
}

func (c *CachedProvider) AgendaBlocks(ctx context.Context, from, to string) ([]model.AgendaBlock, error) {
	return cached(ctx, c, "blocks:"+from+":"+to, func(ctx context.Context) ([]model.AgendaBlock, error) {
		return c.next.AgendaBlocks(ctx, from, to)
	})
}

func (c *CachedProvider) Services(ctx context.Context) ([]model.Service, error) {
	return cached(ctx, c, "services", func(ctx context.Context) ([]model.Service, error) {
		return c.next.Services(ctx)
	})
}

// Service is answered from the cached catalog.
func (c *CachedProvider) Service(ctx context.Context, id string) (model.Service, error) {
	services, err := c.Services(ctx)
	if err != nil {
		return model.Service{}, err
	}
	for _, s := range services {
		if s.ID == id {
			return s, nil
		}
	}
	return model.Service{}, ErrServiceNotFound
}

func (c *CachedProvider) Studio(ctx context.Context) (model.Studio, error) {
	return cached(ctx, c, "studio", func(ctx context.Context) (model.Studio, error) {
		return c.next.Studio(ctx)
	})
}

// cached falls through to load on any Redis problem; the cache never turns a
// readable database into an error.
func cached[T any](ctx context.Context, c *CachedProvider, name string, load func(context.Context) (T, error)) (T, error) {
	gen, err := c.rdb.Get(ctx, c.prefix+":gen").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.logger.Warn("schedule cache unavailable", "err", err)
		return load(ctx)
	}
	key := c.prefix + ":" + strconv.FormatInt(gen, 10) + ":" + name

	if raw, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return v, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("schedule cache read failed", "err", err, "key", key)
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("schedule cache write failed", "err", err, "key", key)
		}
	}
	return v, nil
}
