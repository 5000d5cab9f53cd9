// Package rediscache adds a read-through Redis cache in front of a catalog store.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
)

const (
	keyPrefix  = "zlingo:catalog:"
	defaultTTL = 5 * time.Minute
)

// ErrMiss is returned by a Backend when a key is absent.
var ErrMiss = errors.New("cache miss")

// Backend is the key-value surface the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisBackend adapts a go-redis client to Backend.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects using a redis:// URL.
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisBackend{client: redis.NewClient(opts)}, nil
}

// NewRedisBackendFromClient wraps an existing client.
func NewRedisBackendFromClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client}
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := b.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrMiss
	}
	return val, err
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

// Ping checks connectivity.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close releases the client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// Catalog caches successful lookups of the wrapped store. Misses are not
// cached, so new catalog entries become visible immediately. Cache failures are
// logged and the wrapped store answers instead.
type Catalog struct {
	next    catalog.Store
	backend Backend
	ttl     time.Duration
	logger  zerolog.Logger
}

var _ catalog.Store = (*Catalog)(nil)

// New wraps next with a cache stored in backend.
func New(next catalog.Store, backend Backend, ttl time.Duration, logger zerolog.Logger) *Catalog {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Catalog{
		next:    next,
		backend: backend,
		ttl:     ttl,
		logger:  logger.With().Str("component", "catalog_cache").Logger(),
	}
}

func (c *Catalog) BookByID(ctx context.Context, id int64) (catalog.Book, error) {
	return cached(ctx, c, idKey("book", id), func() (catalog.Book, error) { return c.next.BookByID(ctx, id) })
}

func (c *Catalog) UnitByID(ctx context.Context, id int64) (catalog.Unit, error) {
	return cached(ctx, c, idKey("unit", id), func() (catalog.Unit, error) { return c.next.UnitByID(ctx, id) })
}

func (c *Catalog) LessonByID(ctx context.Context, id int64) (catalog.Lesson, error) {
	return cached(ctx, c, idKey("lesson", id), func() (catalog.Lesson, error) { return c.next.LessonByID(ctx, id) })
}

func (c *Catalog) FindBookByTitle(ctx context.Context, title string) (catalog.Book, error) {
	return cached(ctx, c, titleKey("book", title), func() (catalog.Book, error) { return c.next.FindBookByTitle(ctx, title) })
}

func (c *Catalog) FindUnitByTitle(ctx context.Context, title string) (catalog.Unit, error) {
	return cached(ctx, c, titleKey("unit", title), func() (catalog.Unit, error) { return c.next.FindUnitByTitle(ctx, title) })
}

func (c *Catalog) FindLessonByTitle(ctx context.Context, title string) (catalog.Lesson, error) {
	return cached(ctx, c, titleKey("lesson", title), func() (catalog.Lesson, error) { return c.next.FindLessonByTitle(ctx, title) })
}

func (c *Catalog) Outline(ctx context.Context) (catalog.Outline, error) {
	return cached(ctx, c, keyPrefix+"outline", func() (catalog.Outline, error) { return c.next.Outline(ctx) })
}

func cached[T any](ctx context.Context, c *Catalog, key string, load func() (T, error)) (T, error) {
	raw, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		var value T
		if jsonErr := json.Unmarshal(raw, &value); jsonErr == nil {
			cacheLookups.WithLabelValues("hit").Inc()
			return value, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	case errors.Is(err, ErrMiss):
	default:
		cacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	cacheLookups.WithLabelValues("miss").Inc()

	value, err := load()
	if err != nil {
		return value, err
	}

	if data, err := json.Marshal(value); err == nil {
		if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
		}
	}
	return value, nil
}

func idKey(kind string, id int64) string {
	return keyPrefix + kind + ":id:" + strconv.FormatInt(id, 10)
}

func titleKey(kind, title string) string {
	return keyPrefix + kind + ":title:" + strings.ToLower(strings.TrimSpace(title))
}
