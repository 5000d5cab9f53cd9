package rediscache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-lingo/backend/internal/model/catalog"
)

type memoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (b *memoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	val, ok := b.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return val, nil
}

func (b *memoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = value
	b.ttls[key] = ttl
	return nil
}

// countingStore counts calls reaching the wrapped store.
type countingStore struct {
	catalog.Store
	calls int
}

func (s *countingStore) LessonByID(ctx context.Context, id int64) (catalog.Lesson, error) {
	s.calls++
	return s.Store.LessonByID(ctx, id)
}

func (s *countingStore) FindUnitByTitle(ctx context.Context, title string) (catalog.Unit, error) {
	s.calls++
	return s.Store.FindUnitByTitle(ctx, title)
}

func TestCatalogCachesHits(t *testing.T) {
	next := &countingStore{Store: catalog.NewMemoryStore(catalog.Seed())}
	backend := newMemoryBackend()
	c := New(next, backend, time.Minute, zerolog.Nop())
	ctx := context.Background()

	first, err := c.LessonByID(ctx, 4)
	require.NoError(t, err)
	second, err := c.LessonByID(ctx, 4)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, time.Minute, backend.ttls[keyPrefix+"lesson:id:4"])

	_, err = c.FindUnitByTitle(ctx, "Greetings")
	require.NoError(t, err)
	_, err = c.FindUnitByTitle(ctx, "  greetings ")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCatalogDoesNotCacheMisses(t *testing.T) {
	next := &countingStore{Store: catalog.NewMemoryStore(catalog.Seed())}
	c := New(next, newMemoryBackend(), time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := c.LessonByID(ctx, 999)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	_, err = c.LessonByID(ctx, 999)
	assert.ErrorIs(t, err, catalog.ErrNotFound)
	assert.Equal(t, 2, next.calls)
}

type brokenBackend struct{}

func (brokenBackend) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}

func (brokenBackend) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestCatalogFallsThroughOnBackendErrors(t *testing.T) {
	c := New(catalog.NewMemoryStore(catalog.Seed()), brokenBackend{}, 0, zerolog.Nop())

	outline, err := c.Outline(context.Background())
	require.NoError(t, err)
	assert.Equal(t, catalog.Seed(), outline)
}

func TestRedisBackendUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	backend := NewRedisBackendFromClient(client)
	t.Cleanup(func() { backend.Close() })

	c := New(catalog.NewMemoryStore(catalog.Seed()), backend, time.Minute, zerolog.Nop())
	book, err := c.BookByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Everyday English", book.Title)
}

func TestNewRedisBackendRejectsBadURL(t *testing.T) {
	_, err := NewRedisBackend("http://not-redis")
	assert.Error(t, err)
}
