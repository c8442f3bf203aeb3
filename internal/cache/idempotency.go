package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"paygate/internal/clock"
)

const (
	statusInProgress = "IN_PROGRESS"

	InProgressExpiry = 2 * time.Minute
	CompletedExpiry  = 24 * time.Hour
)

var (
	ErrInProgress = errors.New("request with this idempotency key is in progress")
	ErrCompleted  = errors.New("request with this idempotency key already completed")
)

// IdempotencyStore guards inbound payment submissions. Begin claims key;
// Complete stores the response; Release frees the claim after a failure so
// the caller can retry.
type IdempotencyStore interface {
	// Begin returns ErrInProgress, or ErrCompleted with the stored response.
	Begin(ctx context.Context, key string) ([]byte, error)
	Complete(ctx context.Context, key string, response []byte) error
	Release(ctx context.Context, key string) error
}

// RedisStore keeps claims in Redis so every replica sees them.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "paygate:idem:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Begin(ctx context.Context, key string) ([]byte, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), statusInProgress, InProgressExpiry).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SETNX: %w", err)
	}
	if ok {
		return nil, nil
	}

	val, err := r.client.Get(ctx, r.key(key)).Result()
	switch {
	case errors.Is(err, redis.Nil):
		// expired between the two calls; claim again
		return r.Begin(ctx, key)
	case err != nil:
		return nil, fmt.Errorf("redis GET: %w", err)
	case val == statusInProgress:
		return nil, ErrInProgress
	}
	return []byte(val), ErrCompleted
}

func (r *RedisStore) Complete(ctx context.Context, key string, response []byte) error {
	return r.client.Set(ctx, r.key(key), response, CompletedExpiry).Err()
}

func (r *RedisStore) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

type memoryEntry struct {
	response []byte // nil while in progress
	expires  time.Time
}

// MemoryStore is the single-process fallback used when Redis is not
// configured.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	if c == nil {
		c = clock.System{}
	}
	return &MemoryStore{entries: make(map[string]memoryEntry), clock: c}
}

func (m *MemoryStore) Begin(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if e, ok := m.entries[key]; ok && now.Before(e.expires) {
		if e.response == nil {
			return nil, ErrInProgress
		}
		return e.response, ErrCompleted
	}
	m.entries[key] = memoryEntry{expires: now.Add(InProgressExpiry)}
	return nil, nil
}

func (m *MemoryStore) Complete(_ context.Context, key string, response []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if response == nil {
		response = []byte{}
	}
	m.entries[key] = memoryEntry{response: response, expires: m.clock.Now().Add(CompletedExpiry)}
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
