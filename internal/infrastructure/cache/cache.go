package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"modelscout/internal/config"
)

// Store is the cache collaborator used to short-circuit repeated full
// discovery and memoize per-model detail lookups. Values are JSON
// serialized by the caller-facing helpers.
type Store interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, value any, ttl time.Duration) error
}

// NewStore builds the configured cache backend.
func NewStore(cfg *config.Config) (Store, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		return &RedisStore{client: client}, nil
	case "memory":
		return NewMemoryStore(1024, cfg.DiscoveryCacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// MemoryStore keeps serialized entries in an expirable LRU. The LRU's
// TTL is the maximum entry lifetime; shorter per-entry TTLs are enforced
// with a stored deadline.
type MemoryStore struct {
	entries *lru.LRU[string, memoryEntry]
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

func NewMemoryStore(size int, maxTTL time.Duration) *MemoryStore {
	if size <= 0 {
		size = 1024
	}
	if maxTTL <= 0 {
		maxTTL = 10 * time.Minute
	}
	return &MemoryStore{
		entries: lru.NewLRU[string, memoryEntry](size, nil, maxTTL),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string, out any) (bool, error) {
	entry, ok := s.entries.Get(key)
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		s.entries.Remove(key)
		return false, nil
	}
	if err := json.Unmarshal(entry.payload, out); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

func (s *MemoryStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	entry := memoryEntry{payload: payload}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.entries.Add(key, entry)
	return nil
}

// RedisStore keeps serialized entries in Redis with native TTLs.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Get(ctx context.Context, key string, out any) (bool, error) {
	payload, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %q: %w", key, err)
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return false, fmt.Errorf("decode cache entry %q: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %q: %w", key, err)
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
