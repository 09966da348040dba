package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache.
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted.
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// scanBatch is the COUNT hint used while scanning for invalidation.
const scanBatch = 100

// Store keeps cache entries in Redis.
type Store struct {
	redis *redis.Client
}

// NewStore creates a Redis-backed store.
func NewStore(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{redis: redisClient}
}

// Get retrieves an entry. Returns ErrCacheMiss if the key is absent or expired.
func (s *Store) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := s.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores an entry until its Expires time. Expired entries are ignored.
func (s *Store) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (s *Store) Delete(ctx context.Context, key Key) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// UpdateTTL moves the expiry of an existing entry, e.g. after a 304 response.
func (s *Store) UpdateTTL(ctx context.Context, key Key, expires time.Time) error {
	entry, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	entry.Expires = expires
	return s.Set(ctx, key, entry)
}

// InvalidatePath removes every entry for path and the paths below it, across all
// query strings, within scope. It returns the number of removed keys.
func (s *Store) InvalidatePath(ctx context.Context, path, scope string) (int, error) {
	if scope == "" {
		scope = "anon"
	}
	prefix := pathPrefix(scope, path)

	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, prefix+"*", scanBatch).Result()
		if err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
			return removed, fmt.Errorf("redis scan: %w", err)
		}

		matched := keys[:0]
		for _, k := range keys {
			if k == prefix || strings.HasPrefix(k, prefix+"?") || strings.HasPrefix(k, prefix+"/") {
				matched = append(matched, k)
			}
		}
		if len(matched) > 0 {
			n, err := s.redis.Del(ctx, matched...).Result()
			if err != nil {
				CacheErrors.WithLabelValues("invalidate").Inc()
				return removed, fmt.Errorf("redis del: %w", err)
			}
			removed += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	Invalidations.Add(float64(removed))
	return removed, nil
}
