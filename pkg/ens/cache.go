package ens

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long a resolved TXT value is trusted.
const DefaultCacheTTL = 10 * time.Minute

// Cache is the subset of *redis.Client used by CachedSource.
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// NewRedisCache connects a Redis client for CachedSource.
func NewRedisCache(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// CachedSource memoizes TXT lookups in Redis. Missing records are cached as
// empty values. Cache failures are logged and fall through to Upstream; they
// never fail a lookup.
type CachedSource struct {
	Upstream TextSource
	Cache    Cache
	TTL      time.Duration
	Prefix   string
}

// NewCachedSource wraps upstream with a Redis-backed cache.
func NewCachedSource(upstream TextSource, cache Cache, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedSource{Upstream: upstream, Cache: cache, TTL: ttl, Prefix: "ens:txt:"}
}

func (s *CachedSource) Text(ctx context.Context, name, key string) (string, error) {
	ck := s.Prefix + name + "|" + key

	v, err := s.Cache.Get(ctx, ck).Result()
	switch {
	case err == nil:
		return v, nil
	case !errors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "ens: cache read failed, resolving upstream", "key", ck, "error", err)
	}

	v, err = s.Upstream.Text(ctx, name, key)
	if err != nil {
		return "", err
	}
	if err := s.Cache.Set(ctx, ck, v, s.TTL).Err(); err != nil {
		slog.WarnContext(ctx, "ens: cache write failed", "key", ck, "error", err)
	}
	return v, nil
}
