package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"inkwell/internal/observability"

	"github.com/redis/go-redis/v9"
)

// GetJSON attempts to get the key from Redis and unmarshal into dest.
// Returns (true, nil) if found and unmarshaled, (false, nil) if not found.
func GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	if client == nil {
		return false, nil
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "get")
	defer span.End()

	s, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if err := json.Unmarshal([]byte(s), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON marshals v and sets the key with TTL.
func SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	if client == nil {
		return nil
	}
	ctx, span := observability.GetTraceLayer().TraceRedisOperation(ctx, "set")
	defer span.End()

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := client.Set(ctx, key, b, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// CacheAside tries Redis first, on miss it calls fetch (which should populate dest),
// then stores the result in Redis with ttl. fetch must write into dest.
// Hit/miss counters are labeled with the key prefix ("user", "post").
func CacheAside(ctx context.Context, key string, dest any, ttl time.Duration, fetch func() error) error {
	resource := key
	if i := strings.IndexByte(key, ':'); i > 0 {
		resource = key[:i]
	}

	found, err := GetJSON(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		if monitor != nil {
			monitor.CacheHit(resource)
		}
		return nil
	}
	if monitor != nil {
		monitor.CacheMiss(resource)
	}

	// Fetch from source (DB)
	if err := fetch(); err != nil {
		return err
	}

	// Store into cache (best-effort)
	_ = SetJSON(ctx, key, dest, ttl)
	return nil
}
