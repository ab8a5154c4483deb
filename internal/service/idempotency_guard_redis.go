package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/collabtask/authcore/internal/observability"
)

// IdempotencyGuard admits at most one execution per key inside a window.
// The marker is left to expire after success, so a repeat inside the window
// is still rejected; Clear is called on failure to allow an immediate retry.
type IdempotencyGuard interface {
	Begin(ctx context.Context, key string, window time.Duration) (bool, error)
	Clear(ctx context.Context, key string) error
}

type RedisIdempotencyGuard struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisIdempotencyGuard(client redis.UniversalClient, prefix string) *RedisIdempotencyGuard {
	if prefix == "" {
		prefix = "idempotent"
	}
	return &RedisIdempotencyGuard{
		client: client,
		prefix: prefix,
	}
}

// Begin atomically sets the marker if absent. false means a duplicate call
// landed inside the window.
func (g *RedisIdempotencyGuard) Begin(ctx context.Context, key string, window time.Duration) (bool, error) {
	admitted, err := g.client.SetNX(ctx, g.markerKey(key), "1", window).Result()
	if err != nil {
		observability.RecordIdempotencyEvent(ctx, "error")
		return false, fmt.Errorf("set idempotency marker %q: %w", key, err)
	}
	if admitted {
		observability.RecordIdempotencyEvent(ctx, "admitted")
	} else {
		observability.RecordIdempotencyEvent(ctx, "rejected")
	}
	return admitted, nil
}

// Clear removes the marker after a failed execution so the caller may retry
// without waiting out the window.
func (g *RedisIdempotencyGuard) Clear(ctx context.Context, key string) error {
	return g.client.Del(ctx, g.markerKey(key)).Err()
}

func (g *RedisIdempotencyGuard) markerKey(key string) string {
	return g.prefix + ":" + key
}
