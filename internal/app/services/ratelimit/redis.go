package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/runlet-dev/runlet/pkg/logger"
)

// RedisLimiter is a fixed-window backend on Redis, for deployments that run
// more than one gateway replica. The window lives as a counter with a TTL.
type RedisLimiter struct {
	client *redis.Client
	prefix string
	log    *logger.Logger
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedis creates a limiter on the given client. Keys are namespaced with
// prefix (default "ratelimit").
func NewRedis(client *redis.Client, prefix string, log *logger.Logger) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	if log == nil {
		log = logger.NewDefault("ratelimit")
	}
	return &RedisLimiter{client: client, prefix: prefix, log: log}
}

func (l *RedisLimiter) key(routeID, identifier string) string {
	return l.prefix + ":" + key(routeID, identifier)
}

// Check increments the window counter, creating it with the window TTL on
// first use.
func (l *RedisLimiter) Check(ctx context.Context, identifier, routeID string, limit, windowSeconds int) (Decision, error) {
	k := l.key(routeID, identifier)
	window := time.Duration(windowSeconds) * time.Second

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.ExpireNX(ctx, k, window)
	ttl := pipe.TTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("redis rate limit check: %w", err)
	}

	count := int(incr.Val())
	remainingTTL := ttl.Val()
	if remainingTTL < 0 {
		// TTL was lost (for example after a FLUSHALL); restore the window so
		// the key cannot live forever.
		if err := l.client.Expire(ctx, k, window).Err(); err != nil {
			l.log.WithError(err).Warn("restore rate-limit ttl")
		}
		remainingTTL = window
	}

	now := time.Now()
	return decide(count, limit, now.Add(remainingTTL), now), nil
}

// Reset deletes the window counter.
func (l *RedisLimiter) Reset(ctx context.Context, identifier, routeID string) error {
	if err := l.client.Del(ctx, l.key(routeID, identifier)).Err(); err != nil {
		return fmt.Errorf("redis rate limit reset: %w", err)
	}
	return nil
}
