package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// DistributedRateLimiter is a fixed-window counter in Redis, shared by every
// instance of the service
type DistributedRateLimiter struct {
	redis  *redis.Client
	config *RateLimitConfig
	prefix string
}

// NewDistributedRateLimiter creates a new Redis-backed rate limiter
func NewDistributedRateLimiter(redisClient *redis.Client, config *RateLimitConfig, prefix string) *DistributedRateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	if prefix == "" {
		prefix = "todoacl:ratelimit"
	}

	return &DistributedRateLimiter{
		redis:  redisClient,
		config: config,
		prefix: prefix,
	}
}

func (rl *DistributedRateLimiter) key(key string) string {
	return rl.prefix + ":" + key
}

func (rl *DistributedRateLimiter) limit() int64 {
	return int64(rl.config.RequestsPerWindow + rl.config.BurstSize)
}

// Allow counts an attempt in the current window. On a Redis error the
// attempt is allowed and the error returned.
func (rl *DistributedRateLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}

	// The first attempt of a window starts the expiry clock
	ttl := pttl.Val()
	if ttl < 0 {
		if err := rl.redis.PExpire(ctx, redisKey, rl.config.WindowDuration).Err(); err != nil {
			return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
		}
		ttl = rl.config.WindowDuration
	}

	count := incr.Val()
	remaining := rl.limit() - count
	if remaining < 0 {
		remaining = 0
	}
	if count > rl.limit() {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: int(remaining)}, nil
}

// Status reports the decision for key without counting an attempt
func (rl *DistributedRateLimiter) Status(ctx context.Context, key string) (Decision, error) {
	redisKey := rl.key(key)

	pipe := rl.redis.Pipeline()
	get := pipe.Get(ctx, redisKey)
	pttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}

	count, err := get.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Decision{Allowed: true}, fmt.Errorf("redis error: %w", err)
	}
	if count < rl.limit() {
		return Decision{Allowed: true, Remaining: int(rl.limit() - count)}, nil
	}

	ttl := pttl.Val()
	if ttl < 0 {
		ttl = rl.config.WindowDuration
	}
	return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
}
