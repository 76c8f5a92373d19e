package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether another update from a user may be processed.
type Limiter interface {
	Allow(ctx context.Context, userID int64) (bool, error)
}

// Noop allows everything.
type Noop struct{}

func (Noop) Allow(context.Context, int64) (bool, error) { return true, nil }

// RedisLimiter counts updates per user in fixed windows.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisLimiter connects to the Redis instance at url.
func NewRedisLimiter(url string, limit int, window time.Duration) (*RedisLimiter, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	return NewRedisLimiterWithClient(redis.NewClient(opt), limit, window), nil
}

func NewRedisLimiterWithClient(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
		prefix: "regbot:rate:",
	}
}

// Ping checks the Redis connection.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Allow increments the counter of userID and reports whether it is still
// within the limit. The window starts with the first update. A counter left
// without an expiry is given one again, so it always resets.
func (l *RedisLimiter) Allow(ctx context.Context, userID int64) (bool, error) {
	key := l.key(userID)

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit %s: %w", key, err)
	}

	allowed := incr.Val() <= int64(l.limit)
	if ttl.Val() < 0 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return allowed, fmt.Errorf("rate limit expire %s: %w", key, err)
		}
	}

	return allowed, nil
}

func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) key(userID int64) string {
	return fmt.Sprintf("%s%d", l.prefix, userID)
}
