package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Algorithm selects how requests are counted against a window.
type Algorithm string

const (
	FixedWindow   Algorithm = "fixed"
	SlidingWindow Algorithm = "sliding"
)

const keyPrefix = "ratelimit:"

// RateLimiterAdapter is a Redis implementation of the RateLimiterRepository port.
type RateLimiterAdapter struct {
	rdb       redis.Cmdable
	algorithm Algorithm
	now       func() time.Time
}

// NewRateLimiterAdapter wraps an open client. Unknown algorithms fall back to the fixed window.
func NewRateLimiterAdapter(rdb redis.Cmdable, algorithm Algorithm) *RateLimiterAdapter {
	if algorithm != SlidingWindow {
		algorithm = FixedWindow
	}
	return &RateLimiterAdapter{rdb: rdb, algorithm: algorithm, now: time.Now}
}

// IsAllowed reports whether one more request under key fits in the limit.
func (a *RateLimiterAdapter) IsAllowed(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if a.algorithm == SlidingWindow {
		return a.sliding(ctx, keyPrefix+key, limit, window)
	}
	return a.fixed(ctx, keyPrefix+key, limit, window)
}

func (a *RateLimiterAdapter) fixed(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	// Atomically increment the counter for the given key.
	count, err := a.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis INCR failed: %w", err)
	}

	// If this is the first request in the window, set the expiration time.
	if count == 1 {
		if err := a.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("redis EXPIRE failed: %w", err)
		}
	}

	return count <= int64(limit), nil
}

// sliding keeps one sorted-set member per request scored by its timestamp.
func (a *RateLimiterAdapter) sliding(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := a.now().UnixNano()
	windowStart := now - window.Nanoseconds()

	var card *redis.IntCmd
	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(now), Member: now})
		card = pipe.ZCard(ctx, key)
		pipe.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis sliding window failed: %w", err)
	}

	return card.Val() <= int64(limit), nil
}
