package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Options are the connection settings shared by the rate limiter and the risk analyzer.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates and tests a new connection to Redis.
func NewClient(ctx context.Context, opts Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}
