// Package redis provides a factory for creating Redis connections.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds the configuration for Redis connections.
type Config struct {
	Urls     []string
	Password string
	DB       int
}

// Enabled reports whether any Redis host is configured.
func (c Config) Enabled() bool {
	return len(c.Urls) > 0
}

// NewRDB creates a new Redis client with the provided configuration.
//
// The client automatically detects the mode based on the number of URLs:
//   - Single URL: Creates a standard Redis client
//   - Multiple URLs: Creates a Redis cluster client (DB is ignored)
func NewRDB(cfg Config) (redis.UniversalClient, error) {
	if !cfg.Enabled() {
		return nil, errors.New("redis: no redis hosts configured")
	}
	if len(cfg.Urls) == 1 {
		return redis.NewClient(&redis.Options{
			Addr:     cfg.Urls[0],
			Password: cfg.Password,
			DB:       cfg.DB,
		}), nil
	}
	return redis.NewClusterClient(&redis.ClusterOptions{
		Addrs:    cfg.Urls,
		Password: cfg.Password,
	}), nil
}

// Ping checks connectivity with a bounded timeout.
func Ping(ctx context.Context, rdb redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
