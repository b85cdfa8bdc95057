package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"
)

// Cache wraps the go-redis cache with pub/sub support for distributed invalidation.
type Cache struct {
	*cache.Cache
	rdb                 redis.UniversalClient
	refreshEventChannel string
}

// CacheConfig holds configuration for creating a new cache instance.
type CacheConfig struct {
	// Redis client to use for the cache. Required.
	Redis redis.UniversalClient
	// RefreshEventChannel is the name of the pub/sub channel for cache invalidation events.
	// Optional. Defaults to "authlink:cache_refresh".
	RefreshEventChannel string
	// LocalCacheSize is the maximum number of entries in the local cache.
	// Optional. Defaults to 1000.
	LocalCacheSize int
	// LocalCacheTTL is the time-to-live for entries in the local cache.
	// Optional. Defaults to 1 minute.
	LocalCacheTTL time.Duration
}

// NewCache creates a two-level cache. Local entries are dropped on every
// process when another one publishes a change for the key. The subscription
// ends with ctx.
func NewCache(ctx context.Context, cfg CacheConfig) (*Cache, error) {
	if cfg.Redis == nil {
		return nil, errors.New("redis client is required for cache")
	}

	refreshEventChannel := cfg.RefreshEventChannel
	if refreshEventChannel == "" {
		refreshEventChannel = "authlink:cache_refresh"
	}
	localCacheSize := cfg.LocalCacheSize
	if localCacheSize == 0 {
		localCacheSize = 1000
	}
	localCacheTTL := cfg.LocalCacheTTL
	if localCacheTTL == 0 {
		localCacheTTL = time.Minute
	}

	if err := Ping(ctx, cfg.Redis); err != nil {
		return nil, err
	}

	cacheInstance := &Cache{
		Cache: cache.New(&cache.Options{
			Redis:      cfg.Redis,
			LocalCache: cache.NewTinyLFU(localCacheSize, localCacheTTL),
		}),
		rdb:                 cfg.Redis,
		refreshEventChannel: refreshEventChannel,
	}

	pubsub := cfg.Redis.Subscribe(ctx, refreshEventChannel)
	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				slog.Error("error closing pubsub", "error", err)
			}
		}()
		slog.Info("subscribed to cache refresh event channel", "channel", refreshEventChannel)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				slog.Debug("cache refresh event received", "key", msg.Payload)
				cacheInstance.DeleteFromLocalCache(msg.Payload)
			case <-ctx.Done():
				return
			}
		}
	}()

	return cacheInstance, nil
}

func (c *Cache) publishCacheRefreshEvent(ctx context.Context, key string) error {
	return c.rdb.Publish(ctx, c.refreshEventChannel, key).Err()
}

// Delete removes a value from the cache and tells other processes to drop
// their local copy.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.Cache.Delete(ctx, key); err != nil {
		return err
	}
	return c.publishCacheRefreshEvent(ctx, key)
}
