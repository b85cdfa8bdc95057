package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/poly-workshop/authlink/internal/infrastructure/oauth"
	"github.com/redis/go-redis/v9"
)

const payloadKeyPrefix = "authlink:oauth_payload:"

// NewRedisPayloadCache creates a Redis-backed payload cache shared by every
// process pointing at the same Redis.
func NewRedisPayloadCache(ttl time.Duration, rdb redis.UniversalClient) (oauth.PayloadCache, error) {
	if ttl <= 0 {
		ttl = oauth.DefaultPayloadTTL
	}
	if rdb == nil {
		return nil, errors.New("redis client is required for payload cache")
	}
	return &redisPayloadCache{rdb: rdb, ttl: ttl, prefix: payloadKeyPrefix}, nil
}

type redisPayloadCache struct {
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

func (c *redisPayloadCache) key(alias string) string {
	return c.prefix + alias
}

func (c *redisPayloadCache) Put(ctx context.Context, alias string, payload oauth.AuthorizationPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return c.rdb.Set(ctx, c.key(alias), data, c.ttl).Err()
}

func (c *redisPayloadCache) Get(ctx context.Context, alias string) (oauth.AuthorizationPayload, bool, error) {
	data, err := c.rdb.Get(ctx, c.key(alias)).Bytes()
	return decodePayload(data, err)
}

func (c *redisPayloadCache) Remove(ctx context.Context, alias string) error {
	return c.rdb.Del(ctx, c.key(alias)).Err()
}

// Take relies on GETDEL, so two callbacks can never both read the payload.
func (c *redisPayloadCache) Take(ctx context.Context, alias string) (oauth.AuthorizationPayload, bool, error) {
	data, err := c.rdb.GetDel(ctx, c.key(alias)).Bytes()
	return decodePayload(data, err)
}

func decodePayload(data []byte, err error) (oauth.AuthorizationPayload, bool, error) {
	if errors.Is(err, redis.Nil) {
		return oauth.AuthorizationPayload{}, false, nil
	}
	if err != nil {
		return oauth.AuthorizationPayload{}, false, err
	}
	var payload oauth.AuthorizationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return oauth.AuthorizationPayload{}, false, fmt.Errorf("decode payload: %w", err)
	}
	return payload, true, nil
}
