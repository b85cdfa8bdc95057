package persistence

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/poly-workshop/authlink/internal/domain"
)

const tokenCacheKeyPrefix = "authlink:service_token:"

// TokenCache is the subset of the two-level cache used by the cached store.
type TokenCache interface {
	Once(item *cache.Item) error
	Delete(ctx context.Context, key string) error
}

type cachedTokenStore struct {
	inner domain.TokenStore
	cache TokenCache
	ttl   time.Duration
}

// NewCachedTokenStore adds a read-through cache in front of inner. Writes go
// to inner first and then invalidate the cached entry.
func NewCachedTokenStore(inner domain.TokenStore, c TokenCache, ttl time.Duration) domain.TokenStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &cachedTokenStore{inner: inner, cache: c, ttl: ttl}
}

func tokenCacheKey(alias string) string {
	return tokenCacheKeyPrefix + alias
}

func (s *cachedTokenStore) Get(ctx context.Context, alias string) (*domain.ServiceToken, error) {
	var token domain.ServiceToken
	var innerErr error
	err := s.cache.Once(&cache.Item{
		Ctx:   ctx,
		Key:   tokenCacheKey(alias),
		Value: &token,
		TTL:   s.ttl,
		Do: func(*cache.Item) (any, error) {
			loaded, err := s.inner.Get(ctx, alias)
			innerErr = err
			return loaded, err
		},
	})
	if err == nil {
		return &token, nil
	}
	if innerErr != nil {
		return nil, innerErr
	}
	slog.WarnContext(ctx, "token cache unavailable, reading from store", "error", err, "alias", alias)
	return s.inner.Get(ctx, alias)
}

func (s *cachedTokenStore) Save(ctx context.Context, token *domain.ServiceToken) error {
	if err := s.inner.Save(ctx, token); err != nil {
		return err
	}
	s.invalidate(ctx, token.Alias)
	return nil
}

func (s *cachedTokenStore) Delete(ctx context.Context, alias string) error {
	err := s.inner.Delete(ctx, alias)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	s.invalidate(ctx, alias)
	return err
}

func (s *cachedTokenStore) invalidate(ctx context.Context, alias string) {
	if err := s.cache.Delete(ctx, tokenCacheKey(alias)); err != nil {
		slog.WarnContext(ctx, "failed to invalidate cached token", "error", err, "alias", alias)
	}
}
