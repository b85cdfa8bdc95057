package authlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/cache"
	"github.com/poly-workshop/authlink/internal/infrastructure/cache/redis"
	"github.com/poly-workshop/authlink/internal/infrastructure/oauth"
	"github.com/poly-workshop/authlink/internal/infrastructure/persistence"
	gormclient "github.com/poly-workshop/authlink/internal/infrastructure/persistence/gorm"
	"github.com/poly-workshop/authlink/internal/infrastructure/persistence/mongodb"
	"github.com/poly-workshop/authlink/internal/infrastructure/security"
	goredis "github.com/redis/go-redis/v9"
)

// New builds a Service and every backend named in cfg. The returned service
// owns the connections it opened; release them with Close.
func New(ctx context.Context, cfg Config) (*Service, error) {
	registry, err := NewRegistry(cfg.Services)
	if err != nil {
		return nil, fmt.Errorf("invalid service configuration: %w", err)
	}

	var cleanups []func(context.Context) error
	closeAll := func(ctx context.Context) error {
		var errs []error
		for i := len(cleanups) - 1; i >= 0; i-- {
			errs = append(errs, cleanups[i](ctx))
		}
		return errors.Join(errs...)
	}

	var rdb goredis.UniversalClient
	if cfg.RedisClient != nil && cfg.RedisClient.Enabled() {
		rdb, err = redis.NewRDB(*cfg.RedisClient)
		if err != nil {
			return nil, err
		}
		cleanups = append(cleanups, func(context.Context) error { return rdb.Close() })
	}

	payloads, err := buildPayloadCache(ctx, cfg, rdb)
	if err != nil {
		_ = closeAll(ctx)
		return nil, err
	}

	tokens, storeCleanup, err := buildTokenStore(ctx, cfg, rdb)
	if err != nil {
		_ = closeAll(ctx)
		return nil, err
	}
	cleanups = append(cleanups, storeCleanup)

	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}

	svc := NewService(cfg, Dependencies{
		Registry:   registry,
		Payloads:   payloads,
		Tokens:     tokens,
		Authorizer: oauth.NewAuthorizer(&http.Client{Timeout: timeout}),
	})
	svc.cleanup = closeAll
	slog.InfoContext(ctx, "authlink service ready", "services", registry.Aliases())
	return svc, nil
}

func buildPayloadCache(ctx context.Context, cfg Config, rdb goredis.UniversalClient) (oauth.PayloadCache, error) {
	ttl := cfg.StateExpiration
	if ttl <= 0 {
		ttl = DefaultStateExpiration
	}

	switch strings.ToLower(strings.TrimSpace(cfg.PayloadCacheType)) {
	case "", "memory":
		payloads := oauth.NewMemoryPayloadCache(ttl)
		go sweepPayloads(ctx, payloads, time.Minute)
		return payloads, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis is required when using the redis payload cache")
		}
		if err := redis.Ping(ctx, rdb); err != nil {
			return nil, err
		}
		return cache.NewRedisPayloadCache(ttl, rdb)
	default:
		return nil, fmt.Errorf("unsupported payload cache type: %s", cfg.PayloadCacheType)
	}
}

func sweepPayloads(ctx context.Context, payloads *oauth.MemoryPayloadCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := payloads.Sweep(); n > 0 {
				slog.Debug("expired authorization payloads removed", "count", n)
			}
		}
	}
}

func buildTokenStore(
	ctx context.Context,
	cfg Config,
	rdb goredis.UniversalClient,
) (domain.TokenStore, func(context.Context) error, error) {
	store, cleanup, err := buildBaseTokenStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	if rdb != nil && cfg.TokenCacheTTL > 0 {
		tokenCache, cacheErr := redis.NewCache(ctx, redis.CacheConfig{Redis: rdb})
		if cacheErr != nil {
			_ = cleanup(ctx)
			return nil, nil, fmt.Errorf("failed to initialize token cache: %w", cacheErr)
		}
		store = persistence.NewCachedTokenStore(store, tokenCache, cfg.TokenCacheTTL)
	}

	if strings.TrimSpace(cfg.SealingPassphrase) != "" {
		key, keyErr := security.DeriveSealingKey(cfg.SealingPassphrase, cfg.SealingSalt)
		if keyErr != nil {
			_ = cleanup(ctx)
			return nil, nil, fmt.Errorf("invalid sealing configuration: %w", keyErr)
		}
		sealer, sealErr := security.NewSealer(key)
		if sealErr != nil {
			_ = cleanup(ctx)
			return nil, nil, sealErr
		}
		store = persistence.NewSealedTokenStore(store, sealer)
	} else {
		slog.WarnContext(ctx, "token sealing is disabled, tokens are stored in plaintext")
	}
	return store, cleanup, nil
}

func buildBaseTokenStore(ctx context.Context, cfg Config) (domain.TokenStore, func(context.Context) error, error) {
	repoType := strings.ToLower(strings.TrimSpace(cfg.PersistenceType))
	switch repoType {
	case "mongo", "mongodb":
		if cfg.MongoClient == nil {
			return nil, nil, errors.New("mongo configuration is required when using the mongo token store")
		}
		client, err := mongodb.NewClient(ctx, *cfg.MongoClient)
		if err != nil {
			return nil, nil, err
		}
		store, err := persistence.NewMongoTokenStore(ctx, client, cfg.MongoClient.Database, cfg.MongoClient.Collection)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, nil, err
		}
		return store, func(cleanupCtx context.Context) error { return client.Disconnect(cleanupCtx) }, nil
	case "", "gorm", "postgres", "mysql", "sqlite":
		if cfg.GORMClient == nil {
			return nil, nil, errors.New("database configuration is required when using the gorm token store")
		}
		db, err := gormclient.NewDB(*cfg.GORMClient)
		if err != nil {
			return nil, nil, err
		}
		store, err := persistence.NewGormTokenStore(db)
		if err != nil {
			_ = gormclient.Close(db)
			return nil, nil, err
		}
		return store, func(context.Context) error { return gormclient.Close(db) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported token store type: %s", cfg.PersistenceType)
	}
}
