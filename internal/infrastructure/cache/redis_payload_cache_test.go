package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/poly-workshop/authlink/internal/infrastructure/oauth"
	"github.com/redis/go-redis/v9"
)

func newTestRedisPayloadCache(t *testing.T, ttl time.Duration) (oauth.PayloadCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	c, err := NewRedisPayloadCache(ttl, rdb)
	if err != nil {
		t.Fatalf("NewRedisPayloadCache() error = %v", err)
	}
	return c, mr
}

func TestNewRedisPayloadCache_RequiresClient(t *testing.T) {
	if _, err := NewRedisPayloadCache(time.Minute, nil); err == nil {
		t.Error("expected error for nil redis client")
	}
}

func TestRedisPayloadCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisPayloadCache(t, time.Minute)

	verifier := "verifier-2"
	if err := c.Put(ctx, "github", oauth.AuthorizationPayload{ServiceAlias: "github", State: "s1"}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Put(ctx, "github", oauth.AuthorizationPayload{ServiceAlias: "github", State: "s2", CodeVerifier: &verifier}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "github")
	if err != nil || !ok {
		t.Fatalf("Get() = %v, %v; want present", ok, err)
	}
	if got.State != "s2" || got.CodeVerifier == nil || *got.CodeVerifier != "verifier-2" {
		t.Errorf("Get() = %+v, want second payload", got)
	}
}

func TestRedisPayloadCache_NilVerifierStaysNil(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisPayloadCache(t, time.Minute)

	_ = c.Put(ctx, "plain", oauth.AuthorizationPayload{ServiceAlias: "plain", State: "s"})
	got, ok, err := c.Take(ctx, "plain")
	if err != nil || !ok {
		t.Fatalf("Take() = %v, %v; want present", ok, err)
	}
	if got.CodeVerifier != nil {
		t.Errorf("CodeVerifier = %q, want nil", *got.CodeVerifier)
	}
}

func TestRedisPayloadCache_TakeRemoves(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisPayloadCache(t, time.Minute)

	_ = c.Put(ctx, "github", oauth.AuthorizationPayload{ServiceAlias: "github", State: "s"})
	if _, ok, err := c.Take(ctx, "github"); err != nil || !ok {
		t.Fatalf("Take() = %v, %v; want present", ok, err)
	}
	if _, ok, err := c.Take(ctx, "github"); err != nil || ok {
		t.Fatalf("second Take() = %v, %v; want absent", ok, err)
	}
	if mr.Exists(payloadKeyPrefix + "github") {
		t.Error("key still present after Take")
	}
}

func TestRedisPayloadCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisPayloadCache(t, time.Minute)

	_ = c.Put(ctx, "github", oauth.AuthorizationPayload{ServiceAlias: "github", State: "s"})
	if ttl := mr.TTL(payloadKeyPrefix + "github"); ttl != time.Minute {
		t.Errorf("TTL = %v, want 1m", ttl)
	}

	mr.FastForward(time.Minute)
	if _, ok, err := c.Get(ctx, "github"); err != nil || ok {
		t.Errorf("Get() after expiry = %v, %v; want absent", ok, err)
	}
	if _, ok, err := c.Take(ctx, "github"); err != nil || ok {
		t.Errorf("Take() after expiry = %v, %v; want absent", ok, err)
	}
}

func TestRedisPayloadCache_RemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisPayloadCache(t, time.Minute)

	if err := c.Remove(ctx, "absent"); err != nil {
		t.Fatalf("Remove(absent) error = %v", err)
	}
	_ = c.Put(ctx, "github", oauth.AuthorizationPayload{ServiceAlias: "github", State: "s"})
	if err := c.Remove(ctx, "github"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if err := c.Remove(ctx, "github"); err != nil {
		t.Fatalf("second Remove() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "github"); ok {
		t.Error("expected entry to be absent after Remove")
	}
}

func TestRedisPayloadCache_ConcurrentTakeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestRedisPayloadCache(t, time.Minute)

	for round := 0; round < 10; round++ {
		_ = c.Put(ctx, "github", oauth.AuthorizationPayload{ServiceAlias: "github", State: "s"})

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, ok, err := c.Take(ctx, "github")
				if err != nil {
					t.Errorf("Take() error = %v", err)
					return
				}
				if ok {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()

		if got := wins.Load(); got != 1 {
			t.Fatalf("round %d: %d callers took the payload, want 1", round, got)
		}
	}
}

func TestRedisPayloadCache_CorruptValue(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestRedisPayloadCache(t, time.Minute)

	if err := mr.Set(payloadKeyPrefix+"github", "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok, err := c.Get(ctx, "github"); err == nil || ok {
		t.Errorf("Get() = %v, %v; want decode error", ok, err)
	}
}
