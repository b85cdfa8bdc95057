package oauth

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultPayloadTTL bounds how long an abandoned attempt is kept.
const DefaultPayloadTTL = 10 * time.Minute

const payloadCacheShards = 32

// AuthorizationPayload is the pending state of one linking attempt.
type AuthorizationPayload struct {
	ServiceAlias string  `json:"service_alias"`
	State        string  `json:"state"`
	CodeVerifier *string `json:"code_verifier,omitempty"`
}

// PayloadCache stores at most one pending payload per service alias.
// Absence is never an error.
type PayloadCache interface {
	// Put overwrites any pending payload for alias.
	Put(ctx context.Context, alias string, payload AuthorizationPayload) error
	Get(ctx context.Context, alias string) (AuthorizationPayload, bool, error)
	Remove(ctx context.Context, alias string) error
	// Take atomically returns and deletes the payload for alias.
	Take(ctx context.Context, alias string) (AuthorizationPayload, bool, error)
}

type payloadEntry struct {
	payload   AuthorizationPayload
	expiresAt time.Time
}

type payloadShard struct {
	mu      sync.Mutex
	entries map[string]payloadEntry
}

// MemoryPayloadCache is a process-local PayloadCache partitioned into
// independently locked shards.
type MemoryPayloadCache struct {
	ttl    time.Duration
	now    func() time.Time
	shards [payloadCacheShards]payloadShard
}

// NewMemoryPayloadCache creates an in-memory payload cache.
func NewMemoryPayloadCache(ttl time.Duration) *MemoryPayloadCache {
	return newMemoryPayloadCache(ttl, time.Now)
}

func newMemoryPayloadCache(ttl time.Duration, now func() time.Time) *MemoryPayloadCache {
	if ttl <= 0 {
		ttl = DefaultPayloadTTL
	}
	c := &MemoryPayloadCache{ttl: ttl, now: now}
	for i := range c.shards {
		c.shards[i].entries = make(map[string]payloadEntry)
	}
	return c
}

func (c *MemoryPayloadCache) shard(alias string) *payloadShard {
	return &c.shards[xxhash.Sum64String(alias)%payloadCacheShards]
}

// Put stores payload for alias, replacing any earlier attempt. Expired
// entries of other aliases are left to Sweep.
func (c *MemoryPayloadCache) Put(_ context.Context, alias string, payload AuthorizationPayload) error {
	s := c.shard(alias)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[alias] = payloadEntry{payload: payload, expiresAt: now.Add(c.ttl)}
	return nil
}

// Get returns the pending payload for alias unless it has expired.
func (c *MemoryPayloadCache) Get(_ context.Context, alias string) (AuthorizationPayload, bool, error) {
	s := c.shard(alias)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[alias]
	if !ok {
		return AuthorizationPayload{}, false, nil
	}
	if !now.Before(entry.expiresAt) {
		delete(s.entries, alias)
		return AuthorizationPayload{}, false, nil
	}
	return entry.payload, true, nil
}

// Remove evicts the payload for alias if present.
func (c *MemoryPayloadCache) Remove(_ context.Context, alias string) error {
	s := c.shard(alias)

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, alias)
	return nil
}

// Take returns the payload for alias and removes it under the same lock.
func (c *MemoryPayloadCache) Take(_ context.Context, alias string) (AuthorizationPayload, bool, error) {
	s := c.shard(alias)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[alias]
	if !ok {
		return AuthorizationPayload{}, false, nil
	}
	delete(s.entries, alias)

	if !now.Before(entry.expiresAt) {
		return AuthorizationPayload{}, false, nil
	}
	return entry.payload, true, nil
}

// Sweep drops every expired entry and returns how many were removed.
func (c *MemoryPayloadCache) Sweep() int {
	now := c.now()
	removed := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		removed += s.cleanupLocked(now)
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryPayloadCache) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (s *payloadShard) cleanupLocked(now time.Time) int {
	removed := 0
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}
