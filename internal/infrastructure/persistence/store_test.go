package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
)

// memoryTokenStore is an in-memory TokenStore that counts reads.
type memoryTokenStore struct {
	mu      sync.Mutex
	records map[string]domain.ServiceToken
	gets    int
	getErr  error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{records: map[string]domain.ServiceToken{}}
}

func (m *memoryTokenStore) Get(_ context.Context, alias string) (*domain.ServiceToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	record, ok := m.records[alias]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (m *memoryTokenStore) Save(_ context.Context, token *domain.ServiceToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = now
	}
	token.UpdatedAt = now
	m.records[token.Alias] = *token
	return nil
}

func (m *memoryTokenStore) Delete(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[alias]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, alias)
	return nil
}

func (m *memoryTokenStore) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func strPtr(s string) *string { return &s }

func sampleToken(alias string) *domain.ServiceToken {
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	return &domain.ServiceToken{
		Alias:        alias,
		AccessToken:  "access-" + alias,
		RefreshToken: strPtr("refresh-" + alias),
		TokenType:    "Bearer",
		ExpiresAt:    &expires,
	}
}

// storeContract exercises the TokenStore behavior every implementation shares.
func storeContract(t *testing.T, store domain.TokenStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := store.Get(ctx, "github"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get(absent) error = %v, want ErrNotFound", err)
	}

	first := sampleToken("github")
	if err := store.Save(ctx, first); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := store.Get(ctx, "github")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "access-github" || !got.HasRefreshToken() || *got.RefreshToken != "refresh-github" {
		t.Errorf("Get() = %+v, unexpected token fields", got)
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(*first.ExpiresAt) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, first.ExpiresAt)
	}

	second := &domain.ServiceToken{Alias: "github", AccessToken: "rotated", TokenType: "Bearer"}
	if err := store.Save(ctx, second); err != nil {
		t.Fatalf("Save(overwrite) error = %v", err)
	}
	got, err = store.Get(ctx, "github")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.AccessToken != "rotated" {
		t.Errorf("AccessToken = %q, want rotated", got.AccessToken)
	}
	if got.HasRefreshToken() {
		t.Error("overwrite should clear the refresh token")
	}
	if got.ExpiresAt != nil {
		t.Errorf("overwrite should clear expiry, got %v", got.ExpiresAt)
	}

	if err := store.Save(ctx, sampleToken("gitlab")); err != nil {
		t.Fatalf("Save(other) error = %v", err)
	}
	if err := store.Delete(ctx, "github"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, "github"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get(deleted) error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "github"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Delete(absent) error = %v, want ErrNotFound", err)
	}
	if _, err := store.Get(ctx, "gitlab"); err != nil {
		t.Errorf("Get(other) error = %v", err)
	}
}

func TestMemoryTokenStore_Contract(t *testing.T) {
	storeContract(t, newMemoryTokenStore())
}
