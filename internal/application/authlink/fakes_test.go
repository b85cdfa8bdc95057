package authlink

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/oauth"
)

type exchangeCall struct {
	code         string
	redirectURI  string
	codeVerifier *string
}

// fakeAuthorizer builds real authorize URLs and scripted token responses.
type fakeAuthorizer struct {
	urls *oauth.Authorizer

	mu           sync.Mutex
	exchanges    []exchangeCall
	exchangeRes  domain.AuthorizationResult
	exchangeErr  error
	refreshRes   domain.AuthorizationResult
	refreshErr   error
	refreshCalls atomic.Int32
	refreshGate  chan struct{}
	refreshEnter chan struct{}
	ccRes        domain.AuthorizationResult
	ccErr        error
	revokeErr    error
	revoked      []string
	apiResponse  oauth.APIResponse
	apiErr       error
	apiTokenSeen string
}

func newFakeAuthorizer() *fakeAuthorizer {
	return &fakeAuthorizer{
		urls:        oauth.NewAuthorizer(nil),
		exchangeRes: domain.AuthorizationResult{
			Success:      true,
			AccessToken:  "gho_access",
			RefreshToken: "ghr_refresh",
			TokenType:    "Bearer",
		},
	}
}

func (f *fakeAuthorizer) AuthCodeURL(svc domain.ServiceDefinition, redirectURI, state string, pkce *oauth.PKCE) string {
	return f.urls.AuthCodeURL(svc, redirectURI, state, pkce)
}

func (f *fakeAuthorizer) Exchange(
	_ context.Context,
	_ domain.ServiceDefinition,
	code, redirectURI string,
	codeVerifier *string,
) (domain.AuthorizationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchanges = append(f.exchanges, exchangeCall{code: code, redirectURI: redirectURI, codeVerifier: codeVerifier})
	return f.exchangeRes, f.exchangeErr
}

func (f *fakeAuthorizer) exchangeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.exchanges)
}

func (f *fakeAuthorizer) Refresh(_ context.Context, _ domain.ServiceDefinition, _ string) (domain.AuthorizationResult, error) {
	f.refreshCalls.Add(1)
	if f.refreshEnter != nil {
		f.refreshEnter <- struct{}{}
	}
	if f.refreshGate != nil {
		<-f.refreshGate
	}
	return f.refreshRes, f.refreshErr
}

func (f *fakeAuthorizer) ClientCredentials(_ context.Context, _ domain.ServiceDefinition) (domain.AuthorizationResult, error) {
	return f.ccRes, f.ccErr
}

func (f *fakeAuthorizer) Revoke(_ context.Context, svc domain.ServiceDefinition, _ *domain.ServiceToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeErr != nil {
		return f.revokeErr
	}
	f.revoked = append(f.revoked, svc.Alias)
	return nil
}

func (f *fakeAuthorizer) SendAPIRequest(
	_ context.Context,
	_ domain.ServiceDefinition,
	token *domain.ServiceToken,
	_ string,
) (oauth.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apiTokenSeen = token.AccessToken
	return f.apiResponse, f.apiErr
}

// spyPayloadCache records every call made against the wrapped cache.
type spyPayloadCache struct {
	inner oauth.PayloadCache

	mu    sync.Mutex
	calls []string
}

func newSpyPayloadCache() *spyPayloadCache {
	return &spyPayloadCache{inner: oauth.NewMemoryPayloadCache(time.Minute)}
}

func (s *spyPayloadCache) record(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, op)
}

func (s *spyPayloadCache) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *spyPayloadCache) Put(ctx context.Context, alias string, payload oauth.AuthorizationPayload) error {
	s.record("put")
	return s.inner.Put(ctx, alias, payload)
}

func (s *spyPayloadCache) Get(ctx context.Context, alias string) (oauth.AuthorizationPayload, bool, error) {
	s.record("get")
	return s.inner.Get(ctx, alias)
}

func (s *spyPayloadCache) Remove(ctx context.Context, alias string) error {
	s.record("remove")
	return s.inner.Remove(ctx, alias)
}

func (s *spyPayloadCache) Take(ctx context.Context, alias string) (oauth.AuthorizationPayload, bool, error) {
	s.record("take")
	return s.inner.Take(ctx, alias)
}

// memoryTokenStore is an in-memory TokenStore with injectable failures.
type memoryTokenStore struct {
	mu        sync.Mutex
	records   map[string]domain.ServiceToken
	saves     int
	saveErr   error
	deleteErr error
}

func newMemoryTokenStore() *memoryTokenStore {
	return &memoryTokenStore{records: map[string]domain.ServiceToken{}}
}

func (m *memoryTokenStore) Get(_ context.Context, alias string) (*domain.ServiceToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.records[alias]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &record, nil
}

func (m *memoryTokenStore) Save(_ context.Context, token *domain.ServiceToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	token.UpdatedAt = time.Now().UTC()
	m.records[token.Alias] = *token
	return nil
}

func (m *memoryTokenStore) Delete(_ context.Context, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.records[alias]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, alias)
	return nil
}

func (m *memoryTokenStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

var errBoom = errors.New("boom")

func strPtr(s string) *string { return &s }

func testServices() []domain.ServiceDefinition {
	return []domain.ServiceDefinition{
		{
			Alias:        "github",
			Provider:     domain.ProviderGitHub,
			ClientID:     "gh-client",
			ClientSecret: "gh-secret",
			Scopes:       []string{"repo"},
			UsePKCE:      true,
		},
		{
			Alias:        "plain",
			ClientID:     "plain-client",
			ClientSecret: "plain-secret",
			AuthURL:      "https://plain.example.com/authorize",
			TokenURL:     "https://plain.example.com/token",
			APIBaseURL:   "https://api.plain.example.com",
		},
		{
			Alias:        "machine",
			Flow:         domain.FlowClientCredentials,
			ClientID:     "m2m",
			ClientSecret: "m2m-secret",
			TokenURL:     "https://machine.example.com/token",
		},
	}
}

type testEnv struct {
	svc        *Service
	payloads   *spyPayloadCache
	tokens     *memoryTokenStore
	authorizer *fakeAuthorizer
}

func newTestEnv(t testing.TB) *testEnv {
	t.Helper()
	registry, err := NewRegistry(testServices())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	env := &testEnv{
		payloads:   newSpyPayloadCache(),
		tokens:     newMemoryTokenStore(),
		authorizer: newFakeAuthorizer(),
	}
	env.svc = NewService(Config{
		RedirectURI: "https://tenant.example.com/api/oauth/callback",
		EditorURL:   "https://tenant.example.com/admin/services/{alias}/edit",
	}, Dependencies{
		Registry:   registry,
		Payloads:   env.payloads,
		Tokens:     env.tokens,
		Authorizer: env.authorizer,
	})
	return env
}
