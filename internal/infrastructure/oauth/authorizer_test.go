package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
)

func testService(baseURL string) domain.ServiceDefinition {
	return domain.ServiceDefinition{
		Alias:        "example",
		Provider:     domain.ProviderGeneric,
		Flow:         domain.FlowAuthorizationCode,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		AuthURL:      baseURL + "/authorize",
		TokenURL:     baseURL + "/token",
		Scopes:       []string{"read", "write"},
		AuthStyle:    "params",
		APIBaseURL:   baseURL + "/api",
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestAuthorizer_AuthCodeURL(t *testing.T) {
	a := NewAuthorizer(nil)
	svc := testService("https://provider.example")
	svc.AuthParams = map[string]string{"prompt": "consent"}
	p := NewPKCE()

	raw := a.AuthCodeURL(svc, "https://app.example/api/oauth/callback", "example|tok", &p)
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":             "client-id",
		"redirect_uri":          "https://app.example/api/oauth/callback",
		"response_type":         "code",
		"scope":                 "read write",
		"state":                 "example|tok",
		"code_challenge":        p.Challenge,
		"code_challenge_method": "S256",
		"prompt":                "consent",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	noPKCE, _ := url.Parse(a.AuthCodeURL(svc, "https://app.example/cb", "s", nil))
	if noPKCE.Query().Has("code_challenge") {
		t.Error("expected no code_challenge without PKCE")
	}
}

func TestAuthorizer_ExchangeWithVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.Form.Get("grant_type") != "authorization_code" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("code") != "abc" {
			t.Errorf("code = %q", r.Form.Get("code"))
		}
		if r.Form.Get("redirect_uri") != "https://app.example/cb" {
			t.Errorf("redirect_uri = %q", r.Form.Get("redirect_uri"))
		}
		if r.Form.Get("code_verifier") != "the-verifier" {
			t.Errorf("code_verifier = %q", r.Form.Get("code_verifier"))
		}
		if r.Form.Get("client_secret") != "client-secret" {
			t.Errorf("client_secret = %q", r.Form.Get("client_secret"))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  "at",
			"refresh_token": "rt",
			"token_type":    "bearer",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	a := NewAuthorizer(srv.Client())
	verifier := "the-verifier"
	result, err := a.Exchange(context.Background(), testService(srv.URL), "abc", "https://app.example/cb", &verifier)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if !result.Success || result.AccessToken != "at" || result.RefreshToken != "rt" {
		t.Errorf("Exchange() = %+v", result)
	}
	if result.ExpiresAt == nil || time.Until(*result.ExpiresAt) < 59*time.Minute {
		t.Errorf("ExpiresAt = %v, want about an hour from now", result.ExpiresAt)
	}
}

func TestAuthorizer_ExchangeWithoutVerifier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if _, ok := r.Form["code_verifier"]; ok {
			t.Error("code_verifier must not be sent without PKCE")
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "at", "token_type": "bearer"})
	}))
	defer srv.Close()

	result, err := NewAuthorizer(srv.Client()).Exchange(context.Background(), testService(srv.URL), "abc", "https://app.example/cb", nil)
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if result.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", result.ExpiresAt)
	}
	if result.RefreshToken != "" {
		t.Errorf("RefreshToken = %q, want empty", result.RefreshToken)
	}
}

func TestAuthorizer_ExchangeFailures(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind domain.ErrorKind
	}{
		{
			name: "provider rejects code",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusBadRequest, map[string]any{
					"error":             "invalid_grant",
					"error_description": "secret-detail",
				})
			},
			wantKind: domain.KindExchangeFailure,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantKind: domain.KindExchangeFailure,
		},
		{
			name: "missing access token",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, http.StatusOK, map[string]any{"token_type": "bearer"})
			},
			wantKind: domain.KindExchangeFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := NewAuthorizer(srv.Client()).Exchange(context.Background(), testService(srv.URL), "abc", "https://app.example/cb", nil)
			if got := domain.KindOf(err); got != tt.wantKind {
				t.Fatalf("KindOf(%v) = %s, want %s", err, got, tt.wantKind)
			}
			if strings.Contains(err.Error(), "secret-detail") {
				t.Errorf("error leaks provider description: %v", err)
			}
		})
	}
}

func TestAuthorizer_ExchangeTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	svc := testService(srv.URL)
	srv.Close()

	_, err := NewAuthorizer(&http.Client{Timeout: time.Second}).Exchange(context.Background(), svc, "abc", "https://app.example/cb", nil)
	if got := domain.KindOf(err); got != domain.KindTransportFailure {
		t.Fatalf("KindOf(%v) = %s, want transport_failure", err, got)
	}
}

func TestAuthorizer_ExchangeTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	a := NewAuthorizer(&http.Client{Timeout: 50 * time.Millisecond})
	_, err := a.Exchange(context.Background(), testService(srv.URL), "abc", "https://app.example/cb", nil)
	if got := domain.KindOf(err); got != domain.KindTransportFailure {
		t.Fatalf("KindOf(%v) = %s, want transport_failure", err, got)
	}
}

func TestAuthorizer_RefreshKeepsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("refresh_token") != "old-rt" {
			t.Errorf("refresh_token = %q", r.Form.Get("refresh_token"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "new-at", "token_type": "bearer", "expires_in": 60})
	}))
	defer srv.Close()

	result, err := NewAuthorizer(srv.Client()).Refresh(context.Background(), testService(srv.URL), "old-rt")
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if result.AccessToken != "new-at" {
		t.Errorf("AccessToken = %q, want new-at", result.AccessToken)
	}
	if result.RefreshToken != "old-rt" {
		t.Errorf("RefreshToken = %q, want old-rt", result.RefreshToken)
	}
}

func TestAuthorizer_RefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
	}))
	defer srv.Close()

	_, err := NewAuthorizer(srv.Client()).Refresh(context.Background(), testService(srv.URL), "old-rt")
	if domain.KindOf(err) != domain.KindExchangeFailure {
		t.Fatalf("KindOf(%v) = %s, want exchange_failure", err, domain.KindOf(err))
	}
}

func TestAuthorizer_ClientCredentials(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("grant_type") != "client_credentials" {
			t.Errorf("grant_type = %q", r.Form.Get("grant_type"))
		}
		if r.Form.Get("audience") != "api" {
			t.Errorf("audience = %q", r.Form.Get("audience"))
		}
		writeJSON(w, http.StatusOK, map[string]any{"access_token": "cc-at", "token_type": "bearer", "expires_in": 300})
	}))
	defer srv.Close()

	svc := testService(srv.URL)
	svc.Flow = domain.FlowClientCredentials
	svc.AuthParams = map[string]string{"audience": "api"}

	result, err := NewAuthorizer(srv.Client()).ClientCredentials(context.Background(), svc)
	if err != nil {
		t.Fatalf("ClientCredentials() error = %v", err)
	}
	if result.AccessToken != "cc-at" || result.ExpiresAt == nil {
		t.Errorf("ClientCredentials() = %+v", result)
	}
}

func TestAuthorizer_RevokeRFC7009(t *testing.T) {
	var calls atomic.Int32
	var status atomic.Int32
	status.Store(http.StatusOK)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			t.Errorf("basic auth = %q, %q, %v", user, pass, ok)
		}
		_ = r.ParseForm()
		if r.Form.Get("token") != "rt" || r.Form.Get("token_type_hint") != "refresh_token" {
			t.Errorf("form = %v", r.Form)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	svc := testService(srv.URL)
	svc.AuthStyle = "header"
	svc.RevokeURL = srv.URL + "/revoke"
	refresh := "rt"
	token := &domain.ServiceToken{Alias: svc.Alias, AccessToken: "at", RefreshToken: &refresh}

	a := NewAuthorizer(srv.Client())
	if err := a.Revoke(context.Background(), svc, token); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	status.Store(http.StatusServiceUnavailable)
	if err := a.Revoke(context.Background(), svc, token); domain.KindOf(err) != domain.KindExchangeFailure {
		t.Fatalf("Revoke() error = %v, want exchange_failure", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAuthorizer_RevokeWithoutEndpointIsLocal(t *testing.T) {
	a := NewAuthorizer(nil)
	svc := testService("http://127.0.0.1:1")
	if err := a.Revoke(context.Background(), svc, &domain.ServiceToken{AccessToken: "at"}); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := a.Revoke(context.Background(), svc, nil); err != nil {
		t.Fatalf("Revoke(nil) error = %v", err)
	}
}

func TestAuthorizer_RevokeGitHubGrant(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusNoContent)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/applications/client-id/grant" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if user, _, _ := r.BasicAuth(); user != "client-id" {
			t.Errorf("basic auth user = %q", user)
		}
		w.WriteHeader(int(status.Load()))
	}))
	defer srv.Close()

	svc := testService(srv.URL)
	svc.Provider = domain.ProviderGitHub
	svc.APIBaseURL = srv.URL
	token := &domain.ServiceToken{Alias: svc.Alias, AccessToken: "gho_token"}

	a := NewAuthorizer(srv.Client())
	if err := a.Revoke(context.Background(), svc, token); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	status.Store(http.StatusNotFound)
	if err := a.Revoke(context.Background(), svc, token); err != nil {
		t.Fatalf("Revoke() of a missing grant error = %v", err)
	}
}

func TestAuthorizer_SendAPIRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/me" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer at" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(w, http.StatusOK, map[string]any{"name": "octo"})
	}))
	defer srv.Close()

	resp, err := NewAuthorizer(srv.Client()).SendAPIRequest(context.Background(), testService(srv.URL),
		&domain.ServiceToken{AccessToken: "at", TokenType: "Bearer"}, "/me")
	if err != nil {
		t.Fatalf("SendAPIRequest() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(resp.Body), "octo") {
		t.Errorf("SendAPIRequest() = %d %s", resp.StatusCode, resp.Body)
	}
}

func TestAuthorizer_SendGitHubRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer gho_token" {
			t.Errorf("Authorization = %q", got)
		}
		switch r.URL.Path {
		case "/user":
			writeJSON(w, http.StatusOK, map[string]any{"login": "octocat"})
		default:
			writeJSON(w, http.StatusNotFound, map[string]any{"message": "Not Found"})
		}
	}))
	defer srv.Close()

	svc := testService(srv.URL)
	svc.Provider = domain.ProviderGitHub
	svc.APIBaseURL = srv.URL
	token := &domain.ServiceToken{AccessToken: "gho_token"}
	a := NewAuthorizer(srv.Client())

	resp, err := a.SendAPIRequest(context.Background(), svc, token, "/user")
	if err != nil {
		t.Fatalf("SendAPIRequest() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(resp.Body), "octocat") {
		t.Errorf("SendAPIRequest() = %d %s", resp.StatusCode, resp.Body)
	}

	missing, err := a.SendAPIRequest(context.Background(), svc, token, "/nope")
	if err != nil {
		t.Fatalf("SendAPIRequest() error = %v", err)
	}
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", missing.StatusCode)
	}
}
