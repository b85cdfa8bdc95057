package authlink

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/oauth"
	"golang.org/x/sync/singleflight"
)

// ServiceAuthorizer talks to provider endpoints on behalf of the service.
type ServiceAuthorizer interface {
	AuthCodeURL(svc domain.ServiceDefinition, redirectURI, state string, pkce *oauth.PKCE) string
	Exchange(ctx context.Context, svc domain.ServiceDefinition, code, redirectURI string, codeVerifier *string) (domain.AuthorizationResult, error)
	Refresh(ctx context.Context, svc domain.ServiceDefinition, refreshToken string) (domain.AuthorizationResult, error)
	ClientCredentials(ctx context.Context, svc domain.ServiceDefinition) (domain.AuthorizationResult, error)
	Revoke(ctx context.Context, svc domain.ServiceDefinition, token *domain.ServiceToken) error
	SendAPIRequest(ctx context.Context, svc domain.ServiceDefinition, token *domain.ServiceToken, path string) (oauth.APIResponse, error)
}

// Dependencies are the collaborators of a Service.
type Dependencies struct {
	Registry   *Registry
	Payloads   oauth.PayloadCache
	Tokens     domain.TokenStore
	Authorizer ServiceAuthorizer
}

// Service links external service accounts and manages their tokens.
type Service struct {
	registry   *Registry
	payloads   oauth.PayloadCache
	tokens     domain.TokenStore
	authorizer ServiceAuthorizer

	redirectURI string
	editorURL   string
	refreshSkew time.Duration

	refreshGroup singleflight.Group
	now          func() time.Time
	cleanup      func(context.Context) error
}

// NewService assembles a Service from ready collaborators.
func NewService(cfg Config, deps Dependencies) *Service {
	editorURL := strings.TrimSpace(cfg.EditorURL)
	if editorURL == "" {
		editorURL = DefaultEditorURL
	}
	skew := cfg.RefreshSkew
	if skew <= 0 {
		skew = DefaultRefreshSkew
	}
	return &Service{
		registry:    deps.Registry,
		payloads:    deps.Payloads,
		tokens:      deps.Tokens,
		authorizer:  deps.Authorizer,
		redirectURI: cfg.RedirectURI,
		editorURL:   editorURL,
		refreshSkew: skew,
		now:         time.Now,
	}
}

// Close releases resources owned by the service.
func (s *Service) Close(ctx context.Context) error {
	if s.cleanup != nil {
		return s.cleanup(ctx)
	}
	return nil
}

// Registry exposes the configured services.
func (s *Service) Registry() *Registry {
	return s.registry
}

func (s *Service) lookup(alias string) (domain.ServiceDefinition, error) {
	if !domain.ValidAlias(alias) {
		return domain.ServiceDefinition{}, domain.Errorf(domain.KindServiceNotFound, "", "invalid service alias")
	}
	svc, ok := s.registry.Lookup(alias)
	if !ok {
		return domain.ServiceDefinition{}, domain.Errorf(domain.KindServiceNotFound, alias, "service is not configured")
	}
	return svc, nil
}

// loadToken returns the stored linkage, mapping absence to NotLinked.
func (s *Service) loadToken(ctx context.Context, alias string) (*domain.ServiceToken, error) {
	token, err := s.tokens.Get(ctx, alias)
	switch {
	case err == nil:
		return token, nil
	case errors.Is(err, domain.ErrNotFound):
		return nil, domain.Errorf(domain.KindNotLinked, alias, "no token stored")
	default:
		slog.ErrorContext(ctx, "failed to load service token", "error", err, "alias", alias)
		return nil, domain.NewError(domain.KindPersistenceFailure, alias, err)
	}
}

func (s *Service) saveResult(ctx context.Context, alias string, result domain.AuthorizationResult) (*domain.ServiceToken, error) {
	record := result.ToServiceToken(alias)
	if err := s.tokens.Save(ctx, record); err != nil {
		slog.ErrorContext(ctx, "failed to persist service token", "error", err, "alias", alias)
		return nil, domain.NewError(domain.KindPersistenceFailure, alias, err)
	}
	return record, nil
}

func (s *Service) editorLocation(alias string) string {
	escaped := url.PathEscape(alias)
	if strings.Contains(s.editorURL, "{alias}") {
		return strings.ReplaceAll(s.editorURL, "{alias}", escaped)
	}
	return strings.TrimRight(s.editorURL, "/") + "/" + escaped
}
