package authlink

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"strings"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/oauth"
)

// AuthorizationRedirect is the provider URL the browser must visit.
type AuthorizationRedirect struct {
	URL string
}

// Callback carries the query parameters of the provider redirect.
type Callback struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// Outcome is the result of a completed linking attempt.
type Outcome struct {
	Alias       string
	RedirectURL string
}

// StartAuthorization records a new attempt for alias and returns the provider
// authorization URL. Any earlier pending attempt for alias is superseded.
func (s *Service) StartAuthorization(ctx context.Context, alias string) (AuthorizationRedirect, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return AuthorizationRedirect{}, err
	}
	if svc.Flow != domain.FlowAuthorizationCode {
		return AuthorizationRedirect{}, domain.Errorf(domain.KindInvalidArgument, alias, "service does not use the authorization code flow")
	}

	stateToken, err := oauth.GenerateStateToken()
	if err != nil {
		slog.ErrorContext(ctx, "failed to generate oauth state", "error", err)
		return AuthorizationRedirect{}, domain.NewError(domain.KindInternal, alias, err)
	}

	payload := oauth.AuthorizationPayload{ServiceAlias: alias, State: stateToken}
	var pkce *oauth.PKCE
	if svc.UsePKCE {
		p := oauth.NewPKCE()
		pkce = &p
		verifier := p.Verifier
		payload.CodeVerifier = &verifier
	}

	if err := s.payloads.Put(ctx, alias, payload); err != nil {
		slog.ErrorContext(ctx, "failed to store authorization payload", "error", err, "alias", alias)
		return AuthorizationRedirect{}, domain.NewError(domain.KindInternal, alias, err)
	}

	authURL := s.authorizer.AuthCodeURL(svc, s.redirectURI, oauth.ComposeState(alias, stateToken), pkce)
	slog.InfoContext(ctx, "authorization started", "alias", alias, "pkce", svc.UsePKCE)
	return AuthorizationRedirect{URL: authURL}, nil
}

// HandleAuthorizationResponse validates a provider callback, exchanges the
// code and stores the resulting tokens. The pending attempt is consumed
// before any comparison, so a replayed or forged callback cannot reuse it.
func (s *Service) HandleAuthorizationResponse(ctx context.Context, cb Callback) (Outcome, error) {
	alias, token, err := oauth.DecomposeState(cb.State)
	if err != nil {
		slog.WarnContext(ctx, "malformed oauth state in callback")
		return Outcome{}, domain.NewError(domain.KindMalformedState, "", err)
	}

	payload, ok, err := s.payloads.Take(ctx, alias)
	if err != nil {
		slog.ErrorContext(ctx, "failed to read authorization payload", "error", err, "alias", alias)
		return Outcome{}, domain.NewError(domain.KindInternal, alias, err)
	}
	if !ok {
		slog.WarnContext(ctx, "no pending authorization for callback", "alias", alias)
		return Outcome{}, domain.Errorf(domain.KindUnknownOrExpiredAttempt, alias, "no pending authorization")
	}

	if subtle.ConstantTimeCompare([]byte(token), []byte(payload.State)) != 1 {
		slog.WarnContext(ctx, "oauth state mismatch", "alias", alias, "security_event", "oauth_state_mismatch")
		return Outcome{}, domain.Errorf(domain.KindStateMismatch, alias, "state does not match pending authorization")
	}

	svc, err := s.lookup(alias)
	if err != nil {
		return Outcome{}, err
	}

	if cb.Error != "" {
		slog.InfoContext(ctx, "provider denied authorization", "alias", alias, "provider_error", cb.Error)
		return Outcome{}, domain.Errorf(domain.KindAccessDenied, alias, "provider returned %s", cb.Error)
	}
	if strings.TrimSpace(cb.Code) == "" {
		return Outcome{}, domain.Errorf(domain.KindExchangeFailure, alias, "callback has no authorization code")
	}

	result, err := s.authorizer.Exchange(ctx, svc, cb.Code, s.redirectURI, payload.CodeVerifier)
	if err != nil {
		slog.ErrorContext(ctx, "authorization code exchange failed", "error", err, "alias", alias)
		return Outcome{}, err
	}
	if !result.Success || result.AccessToken == "" {
		return Outcome{}, domain.Errorf(domain.KindExchangeFailure, alias, "token response has no access token")
	}

	if _, err := s.saveResult(ctx, alias, result); err != nil {
		return Outcome{}, err
	}

	slog.InfoContext(ctx, "service linked", "alias", alias, "refreshable", result.RefreshToken != "")
	return Outcome{Alias: alias, RedirectURL: s.editorLocation(alias)}, nil
}
