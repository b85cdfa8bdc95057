package authlink

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/tidwall/gjson"
)

// ServiceStatus describes a configured service and its linkage.
type ServiceStatus struct {
	Alias        string     `json:"alias"`
	DisplayName  string     `json:"display_name"`
	Provider     string     `json:"provider"`
	Flow         string     `json:"flow"`
	UsePKCE      bool       `json:"use_pkce"`
	IsAuthorized bool       `json:"is_authorized"`
	CanRefresh   bool       `json:"can_refresh"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// ManualToken is a token pasted by an administrator.
type ManualToken struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// SampleResponse is the answer of a test call against the service API.
type SampleResponse struct {
	StatusCode  int             `json:"status_code"`
	ContentType string          `json:"content_type,omitempty"`
	Body        json.RawMessage `json:"body"`
}

func statusOf(svc domain.ServiceDefinition, token *domain.ServiceToken) ServiceStatus {
	status := ServiceStatus{
		Alias:       svc.Alias,
		DisplayName: svc.DisplayName,
		Provider:    svc.Provider,
		Flow:        svc.Flow,
		UsePKCE:     svc.UsePKCE,
	}
	if token == nil {
		return status
	}
	status.IsAuthorized = token.AccessToken != ""
	status.CanRefresh = token.HasRefreshToken()
	status.ExpiresAt = token.ExpiresAt
	if !token.UpdatedAt.IsZero() {
		updated := token.UpdatedAt
		status.UpdatedAt = &updated
	}
	return status
}

// GetStatus reports whether alias is linked.
func (s *Service) GetStatus(ctx context.Context, alias string) (ServiceStatus, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return ServiceStatus{}, err
	}
	token, err := s.loadToken(ctx, alias)
	if domain.KindOf(err) == domain.KindNotLinked {
		return statusOf(svc, nil), nil
	}
	if err != nil {
		return ServiceStatus{}, err
	}
	return statusOf(svc, token), nil
}

// ListServices reports the status of every configured service.
func (s *Service) ListServices(ctx context.Context) ([]ServiceStatus, error) {
	aliases := s.registry.Aliases()
	statuses := make([]ServiceStatus, 0, len(aliases))
	for _, alias := range aliases {
		status, err := s.GetStatus(ctx, alias)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// SaveToken stores a token obtained outside the authorization flow.
func (s *Service) SaveToken(ctx context.Context, alias string, manual ManualToken) (ServiceStatus, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return ServiceStatus{}, err
	}
	if strings.TrimSpace(manual.AccessToken) == "" {
		return ServiceStatus{}, domain.Errorf(domain.KindInvalidArgument, alias, "access token is required")
	}
	tokenType := manual.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	record, err := s.saveResult(ctx, alias, domain.AuthorizationResult{
		Success:      true,
		AccessToken:  strings.TrimSpace(manual.AccessToken),
		RefreshToken: strings.TrimSpace(manual.RefreshToken),
		TokenType:    tokenType,
		ExpiresAt:    manual.ExpiresAt,
	})
	if err != nil {
		return ServiceStatus{}, err
	}
	slog.InfoContext(ctx, "service token saved manually", "alias", alias)
	return statusOf(svc, record), nil
}

// RevokeAccess invalidates the linkage at the provider and deletes the local
// copy. Revoking an unlinked service succeeds. When the provider rejects the
// revocation the local record is kept so the operation can be retried.
func (s *Service) RevokeAccess(ctx context.Context, alias string) error {
	svc, err := s.lookup(alias)
	if err != nil {
		return err
	}
	token, err := s.loadToken(ctx, alias)
	if domain.KindOf(err) == domain.KindNotLinked {
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.authorizer.Revoke(ctx, svc, token); err != nil {
		slog.ErrorContext(ctx, "provider revocation failed", "error", err, "alias", alias)
		return err
	}

	if err := s.tokens.Delete(ctx, alias); err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.ErrorContext(ctx, "failed to delete service token", "error", err, "alias", alias)
		return domain.NewError(domain.KindPersistenceFailure, alias, err)
	}
	slog.InfoContext(ctx, "service access revoked", "alias", alias)
	return nil
}

// RefreshAccess exchanges the stored refresh token for a new access token.
// Concurrent refreshes of one alias share a single provider call.
func (s *Service) RefreshAccess(ctx context.Context, alias string) (ServiceStatus, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return ServiceStatus{}, err
	}
	token, err := s.refresh(ctx, svc)
	if err != nil {
		return ServiceStatus{}, err
	}
	return statusOf(svc, token), nil
}

func (s *Service) refresh(ctx context.Context, svc domain.ServiceDefinition) (*domain.ServiceToken, error) {
	v, err, shared := s.refreshGroup.Do(svc.Alias, func() (any, error) {
		// The first caller's cancellation must not fail the others.
		ctx := context.WithoutCancel(ctx)
		current, err := s.loadToken(ctx, svc.Alias)
		if err != nil {
			return nil, err
		}
		if !current.HasRefreshToken() {
			return nil, domain.Errorf(domain.KindInvalidArgument, svc.Alias, "no refresh token stored")
		}
		result, err := s.authorizer.Refresh(ctx, svc, *current.RefreshToken)
		if err != nil {
			slog.ErrorContext(ctx, "token refresh failed", "error", err, "alias", svc.Alias)
			return nil, err
		}
		record, err := s.saveResult(ctx, svc.Alias, result)
		if err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "service token refreshed", "alias", svc.Alias)
		return record, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.DebugContext(ctx, "joined in-flight token refresh", "alias", svc.Alias)
	}
	return v.(*domain.ServiceToken), nil
}

// GenerateToken obtains a token with the client credentials grant.
func (s *Service) GenerateToken(ctx context.Context, alias string) (ServiceStatus, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return ServiceStatus{}, err
	}
	token, err := s.generate(ctx, svc)
	if err != nil {
		return ServiceStatus{}, err
	}
	return statusOf(svc, token), nil
}

func (s *Service) generate(ctx context.Context, svc domain.ServiceDefinition) (*domain.ServiceToken, error) {
	if svc.Flow != domain.FlowClientCredentials {
		return nil, domain.Errorf(domain.KindInvalidArgument, svc.Alias, "service does not use the client credentials flow")
	}
	result, err := s.authorizer.ClientCredentials(ctx, svc)
	if err != nil {
		slog.ErrorContext(ctx, "client credentials grant failed", "error", err, "alias", svc.Alias)
		return nil, err
	}
	record, err := s.saveResult(ctx, svc.Alias, result)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "service token generated", "alias", svc.Alias)
	return record, nil
}

// AccessToken returns a usable token for alias. Tokens close to expiry are
// renewed first when the service allows it.
func (s *Service) AccessToken(ctx context.Context, alias string) (*domain.ServiceToken, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return nil, err
	}
	token, err := s.loadToken(ctx, alias)
	if err != nil {
		return nil, err
	}
	if !token.ExpiresWithin(s.now(), s.refreshSkew) {
		return token, nil
	}

	switch {
	case token.HasRefreshToken():
		return s.refresh(ctx, svc)
	case svc.Flow == domain.FlowClientCredentials:
		return s.generate(ctx, svc)
	default:
		// Expired and not renewable; the provider will reject it.
		return token, nil
	}
}

// SendSampleRequest performs an authenticated GET against the service API.
func (s *Service) SendSampleRequest(ctx context.Context, alias, path string) (SampleResponse, error) {
	svc, err := s.lookup(alias)
	if err != nil {
		return SampleResponse{}, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return SampleResponse{}, domain.Errorf(domain.KindInvalidArgument, alias, "path is required")
	}
	if strings.Contains(path, "://") || strings.HasPrefix(path, "//") {
		return SampleResponse{}, domain.Errorf(domain.KindInvalidArgument, alias, "path must be relative to the api base url")
	}

	token, err := s.AccessToken(ctx, alias)
	if err != nil {
		return SampleResponse{}, err
	}
	resp, err := s.authorizer.SendAPIRequest(ctx, svc, token, path)
	if err != nil {
		return SampleResponse{}, err
	}

	body := json.RawMessage(resp.Body)
	if len(resp.Body) == 0 || !gjson.ValidBytes(resp.Body) {
		encoded, err := json.Marshal(string(resp.Body))
		if err != nil {
			return SampleResponse{}, domain.NewError(domain.KindInternal, alias, err)
		}
		body = encoded
	}
	return SampleResponse{StatusCode: resp.StatusCode, ContentType: resp.ContentType, Body: body}, nil
}
