package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultHTTPTimeout bounds every outbound call to a provider.
const DefaultHTTPTimeout = 15 * time.Second

// Authorizer performs token endpoint calls for configured services.
type Authorizer struct {
	httpClient *http.Client
}

// NewAuthorizer creates an Authorizer. A nil client gets DefaultHTTPTimeout.
func NewAuthorizer(httpClient *http.Client) *Authorizer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Authorizer{httpClient: httpClient}
}

// Config builds the oauth2 configuration for svc.
func (a *Authorizer) Config(svc domain.ServiceDefinition, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     svc.ClientID,
		ClientSecret: svc.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   svc.AuthURL,
			TokenURL:  svc.TokenURL,
			AuthStyle: authStyle(svc.AuthStyle),
		},
		RedirectURL: redirectURI,
		Scopes:      svc.Scopes,
	}
}

// AuthCodeURL returns the provider authorization URL for one attempt.
func (a *Authorizer) AuthCodeURL(svc domain.ServiceDefinition, redirectURI, state string, pkce *PKCE) string {
	opts := make([]oauth2.AuthCodeOption, 0, len(svc.AuthParams)+2)
	for key, value := range svc.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(key, value))
	}
	if pkce != nil {
		opts = append(opts, pkce.AuthCodeOptions()...)
	}
	return a.Config(svc, redirectURI).AuthCodeURL(state, opts...)
}

// Exchange trades an authorization code for tokens. The verifier is sent only
// when non-nil.
func (a *Authorizer) Exchange(
	ctx context.Context,
	svc domain.ServiceDefinition,
	code string,
	redirectURI string,
	codeVerifier *string,
) (domain.AuthorizationResult, error) {
	var opts []oauth2.AuthCodeOption
	if codeVerifier != nil {
		opts = append(opts, oauth2.VerifierOption(*codeVerifier))
	}

	token, err := a.Config(svc, redirectURI).Exchange(a.clientContext(ctx), code, opts...)
	if err != nil {
		return domain.AuthorizationResult{}, classifyTokenError(svc.Alias, err)
	}
	return toResult(svc.Alias, token)
}

// Refresh exchanges a stored refresh token for a new access token.
func (a *Authorizer) Refresh(
	ctx context.Context,
	svc domain.ServiceDefinition,
	refreshToken string,
) (domain.AuthorizationResult, error) {
	if refreshToken == "" {
		return domain.AuthorizationResult{}, domain.Errorf(domain.KindInvalidArgument, svc.Alias, "refresh token is empty")
	}

	// An empty access token forces the source to hit the token endpoint.
	source := a.Config(svc, "").TokenSource(a.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		return domain.AuthorizationResult{}, classifyTokenError(svc.Alias, err)
	}
	result, err := toResult(svc.Alias, token)
	if err != nil {
		return result, err
	}
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}
	return result, nil
}

// ClientCredentials obtains a token without user interaction.
func (a *Authorizer) ClientCredentials(ctx context.Context, svc domain.ServiceDefinition) (domain.AuthorizationResult, error) {
	cfg := &clientcredentials.Config{
		ClientID:       svc.ClientID,
		ClientSecret:   svc.ClientSecret,
		TokenURL:       svc.TokenURL,
		Scopes:         svc.Scopes,
		EndpointParams: endpointParams(svc.AuthParams),
		AuthStyle:      authStyle(svc.AuthStyle),
	}
	token, err := cfg.Token(a.clientContext(ctx))
	if err != nil {
		return domain.AuthorizationResult{}, classifyTokenError(svc.Alias, err)
	}
	return toResult(svc.Alias, token)
}

// Revoke invalidates token at the provider. Services without a revocation
// endpoint are revoked locally only, so Revoke is a no-op for them.
func (a *Authorizer) Revoke(ctx context.Context, svc domain.ServiceDefinition, token *domain.ServiceToken) error {
	if token == nil {
		return nil
	}
	switch {
	case svc.Provider == domain.ProviderGitHub:
		return a.revokeGitHubGrant(ctx, svc, token.AccessToken)
	case svc.RevokeURL != "":
		return a.revokeRFC7009(ctx, svc, token)
	default:
		return nil
	}
}

func (a *Authorizer) revokeRFC7009(ctx context.Context, svc domain.ServiceDefinition, token *domain.ServiceToken) error {
	form := url.Values{}
	if token.HasRefreshToken() {
		form.Set("token", *token.RefreshToken)
		form.Set("token_type_hint", "refresh_token")
	} else {
		form.Set("token", token.AccessToken)
		form.Set("token_type_hint", "access_token")
	}
	useParams := svc.AuthStyle == "params"
	if useParams {
		form.Set("client_id", svc.ClientID)
		form.Set("client_secret", svc.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.RevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.NewError(domain.KindInternal, svc.Alias, fmt.Errorf("build revocation request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if !useParams {
		req.SetBasicAuth(url.QueryEscape(svc.ClientID), url.QueryEscape(svc.ClientSecret))
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return domain.NewError(domain.KindTransportFailure, svc.Alias, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Errorf(domain.KindExchangeFailure, svc.Alias, "provider rejected revocation: http %d", resp.StatusCode)
	}
	return nil
}

func (a *Authorizer) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
}

func toResult(alias string, token *oauth2.Token) (domain.AuthorizationResult, error) {
	if token == nil || token.AccessToken == "" {
		return domain.AuthorizationResult{}, domain.Errorf(domain.KindExchangeFailure, alias, "token response has no access token")
	}
	result := domain.AuthorizationResult{
		Success:      true,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry.UTC()
		result.ExpiresAt = &expiry
	}
	return result, nil
}

func classifyTokenError(alias string, err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		reason := retrieveErr.ErrorCode
		if reason == "" && retrieveErr.Response != nil {
			reason = fmt.Sprintf("http %d", retrieveErr.Response.StatusCode)
		}
		return domain.Errorf(domain.KindExchangeFailure, alias, "provider rejected token request: %s", reason)
	}
	if isTransportError(err) {
		return domain.NewError(domain.KindTransportFailure, alias, err)
	}
	return domain.NewError(domain.KindExchangeFailure, alias, err)
}

func isTransportError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func authStyle(style string) oauth2.AuthStyle {
	switch style {
	case "header":
		return oauth2.AuthStyleInHeader
	case "params":
		return oauth2.AuthStyleInParams
	default:
		return oauth2.AuthStyleAutoDetect
	}
}

func endpointParams(params map[string]string) url.Values {
	if len(params) == 0 {
		return nil
	}
	values := url.Values{}
	for key, value := range params {
		values.Set(key, value)
	}
	return values
}
