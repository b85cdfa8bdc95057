package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v73/github"
	"github.com/poly-workshop/authlink/internal/domain"
	"golang.org/x/oauth2"
)

const maxSampleBody = 1 << 20

// APIResponse is the raw result of an authenticated call to a service API.
type APIResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// SendAPIRequest performs an authenticated GET against the service API.
// GitHub services go through the go-github client.
func (a *Authorizer) SendAPIRequest(
	ctx context.Context,
	svc domain.ServiceDefinition,
	token *domain.ServiceToken,
	path string,
) (APIResponse, error) {
	if svc.Provider == domain.ProviderGitHub {
		return a.sendGitHubRequest(ctx, svc, token.AccessToken, path)
	}
	if strings.TrimSpace(svc.APIBaseURL) == "" {
		return APIResponse{}, domain.Errorf(domain.KindInvalidArgument, svc.Alias, "service has no api base url")
	}

	target, err := joinAPIURL(svc.APIBaseURL, path)
	if err != nil {
		return APIResponse{}, domain.NewError(domain.KindInvalidArgument, svc.Alias, err)
	}

	client := oauth2.NewClient(a.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	}))
	client.Timeout = a.httpClient.Timeout

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return APIResponse{}, domain.NewError(domain.KindInvalidArgument, svc.Alias, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return APIResponse{}, domain.NewError(domain.KindTransportFailure, svc.Alias, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSampleBody))
	if err != nil {
		return APIResponse{}, domain.NewError(domain.KindTransportFailure, svc.Alias, err)
	}
	return APIResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func (a *Authorizer) sendGitHubRequest(ctx context.Context, svc domain.ServiceDefinition, accessToken, path string) (APIResponse, error) {
	client, err := a.githubClient(svc, a.httpClient)
	if err != nil {
		return APIResponse{}, domain.NewError(domain.KindInvalidArgument, svc.Alias, err)
	}
	client = client.WithAuthToken(accessToken)

	req, err := client.NewRequest(http.MethodGet, strings.TrimPrefix(path, "/"), nil)
	if err != nil {
		return APIResponse{}, domain.NewError(domain.KindInvalidArgument, svc.Alias, err)
	}

	var raw json.RawMessage
	resp, err := client.Do(ctx, req, &raw)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && resp != nil {
			body, _ := json.Marshal(ghErr)
			return APIResponse{StatusCode: resp.StatusCode, ContentType: "application/json", Body: body}, nil
		}
		return APIResponse{}, domain.NewError(domain.KindTransportFailure, svc.Alias, err)
	}
	return APIResponse{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        raw,
	}, nil
}

func (a *Authorizer) revokeGitHubGrant(ctx context.Context, svc domain.ServiceDefinition, accessToken string) error {
	transport := &github.BasicAuthTransport{
		Username:  svc.ClientID,
		Password:  svc.ClientSecret,
		Transport: a.httpClient.Transport,
	}
	client, err := a.githubClient(svc, &http.Client{Transport: transport, Timeout: a.httpClient.Timeout})
	if err != nil {
		return domain.NewError(domain.KindInvalidArgument, svc.Alias, err)
	}

	resp, err := client.Authorizations.DeleteGrant(ctx, svc.ClientID, accessToken)
	if err == nil {
		return nil
	}
	// The grant is already gone.
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return nil
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) {
		return domain.Errorf(domain.KindExchangeFailure, svc.Alias, "github rejected revocation: http %d", ghErr.Response.StatusCode)
	}
	return domain.NewError(domain.KindTransportFailure, svc.Alias, err)
}

func (a *Authorizer) githubClient(svc domain.ServiceDefinition, httpClient *http.Client) (*github.Client, error) {
	client := github.NewClient(httpClient)
	if base := strings.TrimSpace(svc.APIBaseURL); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("parse github api url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

func joinAPIURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	return u.String(), nil
}
