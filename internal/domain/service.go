package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Provider presets understood by the authorizer.
const (
	ProviderGeneric   = "generic"
	ProviderGitHub    = "github"
	ProviderGitLab    = "gitlab"
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
)

// Supported token acquisition flows.
const (
	FlowAuthorizationCode = "authorization_code"
	FlowClientCredentials = "client_credentials"
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidAlias reports whether alias uses the identifier charset. Valid aliases
// never contain the state separator.
func ValidAlias(alias string) bool {
	return aliasPattern.MatchString(alias)
}

// ServiceDefinition is the configured OAuth2 metadata of one external service.
type ServiceDefinition struct {
	Alias        string
	DisplayName  string
	Provider     string
	Flow         string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	Scopes       []string
	UsePKCE      bool
	// AuthStyle is one of "auto", "header" or "params".
	AuthStyle  string
	APIBaseURL string
	AuthParams map[string]string
}

// Validate checks the definition is usable for its flow.
func (d ServiceDefinition) Validate() error {
	if !ValidAlias(d.Alias) {
		return fmt.Errorf("invalid service alias %q", d.Alias)
	}
	if strings.TrimSpace(d.ClientID) == "" {
		return fmt.Errorf("service %s: client id is required", d.Alias)
	}
	if strings.TrimSpace(d.TokenURL) == "" {
		return fmt.Errorf("service %s: token url is required", d.Alias)
	}
	switch d.Flow {
	case FlowAuthorizationCode:
		if strings.TrimSpace(d.AuthURL) == "" {
			return fmt.Errorf("service %s: authorization url is required", d.Alias)
		}
	case FlowClientCredentials:
		if strings.TrimSpace(d.ClientSecret) == "" {
			return fmt.Errorf("service %s: client secret is required for client credentials", d.Alias)
		}
	default:
		return fmt.Errorf("service %s: unsupported flow %q", d.Alias, d.Flow)
	}
	switch d.AuthStyle {
	case "", "auto", "header", "params":
	default:
		return fmt.Errorf("service %s: unsupported auth style %q", d.Alias, d.AuthStyle)
	}
	return nil
}
