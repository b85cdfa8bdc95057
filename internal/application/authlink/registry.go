package authlink

import (
	"fmt"
	"sort"
	"strings"

	"github.com/poly-workshop/authlink/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

type providerPreset struct {
	endpoint   oauth2.Endpoint
	revokeURL  string
	apiBaseURL string
}

var providerPresets = map[string]providerPreset{
	domain.ProviderGitHub: {
		endpoint:   endpoints.GitHub,
		apiBaseURL: "https://api.github.com/",
	},
	domain.ProviderGitLab: {
		endpoint:   endpoints.GitLab,
		revokeURL:  "https://gitlab.com/oauth/revoke",
		apiBaseURL: "https://gitlab.com/api/v4",
	},
	domain.ProviderGoogle: {
		endpoint:   endpoints.Google,
		revokeURL:  "https://oauth2.googleapis.com/revoke",
		apiBaseURL: "https://www.googleapis.com",
	},
	domain.ProviderMicrosoft: {
		endpoint:   endpoints.AzureAD("common"),
		apiBaseURL: "https://graph.microsoft.com/v1.0",
	},
}

// Registry resolves service aliases to their OAuth2 metadata.
type Registry struct {
	services map[string]domain.ServiceDefinition
}

// NewRegistry applies provider presets and validates every definition.
func NewRegistry(defs []domain.ServiceDefinition) (*Registry, error) {
	services := make(map[string]domain.ServiceDefinition, len(defs))
	for _, def := range defs {
		def = applyPreset(def)
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := services[def.Alias]; dup {
			return nil, fmt.Errorf("service %s is configured twice", def.Alias)
		}
		services[def.Alias] = def
	}
	return &Registry{services: services}, nil
}

// Lookup returns the definition for alias.
func (r *Registry) Lookup(alias string) (domain.ServiceDefinition, bool) {
	def, ok := r.services[alias]
	return def, ok
}

// Aliases returns the configured aliases in lexical order.
func (r *Registry) Aliases() []string {
	aliases := make([]string, 0, len(r.services))
	for alias := range r.services {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	return aliases
}

func applyPreset(def domain.ServiceDefinition) domain.ServiceDefinition {
	def.Alias = strings.TrimSpace(def.Alias)
	def.Provider = strings.ToLower(strings.TrimSpace(def.Provider))
	if def.Provider == "" {
		def.Provider = domain.ProviderGeneric
	}
	def.Flow = strings.ToLower(strings.TrimSpace(def.Flow))
	if def.Flow == "" {
		def.Flow = domain.FlowAuthorizationCode
	}
	if def.DisplayName == "" {
		def.DisplayName = def.Alias
	}

	preset, ok := providerPresets[def.Provider]
	if !ok {
		return def
	}
	if def.AuthURL == "" {
		def.AuthURL = preset.endpoint.AuthURL
	}
	if def.TokenURL == "" {
		def.TokenURL = preset.endpoint.TokenURL
	}
	if def.RevokeURL == "" {
		def.RevokeURL = preset.revokeURL
	}
	if def.APIBaseURL == "" {
		def.APIBaseURL = preset.apiBaseURL
	}
	return def
}
