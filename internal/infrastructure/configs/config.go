// Package configs maps the layered viper configuration onto typed settings.
package configs

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/poly-workshop/authlink/internal/application/authlink"
	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/cache/redis"
	"github.com/poly-workshop/authlink/internal/infrastructure/persistence/gorm"
	"github.com/poly-workshop/authlink/internal/infrastructure/persistence/mongodb"
	"github.com/spf13/viper"
)

type Config struct {
	HTTPPort           uint
	GRPCPort           uint
	CORSAllowedOrigins []string
	Admin              AdminConfig
	Authlink           authlink.Config
}

// AdminConfig controls access to the management routes.
type AdminConfig struct {
	PublicKeyPEM string
	Issuer       string
	// Disabled turns off admin authentication entirely. Development only.
	Disabled bool
}

type serviceConfig struct {
	DisplayName  string            `mapstructure:"display_name"`
	Provider     string            `mapstructure:"provider"`
	Flow         string            `mapstructure:"flow"`
	ClientID     string            `mapstructure:"client_id"`
	ClientSecret string            `mapstructure:"client_secret"`
	AuthURL      string            `mapstructure:"auth_url"`
	TokenURL     string            `mapstructure:"token_url"`
	RevokeURL    string            `mapstructure:"revoke_url"`
	Scopes       []string          `mapstructure:"scopes"`
	UsePKCE      bool              `mapstructure:"use_pkce"`
	AuthStyle    string            `mapstructure:"auth_style"`
	APIBaseURL   string            `mapstructure:"api_base_url"`
	AuthParams   map[string]string `mapstructure:"auth_params"`
}

const (
	DefaultHTTPPort         = 8080
	DefaultGRPCPort         = 50051
	DefaultPersistenceType  = "gorm"
	DefaultGORMDriver       = "sqlite"
	DefaultSQLiteFile       = "data/authlink.db"
	DefaultPayloadCacheType = "memory"
	DefaultTokenCacheTTL    = 5 * time.Minute
)

// Load reads every setting from v and applies defaults.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPPort:           v.GetUint(HTTPPortKey),
		GRPCPort:           v.GetUint(GRPCPortKey),
		CORSAllowedOrigins: v.GetStringSlice(CORSAllowedOriginsKey),
		Admin: AdminConfig{
			PublicKeyPEM: v.GetString(AuthAdminPublicKeyKey),
			Issuer:       v.GetString(AuthAdminIssuerKey),
			Disabled:     v.GetBool(AuthAdminDisabledKey),
		},
		Authlink: authlink.Config{
			RedirectURI:      v.GetString(AuthRedirectURIKey),
			EditorURL:        v.GetString(AuthEditorURLKey),
			StateExpiration:  v.GetDuration(AuthStateExpirationKey),
			HTTPTimeout:      v.GetDuration(OAuthHTTPTimeoutKey),
			RefreshSkew:      v.GetDuration(OAuthRefreshSkewKey),
			PayloadCacheType: v.GetString(PayloadCacheTypeKey),
			PersistenceType:  v.GetString(PersistenceTypeKey),
			GORMClient: &gorm.Config{
				Driver:          v.GetString(PersistenceGORMDriverKey),
				Host:            v.GetString(PersistenceGORMHostKey),
				Port:            v.GetInt(PersistenceGORMPortKey),
				Username:        v.GetString(PersistenceGORMUsernameKey),
				Password:        v.GetString(PersistenceGORMPasswordKey),
				DbName:          v.GetString(PersistenceGORMNameKey),
				SSLMode:         v.GetString(PersistenceGORMSSLModeKey),
				MaxOpenConns:    v.GetInt(PersistenceGORMMaxOpenConnsKey),
				MaxIdleConns:    v.GetInt(PersistenceGORMMaxIdleConnsKey),
				ConnMaxLifetime: v.GetDuration(PersistenceGORMConnMaxLifetimeKey),
				LogLevel:        v.GetString(PersistenceGORMLogLevelKey),
			},
			MongoClient: &mongodb.Config{
				URI:        v.GetString(PersistenceMongoURIKey),
				Database:   v.GetString(PersistenceMongoDatabaseKey),
				Collection: v.GetString(PersistenceMongoCollectionKey),
			},
			RedisClient: &redis.Config{
				Urls:     v.GetStringSlice(RedisUrlsKey),
				Password: v.GetString(RedisPasswordKey),
				DB:       v.GetInt(RedisDBKey),
			},
			SealingPassphrase: v.GetString(SealingPassphraseKey),
			SealingSalt:       v.GetString(SealingSaltKey),
		},
	}

	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.GRPCPort == 0 {
		cfg.GRPCPort = DefaultGRPCPort
	}
	if cfg.Authlink.StateExpiration == 0 {
		cfg.Authlink.StateExpiration = authlink.DefaultStateExpiration
	}
	if cfg.Authlink.HTTPTimeout == 0 {
		cfg.Authlink.HTTPTimeout = authlink.DefaultHTTPTimeout
	}
	if cfg.Authlink.RefreshSkew == 0 {
		cfg.Authlink.RefreshSkew = authlink.DefaultRefreshSkew
	}
	if cfg.Authlink.EditorURL == "" {
		cfg.Authlink.EditorURL = authlink.DefaultEditorURL
	}
	if cfg.Authlink.PayloadCacheType == "" {
		cfg.Authlink.PayloadCacheType = DefaultPayloadCacheType
	}
	if cfg.Authlink.PersistenceType == "" {
		cfg.Authlink.PersistenceType = DefaultPersistenceType
	}
	if cfg.Authlink.GORMClient.Driver == "" {
		cfg.Authlink.GORMClient.Driver = DefaultGORMDriver
	}
	if cfg.Authlink.GORMClient.Driver == "sqlite" && cfg.Authlink.GORMClient.DbName == "" {
		cfg.Authlink.GORMClient.DbName = DefaultSQLiteFile
	}
	if v.IsSet(TokenCacheTTLKey) {
		cfg.Authlink.TokenCacheTTL = v.GetDuration(TokenCacheTTLKey)
	} else {
		cfg.Authlink.TokenCacheTTL = DefaultTokenCacheTTL
	}

	services, err := loadServices(v)
	if err != nil {
		return Config{}, err
	}
	cfg.Authlink.Services = services

	if strings.TrimSpace(cfg.Authlink.RedirectURI) == "" && len(services) > 0 {
		return Config{}, fmt.Errorf("%s is required when services are configured", AuthRedirectURIKey)
	}
	return cfg, nil
}

func loadServices(v *viper.Viper) ([]domain.ServiceDefinition, error) {
	raw := map[string]serviceConfig{}
	if err := v.UnmarshalKey(ServicesKey, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", ServicesKey, err)
	}

	aliases := make([]string, 0, len(raw))
	for alias := range raw {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	defs := make([]domain.ServiceDefinition, 0, len(raw))
	for _, alias := range aliases {
		sc := raw[alias]
		// Secrets usually come from the environment, which UnmarshalKey does not consult.
		if secret := v.GetString(ServicesKey + "." + alias + ".client_secret"); secret != "" {
			sc.ClientSecret = secret
		}
		defs = append(defs, domain.ServiceDefinition{
			Alias:        alias,
			DisplayName:  sc.DisplayName,
			Provider:     sc.Provider,
			Flow:         sc.Flow,
			ClientID:     sc.ClientID,
			ClientSecret: sc.ClientSecret,
			AuthURL:      sc.AuthURL,
			TokenURL:     sc.TokenURL,
			RevokeURL:    sc.RevokeURL,
			Scopes:       sc.Scopes,
			UsePKCE:      sc.UsePKCE,
			AuthStyle:    sc.AuthStyle,
			APIBaseURL:   sc.APIBaseURL,
			AuthParams:   sc.AuthParams,
		})
	}
	return defs, nil
}
