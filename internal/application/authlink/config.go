package authlink

import (
	"time"

	"github.com/poly-workshop/authlink/internal/domain"
	"github.com/poly-workshop/authlink/internal/infrastructure/cache/redis"
	"github.com/poly-workshop/authlink/internal/infrastructure/persistence/gorm"
	"github.com/poly-workshop/authlink/internal/infrastructure/persistence/mongodb"
)

// Config holds all settings required to run the linking service.
type Config struct {
	// RedirectURI is the externally reachable callback URL registered with every provider.
	RedirectURI string
	// EditorURL is where a finished attempt lands. "{alias}" is replaced by
	// the escaped service alias, otherwise the alias is appended as a path segment.
	EditorURL       string
	StateExpiration time.Duration
	HTTPTimeout     time.Duration
	RefreshSkew     time.Duration
	Services        []domain.ServiceDefinition

	PayloadCacheType string
	PersistenceType  string
	GORMClient       *gorm.Config
	MongoClient      *mongodb.Config
	RedisClient      *redis.Config
	TokenCacheTTL    time.Duration

	SealingPassphrase string
	SealingSalt       string
}

const (
	DefaultStateExpiration = 10 * time.Minute
	DefaultHTTPTimeout     = 15 * time.Second
	DefaultRefreshSkew     = 30 * time.Second
	DefaultEditorURL       = "/admin/services/{alias}"
)
