package configs

// Configuration keys constants
const (
	// Server configuration keys
	GRPCPortKey           = "grpc_port"
	HTTPPortKey           = "http_port"
	CORSAllowedOriginsKey = "cors.allowed_origins"

	// Auth configuration keys
	AuthRedirectURIKey     = "auth.redirect_uri"
	AuthEditorURLKey       = "auth.editor_url"
	AuthStateExpirationKey = "auth.state_expiration"
	AuthAdminPublicKeyKey  = "auth.admin_public_key"
	AuthAdminIssuerKey     = "auth.admin_issuer"
	AuthAdminDisabledKey   = "auth.admin_disabled"

	// Outbound OAuth client keys
	OAuthHTTPTimeoutKey = "oauth.http_timeout"
	OAuthRefreshSkewKey = "oauth.refresh_skew"

	PayloadCacheTypeKey = "payload_cache.type"

	// Persistence configuration keys
	PersistenceTypeKey                = "persistence.type"
	PersistenceGORMDriverKey          = "persistence.gorm.driver"
	PersistenceGORMHostKey            = "persistence.gorm.host"
	PersistenceGORMPortKey            = "persistence.gorm.port"
	PersistenceGORMUsernameKey        = "persistence.gorm.username"
	PersistenceGORMPasswordKey        = "persistence.gorm.password"
	PersistenceGORMNameKey            = "persistence.gorm.name"
	PersistenceGORMSSLModeKey         = "persistence.gorm.sslmode"
	PersistenceGORMMaxOpenConnsKey    = "persistence.gorm.max_open_conns"
	PersistenceGORMMaxIdleConnsKey    = "persistence.gorm.max_idle_conns"
	PersistenceGORMConnMaxLifetimeKey = "persistence.gorm.conn_max_lifetime"
	PersistenceGORMLogLevelKey        = "persistence.gorm.log_level"
	PersistenceMongoURIKey            = "persistence.mongo.uri"
	PersistenceMongoDatabaseKey       = "persistence.mongo.database"
	PersistenceMongoCollectionKey     = "persistence.mongo.collection"

	// Redis configuration keys
	RedisUrlsKey     = "redis.urls"
	RedisPasswordKey = "redis.password"
	RedisDBKey       = "redis.db"

	TokenCacheTTLKey = "token_cache.ttl"

	// Token sealing keys
	SealingPassphraseKey = "sealing.passphrase"
	SealingSaltKey       = "sealing.salt"

	// ServicesKey holds one sub-tree per service alias.
	ServicesKey = "services"
)
