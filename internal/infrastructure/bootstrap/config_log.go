package bootstrap

import (
	"log/slog"
)

// logConfig logs the key configuration values when the server starts.
// Sensitive values like passwords, client secrets and the sealing passphrase are not logged.
func logConfig() {
	slog.Info("Configuration loaded",
		"mode", mode,
		"log.level", config.GetString(configKeyLogLevel),
		"log.format", config.GetString(configKeyLogFormat),
		"log.file", config.GetString(configKeyLogFile),
	)

	slog.Info("Server configuration",
		"http_port", config.GetUint("http_port"),
		"grpc_port", config.GetUint("grpc_port"),
		"auth.redirect_uri", config.GetString("auth.redirect_uri"),
		"auth.state_expiration", config.GetString("auth.state_expiration"),
		"auth.admin_disabled", config.GetBool("auth.admin_disabled"),
		"payload_cache.type", config.GetString("payload_cache.type"),
		"persistence.type", config.GetString("persistence.type"),
		"persistence.gorm.driver", config.GetString("persistence.gorm.driver"),
		"persistence.gorm.name", config.GetString("persistence.gorm.name"),
		"persistence.mongo.database", config.GetString("persistence.mongo.database"),
		"redis.urls", config.GetStringSlice("redis.urls"),
		"token_cache.ttl", config.GetString("token_cache.ttl"),
		"sealing.enabled", config.GetString("sealing.passphrase") != "",
	)
}
