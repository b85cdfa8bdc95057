// Package gorm provides a factory for creating GORM database connections.
package gorm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds the configuration for database connections.
type Config struct {
	Driver   string
	Host     string
	Port     int
	Username string
	Password string
	DbName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	// LogLevel is one of silent, error, warn or info. Defaults to warn.
	LogLevel string
}

// Validate checks that the configuration is valid for the specified driver.
// For postgres and mysql drivers, username must not be empty.
func (c Config) Validate() error {
	switch c.Driver {
	case "postgres", "mysql":
		if c.Username == "" {
			return fmt.Errorf("username is required for %s driver", c.Driver)
		}
	case "sqlite":
		if c.DbName == "" {
			return fmt.Errorf("database file is required for sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
	return nil
}

// NewDB opens a GORM connection and applies pool settings.
func NewDB(cfg Config) (*gorm.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel(cfg.LogLevel))}
	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = openPostgres(cfg, gormCfg)
	case "mysql":
		db, err = openMysql(cfg, gormCfg)
	case "sqlite":
		db, err = openSqlite(cfg, gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func logLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func openPostgres(cfg Config, gormCfg *gorm.Config) (*gorm.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s password=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.Username,
		cfg.DbName,
		cfg.Password,
		sslMode,
	)
	return gorm.Open(postgres.Open(dsn), gormCfg)
}

func openMysql(cfg Config, gormCfg *gorm.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DbName,
	)
	return gorm.Open(mysql.Open(dsn), gormCfg)
}

func openSqlite(cfg Config, gormCfg *gorm.Config) (*gorm.DB, error) {
	// Ensure directory exists for SQLite database file
	dbPath := cfg.DbName
	if dir := filepath.Dir(dbPath); dir != "." && !strings.HasPrefix(dbPath, "file:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for SQLite database: %w", err)
		}
	}
	return gorm.Open(sqlite.Open(dbPath), gormCfg)
}
