package bootstrap

import (
	"errors"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/joho/godotenv"
)

const (
	envMode         = "MODE"
	modeDevelopment = "development"
)

var (
	mode        string
	cmdName     string
	hostname, _ = os.Hostname()
)

// Init initializes the application with the specified command name.
func Init(cmd string) {
	workdir, _ := os.Getwd()
	InitWithConfigPath(cmd, path.Join(workdir, "configs"))
}

// InitWithConfigPath initializes the application with a custom config path.
// A .env file in the working directory is loaded before anything reads the
// environment.
func InitWithConfigPath(cmd string, configPath string) {
	loadDotEnv()
	cmdName = cmd
	mode = os.Getenv(envMode)
	if mode == "" {
		mode = modeDevelopment
	}
	initConfig(configPath)
	initLog()
	logConfig()
	slog.Info("APP initialized")
}

// Mode returns the active configuration mode.
func Mode() string {
	return mode
}

func loadDotEnv() {
	workdir, err := os.Getwd()
	if err != nil {
		return
	}
	if err := godotenv.Load(filepath.Join(workdir, ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "error", err)
	}
}
