// Package bootstrap provides application initialization and configuration management.
package bootstrap

import (
	"errors"
	"path"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultConfigName = "default"
)

var config *viper.Viper

// Config returns the application configuration instance.
func Config() *viper.Viper {
	return config
}

// initConfig merges, in order: default, <cmd>/default, <mode>, <cmd>/<mode>.
// Missing files are skipped; unreadable ones abort startup.
func initConfig(configPath string) {
	v := viper.GetViper()
	v.AddConfigPath(configPath)
	setDefaults(v)

	layers := []string{
		defaultConfigName,
		path.Join(cmdName, defaultConfigName),
		mode,
		path.Join(cmdName, mode),
	}
	for _, name := range layers {
		v.SetConfigName(name)
		if err := v.MergeInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				panic(err)
			}
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config = v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(configKeyLogLevel, "info")
	v.SetDefault(configKeyLogFormat, logFormatTint)
	v.SetDefault(configKeyLogMaxSizeMB, 10)
	v.SetDefault(configKeyLogMaxBackups, 5)
	v.SetDefault(configKeyLogMaxAgeDays, 30)
}
