package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional config
// file. Environment variables (WORDNEST_ prefix, dots as underscores) take
// precedence over file values, which take precedence over defaults.
// Returns a populated Config or an error if loading/validation fails.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.path", "wordnest.db")
	v.SetDefault("backend.base_url", "http://localhost:8080")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("sync.debounce_interval", 10*time.Second)
	v.SetDefault("sync.catalog_min_interval", 5*time.Minute)
	v.SetDefault("sync.catalog_max_age", 24*time.Hour)
	v.SetDefault("log.level", "info")

	v.SetEnvPrefix("WORDNEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	} else {
		v.SetConfigName("wordnest")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			// A missing default config file is fine; env and defaults apply.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
