// Package config loads and validates application configuration.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Database Database `mapstructure:"database" validate:"required"`
	Backend  Backend  `mapstructure:"backend" validate:"required"`
	Sync     Sync     `mapstructure:"sync" validate:"required"`
	Log      Log      `mapstructure:"log"`
	Gemini   Gemini   `mapstructure:"gemini"`
}

// Database contains local-store settings.
type Database struct {
	// Path is the sqlite database file; ":memory:" is accepted for tests.
	Path string `mapstructure:"path" validate:"required"`
}

// Backend contains settings for the consumed sync backend.
type Backend struct {
	BaseURL string        `mapstructure:"base_url" validate:"required,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// Sync contains orchestrator tuning.
type Sync struct {
	// DebounceInterval is the minimum gap between rounds for one child.
	DebounceInterval time.Duration `mapstructure:"debounce_interval" validate:"gt=0"`

	// CatalogMinInterval is the client-side rate limit between catalog pulls.
	CatalogMinInterval time.Duration `mapstructure:"catalog_min_interval" validate:"gt=0"`

	// CatalogMaxAge forces a catalog refresh once the cache is older than this.
	CatalogMaxAge time.Duration `mapstructure:"catalog_max_age" validate:"gt=0"`
}

// Log contains logging settings.
type Log struct {
	Level      string `mapstructure:"level"       validate:"omitempty,oneof=debug info warn error"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// Gemini contains settings for the optional definition generator.
type Gemini struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}
