package config

import (
	"fmt"
	"log/slog"
)

// Reloader re-reads the configuration file and falls back to the last good
// configuration when the file is unreadable, malformed or invalid.
type Reloader struct {
	current *Config
	logger  *slog.Logger
	path    string
}

// NewReloader creates a reloader seeded with an already validated config.
func NewReloader(path string, initial *Config, logger *slog.Logger) *Reloader {
	return &Reloader{
		current: initial,
		logger:  logger,
		path:    path,
	}
}

// LoadValid loads the file at path and validates it.
func LoadValid(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Reload returns the freshly loaded configuration, or the previous one if
// the reload failed.
func (r *Reloader) Reload() *Config {
	cfg, err := LoadValid(r.path)
	if err != nil {
		r.logger.Warn("Config reload failed, keeping previous configuration", "path", r.path, "error", err)
		return r.current
	}
	r.current = cfg
	return cfg
}

// Current returns the last good configuration.
func (r *Reloader) Current() *Config {
	return r.current
}
