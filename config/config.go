// Package config provides Viper-based configuration loading for the table server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds the listening endpoint.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GameConfig holds session lifecycle settings.
type GameConfig struct {
	// SweepInterval is how often expired sessions are reclaimed.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// GracePeriod is how long an empty session is kept before it may be swept.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// RejectConflicts drops a conflicting action instead of closing the connection.
	RejectConflicts bool `mapstructure:"reject_conflicts"`
	// Layout is a path to a YAML table layout; empty selects the built-in one.
	Layout string `mapstructure:"layout"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Game    GameConfig    `mapstructure:"game"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Game.SweepInterval <= 0 {
		errs = append(errs, fmt.Sprintf("game.sweep_interval must be positive, got %s", c.Game.SweepInterval))
	}
	if c.Game.GracePeriod < 0 {
		errs = append(errs, "game.grace_period must not be negative")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", c.Logging.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given YAML file, if any, applies
// TABLETOP_* environment overrides, and validates the result.
//
// Precondition: path is empty or names a readable YAML file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetEnvPrefix("TABLETOP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("game.sweep_interval", "5s")
	v.SetDefault("game.grace_period", "5m")
	v.SetDefault("game.reject_conflicts", false)
	v.SetDefault("game.layout", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
