// Package config loads runner settings from an optional YAML file and
// DOCKEXEC_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "dockexec/internal/errors"
	"dockexec/internal/validation"
)

const EnvPrefix = "DOCKEXEC"

// Config holds the settings shared by every run.
type Config struct {
	Runtime        string        `mapstructure:"runtime" validate:"required,oneof=docker"`
	GracePeriod    time.Duration `mapstructure:"grace_period" validate:"gt=0"`
	CleanupTimeout time.Duration `mapstructure:"cleanup_timeout" validate:"gt=0"`
	LogLevel       string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Runtime:        "docker",
		GracePeriod:    10 * time.Second,
		CleanupTimeout: 30 * time.Second,
		LogLevel:       "warn",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("runtime", d.Runtime)
	v.SetDefault("grace_period", d.GracePeriod)
	v.SetDefault("cleanup_timeout", d.CleanupTimeout)
	v.SetDefault("log_level", d.LogLevel)
}

// Load reads configuration from configFile, if non-empty, then applies
// environment overrides such as DOCKEXEC_GRACE_PERIOD=5s.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.NewConfigError(
				fmt.Sprintf("Failed to read config file %s", configFile),
				err.Error(),
				"Check that the file exists and is valid YAML",
				fmt.Errorf("failed to read config file: %w", err),
			)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigError(
			"Failed to decode configuration",
			err.Error(),
			"Durations use Go syntax such as 10s or 1m",
			fmt.Errorf("failed to decode config: %w", err),
		)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := validation.Struct(&cfg); err != nil {
		return nil, apperrors.NewConfigError(
			"Configuration is invalid",
			err.Error(),
			"Durations must be positive and log_level one of debug, info, warn, error",
			err,
		)
	}

	return &cfg, nil
}

// SlogLevel maps LogLevel onto a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

