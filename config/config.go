// Package config loads the service configuration from an optional
// argus.yaml file, with ARGUS_-prefixed environment variables taking
// precedence over file values and built-in defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the Argus logtest service.
type Config struct {
	Server struct {
		Host            string        `mapstructure:"host"`
		Port            int           `mapstructure:"port"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
		RateLimit       struct {
			RequestsPerSecond int `mapstructure:"requests_per_second"`
			Burst             int `mapstructure:"burst"`
		} `mapstructure:"rate_limit"`
	} `mapstructure:"server"`

	Logtest struct {
		// MaxSessions caps concurrent sessions; 0 disables the cap.
		MaxSessions int `mapstructure:"max_sessions"`
		// SessionIdleTTL closes sessions with no traffic for this
		// long; 0 disables idle expiry.
		SessionIdleTTL time.Duration `mapstructure:"session_idle_ttl"`
		// RegexTimeout bounds a single pattern evaluation.
		RegexTimeout time.Duration `mapstructure:"regex_timeout"`
		// DisablePrefilter turns off the decoder literal prefilter.
		DisablePrefilter bool `mapstructure:"disable_prefilter"`
	} `mapstructure:"logtest"`

	Ruleset struct {
		DecodersPath string `mapstructure:"decoders_path"`
		RulesPath    string `mapstructure:"rules_path"`
		ListsPath    string `mapstructure:"lists_path"`
	} `mapstructure:"ruleset"`

	Logging struct {
		// Level is one of debug, info, warn, error.
		Level string `mapstructure:"level"`
	} `mapstructure:"logging"`
}

// LoadConfig reads configuration from file, environment and defaults.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8087)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit.requests_per_second", 50)
	v.SetDefault("server.rate_limit.burst", 100)

	v.SetDefault("logtest.max_sessions", 64)
	v.SetDefault("logtest.session_idle_ttl", 15*time.Minute)
	v.SetDefault("logtest.regex_timeout", 500*time.Millisecond)
	v.SetDefault("logtest.disable_prefilter", false)

	v.SetDefault("ruleset.decoders_path", "ruleset/decoders.yaml")
	v.SetDefault("ruleset.rules_path", "ruleset/rules.yaml")
	v.SetDefault("ruleset.lists_path", "ruleset/lists.yaml")

	v.SetDefault("logging.level", "info")

	v.SetConfigName("argus")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/argus")

	v.SetEnvPrefix("ARGUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Logtest.MaxSessions < 0 {
		return fmt.Errorf("logtest.max_sessions cannot be negative")
	}
	if c.Logtest.RegexTimeout <= 0 {
		return fmt.Errorf("logtest.regex_timeout must be positive")
	}
	if c.Ruleset.DecodersPath == "" {
		return fmt.Errorf("ruleset.decoders_path is required")
	}
	if c.Ruleset.RulesPath == "" {
		return fmt.Errorf("ruleset.rules_path is required")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	return nil
}
