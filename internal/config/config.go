// Package config provides configuration management for the warden gateway
// using Viper for flexible loading from files, environment variables, and
// command-line flags.
//
// Configuration is read from .warden.yml with WARDEN_-prefixed environment
// overrides. It covers the listen address and endpoint, the credential and
// session policy, rate-limit capacities per category, the command
// allow-list, and host hand-off settings.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/errors"
)

type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Security  SecurityConfig  `yaml:"security" mapstructure:"security"`
	Whitelist WhitelistConfig `yaml:"whitelist" mapstructure:"whitelist"`
	Host      HostConfig      `yaml:"host" mapstructure:"host"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

type ServerConfig struct {
	Host                 string   `yaml:"host" mapstructure:"host"`
	Port                 int      `yaml:"port" mapstructure:"port"`
	Endpoint             string   `yaml:"endpoint" mapstructure:"endpoint"`
	AllowedOrigins       []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	LocalhostOnly        bool     `yaml:"localhost_only" mapstructure:"localhost_only"`
	MaxStreamSubscribers int      `yaml:"max_stream_subscribers" mapstructure:"max_stream_subscribers"`
}

type SecurityConfig struct {
	AuthEnabled           bool            `yaml:"auth_enabled" mapstructure:"auth_enabled"`
	APIKey                string          `yaml:"api_key" mapstructure:"api_key"`
	SessionTimeoutMinutes int             `yaml:"session_timeout_minutes" mapstructure:"session_timeout_minutes"`
	MaxAuthAttempts       int             `yaml:"max_auth_attempts" mapstructure:"max_auth_attempts"`
	BanDurationMinutes    int             `yaml:"ban_duration_minutes" mapstructure:"ban_duration_minutes"`
	RateLimit             RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// RateLimitConfig holds per-category token bucket capacities. Capacity
// and refill rate are the same number: a full bucket of N refills at
// N tokens per minute.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" mapstructure:"enabled"`
	AuthPerMinute     int  `yaml:"auth_per_minute" mapstructure:"auth_per_minute"`
	CommandsPerMinute int  `yaml:"commands_per_minute" mapstructure:"commands_per_minute"`
	RequestsPerMinute int  `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

type WhitelistConfig struct {
	Enabled  bool     `yaml:"enabled" mapstructure:"enabled"`
	Commands []string `yaml:"commands" mapstructure:"commands"`
}

type HostConfig struct {
	ExecTimeout time.Duration `yaml:"exec_timeout" mapstructure:"exec_timeout"`
	LogBuffer   int           `yaml:"log_buffer" mapstructure:"log_buffer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SessionTimeout returns the configured session timeout as a duration.
// Zero means sessions never expire by sweep.
func (s *SecurityConfig) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutMinutes) * time.Minute
}

// BanDuration returns the configured temporary ban duration.
func (s *SecurityConfig) BanDuration() time.Duration {
	return time.Duration(s.BanDurationMinutes) * time.Minute
}

// Default returns the built-in defaults, matching the generated
// .warden.yml.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                 "127.0.0.1",
			Port:                 25575,
			Endpoint:             "/mcp",
			AllowedOrigins:       []string{"*"},
			LocalhostOnly:        true,
			MaxStreamSubscribers: 5,
		},
		Security: SecurityConfig{
			AuthEnabled:           true,
			SessionTimeoutMinutes: 30,
			MaxAuthAttempts:       5,
			BanDurationMinutes:    15,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				AuthPerMinute:     10,
				CommandsPerMinute: 30,
				RequestsPerMinute: 120,
			},
		},
		Whitelist: WhitelistConfig{
			Enabled:  true,
			Commands: []string{"say", "list", "time", "weather", "whitelist*"},
		},
		Host: HostConfig{
			ExecTimeout: 2 * time.Second,
			LogBuffer:   500,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds a Config from viper's current state, applies defaults for
// anything unset, and validates the result.
func Load() (*Config, error) {
	config := Default()

	if err := viper.Unmarshal(config); err != nil {
		return nil, err
	}

	// Viper merges zero values over defaults for unset slices; restore
	// the default allow-list only when the key was never provided.
	if !viper.IsSet("whitelist.commands") && len(config.Whitelist.Commands) == 0 {
		config.Whitelist.Commands = Default().Whitelist.Commands
	}
	if viper.IsSet("server.allowed_origins") {
		config.Server.AllowedOrigins = viper.GetStringSlice("server.allowed_origins")
	}

	if config.Host.ExecTimeout <= 0 {
		config.Host.ExecTimeout = Default().Host.ExecTimeout
	}
	if config.Host.LogBuffer <= 0 {
		config.Host.LogBuffer = Default().Host.LogBuffer
	}

	if err := Validate(config); err != nil {
		return nil, errors.NewConfigError("invalid configuration: " + err.Error())
	}

	return config, nil
}

// Validate checks configuration values for security and correctness.
func Validate(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := validateSecurityConfig(&config.Security); err != nil {
		return fmt.Errorf("security config: %w", err)
	}

	return nil
}

func validateServerConfig(config *ServerConfig) error {
	// Port 0 is allowed for system-assigned ports in testing.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	if config.Endpoint == "" || !strings.HasPrefix(config.Endpoint, "/") {
		return fmt.Errorf("endpoint must start with '/': %q", config.Endpoint)
	}

	if config.MaxStreamSubscribers < 1 {
		return fmt.Errorf("max_stream_subscribers must be at least 1, got %d", config.MaxStreamSubscribers)
	}

	return nil
}

func validateSecurityConfig(config *SecurityConfig) error {
	if config.AuthEnabled && config.APIKey == "" {
		return fmt.Errorf("api_key is required when auth_enabled is true")
	}

	if config.SessionTimeoutMinutes < 0 {
		return fmt.Errorf("session_timeout_minutes must not be negative")
	}
	if config.MaxAuthAttempts < 0 {
		return fmt.Errorf("max_auth_attempts must not be negative")
	}
	if config.BanDurationMinutes < 0 {
		return fmt.Errorf("ban_duration_minutes must not be negative")
	}

	rl := &config.RateLimit
	if rl.Enabled {
		if rl.AuthPerMinute < 1 || rl.CommandsPerMinute < 1 || rl.RequestsPerMinute < 1 {
			return fmt.Errorf("rate limit capacities must be at least 1 per minute when enabled")
		}
	}

	return nil
}
