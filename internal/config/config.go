// ABOUTME: Configuration loading and parsing for pasarbot
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete pasarbot configuration
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Telegram TelegramConfig `yaml:"telegram"`
	AdminAPI AdminAPIConfig `yaml:"admin_api"`
	Guard    GuardConfig    `yaml:"guard"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Modes    ModesConfig    `yaml:"modes"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// TelegramConfig holds the chat platform integration configuration
type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	// UpdateTimeout is the long-polling timeout in seconds
	UpdateTimeout int `yaml:"update_timeout"`
}

// AdminAPIConfig holds the operator HTTP API configuration
type AdminAPIConfig struct {
	Addr string `yaml:"addr"`
	// Token authenticates operator requests; requests without it are rejected
	Token string `yaml:"token"`
}

// GuardConfig holds dedup and rate limiting configuration
type GuardConfig struct {
	DedupTTL        time.Duration `yaml:"-"`
	RateWindow      time.Duration `yaml:"-"`
	MaxFingerprints int           `yaml:"max_fingerprints"`
	RateCeiling     int           `yaml:"rate_ceiling"`

	// Raw string values for YAML unmarshaling
	DedupTTLRaw   string `yaml:"dedup_ttl"`
	RateWindowRaw string `yaml:"rate_window"`
}

// DispatchConfig holds event routing configuration
type DispatchConfig struct {
	WelcomeCooldown time.Duration `yaml:"-"`
	FlowTimeout     time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	WelcomeCooldownRaw string `yaml:"welcome_cooldown"`
	FlowTimeoutRaw     string `yaml:"flow_timeout"`
}

// ModesConfig holds mode machine configuration
type ModesConfig struct {
	// ReleaseMode is the mode a user lands in when an operator releases the
	// conversation. Defaults to using_bot when empty.
	ReleaseMode string `yaml:"release_mode"`
}

// SessionConfig holds session persistence retry configuration
type SessionConfig struct {
	RetryInitialInterval time.Duration `yaml:"-"`
	RetryMaxAttempts     uint64        `yaml:"retry_max_attempts"`

	// Raw string value for YAML unmarshaling
	RetryInitialIntervalRaw string `yaml:"retry_initial_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required when telegram is enabled")
	}

	if c.AdminAPI.Addr != "" && c.AdminAPI.Token == "" {
		return fmt.Errorf("admin_api.token is required when admin_api.addr is set")
	}

	switch c.Modes.ReleaseMode {
	case "", "using_bot", "choosing":
	default:
		return fmt.Errorf("modes.release_mode must be using_bot or choosing, got %q", c.Modes.ReleaseMode)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Guard.DedupTTLRaw != "" {
		cfg.Guard.DedupTTL, err = time.ParseDuration(cfg.Guard.DedupTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedup_ttl %q: %w", cfg.Guard.DedupTTLRaw, err)
		}
	}

	if cfg.Guard.RateWindowRaw != "" {
		cfg.Guard.RateWindow, err = time.ParseDuration(cfg.Guard.RateWindowRaw)
		if err != nil {
			return fmt.Errorf("parsing rate_window %q: %w", cfg.Guard.RateWindowRaw, err)
		}
	}

	if cfg.Dispatch.WelcomeCooldownRaw != "" {
		cfg.Dispatch.WelcomeCooldown, err = time.ParseDuration(cfg.Dispatch.WelcomeCooldownRaw)
		if err != nil {
			return fmt.Errorf("parsing welcome_cooldown %q: %w", cfg.Dispatch.WelcomeCooldownRaw, err)
		}
	}

	if cfg.Dispatch.FlowTimeoutRaw != "" {
		cfg.Dispatch.FlowTimeout, err = time.ParseDuration(cfg.Dispatch.FlowTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing flow_timeout %q: %w", cfg.Dispatch.FlowTimeoutRaw, err)
		}
	}

	if cfg.Session.RetryInitialIntervalRaw != "" {
		cfg.Session.RetryInitialInterval, err = time.ParseDuration(cfg.Session.RetryInitialIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing retry_initial_interval %q: %w", cfg.Session.RetryInitialIntervalRaw, err)
		}
	}

	return nil
}
