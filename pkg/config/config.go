package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when CONFIG_FILE is not set.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for ekaya-intake.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (session secret, credentials key) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// ProfilesPath points at the connection profile registry (YAML or JSON).
	ProfilesPath string `yaml:"profiles_path" env:"PROFILES_PATH" env-default:"profiles.yaml"`

	Delivery    DeliveryConfig    `yaml:"delivery"`
	Resolver    ResolverConfig    `yaml:"resolver"`
	Connections ConnectionsConfig `yaml:"connections"`

	// SessionSecret signs the operator session cookie.
	SessionSecret string `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML

	// CredentialsKey opens "enc:"-prefixed values in the profile registry.
	// Generate with: openssl rand -base64 32
	CredentialsKey string `yaml:"-" env:"CREDENTIALS_KEY"` // Secret - not in YAML
}

// DeliveryConfig controls open-delivery writes.
type DeliveryConfig struct {
	// EnableWrites persists deliveries. When false every push is a dry run.
	EnableWrites bool `yaml:"enable_writes" env:"MV_ENABLE_OPEN_DELIVERY" env-default:"false"`
	// ChoiceTimeout bounds the wait for a manual candidate choice. Zero waits indefinitely.
	ChoiceTimeout time.Duration `yaml:"choice_timeout" env:"DELIVERY_CHOICE_TIMEOUT" env-default:"0s"`
}

// ResolverConfig tunes line item resolution.
type ResolverConfig struct {
	MaxCandidates      int     `yaml:"max_candidates" env:"RESOLVER_MAX_CANDIDATES" env-default:"3"`
	NameMinScore       float64 `yaml:"name_min_score" env:"RESOLVER_NAME_MIN_SCORE" env-default:"0.45"`
	NamePrefilterLimit int     `yaml:"name_prefilter_limit" env:"RESOLVER_NAME_PREFILTER_LIMIT" env-default:"50"`
}

// ConnectionsConfig holds accounting database connection management settings.
type ConnectionsConfig struct {
	// TTLMinutes is how long an idle operator session keeps its connection.
	TTLMinutes int `yaml:"ttl_minutes" env:"CONNECTION_TTL_MINUTES" env-default:"30"`
	// MaxPerProfile limits concurrent sessions against one profile.
	MaxPerProfile int `yaml:"max_per_profile" env:"CONNECTION_MAX_PER_PROFILE" env-default:"20"`
	// ConnectTimeout bounds opening and pinging a connection.
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECTION_TIMEOUT" env-default:"10s"`
}

// Load reads configuration from CONFIG_FILE (default config.yaml) with environment
// variable overrides. A missing file is not an error; environment and defaults apply.
func Load(version string) (*Config, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = DefaultConfigFile
	}
	return LoadFile(path, version)
}

// LoadFile reads configuration from path with environment variable overrides.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DryRun reports whether delivery pushes must not persist rows.
func (c *Config) DryRun() bool {
	return !c.Delivery.EnableWrites
}

func (c *Config) validate() error {
	if err := c.validateTLS(); err != nil {
		return err
	}
	if c.Resolver.MaxCandidates < 1 {
		return fmt.Errorf("resolver.max_candidates must be at least 1, got %d", c.Resolver.MaxCandidates)
	}
	if c.Resolver.NameMinScore < 0 || c.Resolver.NameMinScore > 1 {
		return fmt.Errorf("resolver.name_min_score must be within [0, 1], got %v", c.Resolver.NameMinScore)
	}
	if c.Delivery.ChoiceTimeout < 0 {
		return fmt.Errorf("delivery.choice_timeout must not be negative")
	}
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}
