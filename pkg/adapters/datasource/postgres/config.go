package postgres

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Config contains PostgreSQL-specific connection options.
type Config struct {
	Host           string
	Port           int
	User           string
	Password       string
	Database       string
	SSLMode        string // "disable", "require", "verify-ca", "verify-full"
	ConnectTimeout time.Duration
}

// DefaultPort returns the default PostgreSQL port.
func DefaultPort() int {
	return 5432
}

// DefaultSSLMode returns the default SSL mode.
func DefaultSSLMode() string {
	return "prefer"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Host:     datasource.StringOption(config, "host", ""),
		Port:     datasource.IntOption(config, "port", DefaultPort()),
		User:     datasource.StringOption(config, "user", ""),
		Database: datasource.StringOption(config, "database", ""),
		SSLMode:  datasource.StringOption(config, "ssl_mode", DefaultSSLMode()),
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("user is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}
	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}
	if timeout, ok := config["connect_timeout"].(time.Duration); ok {
		cfg.ConnectTimeout = timeout
	}
	return cfg, nil
}

// ConnectionString builds a PostgreSQL URL with proper escaping.
// All user-provided fields are escaped so passwords containing @, /, # or ?
// do not break URL parsing.
func (c *Config) ConnectionString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}
