package firebird

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Config contains Firebird-specific connection options.
type Config struct {
	Host           string
	Port           int
	Database       string // server-side path or alias of the .fdb file
	User           string
	Password       string
	Charset        string
	Role           string
	ConnectTimeout time.Duration
}

// DefaultPort returns the default Firebird port.
func DefaultPort() int {
	return 3050
}

// DefaultCharset returns the connection character set of Mistral databases.
func DefaultCharset() string {
	return "WIN1251"
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Host:     datasource.StringOption(config, "host", "localhost"),
		Port:     datasource.IntOption(config, "port", DefaultPort()),
		Database: datasource.StringOption(config, "database", ""),
		User:     datasource.StringOption(config, "user", "SYSDBA"),
		Charset:  datasource.StringOption(config, "charset", DefaultCharset()),
		Role:     datasource.StringOption(config, "role", ""),
	}
	if password, ok := config["password"].(string); ok {
		cfg.Password = password
	}
	if timeout, ok := config["connect_timeout"].(time.Duration); ok {
		cfg.ConnectTimeout = timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	return nil
}

// DSN builds a firebirdsql connection string. Credentials are escaped so
// passwords containing '@', '/' or ':' survive parsing. Database paths are
// appended after the host separator: "/srv/m.fdb" becomes "host:3050//srv/m.fdb".
func (c *Config) DSN() string {
	database := strings.ReplaceAll(c.Database, `\`, "/")

	params := url.Values{}
	if c.Charset != "" {
		params.Set("charset", c.Charset)
	}
	if c.Role != "" {
		params.Set("role", c.Role)
	}

	dsn := fmt.Sprintf("%s@%s:%d/%s",
		url.UserPassword(c.User, c.Password).String(),
		c.Host,
		c.Port,
		database,
	)
	if len(params) > 0 {
		dsn += "?" + params.Encode()
	}
	return dsn
}
