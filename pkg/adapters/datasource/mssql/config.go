package mssql

import (
	"fmt"
	"net/url"
	"time"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Config contains SQL Server-specific connection options.
type Config struct {
	Host     string
	Port     int
	Database string

	// AuthMethod determines which authentication to use.
	// Options: "sql", "service_principal"
	AuthMethod string

	// SQL Authentication fields
	Username string
	Password string

	// Service Principal (Azure AD) fields
	TenantID     string
	ClientID     string
	ClientSecret string

	// Connection options
	Encrypt                bool
	TrustServerCertificate bool
	ConnectionTimeout      int
	ConnectTimeout         time.Duration
}

// DefaultPort returns the default SQL Server port.
func DefaultPort() int {
	return 1433
}

// DefaultConnectionTimeout returns the default connection timeout in seconds.
func DefaultConnectionTimeout() int {
	return 30
}

// FromMap creates a Config from a generic config map and auto-detects auth method.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Host:              datasource.StringOption(config, "host", ""),
		Port:              datasource.IntOption(config, "port", DefaultPort()),
		Database:          datasource.StringOption(config, "database", ""),
		Encrypt:           true,
		ConnectionTimeout: datasource.IntOption(config, "connection_timeout", DefaultConnectionTimeout()),
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("database is required")
	}

	if encrypt, ok := config["encrypt"].(bool); ok {
		cfg.Encrypt = encrypt
	} else if encryptStr, ok := config["encrypt"].(string); ok {
		// Support string values: "true", "false", "strict"
		cfg.Encrypt = encryptStr == "true" || encryptStr == "strict"
	}
	if trust, ok := config["trust_server_certificate"].(bool); ok {
		cfg.TrustServerCertificate = trust
	}
	if timeout, ok := config["connect_timeout"].(time.Duration); ok {
		cfg.ConnectTimeout = timeout
	}

	// Priority: explicit auth_method > client_id > user
	switch {
	case datasource.StringOption(config, "auth_method", "") != "":
		cfg.AuthMethod = datasource.StringOption(config, "auth_method", "")
	case datasource.StringOption(config, "client_id", "") != "":
		cfg.AuthMethod = "service_principal"
	case datasource.StringOption(config, "user", "") != "":
		cfg.AuthMethod = "sql"
	default:
		return nil, fmt.Errorf("could not auto-detect auth method; no credentials provided")
	}

	switch cfg.AuthMethod {
	case "sql":
		cfg.Username = datasource.StringOption(config, "user", "")
		if password, ok := config["password"].(string); ok {
			cfg.Password = password
		}
	case "service_principal":
		cfg.TenantID = datasource.StringOption(config, "tenant_id", "")
		cfg.ClientID = datasource.StringOption(config, "client_id", "")
		cfg.ClientSecret = datasource.StringOption(config, "client_secret", "")
	default:
		return nil, fmt.Errorf("invalid auth method: %s (must be sql or service_principal)", cfg.AuthMethod)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks if the config has all required fields for the selected auth method.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}

	switch c.AuthMethod {
	case "sql":
		if c.Username == "" {
			return fmt.Errorf("username is required for SQL authentication")
		}
	case "service_principal":
		if c.TenantID == "" {
			return fmt.Errorf("tenant_id is required for service principal")
		}
		if c.ClientID == "" {
			return fmt.Errorf("client_id is required for service principal")
		}
		if c.ClientSecret == "" {
			return fmt.Errorf("client_secret is required for service principal")
		}
	default:
		return fmt.Errorf("invalid auth method: %s", c.AuthMethod)
	}
	return nil
}

// DriverAndDSN returns the database/sql driver and connection string for the
// auth method. Service principals go through the azuresql driver with fedauth.
func (c *Config) DriverAndDSN() (string, string) {
	query := url.Values{}
	query.Add("database", c.Database)
	if c.Encrypt {
		query.Add("encrypt", "true")
	} else {
		query.Add("encrypt", "false")
	}
	if c.TrustServerCertificate {
		query.Add("TrustServerCertificate", "true")
	}
	if c.ConnectionTimeout > 0 {
		query.Add("connection timeout", fmt.Sprintf("%d", c.ConnectionTimeout))
	}

	u := url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
	}

	if c.AuthMethod == "service_principal" {
		query.Add("fedauth", "ActiveDirectoryServicePrincipal")
		query.Add("user id", c.ClientID+"@"+c.TenantID)
		query.Add("password", c.ClientSecret)
		u.RawQuery = query.Encode()
		return "azuresql", u.String()
	}

	u.User = url.UserPassword(c.Username, c.Password)
	u.RawQuery = query.Encode()
	return "sqlserver", u.String()
}
