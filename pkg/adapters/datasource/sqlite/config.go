package sqlite

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Config contains SQLite connection options. Used for offline copies of a
// Mistral database and for test fixtures.
type Config struct {
	Path string
}

// FromMap creates a Config from a generic config map.
func FromMap(config map[string]any) (*Config, error) {
	cfg := &Config{
		Path: datasource.StringOption(config, "database", ""),
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("database is required")
	}
	return cfg, nil
}

// DSN returns the modernc.org/sqlite data source name. Plain paths get a
// busy timeout; "file:" URIs are used as given.
func (c *Config) DSN() string {
	if strings.HasPrefix(c.Path, "file:") {
		return c.Path
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", c.Path)
}
