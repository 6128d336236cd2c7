package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLConnection binds a *sql.DB to its dialect and catalog reader. Adapters
// build their Connection on top of it.
type SQLConnection struct {
	db      *sql.DB
	dialect Dialect
	catalog CatalogReader
	owned   bool // true if Close should close db (no ConnectionManager)
}

// NewSQLConnection wraps db. When owned is false the handle belongs to the
// ConnectionManager and Close is a no-op.
func NewSQLConnection(db *sql.DB, dialect Dialect, catalog CatalogReader, owned bool) *SQLConnection {
	return &SQLConnection{
		db:      db,
		dialect: dialect,
		catalog: catalog,
		owned:   owned,
	}
}

// TestConnection verifies the database is reachable.
func (c *SQLConnection) TestConnection(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	var one int
	if err := c.db.QueryRowContext(ctx, c.dialect.Limit("SELECT 1 FROM "+oneRowSource(c.dialect.Name()), 1)).Scan(&one); err != nil {
		return fmt.Errorf("test query: %w", err)
	}
	return nil
}

// oneRowSource names a one-row relation in the dialect.
func oneRowSource(dialect string) string {
	if dialect == "firebird" {
		return "RDB$DATABASE"
	}
	return "(SELECT 1 AS one) t"
}

// Close closes the handle if this connection owns it.
func (c *SQLConnection) Close() error {
	if c.owned && c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *SQLConnection) DB() *sql.DB            { return c.db }
func (c *SQLConnection) Dialect() Dialect       { return c.dialect }
func (c *SQLConnection) Catalog() CatalogReader { return c.catalog }

var _ Connection = (*SQLConnection)(nil)

// OpenManaged returns a session handle from connMgr, or a private handle when
// connMgr is nil. The bool result reports whether the caller owns the handle.
func OpenManaged(ctx context.Context, connMgr *ConnectionManager, profile, sessionKey, driver, dsn string, timeout time.Duration) (*sql.DB, bool, error) {
	if connMgr == nil {
		db, err := OpenDB(ctx, driver, dsn, timeout)
		if err != nil {
			return nil, false, err
		}
		return db, true, nil
	}
	db, err := connMgr.GetOrOpen(ctx, profile, sessionKey, driver, dsn)
	if err != nil {
		return nil, false, err
	}
	return db, false, nil
}

// StringOption reads a string from an adapter config map.
func StringOption(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// IntOption reads an integer from an adapter config map. JSON numbers arrive as float64.
func IntOption(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		if v != 0 {
			return v
		}
	case int64:
		if v != 0 {
			return int(v)
		}
	case float64:
		if v != 0 {
			return int(v)
		}
	}
	return fallback
}
