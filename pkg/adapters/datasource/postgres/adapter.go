package postgres

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// DriverName is the database/sql driver registered by pgx.
const DriverName = "pgx"

// Adapter provides PostgreSQL connectivity.
type Adapter struct {
	*datasource.SQLConnection
	config *Config
}

// NewAdapter opens the session connection using the connection manager.
// If connMgr is nil, the adapter owns its handle (tests, diagnostics).
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, profile, sessionKey string) (*Adapter, error) {
	db, owned, err := datasource.OpenManaged(ctx, connMgr, profile, sessionKey, DriverName, cfg.ConnectionString(), cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		SQLConnection: datasource.NewSQLConnection(db, Dialect{}, NewCatalog(db), owned),
		config:        cfg,
	}, nil
}

// TestConnection verifies connectivity and that the server opened the
// configured database rather than a default one.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.SQLConnection.TestConnection(ctx); err != nil {
		return err
	}

	var currentDB string
	if err := a.DB().QueryRowContext(ctx, "SELECT current_database()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

var _ datasource.Connection = (*Adapter)(nil)
