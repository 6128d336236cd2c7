package mssql

import (
	"context"
	"fmt"
	"strings"

	_ "github.com/microsoft/go-mssqldb"         // SQL Server driver
	_ "github.com/microsoft/go-mssqldb/azuread" // Azure AD support

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Adapter provides SQL Server connectivity with SQL or service principal authentication.
type Adapter struct {
	*datasource.SQLConnection
	config *Config
}

// NewAdapter creates a SQL Server adapter with the given config.
// Uses the connection manager when provided.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, profile, sessionKey string) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	driver, dsn := cfg.DriverAndDSN()
	db, owned, err := datasource.OpenManaged(ctx, connMgr, profile, sessionKey, driver, dsn, cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		SQLConnection: datasource.NewSQLConnection(db, Dialect{}, NewCatalog(db), owned),
		config:        cfg,
	}, nil
}

// TestConnection verifies connectivity and the selected database.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.SQLConnection.TestConnection(ctx); err != nil {
		return err
	}

	var currentDB string
	if err := a.DB().QueryRowContext(ctx, "SELECT DB_NAME()").Scan(&currentDB); err != nil {
		return fmt.Errorf("failed to get current database name: %w", err)
	}
	if !strings.EqualFold(currentDB, a.config.Database) {
		return fmt.Errorf("connected to wrong database: expected %q but connected to %q", a.config.Database, currentDB)
	}
	return nil
}

var _ datasource.Connection = (*Adapter)(nil)
