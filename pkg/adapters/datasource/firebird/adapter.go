package firebird

import (
	"context"
	"fmt"

	_ "github.com/nakagami/firebirdsql" // Firebird driver
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// DriverName is the database/sql driver registered by firebirdsql.
const DriverName = "firebirdsql"

// Adapter provides Firebird connectivity for one operator session.
type Adapter struct {
	*datasource.SQLConnection
	config *Config
}

// NewAdapter opens the session connection. Uses the connection manager when
// provided; otherwise the adapter owns its handle (diagnostics CLI, tests).
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, profile, sessionKey string, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, owned, err := datasource.OpenManaged(ctx, connMgr, profile, sessionKey, DriverName, cfg.DSN(), cfg.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		SQLConnection: datasource.NewSQLConnection(db, Dialect{}, NewCatalog(db, logger), owned),
		config:        cfg,
	}, nil
}

var _ datasource.Connection = (*Adapter)(nil)
