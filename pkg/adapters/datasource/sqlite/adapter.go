package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// DriverName is the database/sql driver registered by modernc.org/sqlite.
const DriverName = "sqlite"

// Adapter provides SQLite connectivity.
type Adapter struct {
	*datasource.SQLConnection
	config *Config
}

// NewAdapter opens the session connection through connMgr, or an owned
// handle when connMgr is nil.
func NewAdapter(ctx context.Context, cfg *Config, connMgr *datasource.ConnectionManager, profile, sessionKey string) (*Adapter, error) {
	db, owned, err := datasource.OpenManaged(ctx, connMgr, profile, sessionKey, DriverName, cfg.DSN(), 0)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		SQLConnection: datasource.NewSQLConnection(db, Dialect{}, NewCatalog(db), owned),
		config:        cfg,
	}, nil
}

// Wrap binds an already open handle, used by fixtures. The caller keeps ownership.
func Wrap(db *sql.DB) datasource.Connection {
	return datasource.NewSQLConnection(db, Dialect{}, NewCatalog(db), false)
}

var _ datasource.Connection = (*Adapter)(nil)
