package datasource

import (
	"context"
	"database/sql"
	"errors"
)

// ErrUnsupported is returned by dialects for features the database does not have
// (stored procedures in SQLite, sequences in old installations).
var ErrUnsupported = errors.New("not supported by this database")

// Querier is the subset of *sql.DB and *sql.Tx used by the engine.
// Services accept a Querier so the same code runs inside and outside a transaction.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ConnectionTester tests database connectivity.
type ConnectionTester interface {
	// TestConnection verifies the database is reachable with valid credentials.
	TestConnection(ctx context.Context) error

	// Close releases the connection unless it is owned by the ConnectionManager.
	Close() error
}

// CatalogReader reads system-catalog metadata. Implementations only issue reads.
type CatalogReader interface {
	// ListProcedures returns user-defined stored routines.
	ListProcedures(ctx context.Context) ([]ProcedureMetadata, error)

	// ProcedureParameters returns input parameters in call order followed by outputs.
	ProcedureParameters(ctx context.Context, procedure string) ([]ParameterMetadata, error)

	// ListTables returns user tables (no views, no system relations).
	ListTables(ctx context.Context) ([]TableMetadata, error)

	// TableColumns returns the columns of one table ordered by position.
	TableColumns(ctx context.Context, table string) ([]ColumnMetadata, error)

	// ListGenerators returns sequence/generator names.
	ListGenerators(ctx context.Context) ([]string, error)
}

// Dialect builds statements for one SQL flavor. Statements passed to Rebind use
// "?" placeholders.
type Dialect interface {
	// Name returns the driver name ("firebird", "sqlite", ...).
	Name() string

	// QuoteIdentifier quotes a table or column name discovered from metadata.
	QuoteIdentifier(name string) string

	// Rebind converts "?" placeholders to the driver's native form.
	Rebind(query string) string

	// Limit bounds a statement starting with SELECT to n rows.
	Limit(query string, n int) string

	// ContainsPredicate returns a case-insensitive substring test of column
	// against one placeholder.
	ContainsPredicate(column string) string

	// Upper wraps expr in an upper-case function that handles non-ASCII text.
	// Callers upper-case bound arguments in Go; Firebird cannot type a
	// parameter inside UPPER().
	Upper(expr string) string

	// CharLength wraps expr in the dialect's character length function.
	CharLength(expr string) string

	// ProcedureCall returns the statement invoking a routine with nargs placeholders.
	// Returns ErrUnsupported when the database has no stored routines.
	ProcedureCall(name string, nargs int, selectable bool) (string, error)

	// NextValue advances a generator/sequence and returns the new value.
	// Returns ErrUnsupported when the database has no generators.
	NextValue(ctx context.Context, q Querier, generator string) (int64, error)
}

// Connection is an open accounting database connection bound to its dialect.
type Connection interface {
	ConnectionTester

	// DB returns the underlying handle. One connection per operator session.
	DB() *sql.DB

	// Dialect returns the SQL flavor of the connection.
	Dialect() Dialect

	// Catalog returns the metadata reader of the connection.
	Catalog() CatalogReader
}
