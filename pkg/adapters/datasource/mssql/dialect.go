package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Dialect implements datasource.Dialect for SQL Server.
type Dialect struct{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) QuoteIdentifier(name string) string { return quoteName(name) }

func (Dialect) Rebind(query string) string {
	return datasource.RebindNumbered(query, "@p")
}

// Limit rewrites "SELECT ..." to "SELECT TOP (n) ...".
func (Dialect) Limit(query string, n int) string {
	trimmed := strings.TrimLeft(query, " \t\r\n")
	if len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "SELECT") {
		return fmt.Sprintf("SELECT TOP (%d)%s", n, trimmed[6:])
	}
	return query
}

func (Dialect) ContainsPredicate(column string) string {
	return fmt.Sprintf("CHARINDEX(LOWER(?), LOWER(%s)) > 0", column)
}

func (Dialect) Upper(expr string) string {
	return "UPPER(" + expr + ")"
}

func (Dialect) CharLength(expr string) string {
	return "LEN(" + expr + ")"
}

// ProcedureCall returns an EXEC statement; result sets are read the same way
// for both kinds of routine.
func (Dialect) ProcedureCall(name string, nargs int, _ bool) (string, error) {
	stmt := "EXEC " + quoteName(name)
	if nargs > 0 {
		stmt += " " + strings.TrimSuffix(strings.Repeat("?, ", nargs), ", ")
	}
	return stmt, nil
}

// NextValue advances a SEQUENCE object.
func (Dialect) NextValue(ctx context.Context, q datasource.Querier, generator string) (int64, error) {
	var next int64
	if err := q.QueryRowContext(ctx, "SELECT NEXT VALUE FOR "+quoteName(generator)).Scan(&next); err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", generator, err)
	}
	return next, nil
}

var _ datasource.Dialect = Dialect{}
