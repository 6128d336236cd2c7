package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Dialect implements datasource.Dialect for PostgreSQL copies of a Mistral database.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Dialect) Rebind(query string) string {
	return datasource.RebindNumbered(query, "$")
}

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(query, " \t\r\n;"), n)
}

func (Dialect) ContainsPredicate(column string) string {
	return fmt.Sprintf("strpos(lower(%s), lower(?)) > 0", column)
}

func (Dialect) Upper(expr string) string {
	return "upper(" + expr + ")"
}

func (Dialect) CharLength(expr string) string {
	return "char_length(" + expr + ")"
}

// ProcedureCall selects from set-returning functions and CALLs procedures.
func (d Dialect) ProcedureCall(name string, nargs int, selectable bool) (string, error) {
	args := strings.TrimSuffix(strings.Repeat("?, ", nargs), ", ")
	if selectable {
		return fmt.Sprintf("SELECT * FROM %s(%s)", d.QuoteIdentifier(name), args), nil
	}
	return fmt.Sprintf("CALL %s(%s)", d.QuoteIdentifier(name), args), nil
}

// NextValue advances a sequence with nextval.
func (Dialect) NextValue(ctx context.Context, q datasource.Querier, generator string) (int64, error) {
	var next int64
	if err := q.QueryRowContext(ctx, "SELECT nextval($1::regclass)", pgx.Identifier{generator}.Sanitize()).Scan(&next); err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", generator, err)
	}
	return next, nil
}

var _ datasource.Dialect = Dialect{}
