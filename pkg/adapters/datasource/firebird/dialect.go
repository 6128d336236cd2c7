package firebird

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Dialect implements datasource.Dialect for Firebird 2.5 and later.
type Dialect struct{}

func (Dialect) Name() string { return "firebird" }

var plainIdentifier = regexp.MustCompile(`^[A-Z][A-Z0-9_$]*$`)

// QuoteIdentifier leaves regular upper-case names bare so statements also run
// on dialect 1 databases, and delimits everything else.
func (Dialect) QuoteIdentifier(name string) string {
	if plainIdentifier.MatchString(name) {
		return name
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Rebind is a no-op: firebirdsql uses "?" placeholders.
func (Dialect) Rebind(query string) string { return query }

// Limit rewrites "SELECT ..." to "SELECT FIRST n ...".
func (Dialect) Limit(query string, n int) string {
	trimmed := strings.TrimLeft(query, " \t\r\n")
	if len(trimmed) >= 6 && strings.EqualFold(trimmed[:6], "SELECT") {
		return fmt.Sprintf("SELECT FIRST %d%s", n, trimmed[6:])
	}
	return query
}

// ContainsPredicate uses CONTAINING, which is case-insensitive for WIN1251 text.
func (Dialect) ContainsPredicate(column string) string {
	return column + " CONTAINING ?"
}

func (Dialect) Upper(expr string) string {
	return "UPPER(" + expr + ")"
}

func (Dialect) CharLength(expr string) string {
	return "CHAR_LENGTH(" + expr + ")"
}

// ProcedureCall returns SELECT * FROM p(...) for selectable procedures and
// EXECUTE PROCEDURE p ... for executable ones.
func (d Dialect) ProcedureCall(name string, nargs int, selectable bool) (string, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", nargs), ", ")
	quoted := d.QuoteIdentifier(name)
	if selectable {
		if nargs == 0 {
			return "SELECT * FROM " + quoted, nil
		}
		return "SELECT * FROM " + quoted + "(" + placeholders + ")", nil
	}
	if nargs == 0 {
		return "EXECUTE PROCEDURE " + quoted, nil
	}
	return "EXECUTE PROCEDURE " + quoted + " " + placeholders, nil
}

// NextValue increments a generator with GEN_ID.
func (d Dialect) NextValue(ctx context.Context, q datasource.Querier, generator string) (int64, error) {
	var next int64
	query := fmt.Sprintf("SELECT GEN_ID(%s, 1) FROM RDB$DATABASE", d.QuoteIdentifier(generator))
	if err := q.QueryRowContext(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("advance generator %s: %w", generator, err)
	}
	return next, nil
}

var _ datasource.Dialect = Dialect{}
