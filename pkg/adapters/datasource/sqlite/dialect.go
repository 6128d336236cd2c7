package sqlite

import (
	"context"
	"database/sql/driver"
	"fmt"
	"strings"

	sqlitedrv "modernc.org/sqlite"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// casefoldFunction and upperFunction change case with Unicode rules; the
// built-in lower() and upper() only handle ASCII, which misses Cyrillic text.
const (
	casefoldFunction = "casefold"
	upperFunction    = "unicode_upper"
)

func init() {
	register(casefoldFunction, strings.ToLower)
	register(upperFunction, strings.ToUpper)
}

func register(name string, fn func(string) string) {
	if err := sqlitedrv.RegisterScalarFunction(name, 1, func(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return fn(v), nil
		case []byte:
			return fn(string(v)), nil
		default:
			return v, nil
		}
	}); err != nil {
		panic(fmt.Sprintf("register %s: %v", name, err))
	}
}

// Dialect implements datasource.Dialect for SQLite.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (Dialect) Rebind(query string) string { return query }

func (Dialect) Limit(query string, n int) string {
	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(query, " \t\r\n;"), n)
}

func (Dialect) ContainsPredicate(column string) string {
	return fmt.Sprintf("instr(%s(%s), %s(?)) > 0", casefoldFunction, column, casefoldFunction)
}

func (Dialect) Upper(expr string) string {
	return upperFunction + "(" + expr + ")"
}

func (Dialect) CharLength(expr string) string {
	return "length(" + expr + ")"
}

// ProcedureCall always fails: SQLite has no stored routines.
func (Dialect) ProcedureCall(string, int, bool) (string, error) {
	return "", datasource.ErrUnsupported
}

// NextValue always fails: SQLite has no generators. Callers fall back to MAX+1.
func (Dialect) NextValue(context.Context, datasource.Querier, string) (int64, error) {
	return 0, datasource.ErrUnsupported
}

var _ datasource.Dialect = Dialect{}
