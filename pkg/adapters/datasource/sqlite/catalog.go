package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Catalog implements datasource.CatalogReader over sqlite_master.
type Catalog struct {
	db datasource.Querier
}

// NewCatalog creates a catalog reader.
func NewCatalog(db datasource.Querier) *Catalog {
	return &Catalog{db: db}
}

// ListProcedures returns nothing: SQLite has no stored routines.
func (c *Catalog) ListProcedures(context.Context) ([]datasource.ProcedureMetadata, error) {
	return nil, nil
}

func (c *Catalog) ProcedureParameters(_ context.Context, procedure string) ([]datasource.ParameterMetadata, error) {
	return nil, fmt.Errorf("procedure %s: %w", procedure, datasource.ErrUnsupported)
}

func (c *Catalog) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, datasource.TableMetadata{Name: name})
	}
	return tables, rows.Err()
}

func (c *Catalog) TableColumns(ctx context.Context, table string) ([]datasource.ColumnMetadata, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT cid, name, type, pk FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []datasource.ColumnMetadata
	for rows.Next() {
		var (
			cid, pk  int
			name     string
			declType string
		)
		if err := rows.Scan(&cid, &name, &declType, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, datasource.ColumnMetadata{
			Name:         name,
			DataType:     strings.ToUpper(declType),
			Length:       datasource.DeclaredLength(declType),
			IsPrimaryKey: pk > 0,
			Position:     cid,
		})
	}
	return cols, rows.Err()
}

// ListGenerators returns nothing: SQLite has no generators.
func (c *Catalog) ListGenerators(context.Context) ([]string, error) {
	return nil, nil
}

var _ datasource.CatalogReader = (*Catalog)(nil)
