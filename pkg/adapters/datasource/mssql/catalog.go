package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Catalog implements datasource.CatalogReader over sys and INFORMATION_SCHEMA views
// of the dbo schema.
type Catalog struct {
	db datasource.Querier
}

// NewCatalog creates a catalog reader.
func NewCatalog(db datasource.Querier) *Catalog {
	return &Catalog{db: db}
}

func (c *Catalog) ListProcedures(ctx context.Context) ([]datasource.ProcedureMetadata, error) {
	names, err := c.queryNames(ctx, `
	SELECT p.name FROM sys.procedures p
	WHERE SCHEMA_NAME(p.schema_id) = 'dbo' AND p.is_ms_shipped = 0
	ORDER BY p.name`)
	if err != nil {
		return nil, fmt.Errorf("query procedures: %w", err)
	}
	procs := make([]datasource.ProcedureMetadata, len(names))
	for i, n := range names {
		procs[i] = datasource.ProcedureMetadata{Name: n, Selectable: true}
	}
	return procs, nil
}

// ProcedureParameters strips the leading '@' so names compare with other dialects.
func (c *Catalog) ProcedureParameters(ctx context.Context, procedure string) ([]datasource.ParameterMetadata, error) {
	query := `
	SELECT prm.name, prm.is_output, prm.parameter_id, TYPE_NAME(prm.user_type_id), prm.max_length
	FROM sys.parameters prm
	JOIN sys.procedures p ON p.object_id = prm.object_id
	WHERE p.name = @p1 AND prm.parameter_id > 0
	ORDER BY prm.is_output, prm.parameter_id`

	rows, err := c.db.QueryContext(ctx, query, procedure)
	if err != nil {
		return nil, fmt.Errorf("query parameters of %s: %w", procedure, err)
	}
	defer rows.Close()

	var params []datasource.ParameterMetadata
	for rows.Next() {
		var (
			name      string
			isOutput  bool
			position  int
			typeName  string
			maxLength int
		)
		if err := rows.Scan(&name, &isOutput, &position, &typeName, &maxLength); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		p := datasource.ParameterMetadata{
			Name:     strings.TrimPrefix(name, "@"),
			Position: position,
			DataType: mapSQLServerType(typeName, maxLength),
		}
		if isOutput {
			p.Direction = datasource.ParameterOut
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

func (c *Catalog) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	names, err := c.queryNames(ctx, `
	SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = 'dbo' AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables := make([]datasource.TableMetadata, len(names))
	for i, n := range names {
		tables[i] = datasource.TableMetadata{Name: n}
	}
	return tables, nil
}

func (c *Catalog) TableColumns(ctx context.Context, table string) ([]datasource.ColumnMetadata, error) {
	query := `
	SELECT c.COLUMN_NAME, c.DATA_TYPE, COALESCE(c.CHARACTER_MAXIMUM_LENGTH, 0), c.ORDINAL_POSITION,
	       CASE WHEN EXISTS (
	           SELECT 1 FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	           JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE k ON k.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
	           WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY' AND tc.TABLE_NAME = c.TABLE_NAME
	             AND k.COLUMN_NAME = c.COLUMN_NAME
	       ) THEN 1 ELSE 0 END
	FROM INFORMATION_SCHEMA.COLUMNS c
	WHERE c.TABLE_SCHEMA = 'dbo' AND c.TABLE_NAME = @p1
	ORDER BY c.ORDINAL_POSITION`

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []datasource.ColumnMetadata
	for rows.Next() {
		var (
			col      datasource.ColumnMetadata
			dataType string
			length   int
			pk       int
		)
		if err := rows.Scan(&col.Name, &dataType, &length, &col.Position, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.DataType = mapSQLServerType(dataType, length)
		if isStringType(dataType) && length > 0 {
			col.Length = length
		}
		col.IsPrimaryKey = pk == 1
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (c *Catalog) ListGenerators(ctx context.Context) ([]string, error) {
	names, err := c.queryNames(ctx, `SELECT name FROM sys.sequences ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	return names, nil
}

func (c *Catalog) queryNames(ctx context.Context, query string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

var _ datasource.CatalogReader = (*Catalog)(nil)
