package postgres

import (
	"context"
	"fmt"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Catalog implements datasource.CatalogReader over information_schema,
// limited to the connection's current schema.
type Catalog struct {
	db datasource.Querier
}

// NewCatalog creates a catalog reader.
func NewCatalog(db datasource.Querier) *Catalog {
	return &Catalog{db: db}
}

// ListProcedures returns routines. Functions are read with SELECT.
func (c *Catalog) ListProcedures(ctx context.Context) ([]datasource.ProcedureMetadata, error) {
	const query = `
		SELECT routine_name, routine_type
		FROM information_schema.routines
		WHERE routine_schema = current_schema()
		ORDER BY routine_name`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query routines: %w", err)
	}
	defer rows.Close()

	var procs []datasource.ProcedureMetadata
	for rows.Next() {
		var name, routineType string
		if err := rows.Scan(&name, &routineType); err != nil {
			return nil, fmt.Errorf("scan routine: %w", err)
		}
		procs = append(procs, datasource.ProcedureMetadata{Name: name, Selectable: routineType == "FUNCTION"})
	}
	return procs, rows.Err()
}

func (c *Catalog) ProcedureParameters(ctx context.Context, procedure string) ([]datasource.ParameterMetadata, error) {
	const query = `
		SELECT COALESCE(p.parameter_name, ''), p.parameter_mode, p.ordinal_position, p.data_type
		FROM information_schema.parameters p
		JOIN information_schema.routines r ON r.specific_name = p.specific_name AND r.specific_schema = p.specific_schema
		WHERE r.routine_schema = current_schema() AND r.routine_name = $1
		ORDER BY CASE WHEN p.parameter_mode = 'OUT' THEN 1 ELSE 0 END, p.ordinal_position`

	rows, err := c.db.QueryContext(ctx, query, procedure)
	if err != nil {
		return nil, fmt.Errorf("query parameters of %s: %w", procedure, err)
	}
	defer rows.Close()

	var params []datasource.ParameterMetadata
	for rows.Next() {
		var p datasource.ParameterMetadata
		var mode string
		if err := rows.Scan(&p.Name, &mode, &p.Position, &p.DataType); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		if mode == "OUT" {
			p.Direction = datasource.ParameterOut
		}
		params = append(params, p)
	}
	return params, rows.Err()
}

func (c *Catalog) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	const query = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	defer rows.Close()

	var tables []datasource.TableMetadata
	for rows.Next() {
		var t datasource.TableMetadata
		if err := rows.Scan(&t.Name); err != nil {
			return nil, fmt.Errorf("scan table: %w", err)
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

// TableColumns returns columns with primary key membership from table_constraints.
func (c *Catalog) TableColumns(ctx context.Context, table string) ([]datasource.ColumnMetadata, error) {
	const query = `
		SELECT c.column_name, upper(c.data_type), COALESCE(c.character_maximum_length, 0), c.ordinal_position,
		       EXISTS (
		           SELECT 1
		           FROM information_schema.table_constraints tc
		           JOIN information_schema.key_column_usage k
		             ON k.constraint_name = tc.constraint_name AND k.table_schema = tc.table_schema
		           WHERE tc.constraint_type = 'PRIMARY KEY'
		             AND tc.table_schema = c.table_schema AND tc.table_name = c.table_name
		             AND k.column_name = c.column_name
		       )
		FROM information_schema.columns c
		WHERE c.table_schema = current_schema() AND c.table_name = $1
		ORDER BY c.ordinal_position`

	rows, err := c.db.QueryContext(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []datasource.ColumnMetadata
	for rows.Next() {
		var col datasource.ColumnMetadata
		if err := rows.Scan(&col.Name, &col.DataType, &col.Length, &col.Position, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

func (c *Catalog) ListGenerators(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT sequence_name FROM information_schema.sequences WHERE sequence_schema = current_schema() ORDER BY sequence_name`)
	if err != nil {
		return nil, fmt.Errorf("query sequences: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan sequence: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

var _ datasource.CatalogReader = (*Catalog)(nil)
