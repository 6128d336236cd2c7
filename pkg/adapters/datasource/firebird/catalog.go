package firebird

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

// Catalog implements datasource.CatalogReader over the RDB$ system tables.
type Catalog struct {
	db     datasource.Querier
	logger *zap.Logger
}

// NewCatalog creates a catalog reader. If logger is nil, a no-op logger is used.
func NewCatalog(db datasource.Querier, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{db: db, logger: logger}
}

// ListProcedures returns user procedures. PROCEDURE_TYPE 1 marks selectable ones.
func (c *Catalog) ListProcedures(ctx context.Context) ([]datasource.ProcedureMetadata, error) {
	query := `
	SELECT TRIM(RDB$PROCEDURE_NAME), COALESCE(RDB$PROCEDURE_TYPE, 0)
	FROM RDB$PROCEDURES
	WHERE COALESCE(RDB$SYSTEM_FLAG, 0) = 0
	ORDER BY RDB$PROCEDURE_NAME`

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query procedures: %w", err)
	}
	defer rows.Close()

	var procs []datasource.ProcedureMetadata
	for rows.Next() {
		var name string
		var procType int
		if err := rows.Scan(&name, &procType); err != nil {
			return nil, fmt.Errorf("scan procedure: %w", err)
		}
		procs = append(procs, datasource.ProcedureMetadata{
			Name:       strings.TrimSpace(name),
			Selectable: procType == 1,
		})
	}
	return procs, rows.Err()
}

// ProcedureParameters returns inputs ordered by number, then outputs.
func (c *Catalog) ProcedureParameters(ctx context.Context, procedure string) ([]datasource.ParameterMetadata, error) {
	query := `
	SELECT TRIM(pp.RDB$PARAMETER_NAME), pp.RDB$PARAMETER_TYPE, pp.RDB$PARAMETER_NUMBER,
	       f.RDB$FIELD_TYPE, f.RDB$FIELD_SCALE, f.RDB$FIELD_PRECISION,
	       COALESCE(f.RDB$CHARACTER_LENGTH, f.RDB$FIELD_LENGTH)
	FROM RDB$PROCEDURE_PARAMETERS pp
	LEFT JOIN RDB$FIELDS f ON f.RDB$FIELD_NAME = pp.RDB$FIELD_SOURCE
	WHERE pp.RDB$PROCEDURE_NAME = ?
	ORDER BY pp.RDB$PARAMETER_TYPE, pp.RDB$PARAMETER_NUMBER`

	rows, err := c.db.QueryContext(ctx, query, strings.ToUpper(strings.TrimSpace(procedure)))
	if err != nil {
		return nil, fmt.Errorf("query parameters of %s: %w", procedure, err)
	}
	defer rows.Close()

	var params []datasource.ParameterMetadata
	for rows.Next() {
		var (
			name                                string
			paramType, number                   int
			fieldType, scale, precision, length sql.NullInt64
		)
		if err := rows.Scan(&name, &paramType, &number, &fieldType, &scale, &precision, &length); err != nil {
			return nil, fmt.Errorf("scan parameter: %w", err)
		}
		direction := datasource.ParameterIn
		if paramType != 0 {
			direction = datasource.ParameterOut
		}
		params = append(params, datasource.ParameterMetadata{
			Name:      strings.TrimSpace(name),
			Direction: direction,
			Position:  number,
			DataType:  FieldTypeName(int(fieldType.Int64), int(scale.Int64), int(precision.Int64), int(length.Int64)),
		})
	}
	return params, rows.Err()
}

// ListTables returns user tables, excluding views and system relations.
func (c *Catalog) ListTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	query := `
	SELECT TRIM(RDB$RELATION_NAME)
	FROM RDB$RELATIONS
	WHERE COALESCE(RDB$SYSTEM_FLAG, 0) = 0 AND RDB$VIEW_BLR IS NULL
	ORDER BY RDB$RELATION_NAME`

	names, err := c.queryNames(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query tables: %w", err)
	}
	tables := make([]datasource.TableMetadata, len(names))
	for i, n := range names {
		tables[i] = datasource.TableMetadata{Name: n}
	}
	return tables, nil
}

// TableColumns returns the columns of table ordered by position with primary key flags.
func (c *Catalog) TableColumns(ctx context.Context, table string) ([]datasource.ColumnMetadata, error) {
	relation := strings.ToUpper(strings.TrimSpace(table))
	query := `
	SELECT TRIM(rf.RDB$FIELD_NAME), COALESCE(rf.RDB$FIELD_POSITION, 0),
	       f.RDB$FIELD_TYPE, f.RDB$FIELD_SCALE, f.RDB$FIELD_PRECISION,
	       COALESCE(f.RDB$CHARACTER_LENGTH, f.RDB$FIELD_LENGTH)
	FROM RDB$RELATION_FIELDS rf
	JOIN RDB$FIELDS f ON f.RDB$FIELD_NAME = rf.RDB$FIELD_SOURCE
	WHERE rf.RDB$RELATION_NAME = ?
	ORDER BY rf.RDB$FIELD_POSITION`

	rows, err := c.db.QueryContext(ctx, query, relation)
	if err != nil {
		return nil, fmt.Errorf("query columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []datasource.ColumnMetadata
	for rows.Next() {
		var (
			name                                string
			position                            int
			fieldType, scale, precision, length sql.NullInt64
		)
		if err := rows.Scan(&name, &position, &fieldType, &scale, &precision, &length); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col := datasource.ColumnMetadata{
			Name:     strings.TrimSpace(name),
			DataType: FieldTypeName(int(fieldType.Int64), int(scale.Int64), int(precision.Int64), int(length.Int64)),
			Position: position,
		}
		if isText(int(fieldType.Int64)) {
			col.Length = int(length.Int64)
		}
		cols = append(cols, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	pk, err := c.primaryKey(ctx, relation)
	if err != nil {
		// Column list is still usable without key information.
		c.logger.Warn("failed to read primary key",
			zap.String("table", relation),
			zap.Error(err),
		)
		return cols, nil
	}
	for i := range cols {
		if pk[cols[i].Name] {
			cols[i].IsPrimaryKey = true
		}
	}
	return cols, nil
}

func (c *Catalog) primaryKey(ctx context.Context, relation string) (map[string]bool, error) {
	query := `
	SELECT TRIM(s.RDB$FIELD_NAME)
	FROM RDB$RELATION_CONSTRAINTS rc
	JOIN RDB$INDEX_SEGMENTS s ON s.RDB$INDEX_NAME = rc.RDB$INDEX_NAME
	WHERE rc.RDB$RELATION_NAME = ? AND rc.RDB$CONSTRAINT_TYPE = 'PRIMARY KEY'`

	names, err := c.queryNames(ctx, query, relation)
	if err != nil {
		return nil, err
	}
	pk := make(map[string]bool, len(names))
	for _, n := range names {
		pk[n] = true
	}
	return pk, nil
}

// ListGenerators returns user generator names.
func (c *Catalog) ListGenerators(ctx context.Context) ([]string, error) {
	query := `
	SELECT TRIM(RDB$GENERATOR_NAME)
	FROM RDB$GENERATORS
	WHERE COALESCE(RDB$SYSTEM_FLAG, 0) = 0
	ORDER BY RDB$GENERATOR_NAME`

	names, err := c.queryNames(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query generators: %w", err)
	}
	return names, nil
}

func (c *Catalog) queryNames(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
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
		names = append(names, strings.TrimSpace(name))
	}
	return names, rows.Err()
}

func isText(fieldType int) bool {
	return fieldType == 14 || fieldType == 37 || fieldType == 40
}

// FieldTypeName renders an RDB$FIELDS type code as SQL. Integer types with a
// negative scale are NUMERIC(precision, -scale).
func FieldTypeName(fieldType, scale, precision, length int) string {
	switch fieldType {
	case 7, 8, 16:
		if scale < 0 {
			if precision <= 0 {
				precision = map[int]int{7: 4, 8: 9, 16: 18}[fieldType]
			}
			return fmt.Sprintf("NUMERIC(%d,%d)", precision, -scale)
		}
		return map[int]string{7: "SMALLINT", 8: "INTEGER", 16: "BIGINT"}[fieldType]
	case 10:
		return "FLOAT"
	case 12:
		return "DATE"
	case 13:
		return "TIME"
	case 14:
		return fmt.Sprintf("CHAR(%d)", length)
	case 23:
		return "BOOLEAN"
	case 27:
		return "DOUBLE PRECISION"
	case 35:
		return "TIMESTAMP"
	case 37:
		return fmt.Sprintf("VARCHAR(%d)", length)
	case 40:
		return fmt.Sprintf("CSTRING(%d)", length)
	case 261:
		return "BLOB"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", fieldType)
	}
}

var _ datasource.CatalogReader = (*Catalog)(nil)
