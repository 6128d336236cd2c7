package datasource

import (
	"context"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// mistralDump is a metadata-only export of a stock Mistral database used when
// the live catalog cannot be read.
//
//go:embed dumps/mistral.sql
var mistralDump string

var (
	createTablePattern   = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+"?([A-Z0-9_$]+)"?\s*\((.*?)\)\s*;`)
	createDomainPattern  = regexp.MustCompile(`(?is)CREATE\s+DOMAIN\s+"?([A-Z0-9_$]+)"?\s+AS\s+([A-Z][A-Z0-9_$]*(?:\s+(?:PRECISION|VARYING))?\s*(?:\(\s*\d+(?:\s*,\s*\d+)?\s*\))?)`)
	alterPrimaryPattern  = regexp.MustCompile(`(?is)ALTER\s+TABLE\s+"?([A-Z0-9_$]+)"?\s+ADD\s+(?:CONSTRAINT\s+\S+\s+)?PRIMARY\s+KEY\s*\(([^)]*)\)`)
	inlinePrimaryPattern = regexp.MustCompile(`(?i)^(?:CONSTRAINT\s+\S+\s+)?PRIMARY\s+KEY\s*\(([^)]*)\)`)
	columnPattern        = regexp.MustCompile(`(?i)^"?([A-Z0-9_$]+)"?\s+(.*)$`)
	columnTypePattern    = regexp.MustCompile(`(?i)^([A-Z][A-Z0-9_$]*(?:\s+(?:PRECISION|VARYING))?)\s*(\(\s*\d+(?:\s*,\s*\d+)?\s*\))?`)
	textLengthPattern    = regexp.MustCompile(`(?i)^\s*(?:NATIONAL\s+)?(?:VAR)?CHAR(?:ACTER)?(?:\s+VARYING)?\s*\(\s*(\d+)\s*\)`)
)

// DeclaredLength returns n for declared types CHAR(n) and VARCHAR(n), 0 otherwise.
func DeclaredLength(declType string) int {
	m := textLengthPattern.FindStringSubmatch(declType)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// DumpCatalog is a CatalogReader over CREATE TABLE statements of a schema
// dump. Dumps carry no procedures or generators.
type DumpCatalog struct {
	tables map[string][]ColumnMetadata
}

// DefaultDumpCatalog parses the bundled Mistral dump.
func DefaultDumpCatalog() (*DumpCatalog, error) {
	return ParseDump(mistralDump)
}

// LoadDumpCatalog parses a dump file, or the bundled dump when path is empty.
func LoadDumpCatalog(path string) (*DumpCatalog, error) {
	if path == "" {
		return DefaultDumpCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema dump: %w", err)
	}
	return ParseDump(string(data))
}

// ParseDump extracts tables and columns from DDL text. Column types declared
// through domains are resolved when the dump also contains the CREATE DOMAIN.
func ParseDump(ddl string) (*DumpCatalog, error) {
	domains := make(map[string]string)
	for _, m := range createDomainPattern.FindAllStringSubmatch(ddl, -1) {
		domains[strings.ToUpper(m[1])] = normalizeType(m[2])
	}

	tables := make(map[string][]ColumnMetadata)
	for _, m := range createTablePattern.FindAllStringSubmatch(ddl, -1) {
		table := strings.ToUpper(m[1])
		var cols []ColumnMetadata
		var pk []string

		for _, raw := range splitColumnDefinitions(m[2]) {
			line := strings.Join(strings.Fields(raw), " ")
			if line == "" {
				continue
			}
			upper := strings.ToUpper(line)
			if pm := inlinePrimaryPattern.FindStringSubmatch(line); pm != nil {
				pk = append(pk, splitIdentifiers(pm[1])...)
				continue
			}
			if strings.HasPrefix(upper, "CONSTRAINT") || strings.HasPrefix(upper, "FOREIGN") ||
				strings.HasPrefix(upper, "UNIQUE") || strings.HasPrefix(upper, "CHECK") {
				continue
			}
			cm := columnPattern.FindStringSubmatch(line)
			if cm == nil {
				continue
			}
			dataType := ""
			if tm := columnTypePattern.FindStringSubmatch(cm[2]); tm != nil {
				dataType = normalizeType(tm[0])
			}
			if resolved, ok := domains[dataType]; ok {
				dataType = resolved
			}
			col := ColumnMetadata{
				Name:     strings.ToUpper(cm[1]),
				DataType: dataType,
				Length:   DeclaredLength(dataType),
				Position: len(cols),
			}
			if strings.Contains(strings.ToUpper(cm[2]), "PRIMARY KEY") {
				col.IsPrimaryKey = true
			}
			cols = append(cols, col)
		}
		markPrimary(cols, pk)
		if len(cols) > 0 {
			tables[table] = cols
		}
	}

	for _, m := range alterPrimaryPattern.FindAllStringSubmatch(ddl, -1) {
		if cols, ok := tables[strings.ToUpper(m[1])]; ok {
			markPrimary(cols, splitIdentifiers(m[2]))
		}
	}

	if len(tables) == 0 {
		return nil, fmt.Errorf("schema dump contains no CREATE TABLE statements")
	}
	return &DumpCatalog{tables: tables}, nil
}

// splitColumnDefinitions splits a table body on commas outside parentheses,
// so NUMERIC(15,4) stays whole.
func splitColumnDefinitions(body string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, body[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, body[start:])
}

func splitIdentifiers(list string) []string {
	var names []string
	for _, part := range strings.Split(list, ",") {
		name := strings.ToUpper(strings.Trim(strings.TrimSpace(part), `"`))
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func markPrimary(cols []ColumnMetadata, pk []string) {
	for _, name := range pk {
		for i := range cols {
			if cols[i].Name == name {
				cols[i].IsPrimaryKey = true
			}
		}
	}
}

func normalizeType(t string) string {
	t = strings.ToUpper(strings.Join(strings.Fields(t), " "))
	return strings.ReplaceAll(strings.ReplaceAll(t, " (", "("), ", ", ",")
}

func (d *DumpCatalog) ListProcedures(context.Context) ([]ProcedureMetadata, error) {
	return nil, nil
}

func (d *DumpCatalog) ProcedureParameters(_ context.Context, procedure string) ([]ParameterMetadata, error) {
	return nil, fmt.Errorf("procedure %s: %w", procedure, ErrUnsupported)
}

func (d *DumpCatalog) ListTables(context.Context) ([]TableMetadata, error) {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)

	tables := make([]TableMetadata, len(names))
	for i, n := range names {
		tables[i] = TableMetadata{Name: n}
	}
	return tables, nil
}

func (d *DumpCatalog) TableColumns(_ context.Context, table string) ([]ColumnMetadata, error) {
	cols, ok := d.tables[strings.ToUpper(table)]
	if !ok {
		return nil, fmt.Errorf("table %s not in schema dump", table)
	}
	out := make([]ColumnMetadata, len(cols))
	copy(out, cols)
	return out, nil
}

func (d *DumpCatalog) ListGenerators(context.Context) ([]string, error) {
	return nil, nil
}

var _ CatalogReader = (*DumpCatalog)(nil)
