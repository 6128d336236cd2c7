package datasource

import "strings"

// ParameterDirection tells input from output routine parameters.
type ParameterDirection int

const (
	ParameterIn ParameterDirection = iota
	ParameterOut
)

// ProcedureMetadata represents a discovered stored routine.
type ProcedureMetadata struct {
	Name       string
	Selectable bool // rows are read with SELECT ... FROM proc(...)
}

// ParameterMetadata represents one routine parameter.
type ParameterMetadata struct {
	Name      string
	Direction ParameterDirection
	Position  int
	DataType  string
}

// TableMetadata represents a discovered database table.
type TableMetadata struct {
	Name string
}

// ColumnMetadata represents a discovered database column.
type ColumnMetadata struct {
	Name         string
	DataType     string
	Length       int // character length for text columns, 0 otherwise
	IsPrimaryKey bool
	Position     int
}

// ColumnNames returns the names of cols in order.
func ColumnNames(cols []ColumnMetadata) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// FindColumn returns the column named name, ignoring case.
func FindColumn(cols []ColumnMetadata, name string) (ColumnMetadata, bool) {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return ColumnMetadata{}, false
}

// Inputs returns the input parameters of params in call order.
func Inputs(params []ParameterMetadata) []ParameterMetadata {
	var in []ParameterMetadata
	for _, p := range params {
		if p.Direction == ParameterIn {
			in = append(in, p)
		}
	}
	return in
}

// Outputs returns the output parameters of params in order.
func Outputs(params []ParameterMetadata) []ParameterMetadata {
	var out []ParameterMetadata
	for _, p := range params {
		if p.Direction == ParameterOut {
			out = append(out, p)
		}
	}
	return out
}
