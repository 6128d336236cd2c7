package firebird

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_QuoteIdentifier(t *testing.T) {
	d := Dialect{}

	assert.Equal(t, "MATERIAL", d.QuoteIdentifier("MATERIAL"))
	assert.Equal(t, "RDB$DATABASE", d.QuoteIdentifier("RDB$DATABASE"))
	assert.Equal(t, `"Material"`, d.QuoteIdentifier("Material"))
	assert.Equal(t, `"A""B"`, d.QuoteIdentifier(`A"B`))
}

func TestDialect_Limit(t *testing.T) {
	d := Dialect{}

	assert.Equal(t, "SELECT FIRST 10 MATERIALCODE FROM MATERIAL", d.Limit("SELECT MATERIALCODE FROM MATERIAL", 10))
	assert.Equal(t, "SELECT FIRST 1 * FROM T", d.Limit("  select * FROM T", 1))
	assert.Equal(t, "UPDATE T SET A = 1", d.Limit("UPDATE T SET A = 1", 1), "non-select statements are untouched")
}

func TestDialect_Predicates(t *testing.T) {
	d := Dialect{}

	assert.Equal(t, "M.MATERIAL CONTAINING ?", d.ContainsPredicate("M.MATERIAL"))
	assert.Equal(t, "CHAR_LENGTH(NAME)", d.CharLength("NAME"))
	assert.Equal(t, "UPPER(TRIM(NAME))", d.Upper("TRIM(NAME)"))
	assert.Equal(t, "SELECT * FROM T WHERE A = ?", d.Rebind("SELECT * FROM T WHERE A = ?"))
}

func TestDialect_ProcedureCall(t *testing.T) {
	d := Dialect{}

	tests := []struct {
		name       string
		nargs      int
		selectable bool
		want       string
	}{
		{"selectable", 2, true, "SELECT * FROM CHECKUSERFORTABLENO(?, ?)"},
		{"executable", 2, false, "EXECUTE PROCEDURE CHECKUSERFORTABLENO ?, ?"},
		{"selectable no args", 0, true, "SELECT * FROM CHECKUSERFORTABLENO"},
		{"executable no args", 0, false, "EXECUTE PROCEDURE CHECKUSERFORTABLENO"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := d.ProcedureCall("CHECKUSERFORTABLENO", tt.nargs, tt.selectable)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFieldTypeName(t *testing.T) {
	tests := []struct {
		fieldType, scale, precision, length int
		want                                string
	}{
		{7, 0, 0, 2, "SMALLINT"},
		{8, 0, 0, 4, "INTEGER"},
		{16, 0, 0, 8, "BIGINT"},
		{8, -2, 9, 4, "NUMERIC(9,2)"},
		{16, -4, 15, 8, "NUMERIC(15,4)"},
		{16, -4, 0, 8, "NUMERIC(18,4)"},
		{10, 0, 0, 4, "FLOAT"},
		{27, 0, 0, 8, "DOUBLE PRECISION"},
		{12, 0, 0, 4, "DATE"},
		{13, 0, 0, 4, "TIME"},
		{35, 0, 0, 8, "TIMESTAMP"},
		{14, 0, 0, 1, "CHAR(1)"},
		{37, 0, 0, 60, "VARCHAR(60)"},
		{23, 0, 0, 1, "BOOLEAN"},
		{261, 0, 0, 8, "BLOB"},
		{99, 0, 0, 0, "UNKNOWN(99)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FieldTypeName(tt.fieldType, tt.scale, tt.precision, tt.length))
		})
	}
}
