package datasource

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultDumpCatalog(t *testing.T) {
	ctx := context.Background()

	catalog, err := DefaultDumpCatalog()
	require.NoError(t, err)

	tables, err := catalog.ListTables(ctx)
	require.NoError(t, err)
	names := make([]string, len(tables))
	for i, tbl := range tables {
		names[i] = tbl.Name
	}
	assert.Contains(t, names, "USERS")
	assert.Contains(t, names, "MATERIAL")
	assert.Contains(t, names, "BARCODE")
	assert.Contains(t, names, "TEMPDELIVERY")
	assert.Contains(t, names, "TEMPDELIVERYSDR")

	cols, err := catalog.TableColumns(ctx, "material")
	require.NoError(t, err)

	name, ok := FindColumn(cols, "MATERIAL")
	require.True(t, ok)
	assert.Equal(t, "VARCHAR(60)", name.DataType, "domain type should be resolved")
	assert.Equal(t, 60, name.Length)

	code, ok := FindColumn(cols, "MATERIALCODE")
	require.True(t, ok)
	assert.True(t, code.IsPrimaryKey)

	price, ok := FindColumn(cols, "LASTDELIVERYPRICE")
	require.True(t, ok)
	assert.Equal(t, "NUMERIC(15,4)", price.DataType)

	users, err := catalog.TableColumns(ctx, "USERS")
	require.NoError(t, err)
	id, ok := FindColumn(users, "ID")
	require.True(t, ok)
	assert.True(t, id.IsPrimaryKey, "ALTER TABLE primary keys should be applied")

	procs, err := catalog.ListProcedures(ctx)
	require.NoError(t, err)
	assert.Empty(t, procs, "dumps carry no procedures")
}

func TestParseDump_InlineConstraintsAndTypes(t *testing.T) {
	ddl := `
CREATE TABLE "OPERATORS" (
    OP_ID INTEGER NOT NULL PRIMARY KEY,
    LOGIN VARCHAR(20),
    PWD_HASH CHAR(64),
    RATE DOUBLE PRECISION,
    CONSTRAINT UQ_LOGIN UNIQUE (LOGIN),
    CHECK (RATE > 0)
);`
	catalog, err := ParseDump(ddl)
	require.NoError(t, err)

	cols, err := catalog.TableColumns(context.Background(), "OPERATORS")
	require.NoError(t, err)
	require.Len(t, cols, 4)

	assert.Equal(t, []string{"OP_ID", "LOGIN", "PWD_HASH", "RATE"}, ColumnNames(cols))
	assert.True(t, cols[0].IsPrimaryKey)
	assert.Equal(t, 64, cols[2].Length)
	assert.Equal(t, "DOUBLE PRECISION", cols[3].DataType)
}

func TestParseDump_Empty(t *testing.T) {
	_, err := ParseDump("SET SQL DIALECT 3;")
	assert.Error(t, err)
}

func TestLoadDumpCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.sql")
	require.NoError(t, os.WriteFile(path, []byte("CREATE TABLE LOGUSERS (LOGIN VARCHAR(10), PASS VARCHAR(10));"), 0o600))

	catalog, err := LoadDumpCatalog(path)
	require.NoError(t, err)

	tables, err := catalog.ListTables(context.Background())
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "LOGUSERS", tables[0].Name)

	_, err = LoadDumpCatalog(filepath.Join(t.TempDir(), "missing.sql"))
	assert.Error(t, err)
}

func TestDeclaredLength(t *testing.T) {
	assert.Equal(t, 60, DeclaredLength("VARCHAR(60)"))
	assert.Equal(t, 1, DeclaredLength("char(1)"))
	assert.Equal(t, 0, DeclaredLength("INTEGER"))
	assert.Equal(t, 0, DeclaredLength("NUMERIC(15,4)"))
}
