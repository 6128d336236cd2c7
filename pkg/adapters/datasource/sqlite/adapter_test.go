package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

func TestCatalog_ReadsFixture(t *testing.T) {
	fixture := testhelpers.NewMistralFixture(t)
	conn := Wrap(fixture.DB)
	ctx := context.Background()

	tables, err := conn.Catalog().ListTables(ctx)
	require.NoError(t, err)
	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"BARCODE", "MATERIAL", "TEMPDELIVERY", "TEMPDELIVERYSDR", "USERS"}, names)

	cols, err := conn.Catalog().TableColumns(ctx, "MATERIAL")
	require.NoError(t, err)
	assert.Equal(t, []string{"MATERIALCODE", "MATERIAL", "MEASURE", "LASTDELIVERYPRICE", "VAT"}, datasource.ColumnNames(cols))
	assert.True(t, cols[0].IsPrimaryKey)
	assert.Equal(t, 60, cols[1].Length)
	assert.Equal(t, "NUMERIC(15,4)", cols[3].DataType)

	procs, err := conn.Catalog().ListProcedures(ctx)
	require.NoError(t, err)
	assert.Empty(t, procs)

	gens, err := conn.Catalog().ListGenerators(ctx)
	require.NoError(t, err)
	assert.Empty(t, gens)
}

func TestDialect_ContainsIsCaseInsensitiveForCyrillic(t *testing.T) {
	fixture := testhelpers.NewMistralFixture(t)
	d := Dialect{}

	query := d.Limit("SELECT MATERIALCODE FROM MATERIAL WHERE "+d.ContainsPredicate("MATERIAL"), 10)
	rows, err := fixture.DB.Query(query, "мляко верея")
	require.NoError(t, err)
	defer rows.Close()

	var codes []int
	for rows.Next() {
		var code int
		require.NoError(t, rows.Scan(&code))
		codes = append(codes, code)
	}
	require.NoError(t, rows.Err())
	assert.ElementsMatch(t, []int{1002, 1003}, codes)
}

func TestDialect_UpperHandlesCyrillic(t *testing.T) {
	fixture := testhelpers.NewMistralFixture(t)
	d := Dialect{}

	var upper string
	require.NoError(t, fixture.DB.QueryRow("SELECT "+d.Upper("?"), "Мляко verea").Scan(&upper))
	assert.Equal(t, "МЛЯКО VEREA", upper)
}

func TestDialect_Unsupported(t *testing.T) {
	d := Dialect{}

	_, err := d.ProcedureCall("CHECKLOGIN", 2, true)
	assert.True(t, errors.Is(err, datasource.ErrUnsupported))

	_, err = d.NextValue(context.Background(), nil, "GEN_TEMPDELIVERY_ID")
	assert.True(t, errors.Is(err, datasource.ErrUnsupported))
}

func TestNewAdapter_Managed(t *testing.T) {
	fixture := testhelpers.NewMistralFixture(t)
	require.NoError(t, fixture.DB.Close())

	cm := datasource.NewConnectionManager(datasource.ConnectionManagerConfig{}, zaptest.NewLogger(t))
	defer cm.Close()

	ctx := context.Background()
	factory := datasource.NewDatasourceAdapterFactory(cm)
	conn, err := factory.Open(ctx, "sqlite", map[string]any{"database": fixture.Path}, "offline", "session-1")
	require.NoError(t, err)

	require.NoError(t, conn.TestConnection(ctx))
	assert.Equal(t, "sqlite", conn.Dialect().Name())

	// Close on a managed connection leaves the handle to the manager.
	require.NoError(t, conn.Close())
	assert.NoError(t, conn.DB().PingContext(ctx))
	assert.Equal(t, 1, cm.GetStats().ConnectionsByProfile["offline"])

	factory.Release("offline", "session-1")
	assert.Equal(t, 0, cm.GetStats().TotalConnections)
}

func TestFromMap(t *testing.T) {
	_, err := FromMap(map[string]any{})
	assert.Error(t, err)

	cfg, err := FromMap(map[string]any{"database": "/tmp/m.db"})
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/m.db?_pragma=busy_timeout(5000)", cfg.DSN())

	cfg, err = FromMap(map[string]any{"database": "file:x.db?mode=ro"})
	require.NoError(t, err)
	assert.Equal(t, "file:x.db?mode=ro", cfg.DSN())
}
