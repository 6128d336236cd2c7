package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource/sqlite"
	"github.com/ekaya-inc/ekaya-intake/pkg/models"
	"github.com/ekaya-inc/ekaya-intake/pkg/testhelpers"
)

// checkLoginQuery stands in for a selectable CHECKLOGIN routine on SQLite.
const checkLoginQuery = `SELECT ID, 'T' AS RESULT FROM USERS WHERE TRIM(NAME) = ? AND RTRIM(PASS) = ?`

// procedureDialect lets SQLite "call" a login routine by running a plain query.
type procedureDialect struct {
	sqlite.Dialect
	query string
}

func (d procedureDialect) ProcedureCall(string, int, bool) (string, error) {
	return d.query, nil
}

// testConn overrides parts of a fixture connection.
type testConn struct {
	datasource.Connection
	dialect datasource.Dialect
	catalog datasource.CatalogReader
}

func (c *testConn) Dialect() datasource.Dialect {
	if c.dialect != nil {
		return c.dialect
	}
	return c.Connection.Dialect()
}

func (c *testConn) Catalog() datasource.CatalogReader {
	if c.catalog != nil {
		return c.catalog
	}
	return c.Connection.Catalog()
}

// procedureCatalog adds a CHECKLOGIN routine to a table-only catalog.
type procedureCatalog struct {
	datasource.CatalogReader
}

func (procedureCatalog) ListProcedures(context.Context) ([]datasource.ProcedureMetadata, error) {
	return []datasource.ProcedureMetadata{
		{Name: "GET_USER_RIGHTS"},
		{Name: "CHECKLOGIN", Selectable: true},
	}, nil
}

func (procedureCatalog) ProcedureParameters(_ context.Context, procedure string) ([]datasource.ParameterMetadata, error) {
	if procedure != "CHECKLOGIN" {
		return nil, nil
	}
	return []datasource.ParameterMetadata{
		{Name: "LOGIN", Direction: datasource.ParameterIn, Position: 0, DataType: "VARCHAR"},
		{Name: "PASSWORD", Direction: datasource.ParameterIn, Position: 1, DataType: "VARCHAR"},
		{Name: "ID", Direction: datasource.ParameterOut, Position: 0, DataType: "INTEGER"},
		{Name: "RESULT", Direction: datasource.ParameterOut, Position: 1, DataType: "CHAR"},
	}, nil
}

// failingCatalog fails every metadata read, like a dropped connection.
type failingCatalog struct {
	err error
}

func (c failingCatalog) ListProcedures(context.Context) ([]datasource.ProcedureMetadata, error) {
	return nil, c.err
}

func (c failingCatalog) ProcedureParameters(context.Context, string) ([]datasource.ParameterMetadata, error) {
	return nil, c.err
}

func (c failingCatalog) ListTables(context.Context) ([]datasource.TableMetadata, error) {
	return nil, c.err
}

func (c failingCatalog) TableColumns(context.Context, string) ([]datasource.ColumnMetadata, error) {
	return nil, c.err
}

func (c failingCatalog) ListGenerators(context.Context) ([]string, error) {
	return nil, c.err
}

// newFixtureConn returns a seeded Mistral fixture and a connection over it.
func newFixtureConn(t *testing.T) (*testhelpers.MistralFixture, datasource.Connection) {
	t.Helper()
	fixture := testhelpers.NewMistralFixture(t)
	return fixture, sqlite.Wrap(fixture.DB)
}

// discoverFixture runs discovery on the fixture and requires a live result.
func discoverFixture(t *testing.T, conn datasource.Connection) *models.SchemaProfile {
	t.Helper()
	profile, err := NewCatalogIntrospector(IntrospectionOptions{}, nil).Discover(context.Background(), conn)
	require.NoError(t, err)
	require.Equal(t, models.TierLive, profile.Tier)
	return profile
}
