package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-intake/pkg/adapters/datasource"
)

func cols(names ...string) []datasource.ColumnMetadata {
	out := make([]datasource.ColumnMetadata, len(names))
	for i, n := range names {
		out[i] = datasource.ColumnMetadata{Name: n, Position: i}
	}
	return out
}

func TestSelectColumn(t *testing.T) {
	columns := []string{"STORAGEMATERIALCODE", "CODE", "ISMAIN"}

	assert.Equal(t, "CODE", selectColumn(columns, []string{"BARCODE", "CODE"}), "exact match beats substring")
	assert.Equal(t, "STORAGEMATERIALCODE", selectColumn(columns, []string{"MATERIAL"}))
	assert.Equal(t, "STORAGEMATERIALCODE", selectColumn(columns, []string{"CODE"}, "CODE"))
	assert.Equal(t, "", selectColumn(columns, []string{"PRICE"}))
}

func TestRankLoginProcedures(t *testing.T) {
	procs := []datasource.ProcedureMetadata{
		{Name: "RECALC_STOCK"},
		{Name: "GET_USER_RIGHTS"},
		{Name: "USER_LOGIN"},
		{Name: "CHECKLOGIN"},
	}

	ranked := rankLoginProcedures(procs)

	require.Len(t, ranked, 3)
	assert.Equal(t, "CHECKLOGIN", ranked[0].Name)
	assert.Equal(t, "USER_LOGIN", ranked[1].Name)
	assert.Equal(t, "GET_USER_RIGHTS", ranked[2].Name)
}

func TestOrderLoginTables(t *testing.T) {
	tables := []datasource.TableMetadata{
		{Name: "USERGROUPS"}, {Name: "MATERIAL"}, {Name: "OPERATORS"}, {Name: "USERS"},
	}
	assert.Equal(t, []string{"USERS", "OPERATORS", "USERGROUPS"}, orderLoginTables(tables))
}

func TestMatchLoginTable(t *testing.T) {
	t.Run("plain and hash columns", func(t *testing.T) {
		desc, ok := matchLoginTable("USERS", cols("ID", "NAME", "PASS", "PASS_HASH", "SALT"), "")
		require.True(t, ok)
		assert.Equal(t, "NAME", desc.LoginColumn)
		assert.Equal(t, "PASS", desc.PasswordColumn)
		assert.Equal(t, "PASS_HASH", desc.HashColumn)
		assert.Equal(t, "SALT", desc.SaltColumn)
		assert.Equal(t, "ID", desc.IDColumn)
	})

	t.Run("forced scheme is copied", func(t *testing.T) {
		desc, ok := matchLoginTable("OPERATORS", cols("OP_ID", "LOGIN", "PASSWORD_HASH"), HashSchemeMD5)
		require.True(t, ok)
		assert.Equal(t, "LOGIN", desc.LoginColumn)
		assert.Equal(t, "", desc.PasswordColumn)
		assert.Equal(t, "PASSWORD_HASH", desc.HashColumn)
		assert.Equal(t, "OP_ID", desc.IDColumn)
		assert.Equal(t, HashSchemeMD5, desc.HashScheme)
	})

	t.Run("no secret column", func(t *testing.T) {
		_, ok := matchLoginTable("USERGROUPS", cols("ID", "NAME"), "")
		assert.False(t, ok)
	})
}

func TestMatchCatalog(t *testing.T) {
	tc := &tableColumns{
		order: []string{"USERS", "MATERIAL", "BARCODE"},
		columns: map[string][]datasource.ColumnMetadata{
			"USERS": cols("ID", "NAME", "PASS"),
			"MATERIAL": {
				{Name: "MATERIALCODE", IsPrimaryKey: true},
				{Name: "MATERIAL", Length: 60},
				{Name: "MEASURE"},
				{Name: "LASTDELIVERYPRICE"},
				{Name: "VAT"},
			},
			"BARCODE": cols("CODE", "STORAGEMATERIALCODE"),
		},
	}

	desc, ok := matchCatalog(tc)

	require.True(t, ok)
	assert.Equal(t, "MATERIAL", desc.ItemsTable)
	assert.Equal(t, "MATERIALCODE", desc.IDColumn)
	assert.Equal(t, "MATERIALCODE", desc.CodeColumn)
	assert.Equal(t, "MATERIAL", desc.NameColumn)
	assert.Equal(t, 60, desc.NameMaxLength)
	assert.Equal(t, "MEASURE", desc.UnitColumn)
	assert.Equal(t, "LASTDELIVERYPRICE", desc.PriceColumn)
	assert.Equal(t, "VAT", desc.VATColumn)
	assert.Equal(t, "BARCODE", desc.BarcodeTable)
	assert.Equal(t, "CODE", desc.BarcodeColumn)
	assert.Equal(t, "STORAGEMATERIALCODE", desc.BarcodeItemColumn)
	assert.True(t, desc.BarcodeItemKeyCode)
	assert.True(t, desc.HasBarcodes())
}

func TestMatchCatalog_NoItemsTable(t *testing.T) {
	tc := &tableColumns{
		order:   []string{"USERS"},
		columns: map[string][]datasource.ColumnMetadata{"USERS": cols("ID", "LOGIN", "PASS")},
	}
	_, ok := matchCatalog(tc)
	assert.False(t, ok)
}

func TestMatchDelivery(t *testing.T) {
	tc := &tableColumns{
		order: []string{"TEMPDELIVERYSDR", "TEMPDELIVERY", "TEMPDELIVERY_ARCHIVE", "MATERIAL"},
		columns: map[string][]datasource.ColumnMetadata{
			"TEMPDELIVERY":         cols("ID", "NOMER", "OBEKTID"),
			"TEMPDELIVERYSDR":      cols("ID", "TEMPDELIVERYID", "ARTNOMER"),
			"TEMPDELIVERY_ARCHIVE": cols("ID"),
			"MATERIAL":             cols("MATERIALCODE"),
		},
	}
	generators := []string{"GEN_MATERIAL_ID", "GEN_TEMPDELIVERYSDR_ID", "GEN_TEMPDELIVERY_ID"}

	desc, ok := matchDelivery(tc, generators)

	require.True(t, ok)
	assert.Equal(t, "TEMPDELIVERY", desc.HeaderTable)
	assert.Equal(t, "TEMPDELIVERYSDR", desc.DetailTable)
	assert.Equal(t, []string{"ID", "NOMER", "OBEKTID"}, desc.HeaderColumns)
	assert.Equal(t, "GEN_TEMPDELIVERY_ID", desc.HeaderGenerator)
	assert.Equal(t, "GEN_TEMPDELIVERYSDR_ID", desc.DetailGenerator)
}

func TestMatchDelivery_MissingDetail(t *testing.T) {
	tc := &tableColumns{
		order:   []string{"TEMPDELIVERY"},
		columns: map[string][]datasource.ColumnMetadata{"TEMPDELIVERY": cols("ID")},
	}
	_, ok := matchDelivery(tc, nil)
	assert.False(t, ok)
}
