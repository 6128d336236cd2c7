package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect_Statements(t *testing.T) {
	d := Dialect{}

	assert.Equal(t, `"MATERIAL"`, d.QuoteIdentifier("MATERIAL"))
	assert.Equal(t, "SELECT A FROM T WHERE B = $1 AND C = $2", d.Rebind("SELECT A FROM T WHERE B = ? AND C = ?"))
	assert.Equal(t, "SELECT A FROM T LIMIT 5", d.Limit("SELECT A FROM T;", 5))
	assert.Equal(t, `strpos(lower("NAME"), lower(?)) > 0`, d.ContainsPredicate(`"NAME"`))
	assert.Equal(t, `upper("NAME")`, d.Upper(`"NAME"`))
	assert.Equal(t, "char_length(x)", d.CharLength("x"))
}

func TestDialect_ProcedureCall(t *testing.T) {
	d := Dialect{}

	stmt, err := d.ProcedureCall("CHECKUSER", 2, true)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "CHECKUSER"(?, ?)`, stmt)

	stmt, err = d.ProcedureCall("CHECKUSER", 1, false)
	require.NoError(t, err)
	assert.Equal(t, `CALL "CHECKUSER"(?)`, stmt)
}
