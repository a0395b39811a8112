package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasync/pqasync/client"
	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pgwire"
)

func enc(t *testing.T, oid pgtypes.OID, v interface{}) []byte {
	t.Helper()
	b, err := pgtypes.EncodeBinary(oid, v)
	require.NoError(t, err)
	return b
}

func usersTable(t *testing.T) *client.Table {
	res := &pgwire.Result{
		Status: pgwire.StatusTuplesOK,
		Fields: []pgwire.Field{
			{Name: "id", OID: pgtypes.Int8OID, Format: pgtypes.BinaryFormat},
			{Name: "user_name", OID: pgtypes.TextOID, Format: pgtypes.BinaryFormat},
			{Name: "active", OID: pgtypes.BoolOID, Format: pgtypes.BinaryFormat},
			{Name: "score", OID: pgtypes.Float4OID, Format: pgtypes.BinaryFormat},
		},
		Rows: [][][]byte{
			{enc(t, pgtypes.Int8OID, int64(1)), enc(t, pgtypes.TextOID, "ada"), enc(t, pgtypes.BoolOID, true), enc(t, pgtypes.Float4OID, float32(1.5))},
			{enc(t, pgtypes.Int8OID, int64(2)), nil, enc(t, pgtypes.BoolOID, false), nil},
		},
	}
	table, err := client.NewTable(res)
	require.NoError(t, err)
	return table
}

type user struct {
	ID       int64   `db:"id"`
	UserName string  `db:"user_name"`
	Active   bool    // matched by name, case-insensitive
	Score    float64 `db:"score"`
	Ignored  string  `db:"-"`
}

func TestScanRow(t *testing.T) {
	table := usersTable(t)

	var u user
	require.NoError(t, ScanRow(table.Row(0), &u))
	assert.Equal(t, int64(1), u.ID)
	assert.Equal(t, "ada", u.UserName)
	assert.True(t, u.Active)
	assert.InDelta(t, 1.5, u.Score, 1e-9)
	assert.Empty(t, u.Ignored)
}

func TestScanRowNullLeavesZeroValue(t *testing.T) {
	table := usersTable(t)

	var u user
	require.NoError(t, ScanRow(table.Row(1), &u))
	assert.Equal(t, int64(2), u.ID)
	assert.Empty(t, u.UserName)
	assert.Zero(t, u.Score)
}

func TestScanTable(t *testing.T) {
	table := usersTable(t)

	var users []user
	require.NoError(t, ScanTable(table, &users))
	require.Len(t, users, 2)
	assert.Equal(t, "ada", users[0].UserName)
	assert.Equal(t, int64(2), users[1].ID)
}

func TestScanRejectsBadDest(t *testing.T) {
	table := usersTable(t)

	var u user
	assert.Error(t, ScanRow(table.Row(0), u))
	var notSlice int
	assert.Error(t, ScanTable(table, &notSlice))
}

func TestScanTypeMismatch(t *testing.T) {
	table := usersTable(t)

	var bad struct {
		ID bool `db:"id"`
	}
	assert.Error(t, ScanRow(table.Row(0), &bad))
}
