package client

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pgwire"
)

func mustEncode(t *testing.T, oid pgtypes.OID, v interface{}) []byte {
	t.Helper()
	b, err := pgtypes.EncodeBinary(oid, v)
	require.NoError(t, err)
	return b
}

func sampleResult(t *testing.T) *pgwire.Result {
	return &pgwire.Result{
		Status: pgwire.StatusTuplesOK,
		Fields: []pgwire.Field{
			{Name: "id", OID: pgtypes.Int4OID, Format: pgtypes.BinaryFormat},
			{Name: "name", OID: pgtypes.TextOID, Format: pgtypes.BinaryFormat},
		},
		Rows: [][][]byte{
			{mustEncode(t, pgtypes.Int4OID, int32(1)), []byte("alpha")},
			{mustEncode(t, pgtypes.Int4OID, int32(2)), nil},
		},
		CommandTag:   "SELECT 2",
		RowsAffected: 2,
	}
}

func TestTableFromResult(t *testing.T) {
	table, err := processQuery(sampleResult(t))
	require.NoError(t, err)

	require.Equal(t, 2, table.Len())
	cols := table.Columns()
	require.Len(t, cols, 2)
	assert.Equal(t, "id", cols[0].Name)
	assert.Equal(t, 0, cols[0].Index)
	assert.Equal(t, pgtypes.Int4OID, cols[0].OID)

	row := table.Row(0)
	id, err := RowValue[int32](row, "id")
	require.NoError(t, err)
	assert.Equal(t, int32(1), id)

	name, err := RowValue[string](row, "name")
	require.NoError(t, err)
	assert.Equal(t, "alpha", name)
}

func TestNullCell(t *testing.T) {
	table, err := processQuery(sampleResult(t))
	require.NoError(t, err)

	v, err := table.Row(1).ValueByName("name")
	require.NoError(t, err)
	assert.True(t, v.IsNull())

	d, err := v.Decode()
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestRowValueWidensIntegers(t *testing.T) {
	res := &pgwire.Result{
		Status: pgwire.StatusTuplesOK,
		Fields: []pgwire.Field{{Name: "n", OID: pgtypes.Int2OID, Format: pgtypes.BinaryFormat}},
		Rows:   [][][]byte{{mustEncode(t, pgtypes.Int2OID, int16(42))}},
	}
	table, err := processQuery(res)
	require.NoError(t, err)

	n64, err := RowValue[int64](table.Row(0), "n")
	require.NoError(t, err)
	assert.Equal(t, int64(42), n64)

	n, err := RowValue[int](table.Row(0), "n")
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

func TestRowBadColumn(t *testing.T) {
	table, err := processQuery(sampleResult(t))
	require.NoError(t, err)

	_, err = table.Row(0).ValueByName("nope")
	assert.Error(t, err)
	_, err = table.Row(0).Value(9)
	assert.Error(t, err)
}

func TestProcessQuerySingle(t *testing.T) {
	row, err := processQuerySingle(sampleResult(t))
	require.NoError(t, err)
	require.NotNil(t, row)

	empty := &pgwire.Result{Status: pgwire.StatusTuplesOK}
	row, err = processQuerySingle(empty)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestProcessValueDecodesFirstCell(t *testing.T) {
	u := uuid.MustParse("6be8d93c-e458-11e8-bd0e-1c872c561fcc")
	res := &pgwire.Result{
		Status: pgwire.StatusSingleTuple,
		Fields: []pgwire.Field{{Name: "u", OID: pgtypes.UUIDOID, Format: pgtypes.BinaryFormat}},
		Rows:   [][][]byte{{mustEncode(t, pgtypes.UUIDOID, u)}},
	}
	d, err := processValue(res)
	require.NoError(t, err)
	assert.Equal(t, u, d)
}

func TestProcessValueEmptyResultFails(t *testing.T) {
	res := &pgwire.Result{Status: pgwire.StatusTuplesOK}
	_, err := processValue(res)
	assert.Error(t, err)
}

func TestProcessExecuteStatuses(t *testing.T) {
	n, err := processExecute(&pgwire.Result{Status: pgwire.StatusCommandOK, RowsAffected: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	n, err = processExecute(&pgwire.Result{Status: pgwire.StatusEmptyQuery})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	serr := &pgwire.ServerError{Severity: "ERROR", Code: "42P01", Message: "missing table"}
	_, err = processExecute(&pgwire.Result{Status: pgwire.StatusFatalError, Err: serr})
	require.Error(t, err)
	se, ok := ServerErrorOf(err)
	require.True(t, ok)
	assert.Equal(t, "42P01", se.Code)
}
