package pgwire

import (
	"testing"

	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasync/pqasync/pgtypes"
)

func newTestConn() *Conn {
	return &Conn{paramStatus: make(map[string]string)}
}

func rowDesc(names ...string) *pgproto3.RowDescription {
	fields := make([]pgproto3.FieldDescription, len(names))
	for i, n := range names {
		fields[i] = pgproto3.FieldDescription{
			Name:        []byte(n),
			DataTypeOID: uint32(pgtypes.Int4OID),
			Format:      int16(pgtypes.BinaryFormat),
		}
	}
	return &pgproto3.RowDescription{Fields: fields}
}

func dataRow(vals ...[]byte) *pgproto3.DataRow {
	return &pgproto3.DataRow{Values: vals}
}

func TestExchangeProducesOneTuplesResult(t *testing.T) {
	c := newTestConn()

	assert.True(t, c.Busy(), "no data yet: busy")

	c.dispatch(rowDesc("id"))
	assert.True(t, c.Busy(), "row description alone is not a result")

	c.dispatch(dataRow([]byte{0, 0, 0, 1}))
	c.dispatch(dataRow([]byte{0, 0, 0, 2}))
	c.dispatch(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 2")})
	assert.False(t, c.Busy())

	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusTuplesOK, r.Status)
	require.Len(t, r.Fields, 1)
	assert.Equal(t, "id", r.Fields[0].Name)
	require.Len(t, r.Rows, 2)
	assert.Equal(t, []byte{0, 0, 0, 2}, r.Rows[1][0])
	assert.Equal(t, int64(2), r.RowsAffected)

	assert.Nil(t, c.GetResult(), "exchange drained")
	assert.True(t, c.Busy(), "state reset for the next exchange")
	assert.Equal(t, byte('I'), c.TxStatus())
}

func TestCommandWithoutRowsIsCommandOK(t *testing.T) {
	c := newTestConn()
	c.dispatch(&pgproto3.CommandComplete{CommandTag: []byte("INSERT 0 5")})
	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusCommandOK, r.Status)
	assert.Equal(t, int64(5), r.RowsAffected)
	assert.Nil(t, c.GetResult())
}

func TestPrepareOnlyExchangeSynthesisesCommandOK(t *testing.T) {
	c := newTestConn()
	c.dispatch(&pgproto3.ParseComplete{})
	c.dispatch(&pgproto3.ParameterDescription{})
	c.dispatch(&pgproto3.NoData{})
	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusCommandOK, r.Status)
	assert.Nil(t, c.GetResult())
}

func TestErrorResponseBecomesFatalResult(t *testing.T) {
	c := newTestConn()
	c.dispatch(&pgproto3.ErrorResponse{
		Severity: "ERROR",
		Code:     "42P01",
		Message:  `relation "missing" does not exist`,
	})
	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusFatalError, r.Status)
	require.NotNil(t, r.Err)
	assert.Equal(t, "42P01", r.Err.Code)
	assert.Contains(t, r.Err.Error(), "SQLSTATE 42P01")
	assert.Nil(t, c.GetResult())
}

func TestEmptyQueryResponse(t *testing.T) {
	c := newTestConn()
	c.dispatch(&pgproto3.EmptyQueryResponse{})
	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusEmptyQuery, r.Status)
}

func TestSingleRowModeYieldsPerRowResults(t *testing.T) {
	c := newTestConn()
	require.NoError(t, c.SetSingleRowMode())

	c.dispatch(rowDesc("id"))
	c.dispatch(dataRow([]byte{0, 0, 0, 1}))
	assert.False(t, c.Busy(), "a row in single-row mode is immediately a result")

	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusSingleTuple, r.Status)
	require.Len(t, r.Rows, 1)

	c.dispatch(dataRow([]byte{0, 0, 0, 2}))
	r = c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusSingleTuple, r.Status)

	// the trailing zero-row result closes the stream
	c.dispatch(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 2")})
	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	r = c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, StatusTuplesOK, r.Status)
	assert.Len(t, r.Rows, 0)

	require.Nil(t, c.GetResult())
	assert.False(t, c.singleRow, "single-row mode resets with the exchange")
}

func TestSingleRowModeTooLateFails(t *testing.T) {
	c := newTestConn()
	c.dispatch(rowDesc("id"))
	c.dispatch(dataRow([]byte{0, 0, 0, 1}))
	c.dispatch(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")})
	assert.Error(t, c.SetSingleRowMode())
}

func TestNoticeRouting(t *testing.T) {
	var severities, messages []string
	c := newTestConn()
	c.onNotice = func(sev, msg string) {
		severities = append(severities, sev)
		messages = append(messages, msg)
	}

	c.dispatch(&pgproto3.NoticeResponse{Severity: "WARNING", Message: "watch out"})
	c.dispatch(&pgproto3.NoticeResponse{Severity: "DEBUG", Message: "verbose"})

	require.Equal(t, []string{"WARNING", "DEBUG"}, severities)
	assert.Equal(t, "WARNING: watch out", messages[0])
}

func TestParameterStatusTracked(t *testing.T) {
	c := newTestConn()
	c.dispatch(&pgproto3.ParameterStatus{Name: "lc_monetary", Value: "en_US.UTF-8"})
	assert.Equal(t, "en_US.UTF-8", c.ParameterStatus("lc_monetary"))
}

func TestRowBuffersAreOwnedCopies(t *testing.T) {
	c := newTestConn()
	c.dispatch(rowDesc("id"))

	shared := []byte{0, 0, 0, 9}
	c.dispatch(dataRow(shared))
	c.dispatch(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")})
	c.dispatch(&pgproto3.ReadyForQuery{TxStatus: 'I'})

	shared[3] = 0xFF
	r := c.GetResult()
	require.NotNil(t, r)
	assert.Equal(t, []byte{0, 0, 0, 9}, r.Rows[0][0])
}

func TestNextFrameFraming(t *testing.T) {
	c := newTestConn()

	full, err := (&pgproto3.ParameterStatus{Name: "a", Value: "b"}).Encode(nil)
	require.NoError(t, err)

	// partial frame: nothing decodes
	c.staging = append(c.staging, full[:3]...)
	msg, ok, err := c.nextFrame()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, msg)

	// rest arrives plus the start of another message
	c.staging = append(c.staging, full[3:]...)
	c.staging = append(c.staging, full[:2]...)

	msg, ok, err = c.nextFrame()
	require.NoError(t, err)
	require.True(t, ok)
	ps, isPS := msg.(*pgproto3.ParameterStatus)
	require.True(t, isPS)
	assert.Equal(t, "a", ps.Name)

	_, ok, err = c.nextFrame()
	require.NoError(t, err)
	assert.False(t, ok, "the second partial frame must wait")
}

func TestDecodeBackendMessageAuthVariants(t *testing.T) {
	okMsg, err := decodeBackendMessage('R', []byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.IsType(t, &pgproto3.AuthenticationOk{}, okMsg)

	cleartext, err := decodeBackendMessage('R', []byte{0, 0, 0, 3})
	require.NoError(t, err)
	assert.IsType(t, &pgproto3.AuthenticationCleartextPassword{}, cleartext)

	md5msg, err := decodeBackendMessage('R', []byte{0, 0, 0, 5, 1, 2, 3, 4})
	require.NoError(t, err)
	auth, isMD5 := md5msg.(*pgproto3.AuthenticationMD5Password)
	require.True(t, isMD5)
	assert.Equal(t, [4]byte{1, 2, 3, 4}, auth.Salt)

	_, err = decodeBackendMessage('R', []byte{0, 0, 0, 99})
	assert.Error(t, err)

	_, err = decodeBackendMessage('?', nil)
	assert.Error(t, err)
}

func TestParseCommandTag(t *testing.T) {
	assert.Equal(t, int64(5), parseCommandTag("INSERT 0 5"))
	assert.Equal(t, int64(3), parseCommandTag("UPDATE 3"))
	assert.Equal(t, int64(0), parseCommandTag("CREATE TABLE"))
	assert.Equal(t, int64(0), parseCommandTag(""))
}

func TestEscapeIdentifier(t *testing.T) {
	got, err := EscapeIdentifier("sp_1")
	require.NoError(t, err)
	assert.Equal(t, `"sp_1"`, got)

	got, err = EscapeIdentifier(`we"ird`)
	require.NoError(t, err)
	assert.Equal(t, `"we""ird"`, got)

	_, err = EscapeIdentifier("")
	assert.Error(t, err)
	_, err = EscapeIdentifier("a\x00b")
	assert.Error(t, err)
}

func TestMD5Password(t *testing.T) {
	// shape of md5(md5(password + user) + salt): "md5" and 32 hex digits
	got := md5Password("user", "secret", [4]byte{0x01, 0x02, 0x03, 0x04})
	assert.Len(t, got, 35)
	assert.Equal(t, "md5", got[:3])
	// stable across calls
	assert.Equal(t, got, md5Password("user", "secret", [4]byte{0x01, 0x02, 0x03, 0x04}))
}
