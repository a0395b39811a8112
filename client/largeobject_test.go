package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLargeObjectClosedGuards(t *testing.T) {
	s := testSession(t)
	lo := s.GetLO(16406)

	assert.False(t, lo.Opened())
	assert.Equal(t, uint32(16406), uint32(lo.OID()))

	_, err := lo.Read(4)
	requireStateError(t, err, "E_LO_CLOSED")
	_, err = lo.Write([]byte{0xDE, 0xAD})
	requireStateError(t, err, "E_LO_CLOSED")
	_, err = lo.Tell()
	requireStateError(t, err, "E_LO_CLOSED")
	_, err = lo.Seek(0, LOSeekStart)
	requireStateError(t, err, "E_LO_CLOSED")
	err = lo.Resize(10)
	requireStateError(t, err, "E_LO_CLOSED")

	// closing a never-opened handle is a no-op
	assert.NoError(t, lo.Close())
}

func TestLargeObjectOpenGuards(t *testing.T) {
	s := testSession(t)
	lo := s.GetLO(16406)
	lo.openedWrite = true

	err := lo.Open(LORead)
	requireStateError(t, err, "E_LO_OPEN")

	err = lo.Unlink()
	requireStateError(t, err, "E_LO_OPEN")
}

func TestLargeObjectModeFlags(t *testing.T) {
	mode := LORead | LOWrite
	assert.NotZero(t, mode&LORead)
	assert.NotZero(t, mode&LOWrite)

	s := testSession(t)
	lo := s.GetLO(1)
	lo.openedRead = true
	lo.openedWrite = true
	assert.True(t, lo.OpenedRead())
	assert.True(t, lo.OpenedWrite())
	assert.True(t, lo.Opened())
}

func requireStateError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	serr, ok := err.(*StateError)
	require.True(t, ok, "expected *StateError, got %T", err)
	assert.Equal(t, code, serr.Code)
}
