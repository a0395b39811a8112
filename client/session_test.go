package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pool"
)

func TestSessionCloseIsIdempotent(t *testing.T) {
	s := testSession(t)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.openConnection(0)
	var serr *StateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "E_SESSION_CLOSED", serr.Code)
}

func TestSessionDetachConn(t *testing.T) {
	pool.Destroy()
	pool.Init(pool.Options{MaxConns: 2})
	defer pool.Destroy()

	s := testSession(t)
	s.connString = "db=detach"

	p, err := pool.Instance()
	require.NoError(t, err)
	c, err := p.Acquire(s, s.connString, 0)
	require.NoError(t, err)
	s.mu.Lock()
	s.conn = c
	s.mu.Unlock()

	s.DetachConn()
	_, err = s.currentConn()
	assert.Error(t, err, "a detached session has no connection until it re-acquires")
}

func TestSessionMoneyLocaleOverride(t *testing.T) {
	loc := pgtypes.ParseMoneyLocale("en_US")
	opts := DefaultOptions()
	opts.MoneyLocale = &loc

	s := Open("host=test", &opts)
	got := s.FormatMoney(pgtypes.Money(150))
	assert.Contains(t, got, "1.50")
}

func TestSessionNotInTransactionInitially(t *testing.T) {
	s := testSession(t)
	assert.False(t, s.InTransaction())
	assert.False(t, s.Working())

	err := s.Commit()
	var terr *TransactionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "E_NO_ACTIVE_TX", terr.Code)

	err = s.SetSavepoint("sp1")
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "E_NO_ACTIVE_TX", terr.Code)
}
