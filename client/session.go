// Package client is the user-facing surface of the library: sessions,
// query execution in synchronous and asynchronous flavours, transactions
// and savepoints, prepared statements, streaming readers, script
// execution and large objects.
package client

import (
	"sync"
	"time"

	"github.com/pqasync/pqasync/events"
	"github.com/pqasync/pqasync/log"
	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pool"
)

// Session is a client-visible database handle. It owns one event strand;
// every asynchronous operation runs on it, so completions are delivered
// in enqueue order and callbacks never run concurrently.
//
// The session borrows a pooled connection lazily and keeps it until the
// pool steals it back or the session closes. An open transaction pins the
// connection for its whole lifetime.
type Session struct {
	connString string
	opts       Options
	logger     log.Logger
	strand     *events.Strand

	mu     sync.Mutex
	conn   *pool.Conn
	txLock *pool.ConnLock
	closed bool

	moneyLocale   pgtypes.MoneyLocale
	localeFromSrv bool
}

// Open creates a session with a new strand on the configured (or
// default) event queue. The conninfo string is passed to the driver
// verbatim.
func Open(connString string, opts *Options) *Session {
	var o Options
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults()
	strand := o.Queue.NewStrand()
	return OpenOnStrand(strand, connString, &o)
}

// OpenOnStrand creates a session on a caller-provided strand, letting
// several sessions share one timeline.
func OpenOnStrand(strand *events.Strand, connString string, opts *Options) *Session {
	var o Options
	if opts != nil {
		o = *opts
	}
	o = o.withDefaults()
	strand.SetActivateOnRequeue(false)

	s := &Session{
		connString: connString,
		opts:       o,
		logger:     o.Logger,
		strand:     strand,
	}
	if o.MoneyLocale != nil {
		s.moneyLocale = *o.MoneyLocale
		s.localeFromSrv = true
	}
	return s
}

// Strand returns the session's strand.
func (s *Session) Strand() *events.Strand { return s.strand }

// ConnString returns the conninfo the session was opened with.
func (s *Session) ConnString() string { return s.connString }

// Close releases any reserved connection back to the pool, rolling back
// a transaction left open. The session is unusable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.txLock != nil {
		s.txLock.Release()
		s.txLock = nil
	}

	var err error
	if s.conn != nil {
		err = s.conn.Release()
		s.conn = nil
	}
	return err
}

// DetachConn severs the session's connection back-reference. The pool
// calls it when the connection is stolen or reaped; the session lazily
// re-acquires on its next operation.
func (s *Session) DetachConn() {
	s.mu.Lock()
	s.conn = nil
	s.mu.Unlock()
}

// InTransaction reports whether a transaction is open on the session's
// connection.
func (s *Session) InTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.InTransaction()
}

// Working reports whether the session's connection holds any reservation,
// whether reserved between tasks or locked by one.
func (s *Session) Working() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil && s.conn.Running()
}

// MoneyLocale returns the locale used to format money values: the
// configured override, or the server's lc_monetary once connected.
func (s *Session) MoneyLocale() pgtypes.MoneyLocale {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moneyLocale
}

// FormatMoney renders a money value under the session's locale.
func (s *Session) FormatMoney(m pgtypes.Money) string {
	return s.MoneyLocale().Format(m)
}

// openConnection synchronously reserves the session's connection,
// acquiring one from the pool when none is attached, and returns a
// scoped lock on it.
func (s *Session) openConnection(timeout time.Duration) (*pool.ConnLock, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errSessionClosed()
	}
	conn := s.conn
	s.mu.Unlock()

	p, err := pool.Instance()
	if err != nil {
		return nil, err
	}

	if conn == nil || !p.Retain(s, conn) {
		conn, err = p.Acquire(s, s.connString, timeout)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
	}

	if err := conn.Open(); err != nil {
		return nil, err
	}
	s.noteServerLocale(conn)

	return pool.NewConnLock(conn)
}

// openConnectionAsync enqueues a connect task: it retries transparently
// while the pool is exhausted and completes with a timeout error at the
// deadline.
func (s *Session) openConnectionAsync(cb func(error, *pool.ConnLock)) {
	t := newConnectTask(s, s.opts.ConnectTimeout, cb)
	s.strand.PushBack(t)
}

// noteServerLocale captures lc_monetary the first time a connection
// reports it, unless the caller pinned a locale.
func (s *Session) noteServerLocale(conn *pool.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.localeFromSrv {
		return
	}
	drv, err := conn.Driver()
	if err != nil {
		return
	}
	if lc := drv.ParameterStatus("lc_monetary"); lc != "" {
		s.moneyLocale = pgtypes.ParseMoneyLocale(lc)
		s.localeFromSrv = true
	}
}

// waitForSync bridges async enqueue and sync observation: it drains the
// session's strand one task at a time, interleaved with short sleeps,
// until the strand is empty or the session is idle.
func (s *Session) waitForSync() {
	for s.Working() && s.strand.Size() > 0 {
		s.strand.RunOne()
		time.Sleep(10 * time.Microsecond)
	}
}

// currentConn returns the attached connection or a dead-connection error.
func (s *Session) currentConn() (*pool.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errSessionClosed()
	}
	if s.conn == nil {
		return nil, errConnectionDead()
	}
	return s.conn, nil
}
