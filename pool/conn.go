// Package pool owns the process-wide set of backend connections: creation,
// reservation, liveness reaping and stealing under saturation. Sessions
// borrow connections; the pool owns them until it is destroyed.
package pool

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pqasync/pqasync/log"
	"github.com/pqasync/pqasync/pgwire"
)

// Reservation states. Acquire sets 2; a task lock moves it to 1 and its
// release moves it back to 2 while an owner holds the connection; Release
// drops it to 0. The state is not monotonic within one acquisition.
const (
	resFree     int32 = 0 // unowned, available to any session
	resLocked   int32 = 1 // a task is actively driving the socket
	resReserved int32 = 2 // owned by a session, idle between tasks
)

// deadAfter is how long an unowned, untransacted connection may sit idle
// before the reaper may close it.
const deadAfter = 15 * time.Second

// Owner is the session-side back-reference. The pool only ever needs to
// sever it when a connection is stolen, reaped or torn down.
type Owner interface {
	// DetachConn severs the owner's cached connection pointer. The owner
	// lazily re-acquires on its next operation.
	DetachConn()
}

// Conn is one backend connection. The protocol session underneath is
// opened lazily and opened again on next use after a local close; a
// session dropped by the peer is not detected here and is not re-opened.
type Conn struct {
	id    int64
	idStr string

	connString string
	pool       *Pool
	logger     log.Logger

	res       atomic.Int32
	inTx      atomic.Bool
	lastTouch atomic.Int64 // unix nanos

	// owner is guarded by the pool mutex, like every ownership change.
	owner Owner

	driver *pgwire.Conn
	cfg    *pgwire.Config
}

var nextConnID atomic.Int64

func newConn(p *Pool, connString string, logger log.Logger) *Conn {
	id := nextConnID.Add(1)
	c := &Conn{
		id:         id,
		idStr:      strconv.FormatInt(id, 10),
		connString: connString,
		pool:       p,
		logger:     logger,
	}
	c.Touch()
	return c
}

// ID returns the connection's monotonically assigned identifier.
func (c *Conn) ID() string { return c.idStr }

// Touch stamps the last-modification time.
func (c *Conn) Touch() {
	c.lastTouch.Store(time.Now().UnixNano())
}

// LastTouch returns the last-modification time.
func (c *Conn) LastTouch() time.Time {
	return time.Unix(0, c.lastTouch.Load())
}

// Driver returns the underlying protocol session, opening it on first
// use.
func (c *Conn) Driver() (*pgwire.Conn, error) {
	if err := c.Open(); err != nil {
		return nil, err
	}
	return c.driver, nil
}

// Open establishes the protocol session if it is not already up. Opening
// installs the notice handler and switches the socket to polling mode;
// a failed handshake is returned as a connection error.
func (c *Conn) Open() error {
	c.Touch()

	if c.driver != nil && c.driver.Closed() {
		c.closeDriver()
	}
	if c.driver != nil {
		return nil
	}

	if c.cfg == nil {
		cfg, err := pgwire.ParseConfig(c.connString)
		if err != nil {
			return err
		}
		c.cfg = cfg
	}

	driver, err := pgwire.Dial(c.cfg, 0, c.routeNotice)
	if err != nil {
		return err
	}
	c.driver = driver
	c.logger.Debug("connection opened",
		log.String("conn_id", c.idStr),
		log.String("backend_pid", strconv.FormatUint(uint64(driver.BackendPID()), 10)))
	return nil
}

// routeNotice maps server notice severities onto logger levels.
func (c *Conn) routeNotice(severity, message string) {
	switch severity {
	case "DEBUG":
		c.logger.Trace(message)
	case "LOG":
		c.logger.Debug(message)
	case "INFO":
		c.logger.Info(message)
	case "NOTICE", "WARNING":
		c.logger.Warn(message)
	case "EXCEPTION":
		c.logger.Error(message)
	default:
		c.logger.Warn(message)
	}
}

// Close tears down the protocol session. The Conn itself stays in its
// pool until reaped or the pool is destroyed.
func (c *Conn) Close() {
	c.Touch()
	c.closeDriver()
}

func (c *Conn) closeDriver() {
	if c.driver == nil {
		return
	}
	c.driver.Close()
	c.driver = nil
	c.inTx.Store(false)
}

// IsOpened reports whether the protocol session is currently up.
func (c *Conn) IsOpened() bool {
	return c.driver != nil && !c.driver.Closed()
}

// Lock grabs a free connection for immediate work (0 -> 1). It fails when
// any reservation is outstanding.
func (c *Conn) Lock() bool {
	if c.res.CompareAndSwap(resFree, resLocked) {
		c.Touch()
		c.logger.Trace("connection lock acquired", log.String("conn_id", c.idStr))
		return true
	}
	return false
}

// Reserve stamps the connection as owned-but-idle (state 2). The pool
// uses it when handing a connection to a session and when stealing.
func (c *Conn) Reserve() {
	c.res.Store(resReserved)
	c.Touch()
}

// StartWork moves a free or reserved connection into the locked state.
func (c *Conn) StartWork() {
	c.res.CompareAndSwap(resFree, resLocked)
	c.res.CompareAndSwap(resReserved, resLocked)
	c.Touch()
}

// StopWork ends a task's use of the connection: back to reserved while an
// owner holds it, free otherwise.
func (c *Conn) StopWork() {
	if c.owner != nil {
		c.res.CompareAndSwap(resLocked, resReserved)
	} else {
		c.res.Store(resFree)
	}
	c.Touch()
	if c.pool != nil {
		c.pool.notifyReleased()
	}
}

// Release fully frees the connection: any transaction left open by the
// owner is rolled back before the state drops to free.
func (c *Conn) Release() error {
	c.owner = nil

	var rbErr error
	if c.inTx.Load() {
		if err := c.Rollback(); err != nil {
			rbErr = err
		}
	}

	if c.res.Load() > resFree {
		c.res.Store(resFree)
		c.logger.Trace("connection lock released", log.String("conn_id", c.idStr))
	}
	c.Touch()
	if c.pool != nil {
		c.pool.notifyReleased()
	}
	return rbErr
}

// Running reports whether any reservation is outstanding.
func (c *Conn) Running() bool { return c.res.Load() != resFree }

// Reservation returns the raw reservation state.
func (c *Conn) Reservation() int32 { return c.res.Load() }

// InTransaction reports whether a transaction is open on this connection.
func (c *Conn) InTransaction() bool { return c.inTx.Load() }

// CanBeStolen reports whether the owning session is idle: no transaction
// open and no task on the socket.
func (c *Conn) CanBeStolen() bool {
	return !c.inTx.Load() && c.res.Load() != resLocked
}

// IsDead reports whether the connection is unowned, untransacted and
// idle past the liveness threshold.
func (c *Conn) IsDead() bool {
	if c.inTx.Load() || c.res.Load() != resFree {
		return false
	}
	return time.Since(c.LastTouch()) > deadAfter
}

// exec runs one statement over the simple protocol, blocking until the
// exchange drains. Transaction control and script execution use it.
func (c *Conn) exec(sql string) (*pgwire.Result, error) {
	driver, err := c.Driver()
	if err != nil {
		return nil, err
	}
	if err := driver.SendSimpleQuery(sql); err != nil {
		return nil, err
	}

	var last *pgwire.Result
	for {
		if err := driver.ConsumeInput(); err != nil {
			return nil, err
		}
		if driver.Busy() {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		r := driver.GetResult()
		if r == nil {
			break
		}
		last = r
	}
	return last, nil
}

// ExecSimple runs one statement over the simple protocol and returns its
// final result. The session's script runner drives statements through it.
func (c *Conn) ExecSimple(sql string) (*pgwire.Result, error) {
	return c.exec(sql)
}

// Begin opens a transaction, toggling the flag only on success.
func (c *Conn) Begin() error {
	if c.inTx.Load() {
		return &StateError{Op: "begin", Message: "already in a transaction"}
	}
	if err := c.Open(); err != nil {
		return err
	}
	if err := c.execCommand("BEGIN"); err != nil {
		return err
	}
	c.inTx.Store(true)
	return nil
}

// Commit closes the open transaction.
func (c *Conn) Commit() error {
	c.Touch()
	if !c.inTx.Load() {
		return &StateError{Op: "commit", Message: "not in a transaction"}
	}
	if err := c.execCommand("COMMIT"); err != nil {
		return err
	}
	c.inTx.Store(false)
	return nil
}

// Rollback aborts the open transaction.
func (c *Conn) Rollback() error {
	c.Touch()
	if !c.inTx.Load() {
		return &StateError{Op: "rollback", Message: "not in a transaction"}
	}
	if err := c.execCommand("ROLLBACK"); err != nil {
		return err
	}
	c.inTx.Store(false)
	return nil
}

// SetSavepoint, ReleaseSavepoint and RollbackSavepoint emit the obvious
// SQL; the name must already be identifier-escaped by the caller.
func (c *Conn) SetSavepoint(escapedName string) error {
	return c.savepoint("SAVEPOINT " + escapedName)
}

func (c *Conn) ReleaseSavepoint(escapedName string) error {
	return c.savepoint("RELEASE SAVEPOINT " + escapedName)
}

func (c *Conn) RollbackSavepoint(escapedName string) error {
	return c.savepoint("ROLLBACK TO SAVEPOINT " + escapedName)
}

func (c *Conn) savepoint(sql string) error {
	c.Touch()
	if !c.inTx.Load() {
		return &StateError{Op: "savepoint", Message: "not in a transaction"}
	}
	return c.execCommand(sql)
}

func (c *Conn) execCommand(sql string) error {
	r, err := c.exec(sql)
	if err != nil {
		return err
	}
	if r != nil && r.Status == pgwire.StatusFatalError {
		return r.Err
	}
	return nil
}
