package client

import (
	"github.com/pqasync/pqasync/log"
	"github.com/pqasync/pqasync/pgwire"
	"github.com/pqasync/pqasync/pool"
)

// Begin opens a transaction and pins the connection reservation for its
// lifetime: every operation until Commit or Rollback reuses the pinned
// connection instead of asking the pool, and the connection cannot be
// stolen while the transaction is open.
func (s *Session) Begin() error {
	s.waitForSync()

	if s.InTransaction() {
		return errAlreadyInTransaction()
	}

	lock, err := s.openConnection(s.opts.ConnectTimeout)
	if err != nil {
		return err
	}

	conn := lock.Conn()
	if err := conn.Begin(); err != nil {
		lock.Release()
		return &TransactionError{Code: "E_BEGIN_FAILED", Message: "failed to begin transaction", Cause: err}
	}

	s.mu.Lock()
	s.txLock = lock
	s.mu.Unlock()
	s.logger.Debug("transaction started")
	return nil
}

// BeginAsync opens a transaction on the session's strand.
func (s *Session) BeginAsync(cb func(error)) {
	if s.InTransaction() {
		s.strand.PushBack(completionTask(func() { cb(errAlreadyInTransaction()) }))
		return
	}

	s.openConnectionAsync(func(err error, lock *pool.ConnLock) {
		if err != nil {
			cb(err)
			return
		}
		if err := lock.Conn().Begin(); err != nil {
			lock.Release()
			cb(&TransactionError{Code: "E_BEGIN_FAILED", Message: "failed to begin transaction", Cause: err})
			return
		}
		s.mu.Lock()
		s.txLock = lock
		s.mu.Unlock()
		cb(nil)
	})
}

// Commit closes the open transaction and drops the pinned reservation.
func (s *Session) Commit() error {
	s.waitForSync()
	return s.finishTransaction("commit")
}

// CommitAsync commits on the session's strand.
func (s *Session) CommitAsync(cb func(error)) {
	s.strand.PushBack(completionTask(func() { cb(s.finishTransaction("commit")) }))
}

// Rollback aborts the open transaction and drops the pinned reservation.
func (s *Session) Rollback() error {
	s.waitForSync()
	return s.finishTransaction("rollback")
}

// RollbackAsync rolls back on the session's strand.
func (s *Session) RollbackAsync(cb func(error)) {
	s.strand.PushBack(completionTask(func() { cb(s.finishTransaction("rollback")) }))
}

func (s *Session) finishTransaction(op string) error {
	s.mu.Lock()
	conn := s.conn
	lock := s.txLock
	s.txLock = nil
	s.mu.Unlock()

	if conn == nil || !conn.InTransaction() {
		if lock != nil {
			lock.Release()
		}
		return errNotInTransaction()
	}

	var err error
	if op == "commit" {
		err = conn.Commit()
	} else {
		err = conn.Rollback()
	}
	if lock != nil {
		lock.Release()
	}
	if err != nil {
		return &TransactionError{Code: "E_" + op + "_FAILED", Message: "failed to " + op + " transaction", Cause: err}
	}
	s.logger.Debug("transaction finished", log.String("op", op))
	return nil
}

// SetSavepoint establishes a savepoint inside the open transaction. The
// name is identifier-escaped at this boundary.
func (s *Session) SetSavepoint(name string) error {
	return s.savepointOp(name, (*pool.Conn).SetSavepoint)
}

// ReleaseSavepoint releases a savepoint.
func (s *Session) ReleaseSavepoint(name string) error {
	return s.savepointOp(name, (*pool.Conn).ReleaseSavepoint)
}

// RollbackSavepoint rolls back to a savepoint.
func (s *Session) RollbackSavepoint(name string) error {
	return s.savepointOp(name, (*pool.Conn).RollbackSavepoint)
}

// SetSavepointAsync establishes a savepoint on the session's strand.
func (s *Session) SetSavepointAsync(name string, cb func(error)) {
	s.strand.PushBack(completionTask(func() { cb(s.SetSavepoint(name)) }))
}

// ReleaseSavepointAsync releases a savepoint on the session's strand.
func (s *Session) ReleaseSavepointAsync(name string, cb func(error)) {
	s.strand.PushBack(completionTask(func() { cb(s.ReleaseSavepoint(name)) }))
}

// RollbackSavepointAsync rolls back to a savepoint on the session's
// strand.
func (s *Session) RollbackSavepointAsync(name string, cb func(error)) {
	s.strand.PushBack(completionTask(func() { cb(s.RollbackSavepoint(name)) }))
}

func (s *Session) savepointOp(name string, op func(*pool.Conn, string) error) error {
	if !s.InTransaction() {
		return errNotInTransaction()
	}

	escaped, err := pgwire.EscapeIdentifier(name)
	if err != nil {
		return &QueryError{Code: "E_BAD_IDENTIFIER", Message: "invalid savepoint name", Cause: err}
	}

	conn, err := s.currentConn()
	if err != nil {
		return err
	}
	return op(conn, escaped)
}
