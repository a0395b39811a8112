package client

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pgwire"
	"github.com/pqasync/pqasync/pool"
)

// Prepared is a handle on a server-side prepared statement. With
// autoDeallocate set, Close emits the deallocate.
type Prepared struct {
	session        *Session
	name           string
	autoDeallocate bool
	closed         bool
}

// statementName derives a deterministic name for statements prepared
// without one, so re-preparing the same text reuses the server entry.
func statementName(sql string) string {
	return fmt.Sprintf("pq_%016x", xxhash.Sum64String(sql))
}

// Prepare creates (or reattaches to) a named prepared statement with the
// declared parameter types. When the server already has a statement of
// that name, the existing entry is reused and no prepare is sent. An
// empty name derives one from the statement text.
func (s *Session) Prepare(name, sql string, autoDeallocate bool, types ...pgtypes.OID) (*Prepared, error) {
	if name == "" {
		name = statementName(sql)
	}

	s.waitForSync()

	exists, err := QueryValue[bool](s,
		"select exists (select 1 from pg_prepared_statements where name = $1)", name)
	if err != nil {
		return nil, err
	}
	if exists {
		return &Prepared{session: s, name: name, autoDeallocate: autoDeallocate}, nil
	}

	lock, err := s.openConnection(s.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	ct := newConnTask(s, lock, nil)
	ct.SendPrepare(name, sql, types)
	res, err := ct.RunNow()
	if err != nil {
		return nil, prepareFailed(name, sql, err)
	}
	if err := checkResult(res); err != nil {
		return nil, prepareFailed(name, sql, err)
	}

	s.logger.Debug("statement prepared")
	return &Prepared{session: s, name: name, autoDeallocate: autoDeallocate}, nil
}

// PrepareAsync creates a named prepared statement on the session's
// strand.
func (s *Session) PrepareAsync(name, sql string, autoDeallocate bool, types []pgtypes.OID, cb func(error, *Prepared)) {
	if name == "" {
		name = statementName(sql)
	}

	s.openConnectionAsync(func(err error, lock *pool.ConnLock) {
		if err != nil {
			cb(err, nil)
			return
		}
		ct := newConnTask(s, lock, func(err error, res *pgwire.Result) {
			if err == nil {
				err = checkResult(res)
			}
			if err != nil {
				cb(prepareFailed(name, sql, err), nil)
				return
			}
			cb(nil, &Prepared{session: s, name: name, autoDeallocate: autoDeallocate})
		})
		ct.SendPrepare(name, sql, types)
		s.strand.PushBack(ct)
	})
}

// DeallocatePrepared drops a named prepared statement. The name is
// identifier-escaped at this boundary.
func (s *Session) DeallocatePrepared(name string) error {
	escaped, err := pgwire.EscapeIdentifier(name)
	if err != nil {
		return &StatementError{
			QueryError:    QueryError{Code: "E_BAD_IDENTIFIER", Message: "deallocate prepared invalid name", Cause: err},
			StatementName: name,
		}
	}
	_, err = s.Execute("DEALLOCATE PREPARE " + escaped)
	return err
}

// DeallocatePreparedAsync drops a named prepared statement on the
// session's strand.
func (s *Session) DeallocatePreparedAsync(name string, cb func(error)) {
	escaped, err := pgwire.EscapeIdentifier(name)
	if err != nil {
		s.strand.PushBack(completionTask(func() {
			cb(&StatementError{
				QueryError:    QueryError{Code: "E_BAD_IDENTIFIER", Message: "deallocate prepared invalid name", Cause: err},
				StatementName: name,
			})
		}))
		return
	}
	s.ExecuteAsync("DEALLOCATE PREPARE "+escaped, nil, func(err error, _ int64) {
		cb(err)
	})
}

func prepareFailed(name, sql string, cause error) *StatementError {
	return &StatementError{
		QueryError: QueryError{
			Code:    "E_PREPARE_FAILED",
			Message: "failed to prepare statement",
			Query:   sql,
			Cause:   cause,
		},
		StatementName: name,
	}
}

// Name returns the statement name.
func (p *Prepared) Name() string { return p.name }

// Close releases the handle; with auto-deallocate set it also drops the
// server-side statement.
func (p *Prepared) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	if p.autoDeallocate {
		return p.session.DeallocatePrepared(p.name)
	}
	return nil
}

// runNow executes the prepared statement synchronously.
func (p *Prepared) runNow(params []interface{}) (*pgwire.Result, error) {
	if p.closed {
		return nil, &StateError{Code: "E_STMT_CLOSED", Message: "the prepared statement handle is closed"}
	}
	s := p.session

	s.waitForSync()
	lock, err := s.openConnection(s.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	bound, err := pgtypes.NewParameters(params...)
	if err != nil {
		lock.Release()
		return nil, err
	}

	ct := newConnTask(s, lock, nil)
	ct.SendQueryPrepared(p.name, bound)
	res, err := ct.RunNow()
	if err != nil {
		return nil, prepareFailed(p.name, "", err)
	}
	return res, nil
}

// runAsync executes the prepared statement on the session's strand.
func (p *Prepared) runAsync(params []interface{}, done func(error, *pgwire.Result)) {
	if p.closed {
		p.session.strand.PushBack(completionTask(func() {
			done(&StateError{Code: "E_STMT_CLOSED", Message: "the prepared statement handle is closed"}, nil)
		}))
		return
	}
	s := p.session

	s.openConnectionAsync(func(err error, lock *pool.ConnLock) {
		if err != nil {
			done(err, nil)
			return
		}
		bound, perr := pgtypes.NewParameters(params...)
		if perr != nil {
			lock.Release()
			done(perr, nil)
			return
		}
		ct := newConnTask(s, lock, done)
		ct.SendQueryPrepared(p.name, bound)
		s.strand.PushBack(ct)
	})
}

// Execute runs the statement and returns the affected-row count.
func (p *Prepared) Execute(params ...interface{}) (int64, error) {
	res, err := p.runNow(params)
	if err != nil {
		return 0, err
	}
	return processExecute(res)
}

// ExecuteAsync runs the statement on the session's strand.
func (p *Prepared) ExecuteAsync(params []interface{}, cb func(error, int64)) {
	p.runAsync(params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(err, 0)
			return
		}
		n, perr := processExecute(res)
		cb(perr, n)
	})
}

// Query runs the statement and returns the full result table.
func (p *Prepared) Query(params ...interface{}) (*Table, error) {
	res, err := p.runNow(params)
	if err != nil {
		return nil, err
	}
	return processQuery(res)
}

// QueryAsync runs the statement on the session's strand; the callback
// receives the result table.
func (p *Prepared) QueryAsync(params []interface{}, cb func(error, *Table)) {
	p.runAsync(params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(err, nil)
			return
		}
		t, perr := processQuery(res)
		cb(perr, t)
	})
}

// QuerySingle runs the statement and returns its first row (nil when
// empty).
func (p *Prepared) QuerySingle(params ...interface{}) (*Row, error) {
	res, err := p.runNow(params)
	if err != nil {
		return nil, err
	}
	return processQuerySingle(res)
}

// QuerySingleAsync runs the statement on the session's strand; the
// callback receives the first row.
func (p *Prepared) QuerySingleAsync(params []interface{}, cb func(error, *Row)) {
	p.runAsync(params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(err, nil)
			return
		}
		r, perr := processQuerySingle(res)
		cb(perr, r)
	})
}

// PreparedValue runs the statement and converts its first cell to T.
func PreparedValue[T any](p *Prepared, params ...interface{}) (T, error) {
	var zero T
	res, err := p.runNow(params)
	if err != nil {
		return zero, err
	}
	d, err := processValue(res)
	if err != nil {
		return zero, err
	}
	return convertValue[T](d)
}

// PreparedValueAsync runs the statement on the session's strand; the
// callback receives the first cell converted to T.
func PreparedValueAsync[T any](p *Prepared, params []interface{}, cb func(error, T)) {
	var zero T
	p.runAsync(params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(err, zero)
			return
		}
		d, perr := processValue(res)
		if perr != nil {
			cb(perr, zero)
			return
		}
		v, cerr := convertValue[T](d)
		cb(cerr, v)
	})
}

// QueryReader opens a streaming cursor over the prepared statement.
func (p *Prepared) QueryReader(params ...interface{}) (*Reader, error) {
	if p.closed {
		return nil, &StateError{Code: "E_STMT_CLOSED", Message: "the prepared statement handle is closed"}
	}
	s := p.session

	s.waitForSync()
	lock, err := s.openConnection(s.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	bound, err := pgtypes.NewParameters(params...)
	if err != nil {
		lock.Release()
		return nil, err
	}

	rt := newReaderTask(s, lock)
	rt.SendQueryPrepared(p.name, bound)
	return newReader(rt), nil
}
