package client

import (
	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pgwire"
	"github.com/pqasync/pqasync/pool"
)

// checkResult turns a fatal result into its server error; nil results
// pass through.
func checkResult(res *pgwire.Result) error {
	if res == nil {
		return nil
	}
	if res.Status == pgwire.StatusFatalError {
		return res.Err
	}
	return nil
}

// processExecute extracts the affected-row count.
func processExecute(res *pgwire.Result) (int64, error) {
	if res == nil {
		return 0, nil
	}
	switch res.Status {
	case pgwire.StatusCommandOK, pgwire.StatusTuplesOK, pgwire.StatusSingleTuple:
		return res.RowsAffected, nil
	case pgwire.StatusEmptyQuery, pgwire.StatusNonFatalError:
		return 0, nil
	default:
		return 0, res.Err
	}
}

// processQuery builds the full result table.
func processQuery(res *pgwire.Result) (*Table, error) {
	if res == nil {
		return &Table{}, nil
	}
	if !res.OK() {
		return nil, res.Err
	}
	return tableOf(res), nil
}

// processQuerySingle returns the first row, or nil when the result is
// empty.
func processQuerySingle(res *pgwire.Result) (*Row, error) {
	t, err := processQuery(res)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, nil
	}
	return t.Row(0), nil
}

// processValue decodes the first cell of the first row.
func processValue(res *pgwire.Result) (interface{}, error) {
	if res == nil {
		return nil, errNoRows()
	}
	switch res.Status {
	case pgwire.StatusEmptyQuery:
		return nil, errNoRows()
	case pgwire.StatusNonFatalError:
		return nil, errNonFatal()
	case pgwire.StatusCommandOK, pgwire.StatusTuplesOK, pgwire.StatusSingleTuple:
	default:
		return nil, res.Err
	}
	if len(res.Rows) == 0 || len(res.Fields) == 0 {
		return nil, errNoRows()
	}

	cell := res.Rows[0][0]
	if cell == nil {
		return nil, nil
	}
	if res.Fields[0].Format == pgtypes.TextFormat {
		return string(cell), nil
	}
	return pgtypes.DecodeBinary(res.Fields[0].OID, cell)
}

// runQueryNow is the shared synchronous path: drain the strand, reserve
// the connection, run the exchange to completion.
func (s *Session) runQueryNow(sql string, params []interface{}) (*pgwire.Result, error) {
	s.waitForSync()
	lock, err := s.openConnection(s.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}

	p, err := pgtypes.NewParameters(params...)
	if err != nil {
		lock.Release()
		return nil, err
	}

	ct := newConnTask(s, lock, nil)
	ct.SendQuery(sql, p)
	res, err := ct.RunNow()
	if err != nil {
		return nil, queryFailed(sql, err)
	}
	return res, nil
}

// runQueryAsync is the shared asynchronous path: acquire on the strand,
// then enqueue the exchange; the processed result reaches done on the
// same strand.
func (s *Session) runQueryAsync(sql string, params []interface{}, done func(error, *pgwire.Result)) {
	s.openConnectionAsync(func(err error, lock *pool.ConnLock) {
		if err != nil {
			done(err, nil)
			return
		}
		p, perr := pgtypes.NewParameters(params...)
		if perr != nil {
			lock.Release()
			done(perr, nil)
			return
		}
		ct := newConnTask(s, lock, done)
		ct.SendQuery(sql, p)
		s.strand.PushBack(ct)
	})
}

// Execute synchronously runs a statement and returns the number of
// affected rows.
func (s *Session) Execute(sql string, params ...interface{}) (int64, error) {
	res, err := s.runQueryNow(sql, params)
	if err != nil {
		return 0, err
	}
	return processExecute(res)
}

// ExecuteAsync runs a statement on the session's strand; the callback
// receives the affected-row count.
func (s *Session) ExecuteAsync(sql string, params []interface{}, cb func(error, int64)) {
	s.runQueryAsync(sql, params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(queryFailed(sql, err), 0)
			return
		}
		n, perr := processExecute(res)
		cb(perr, n)
	})
}

// Query synchronously runs a query and returns the full result table.
func (s *Session) Query(sql string, params ...interface{}) (*Table, error) {
	res, err := s.runQueryNow(sql, params)
	if err != nil {
		return nil, err
	}
	return processQuery(res)
}

// QueryAsync runs a query on the session's strand; the callback receives
// the result table.
func (s *Session) QueryAsync(sql string, params []interface{}, cb func(error, *Table)) {
	s.runQueryAsync(sql, params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(queryFailed(sql, err), nil)
			return
		}
		t, perr := processQuery(res)
		cb(perr, t)
	})
}

// QuerySingle synchronously runs a query and returns its first row, or
// nil when the result is empty.
func (s *Session) QuerySingle(sql string, params ...interface{}) (*Row, error) {
	res, err := s.runQueryNow(sql, params)
	if err != nil {
		return nil, err
	}
	return processQuerySingle(res)
}

// QuerySingleAsync runs a query on the session's strand; the callback
// receives the first row (nil when empty).
func (s *Session) QuerySingleAsync(sql string, params []interface{}, cb func(error, *Row)) {
	s.runQueryAsync(sql, params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(queryFailed(sql, err), nil)
			return
		}
		r, perr := processQuerySingle(res)
		cb(perr, r)
	})
}

// QueryValue synchronously runs a query and returns its first cell
// converted to T.
func QueryValue[T any](s *Session, sql string, params ...interface{}) (T, error) {
	var zero T
	res, err := s.runQueryNow(sql, params)
	if err != nil {
		return zero, err
	}
	d, err := processValue(res)
	if err != nil {
		return zero, err
	}
	return convertValue[T](d)
}

// QueryValueAsync runs a query on the session's strand; the callback
// receives the first cell converted to T.
func QueryValueAsync[T any](s *Session, sql string, params []interface{}, cb func(error, T)) {
	var zero T
	s.runQueryAsync(sql, params, func(err error, res *pgwire.Result) {
		if err != nil {
			cb(queryFailed(sql, err), zero)
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

// QueryReader synchronously opens a streaming cursor over the query. No
// data moves until the first Next.
func (s *Session) QueryReader(sql string, params ...interface{}) (*Reader, error) {
	s.waitForSync()
	lock, err := s.openConnection(s.opts.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	p, err := pgtypes.NewParameters(params...)
	if err != nil {
		lock.Release()
		return nil, err
	}

	rt := newReaderTask(s, lock)
	rt.SendQuery(sql, p)
	return newReader(rt), nil
}

// QueryReaderAsync opens a streaming cursor on the session's strand.
func (s *Session) QueryReaderAsync(sql string, params []interface{}, cb func(error, *Reader)) {
	s.openConnectionAsync(func(err error, lock *pool.ConnLock) {
		if err != nil {
			cb(err, nil)
			return
		}
		p, perr := pgtypes.NewParameters(params...)
		if perr != nil {
			lock.Release()
			cb(perr, nil)
			return
		}
		rt := newReaderTask(s, lock)
		rt.SendQuery(sql, p)
		cb(nil, newReader(rt))
	})
}
