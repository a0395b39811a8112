package client

import (
	"time"

	"github.com/pqasync/pqasync/pgwire"
)

// Reader is a streaming cursor over a query running in single-row mode.
// Rows arrive one at a time; the stream must be drained or closed.
// Because it rides single-row mode rather than a server-side cursor, a
// reader works outside a transaction but cannot be paused indefinitely.
type Reader struct {
	task    *readerTask
	cols    Columns
	gotCols bool
	closed  bool
}

func newReader(t *readerTask) *Reader {
	return &Reader{task: t}
}

// Columns returns the column descriptor, available after the first row
// (or end-of-stream) has been observed.
func (r *Reader) Columns() Columns { return r.cols }

// Closed reports whether the reader has been closed.
func (r *Reader) Closed() bool { return r.closed }

// Next synchronously fetches the next row. A nil row signals
// end-of-stream, after which the reader is closed. Calling Next on a
// closed reader fails.
func (r *Reader) Next() (*Row, error) {
	if r.closed {
		return nil, errReaderClosed()
	}

	res, err := r.task.RunNow()
	if err != nil {
		r.closed = true
		return nil, err
	}
	if res == nil {
		r.closed = true
		return nil, nil
	}

	row, err := r.rowOf(res)
	if err != nil {
		return nil, err
	}
	if row == nil {
		// a zero-row trailing result closes the stream
		r.drain()
		return nil, nil
	}
	return row, nil
}

// NextAsync fetches the next row on the session's strand. The callback
// receives nil at end-of-stream.
func (r *Reader) NextAsync(cb func(error, *Row)) {
	if r.closed {
		cb(errReaderClosed(), nil)
		return
	}

	r.task.rowCB = func(err error, res *pgwire.Result) {
		if err != nil {
			r.closed = true
			cb(err, nil)
			return
		}
		if res == nil {
			r.closed = true
			cb(nil, nil)
			return
		}
		row, rerr := r.rowOf(res)
		if rerr != nil {
			cb(rerr, nil)
			return
		}
		if row == nil {
			r.drain()
			cb(nil, nil)
			return
		}
		cb(nil, row)
	}
	r.task.session.strand.PushBack(r.task)
}

// rowOf converts a single-row result, capturing the column descriptor on
// first sight. A result with no rows returns nil.
func (r *Reader) rowOf(res *pgwire.Result) (*Row, error) {
	if !res.OK() {
		r.drain()
		return nil, res.Err
	}
	if !r.gotCols {
		r.cols = columnsOf(res.Fields)
		r.gotCols = true
	}
	if len(res.Rows) == 0 {
		return nil, nil
	}
	return newRow(r.cols, res.Rows[0]), nil
}

// Close cancels the in-flight query, drains whatever the server already
// produced and marks the reader closed. Closing twice is a no-op.
func (r *Reader) Close() {
	if r.closed {
		return
	}
	r.drain()
}

// drain issues a best-effort cancel and consumes the rest of the stream.
func (r *Reader) drain() {
	r.closed = true

	t := r.task
	if t.completed {
		return
	}

	if d, err := t.driver(); err == nil {
		if t.cmd == cmdSent {
			d.RequestCancel()
		}
		// consume the remaining results so the connection is reusable
		for {
			if err := d.ConsumeInput(); err != nil {
				break
			}
			if d.Busy() {
				time.Sleep(100 * time.Microsecond)
				continue
			}
			if d.GetResult() == nil {
				break
			}
		}
	}
	t.completed = true
	t.release()
}
