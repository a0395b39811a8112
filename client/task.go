package client

import (
	"time"

	"github.com/pqasync/pqasync/events"
	"github.com/pqasync/pqasync/pgtypes"
	"github.com/pqasync/pqasync/pgwire"
	"github.com/pqasync/pqasync/pool"
)

// command tags a connection task's pending protocol action.
type command int

const (
	cmdNone command = iota
	cmdConnect
	cmdQuery
	cmdPrepare
	cmdQueryPrepared
	cmdCancel
	cmdSent
)

// wireDriver is the protocol surface a task drives. *pgwire.Conn is the
// production implementation; tests substitute a scripted fake.
type wireDriver interface {
	SendQuery(sql string, params *pgtypes.Parameters, resultFormat int16) error
	SendPrepare(name, sql string, paramOIDs []pgtypes.OID) error
	SendQueryPrepared(name string, params *pgtypes.Parameters, resultFormat int16) error
	SendSimpleQuery(sql string) error
	SetSingleRowMode() error
	ConsumeInput() error
	Busy() bool
	GetResult() *pgwire.Result
	RequestCancel() error
}

// connTask is one enqueued protocol exchange bound to a session and a
// locked connection. Its Run is the per-query state machine: issue the
// non-blocking send, then consume socket input until the driver stops
// reporting busy, re-queueing to the front in between.
type connTask struct {
	session *Session
	lock    *pool.ConnLock
	drv     wireDriver

	cmd    command
	name   string
	sql    string
	params *pgtypes.Parameters
	types  []pgtypes.OID
	format int16

	completed bool
	cb        func(error, *pgwire.Result)
}

func newConnTask(s *Session, lock *pool.ConnLock, cb func(error, *pgwire.Result)) *connTask {
	return &connTask{session: s, lock: lock, cb: cb, format: s.opts.ResultFormat}
}

// SendQuery arms the task with a parameterised query.
func (t *connTask) SendQuery(sql string, params *pgtypes.Parameters) {
	t.cmd = cmdQuery
	t.sql = sql
	t.params = params
}

// SendPrepare arms the task with a named prepare.
func (t *connTask) SendPrepare(name, sql string, types []pgtypes.OID) {
	t.cmd = cmdPrepare
	t.name = name
	t.sql = sql
	t.types = types
}

// SendQueryPrepared arms the task with an execute of a named statement.
func (t *connTask) SendQueryPrepared(name string, params *pgtypes.Parameters) {
	t.cmd = cmdQueryPrepared
	t.name = name
	t.params = params
}

// Cancel redirects a sent task to the out-of-band cancel path. Only valid
// while the command is in flight.
func (t *connTask) Cancel() error {
	if t.cmd != cmdSent || t.completed {
		return &StateError{Code: "E_NO_COMMAND", Message: "no command in progress"}
	}
	t.cmd = cmdCancel
	return nil
}

// driver resolves the wire driver, opening the session's connection on
// first use.
func (t *connTask) driver() (wireDriver, error) {
	if t.drv != nil {
		return t.drv, nil
	}
	conn := t.lock.Conn()
	if conn == nil {
		var err error
		conn, err = t.session.currentConn()
		if err != nil {
			return nil, err
		}
	}
	d, err := conn.Driver()
	if err != nil {
		return nil, err
	}
	t.drv = d
	return d, nil
}

// issue performs the armed send.
func (t *connTask) issue(d wireDriver) error {
	switch t.cmd {
	case cmdQuery:
		return d.SendQuery(t.sql, t.params, t.format)
	case cmdPrepare:
		return d.SendPrepare(t.name, t.sql, t.types)
	case cmdQueryPrepared:
		return d.SendQueryPrepared(t.name, t.params, t.format)
	case cmdCancel:
		return d.RequestCancel()
	}
	return nil
}

// Run implements events.Task: send once, then poll until the exchange
// drains, delivering the final result to the callback exactly once.
func (t *connTask) Run() events.Requeue {
	if t.cb == nil || t.cmd == cmdNone || t.completed {
		return events.Done
	}

	d, err := t.driver()
	if err != nil {
		return t.fail(err)
	}

	if t.cmd != cmdSent {
		if err := t.issue(d); err != nil {
			return t.fail(err)
		}
		t.cmd = cmdSent
		return events.Front
	}

	if err := d.ConsumeInput(); err != nil {
		return t.fail(err)
	}
	if d.Busy() {
		return events.Front
	}

	var last *pgwire.Result
	for {
		r := d.GetResult()
		if r == nil {
			break
		}
		last = r
	}
	t.completed = true
	t.release()
	t.cb(nil, last)
	return events.Done
}

// RunNow drives the exchange to completion on the calling goroutine,
// blocking between polls. The synchronous API uses it.
func (t *connTask) RunNow() (*pgwire.Result, error) {
	if t.cmd == cmdNone {
		return nil, nil
	}

	d, err := t.driver()
	if err != nil {
		t.completed = true
		t.release()
		return nil, err
	}

	if t.cmd != cmdSent {
		if err := t.issue(d); err != nil {
			t.completed = true
			t.release()
			return nil, err
		}
		t.cmd = cmdSent
	}

	var last *pgwire.Result
	for {
		if err := d.ConsumeInput(); err != nil {
			t.completed = true
			t.release()
			return nil, err
		}
		if d.Busy() {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		r := d.GetResult()
		if r == nil {
			break
		}
		last = r
	}
	t.completed = true
	t.release()
	return last, nil
}

func (t *connTask) fail(err error) events.Requeue {
	t.completed = true
	t.release()
	t.cb(err, nil)
	return events.Done
}

func (t *connTask) release() {
	if t.lock != nil {
		t.lock.Release()
	}
}

// readerTask is the single-row streaming variant: the exchange enters
// single-row mode immediately after the send and each poll yields at
// most one row result. A nil result signals end-of-stream.
type readerTask struct {
	connTask
	rowCB func(error, *pgwire.Result)
}

func newReaderTask(s *Session, lock *pool.ConnLock) *readerTask {
	t := &readerTask{}
	t.session = s
	t.lock = lock
	t.format = s.opts.ResultFormat
	return t
}

// Run implements events.Task for the streaming variant. The row callback
// is re-armed by the reader for every row it wants.
func (t *readerTask) Run() events.Requeue {
	if t.rowCB == nil || t.cmd == cmdNone || t.completed {
		return events.Done
	}

	d, err := t.driver()
	if err != nil {
		return t.failRow(err)
	}

	if t.cmd != cmdSent {
		wasCancel := t.cmd == cmdCancel
		if err := t.issue(d); err != nil {
			return t.failRow(err)
		}
		if !wasCancel {
			if err := d.SetSingleRowMode(); err != nil {
				return t.failRow(err)
			}
		}
		t.cmd = cmdSent
		return events.Front
	}

	if err := d.ConsumeInput(); err != nil {
		return t.failRow(err)
	}
	if d.Busy() {
		return events.Front
	}

	r := d.GetResult()
	if r == nil {
		t.completed = true
		t.release()
	}
	cb := t.rowCB
	t.rowCB = nil
	cb(nil, r)
	// the reader re-queues the task when it arms the next row callback
	return events.Done
}

// RunNow yields the next streamed result, blocking between polls. A nil
// result means the stream is drained.
func (t *readerTask) RunNow() (*pgwire.Result, error) {
	if t.cmd == cmdNone {
		return nil, nil
	}

	d, err := t.driver()
	if err != nil {
		t.completed = true
		t.release()
		return nil, err
	}

	if t.cmd != cmdSent {
		wasCancel := t.cmd == cmdCancel
		if err := t.issue(d); err != nil {
			t.completed = true
			t.release()
			return nil, err
		}
		if !wasCancel {
			if err := d.SetSingleRowMode(); err != nil {
				t.completed = true
				t.release()
				return nil, err
			}
		}
		t.cmd = cmdSent
	}

	for {
		if err := d.ConsumeInput(); err != nil {
			t.completed = true
			t.release()
			return nil, err
		}
		if d.Busy() {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		break
	}

	r := d.GetResult()
	if r == nil {
		t.completed = true
		t.release()
	}
	return r, nil
}

func (t *readerTask) failRow(err error) events.Requeue {
	t.completed = true
	t.release()
	cb := t.rowCB
	t.rowCB = nil
	if cb != nil {
		cb(err, nil)
	}
	return events.Done
}

// completionTask lifts a plain closure onto the strand as a one-shot
// task.
func completionTask(fn func()) events.Task {
	return events.TaskFunc(func() events.Requeue {
		fn()
		return events.Done
	})
}

// connectTask acquires a pooled connection asynchronously. Pool
// exhaustion is retried transparently by re-queueing so other strands
// can make progress; the deadline turns it into a timeout error.
type connectTask struct {
	session   *Session
	deadline  time.Time
	cb        func(error, *pool.ConnLock)
	completed bool
}

func newConnectTask(s *Session, timeout time.Duration, cb func(error, *pool.ConnLock)) *connectTask {
	return &connectTask{
		session:  s,
		deadline: time.Now().Add(timeout),
		cb:       cb,
	}
}

// Run implements events.Task.
func (t *connectTask) Run() events.Requeue {
	if t.completed {
		return events.Done
	}

	if time.Now().After(t.deadline) {
		t.completed = true
		t.cb(&QueryError{Code: "E_CONNECT_TIMEOUT", Message: "connection request has timed out"}, nil)
		return events.Done
	}

	lock, err := t.session.openConnection(time.Millisecond)
	if err != nil {
		if IsPoolExhausted(err) {
			return events.Front
		}
		t.completed = true
		t.cb(err, nil)
		return events.Done
	}

	t.completed = true
	t.cb(nil, lock)
	return events.Done
}
