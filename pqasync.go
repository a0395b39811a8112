// Package pqasync is an asynchronous PostgreSQL client: a bounded,
// shareable pool of backend connections with fair stealing, a cooperative
// task engine multiplexing query execution onto per-session strands, and
// a binary codec for the server's scalar, array, range, network,
// geometric, temporal and numeric types.
//
// The process-wide pool must be initialised once before any session is
// opened, and torn down when the process is done with the database:
//
//	pqasync.Init(pqasync.PoolOptions{MaxConns: 20})
//	defer pqasync.Shutdown()
//
//	db := pqasync.Open("host=localhost dbname=app user=app", nil)
//	defer db.Close()
//
//	n, err := pqasync.QueryValue[int64](db, "select count(*) from t")
//
// Every query family exists in a synchronous flavour returning the value
// and an asynchronous one delivering it to a callback on the session's
// strand; see the client package for the full surface.
package pqasync

import (
	"github.com/pqasync/pqasync/client"
	"github.com/pqasync/pqasync/pool"
)

// Session is a client-visible database handle.
type Session = client.Session

// Options configures a session.
type Options = client.Options

// PoolOptions configures the process-wide connection pool.
type PoolOptions = pool.Options

// Open creates a session with a new strand on the default event queue.
func Open(connString string, opts *Options) *Session {
	return client.Open(connString, opts)
}

// Init creates the process-wide connection pool. It must run exactly
// once; later calls are no-ops until Shutdown.
func Init(opts PoolOptions) {
	pool.Init(opts)
}

// Shutdown tears the pool down; any session operation afterwards fails
// deterministically.
func Shutdown() {
	pool.Destroy()
}

// QueryValue runs a query on the session and converts its first cell
// to T.
func QueryValue[T any](s *Session, sql string, params ...interface{}) (T, error) {
	return client.QueryValue[T](s, sql, params...)
}
