package client

import (
	"errors"
	"fmt"

	"github.com/pqasync/pqasync/pgwire"
	"github.com/pqasync/pqasync/pool"
)

// QueryError represents a failed query execution.
type QueryError struct {
	Code    string
	Message string
	Query   string
	Cause   error
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *QueryError) Unwrap() error { return e.Cause }

// StatementError represents a prepared-statement failure.
type StatementError struct {
	QueryError
	StatementName string
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("%s: %s (statement: %s)", e.Code, e.Message, e.StatementName)
}

// TransactionError represents a transaction-control failure.
type TransactionError struct {
	Code    string
	Message string
	Cause   error
}

func (e *TransactionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %s)", e.Code, e.Message, e.Cause.Error())
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *TransactionError) Unwrap() error { return e.Cause }

// StateError represents an operation attempted against an object in the
// wrong state (closed reader, closed session, open large object, ...).
type StateError struct {
	Code    string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// CancelledError reports an in-flight cancel that was acknowledged.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("E_CANCELLED: query cancelled (caused by: %s)", e.Cause.Error())
	}
	return "E_CANCELLED: query cancelled"
}

func (e *CancelledError) Unwrap() error { return e.Cause }

func errNotInTransaction() *TransactionError {
	return &TransactionError{Code: "E_NO_ACTIVE_TX", Message: "not in a transaction"}
}

func errAlreadyInTransaction() *TransactionError {
	return &TransactionError{Code: "E_TX_ALREADY_ACTIVE", Message: "already in a transaction"}
}

func errSessionClosed() *StateError {
	return &StateError{Code: "E_SESSION_CLOSED", Message: "the session is closed"}
}

func errReaderClosed() *StateError {
	return &StateError{Code: "E_READER_CLOSED", Message: "the reader is closed"}
}

func errConnectionDead() *QueryError {
	return &QueryError{Code: "E_CONN_DEAD", Message: "connection is dead"}
}

func errNoRows() *QueryError {
	return &QueryError{Code: "E_NO_ROWS", Message: "no records in the query result"}
}

func errNonFatal() *QueryError {
	return &QueryError{Code: "E_NONFATAL", Message: "non fatal error has occurred"}
}

func queryFailed(sql string, cause error) *QueryError {
	return &QueryError{
		Code:    "E_QUERY_FAILED",
		Message: "query execution failed",
		Query:   sql,
		Cause:   cause,
	}
}

// IsPoolExhausted reports whether err is the pool's saturation timeout.
func IsPoolExhausted(err error) bool {
	var ex *pool.ExhaustedError
	return errors.As(err, &ex)
}

// ServerErrorOf extracts the backend error fields when err carries them.
func ServerErrorOf(err error) (*pgwire.ServerError, bool) {
	var se *pgwire.ServerError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
