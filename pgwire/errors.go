package pgwire

import "fmt"

// ServerError is a fatal error reported by the backend, with the fields
// from its error response.
type ServerError struct {
	Severity string
	Code     string // SQLSTATE
	Message  string
	Detail   string
	Hint     string
	Position int32
}

func (e *ServerError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s: %s", e.Severity, e.Message)
	}
	return fmt.Sprintf("%s: %s (SQLSTATE %s)", e.Severity, e.Message, e.Code)
}

// ConnectError is a failure establishing or authenticating a session.
type ConnectError struct {
	Addr  string
	Stage string // "dial", "tls", "startup", "auth"
	Cause error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("pgwire: connect %s failed during %s: %v", e.Addr, e.Stage, e.Cause)
}

func (e *ConnectError) Unwrap() error { return e.Cause }

// peerClosedError is the error behind ErrPeerClosed, reported when the
// backend closes the socket.
type peerClosedError struct{}

func (peerClosedError) Error() string { return "pgwire: server closed the connection" }

// ErrPeerClosed is the sentinel for an EOF from the backend.
var ErrPeerClosed error = peerClosedError{}
