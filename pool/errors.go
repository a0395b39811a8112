package pool

import "fmt"

// ExhaustedError reports a failed acquire: no connection could be locked,
// created or stolen before the timeout. Opened carries the number of
// connections actively locked for the conninfo at the time of failure.
type ExhaustedError struct {
	ConnString string
	Opened     int
	Max        int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf(
		"pool: unable to assign a connection because max connection count reached, connection count is '%d'",
		e.Opened)
}

// NotInitializedError is returned by any pool operation before Init or
// after Destroy.
type NotInitializedError struct{}

func (NotInitializedError) Error() string {
	return "pool: not initialized; call pool.Init first"
}

// StateError reports an operation attempted in the wrong connection
// state.
type StateError struct {
	Op      string
	Message string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("pool: %s: %s", e.Op, e.Message)
}
