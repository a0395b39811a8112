package pgwire

import (
	"strconv"
	"strings"

	"github.com/pqasync/pqasync/pgtypes"
)

// ResultStatus classifies one query exchange outcome, mirroring the
// server's execution statuses.
type ResultStatus int

const (
	StatusCommandOK ResultStatus = iota
	StatusTuplesOK
	StatusSingleTuple
	StatusEmptyQuery
	StatusNonFatalError
	StatusFatalError
)

func (s ResultStatus) String() string {
	switch s {
	case StatusCommandOK:
		return "COMMAND_OK"
	case StatusTuplesOK:
		return "TUPLES_OK"
	case StatusSingleTuple:
		return "SINGLE_TUPLE"
	case StatusEmptyQuery:
		return "EMPTY_QUERY"
	case StatusNonFatalError:
		return "NONFATAL_ERROR"
	case StatusFatalError:
		return "FATAL_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Field describes one result column.
type Field struct {
	Name   string
	OID    pgtypes.OID
	Format int16
}

// Result is one decoded query result. Row buffers are owned copies; a nil
// cell is a null.
type Result struct {
	Status       ResultStatus
	Fields       []Field
	Rows         [][][]byte
	CommandTag   string
	RowsAffected int64

	// Err carries the server error for StatusFatalError results.
	Err *ServerError
}

// OK reports whether the result is a success status.
func (r *Result) OK() bool {
	return r.Status == StatusCommandOK || r.Status == StatusTuplesOK || r.Status == StatusSingleTuple
}

// parseCommandTag extracts the affected-row count from a command tag such
// as "INSERT 0 5" or "UPDATE 3".
func parseCommandTag(tag string) int64 {
	parts := strings.Fields(tag)
	if len(parts) == 0 {
		return 0
	}
	n, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
