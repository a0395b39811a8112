package client

import (
	"strings"

	"github.com/pqasync/pqasync/pgwire"
)

// SplitQueries scans a SQL script character by character and splits it on
// top-level semicolons. Line comments are dropped; single-quoted strings
// honour '' as an embedded quote; double-quoted identifiers honour "";
// dollar-quoted blocks are opaque until the matching tag. Each statement
// is trimmed and empty statements are elided.
//
// The splitter is not a parser: adversarially crafted inputs that abuse
// the grammar can be mis-split.
func SplitQueries(sql string) []string {
	var queries []string
	var cur strings.Builder

	flush := func() {
		q := strings.TrimSpace(cur.String())
		if q != "" {
			queries = append(queries, q)
		}
		cur.Reset()
	}

	var inSingle, inDouble, inComment bool
	var dollarTag string

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		var next byte
		if i < len(sql)-1 {
			next = sql[i+1]
		}

		switch {
		case inComment:
			if c == '\n' {
				inComment = false
			}

		case inSingle:
			cur.WriteByte(c)
			if c == '\'' {
				if next == '\'' {
					cur.WriteByte(next)
					i++
				} else {
					inSingle = false
				}
			}

		case inDouble:
			cur.WriteByte(c)
			if c == '"' {
				if next == '"' {
					cur.WriteByte(next)
					i++
				} else {
					inDouble = false
				}
			}

		case dollarTag != "":
			if c == '$' && strings.HasPrefix(sql[i:], dollarTag) {
				cur.WriteString(dollarTag)
				i += len(dollarTag) - 1
				dollarTag = ""
			} else {
				cur.WriteByte(c)
			}

		case c == '-' && next == '-':
			inComment = true

		case c == '$':
			// a dollar-quote tag is $ident$ (possibly $$); anything else,
			// such as a $n parameter placeholder, is literal text
			if tag, ok := scanDollarTag(sql[i:]); ok {
				dollarTag = tag
				cur.WriteString(tag)
				i += len(tag) - 1
			} else {
				cur.WriteByte(c)
			}

		case c == '\'':
			cur.WriteByte(c)
			inSingle = true

		case c == '"':
			cur.WriteByte(c)
			inDouble = true

		case c == ';':
			flush()

		default:
			cur.WriteByte(c)
		}
	}
	flush()

	return queries
}

// scanDollarTag reports whether s (starting at '$') opens a dollar-quote
// tag, returning the whole tag including both delimiters.
func scanDollarTag(s string) (string, bool) {
	for j := 1; j < len(s); j++ {
		c := s[j]
		if c == '$' {
			return s[:j+1], true
		}
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return "", false
		}
	}
	return "", false
}

// ExecQueries splits a SQL script and runs its statements in order inside
// a transaction, opening a local one when none is active. Empty and
// non-fatal results do not abort the batch; any other error status
// terminates with that error (rolling back a locally opened transaction).
func (s *Session) ExecQueries(sql string) error {
	s.waitForSync()

	localTx := false
	if !s.InTransaction() {
		if err := s.Begin(); err != nil {
			return err
		}
		localTx = true
	}

	queries := SplitQueries(sql)

	err := func() error {
		conn, err := s.currentConn()
		if err != nil {
			return err
		}
		for _, qry := range queries {
			res, err := conn.ExecSimple(qry)
			if err != nil {
				return queryFailed(qry, err)
			}
			if res == nil {
				continue
			}
			switch res.Status {
			case pgwire.StatusCommandOK, pgwire.StatusTuplesOK, pgwire.StatusSingleTuple,
				pgwire.StatusEmptyQuery, pgwire.StatusNonFatalError:
			default:
				return queryFailed(qry, res.Err)
			}
		}
		return nil
	}()

	if err != nil {
		if localTx {
			s.Rollback()
		}
		return err
	}
	if localTx {
		return s.Commit()
	}
	return nil
}

// ExecQueriesAsync runs the script on the session's strand with the same
// semantics as ExecQueries, completing once the whole batch (and its
// local transaction, if any) has finished.
func (s *Session) ExecQueriesAsync(sql string, cb func(error)) {
	s.strand.PushBack(completionTask(func() {
		cb(s.ExecQueries(sql))
	}))
}
