package client

import (
	"github.com/pqasync/pqasync/pgtypes"
)

// LOMode selects how a large object is opened. Modes combine with |.
type LOMode int32

const (
	LOWrite LOMode = 0x00020000
	LORead  LOMode = 0x00040000
)

// LOWhence anchors a Seek.
type LOWhence int32

const (
	LOSeekStart LOWhence = 0
	LOSeekCur   LOWhence = 1
	LOSeekEnd   LOWhence = 2
)

// LargeObject is a transaction-scoped handle on a server-side binary
// object. Open begins a local transaction when none is active; Close
// commits it (or rolls back on error). Unlink requires a closed handle.
type LargeObject struct {
	session *Session
	oid     pgtypes.OID

	fd          int32
	openedRead  bool
	openedWrite bool
	localTx     bool
}

// CreateLO creates a new large object on the server and returns its
// handle.
func (s *Session) CreateLO() (*LargeObject, error) {
	oid, err := QueryValue[pgtypes.OID](s, "select lo_create(0)")
	if err != nil {
		return nil, err
	}
	return s.GetLO(oid), nil
}

// GetLO returns a handle on an existing large object.
func (s *Session) GetLO(oid pgtypes.OID) *LargeObject {
	return &LargeObject{session: s, oid: oid, fd: -1}
}

// OID returns the object's server identifier.
func (lo *LargeObject) OID() pgtypes.OID { return lo.oid }

// Opened reports whether the handle has an open descriptor.
func (lo *LargeObject) Opened() bool { return lo.openedRead || lo.openedWrite }

// OpenedRead reports whether the handle was opened for reading.
func (lo *LargeObject) OpenedRead() bool { return lo.openedRead }

// OpenedWrite reports whether the handle was opened for writing.
func (lo *LargeObject) OpenedWrite() bool { return lo.openedWrite }

// Open acquires a server-side descriptor. Large objects are only valid
// inside a transaction, so a local one is begun when none is active and
// committed on Close.
func (lo *LargeObject) Open(mode LOMode) error {
	if lo.Opened() {
		return &StateError{Code: "E_LO_OPEN", Message: "large object already opened"}
	}

	s := lo.session
	if !s.InTransaction() {
		if err := s.Begin(); err != nil {
			return err
		}
		lo.localTx = true
	}

	fd, err := QueryValue[int32](s, "select lo_open($1, $2)", lo.oid, int32(mode))
	if err != nil || fd == -1 {
		if lo.localTx {
			s.Rollback()
			lo.localTx = false
		}
		if err == nil {
			err = &QueryError{Code: "E_LO_OPEN_FAILED", Message: "unable to open large object"}
		}
		return err
	}

	lo.fd = fd
	lo.openedRead = mode&LORead != 0
	lo.openedWrite = mode&LOWrite != 0
	return nil
}

// Read fetches up to n bytes from the current position.
func (lo *LargeObject) Read(n int32) ([]byte, error) {
	if !lo.Opened() {
		return nil, &StateError{Code: "E_LO_CLOSED", Message: "unable to read when large object is closed"}
	}
	return QueryValue[[]byte](lo.session, "select loread($1, $2)", lo.fd, n)
}

// Write stores buf at the current position and returns the number of
// bytes written.
func (lo *LargeObject) Write(buf []byte) (int32, error) {
	if !lo.Opened() {
		return 0, &StateError{Code: "E_LO_CLOSED", Message: "unable to write when large object is closed"}
	}
	return QueryValue[int32](lo.session, "select lowrite($1, $2)", lo.fd, buf)
}

// Tell returns the current position.
func (lo *LargeObject) Tell() (int64, error) {
	if !lo.Opened() {
		return 0, &StateError{Code: "E_LO_CLOSED", Message: "unable to tell when large object is closed"}
	}
	return QueryValue[int64](lo.session, "select lo_tell64($1)", lo.fd)
}

// Seek moves the current position and returns the new one.
func (lo *LargeObject) Seek(offset int64, whence LOWhence) (int64, error) {
	if !lo.Opened() {
		return 0, &StateError{Code: "E_LO_CLOSED", Message: "unable to seek when large object is closed"}
	}
	return QueryValue[int64](lo.session, "select lo_lseek64($1, $2, $3)", lo.fd, offset, int32(whence))
}

// Resize truncates or zero-extends the object.
func (lo *LargeObject) Resize(size int64) error {
	if !lo.Opened() {
		return &StateError{Code: "E_LO_CLOSED", Message: "unable to resize when large object is closed"}
	}
	_, err := QueryValue[int32](lo.session, "select lo_truncate64($1, $2)", lo.fd, size)
	return err
}

// Close releases the descriptor and commits the local transaction opened
// by Open; a failing close rolls it back instead.
func (lo *LargeObject) Close() error {
	if !lo.Opened() {
		return nil
	}

	s := lo.session
	_, err := QueryValue[int32](s, "select lo_close($1)", lo.fd)
	lo.fd = -1
	lo.openedRead = false
	lo.openedWrite = false

	localTx := lo.localTx
	lo.localTx = false
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

// Unlink removes the object from the server. The handle must be closed.
func (lo *LargeObject) Unlink() error {
	if lo.Opened() {
		return &StateError{Code: "E_LO_OPEN", Message: "large object must be closed to be deleted"}
	}
	_, err := QueryValue[int32](lo.session, "select lo_unlink($1)", lo.oid)
	return err
}
