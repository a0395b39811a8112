package pgwire

import (
	"crypto/md5"
	"crypto/tls"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/pqasync/pqasync/pgtypes"
)

// NoticeHandler receives server notices. Severity is the server's severity
// token (DEBUG, LOG, INFO, NOTICE, WARNING, EXCEPTION).
type NoticeHandler func(severity, message string)

const defaultWriteTimeout = 30 * time.Second

// Conn is one authenticated protocol session. After Dial the socket is
// driven in polling mode: sends are issued whole, receives go through
// ConsumeInput / Busy / GetResult without ever blocking.
//
// Conn is not safe for concurrent use; the task engine serialises access
// per strand.
type Conn struct {
	cfg      *Config
	netConn  net.Conn
	frontend *pgproto3.Frontend

	// staging holds raw socket bytes; complete frames move to frames.
	staging []byte
	readTmp []byte

	pid       uint32
	secretKey uint32
	txStatus  byte

	paramStatus map[string]string
	onNotice    NoticeHandler

	// per-exchange state
	singleRow    bool
	results      []*Result
	current      *Result
	sawRowDesc   bool
	pushedResult bool
	exchangeDone bool

	closed bool
}

// Dial establishes, authenticates and hands back a protocol session. The
// timeout bounds the whole handshake; zero falls back to the conninfo's
// connect_timeout or 15 seconds.
func Dial(cfg *Config, timeout time.Duration, onNotice NoticeHandler) (*Conn, error) {
	if timeout <= 0 {
		timeout = cfg.ConnectTimeout
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	deadline := time.Now().Add(timeout)

	network, addr := cfg.networkAddress()
	netConn, err := net.DialTimeout(network, addr, timeout)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Stage: "dial", Cause: err}
	}

	c := &Conn{
		cfg:         cfg,
		netConn:     netConn,
		readTmp:     make([]byte, 8192),
		paramStatus: make(map[string]string),
		onNotice:    onNotice,
	}

	if cfg.TLSConfig != nil && network == "tcp" {
		if err := c.negotiateTLS(deadline); err != nil {
			netConn.Close()
			return nil, &ConnectError{Addr: addr, Stage: "tls", Cause: err}
		}
	}
	c.frontend = pgproto3.NewFrontend(c.netConn, c.netConn)

	if err := c.startup(deadline); err != nil {
		c.netConn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) negotiateTLS(deadline time.Time) error {
	buf, err := (&pgproto3.SSLRequest{}).Encode(nil)
	if err != nil {
		return err
	}
	c.netConn.SetDeadline(deadline)
	if _, err := c.netConn.Write(buf); err != nil {
		return err
	}

	var resp [1]byte
	if _, err := io.ReadFull(c.netConn, resp[:]); err != nil {
		return err
	}
	if resp[0] != 'S' {
		return fmt.Errorf("server refused TLS")
	}

	tlsConn := tls.Client(c.netConn, c.cfg.TLSConfig)
	tlsConn.SetDeadline(deadline)
	if err := tlsConn.Handshake(); err != nil {
		return err
	}
	c.netConn = tlsConn
	return nil
}

// startup sends the startup packet and walks the authentication exchange
// until the first ReadyForQuery.
func (c *Conn) startup(deadline time.Time) error {
	_, addr := c.cfg.networkAddress()

	startBuf, err := (&pgproto3.StartupMessage{
		ProtocolVersion: pgproto3.ProtocolVersionNumber,
		Parameters:      c.cfg.startupParameters(),
	}).Encode(nil)
	if err != nil {
		return &ConnectError{Addr: addr, Stage: "startup", Cause: err}
	}
	c.netConn.SetWriteDeadline(deadline)
	if _, err := c.netConn.Write(startBuf); err != nil {
		return &ConnectError{Addr: addr, Stage: "startup", Cause: err}
	}

	var scram *scramClient
	for {
		msg, err := c.readMessageBlocking(deadline)
		if err != nil {
			return &ConnectError{Addr: addr, Stage: "startup", Cause: err}
		}

		switch m := msg.(type) {
		case *pgproto3.AuthenticationOk:
			// fall through to ReadyForQuery

		case *pgproto3.AuthenticationCleartextPassword:
			if err := c.send(deadline, &pgproto3.PasswordMessage{Password: c.cfg.Password}); err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}

		case *pgproto3.AuthenticationMD5Password:
			digested := md5Password(c.cfg.User, c.cfg.Password, m.Salt)
			if err := c.send(deadline, &pgproto3.PasswordMessage{Password: digested}); err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}

		case *pgproto3.AuthenticationSASL:
			if !supportsMechanism(m.AuthMechanisms, "SCRAM-SHA-256") {
				return &ConnectError{Addr: addr, Stage: "auth",
					Cause: fmt.Errorf("no common SASL mechanism in %v", m.AuthMechanisms)}
			}
			scram, err = newScramClient(c.cfg.User, c.cfg.Password)
			if err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}
			err = c.send(deadline, &pgproto3.SASLInitialResponse{
				AuthMechanism: "SCRAM-SHA-256",
				Data:          scram.first(),
			})
			if err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}

		case *pgproto3.AuthenticationSASLContinue:
			if scram == nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: fmt.Errorf("unexpected SASL continue")}
			}
			final, err := scram.final(m.Data)
			if err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}
			if err := c.send(deadline, &pgproto3.SASLResponse{Data: final}); err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}

		case *pgproto3.AuthenticationSASLFinal:
			if scram == nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: fmt.Errorf("unexpected SASL final")}
			}
			if err := scram.verify(m.Data); err != nil {
				return &ConnectError{Addr: addr, Stage: "auth", Cause: err}
			}

		case *pgproto3.BackendKeyData:
			c.pid = m.ProcessID
			c.secretKey = m.SecretKey

		case *pgproto3.ParameterStatus:
			c.paramStatus[m.Name] = m.Value

		case *pgproto3.NoticeResponse:
			c.routeNotice(m)

		case *pgproto3.ErrorResponse:
			return &ConnectError{Addr: addr, Stage: "auth", Cause: serverError(m)}

		case *pgproto3.ReadyForQuery:
			c.txStatus = m.TxStatus
			return nil
		}
	}
}

// md5Password computes the md5 double-hash the server expects.
func md5Password(user, password string, salt [4]byte) string {
	inner := md5.Sum([]byte(password + user))
	outer := md5.Sum(append([]byte(hex.EncodeToString(inner[:])), salt[:]...))
	return "md5" + hex.EncodeToString(outer[:])
}

func (c *Conn) send(deadline time.Time, msgs ...pgproto3.FrontendMessage) error {
	for _, m := range msgs {
		c.frontend.Send(m)
	}
	c.netConn.SetWriteDeadline(deadline)
	return c.frontend.Flush()
}

// readMessageBlocking reads exactly one backend message, blocking up to
// the deadline. Used only during startup.
func (c *Conn) readMessageBlocking(deadline time.Time) (pgproto3.BackendMessage, error) {
	c.netConn.SetReadDeadline(deadline)
	for {
		if msg, ok, err := c.nextFrame(); err != nil {
			return nil, err
		} else if ok {
			return msg, nil
		}
		n, err := c.netConn.Read(c.readTmp)
		if n > 0 {
			c.staging = append(c.staging, c.readTmp[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return nil, ErrPeerClosed
			}
			return nil, err
		}
	}
}

// nextFrame decodes one complete message from the staging buffer if one is
// fully present.
func (c *Conn) nextFrame() (pgproto3.BackendMessage, bool, error) {
	if len(c.staging) < 5 {
		return nil, false, nil
	}
	bodyLen := int(binary.BigEndian.Uint32(c.staging[1:5])) - 4
	if bodyLen < 0 {
		return nil, false, fmt.Errorf("pgwire: malformed message length")
	}
	total := 5 + bodyLen
	if len(c.staging) < total {
		return nil, false, nil
	}

	msgType := c.staging[0]
	body := c.staging[5:total]
	msg, err := decodeBackendMessage(msgType, body)
	c.staging = c.staging[total:]
	if len(c.staging) == 0 {
		c.staging = nil
	}
	if err != nil {
		return nil, false, err
	}
	return msg, true, nil
}

// ParameterStatus returns the server's reported value for a runtime
// parameter such as lc_monetary or server_version.
func (c *Conn) ParameterStatus(name string) string {
	return c.paramStatus[name]
}

// BackendPID returns the server process id serving this session.
func (c *Conn) BackendPID() uint32 { return c.pid }

// TxStatus returns the last reported transaction status byte
// ('I' idle, 'T' in transaction, 'E' failed transaction).
func (c *Conn) TxStatus() byte { return c.txStatus }

// Closed reports whether Close was called.
func (c *Conn) Closed() bool { return c.closed }

// SendQuery issues a parameterised query via the extended protocol. Result
// rows arrive in the requested format (binary by default).
func (c *Conn) SendQuery(sql string, params *pgtypes.Parameters, resultFormat int16) error {
	oids, formats, values := bindArgs(params)
	return c.send(time.Now().Add(defaultWriteTimeout),
		&pgproto3.Parse{Query: sql, ParameterOIDs: oids},
		&pgproto3.Bind{
			ParameterFormatCodes: formats,
			Parameters:           values,
			ResultFormatCodes:    []int16{resultFormat},
		},
		&pgproto3.Describe{ObjectType: 'P'},
		&pgproto3.Execute{},
		&pgproto3.Sync{},
	)
}

// SendPrepare issues a named prepare with declared parameter types.
func (c *Conn) SendPrepare(name, sql string, paramOIDs []pgtypes.OID) error {
	oids := make([]uint32, len(paramOIDs))
	for i, o := range paramOIDs {
		oids[i] = uint32(o)
	}
	return c.send(time.Now().Add(defaultWriteTimeout),
		&pgproto3.Parse{Name: name, Query: sql, ParameterOIDs: oids},
		&pgproto3.Describe{ObjectType: 'S', Name: name},
		&pgproto3.Sync{},
	)
}

// SendQueryPrepared executes a previously prepared statement.
func (c *Conn) SendQueryPrepared(name string, params *pgtypes.Parameters, resultFormat int16) error {
	_, formats, values := bindArgs(params)
	return c.send(time.Now().Add(defaultWriteTimeout),
		&pgproto3.Bind{
			PreparedStatement:    name,
			ParameterFormatCodes: formats,
			Parameters:           values,
			ResultFormatCodes:    []int16{resultFormat},
		},
		&pgproto3.Describe{ObjectType: 'P'},
		&pgproto3.Execute{},
		&pgproto3.Sync{},
	)
}

// SendSimpleQuery issues a simple-protocol query; results come back in
// text format. Script execution uses this path.
func (c *Conn) SendSimpleQuery(sql string) error {
	return c.send(time.Now().Add(defaultWriteTimeout), &pgproto3.Query{String: sql})
}

func bindArgs(params *pgtypes.Parameters) (oids []uint32, formats []int16, values [][]byte) {
	n := params.Size()
	oids = make([]uint32, n)
	formats = make([]int16, n)
	values = make([][]byte, n)
	for i := 0; i < n; i++ {
		p := params.At(i)
		oids[i] = uint32(p.OID)
		formats[i] = p.Format
		values[i] = p.Value
	}
	return oids, formats, values
}

// SetSingleRowMode switches the current exchange to deliver each row as
// its own SingleTuple result. Must be called before any of the exchange's
// data is consumed.
func (c *Conn) SetSingleRowMode() error {
	if c.exchangeDone || len(c.results) > 0 || c.current != nil {
		return errors.New("pgwire: results already buffered, too late for single-row mode")
	}
	c.singleRow = true
	return nil
}

// ConsumeInput moves whatever the socket holds into the decoded result
// queue without blocking. It is safe to call when nothing is pending.
func (c *Conn) ConsumeInput() error {
	for {
		c.netConn.SetReadDeadline(time.Now())
		n, err := c.netConn.Read(c.readTmp)
		if n > 0 {
			c.staging = append(c.staging, c.readTmp[:n]...)
		}
		if err != nil {
			var netErr net.Error
			if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, os.ErrDeadlineExceeded) {
				break
			}
			if err == io.EOF {
				return ErrPeerClosed
			}
			return err
		}
		if n == 0 {
			break
		}
	}

	for {
		msg, ok, err := c.nextFrame()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		c.dispatch(msg)
	}
}

// Busy reports whether GetResult would have to wait for more socket data.
func (c *Conn) Busy() bool {
	return len(c.results) == 0 && !c.exchangeDone
}

// GetResult pops the next result of the current exchange, or nil once the
// exchange is drained. After the nil the connection is ready for the next
// send.
func (c *Conn) GetResult() *Result {
	if len(c.results) > 0 {
		r := c.results[0]
		c.results = c.results[1:]
		return r
	}
	if c.exchangeDone {
		c.exchangeDone = false
		c.singleRow = false
		c.pushedResult = false
		c.sawRowDesc = false
		c.current = nil
	}
	return nil
}

// dispatch folds one backend message into the result queue.
func (c *Conn) dispatch(msg pgproto3.BackendMessage) {
	switch m := msg.(type) {
	case *pgproto3.RowDescription:
		cur := &Result{Status: StatusTuplesOK}
		cur.Fields = make([]Field, len(m.Fields))
		for i, f := range m.Fields {
			cur.Fields[i] = Field{
				Name:   string(f.Name),
				OID:    pgtypes.OID(f.DataTypeOID),
				Format: f.Format,
			}
		}
		c.current = cur
		c.sawRowDesc = true

	case *pgproto3.DataRow:
		if c.current == nil {
			c.current = &Result{Status: StatusTuplesOK}
		}
		row := make([][]byte, len(m.Values))
		for i, v := range m.Values {
			if v == nil {
				continue
			}
			row[i] = append([]byte(nil), v...)
		}
		if c.singleRow {
			one := &Result{
				Status: StatusSingleTuple,
				Fields: c.current.Fields,
				Rows:   [][][]byte{row},
			}
			c.results = append(c.results, one)
			c.pushedResult = true
		} else {
			c.current.Rows = append(c.current.Rows, row)
		}

	case *pgproto3.CommandComplete:
		tag := string(m.CommandTag)
		cur := c.current
		if cur == nil {
			cur = &Result{Status: StatusCommandOK}
		} else if c.singleRow {
			// trailing zero-row result closes a single-row stream
			cur = &Result{Status: StatusTuplesOK, Fields: cur.Fields}
		} else if !c.sawRowDesc {
			cur.Status = StatusCommandOK
		}
		cur.CommandTag = tag
		cur.RowsAffected = parseCommandTag(tag)
		c.results = append(c.results, cur)
		c.pushedResult = true
		c.current = nil
		c.sawRowDesc = false

	case *pgproto3.EmptyQueryResponse:
		c.results = append(c.results, &Result{Status: StatusEmptyQuery})
		c.pushedResult = true
		c.current = nil

	case *pgproto3.ErrorResponse:
		c.results = append(c.results, &Result{
			Status: StatusFatalError,
			Err:    serverError(m),
		})
		c.pushedResult = true
		c.current = nil

	case *pgproto3.NoticeResponse:
		c.routeNotice(m)

	case *pgproto3.ParameterStatus:
		c.paramStatus[m.Name] = m.Value

	case *pgproto3.ReadyForQuery:
		c.txStatus = m.TxStatus
		if !c.pushedResult {
			// a prepare-only exchange carries no CommandComplete
			c.results = append(c.results, &Result{Status: StatusCommandOK})
			c.pushedResult = true
		}
		c.exchangeDone = true

	case *pgproto3.ParseComplete, *pgproto3.BindComplete, *pgproto3.CloseComplete,
		*pgproto3.NoData, *pgproto3.ParameterDescription, *pgproto3.PortalSuspended,
		*pgproto3.NotificationResponse:
		// framing acknowledgements and async notifications are not results
	}
}

func (c *Conn) routeNotice(m *pgproto3.NoticeResponse) {
	if c.onNotice == nil {
		return
	}
	c.onNotice(m.Severity, fmt.Sprintf("%s: %s", m.Severity, m.Message))
}

func serverError(m *pgproto3.ErrorResponse) *ServerError {
	return &ServerError{
		Severity: m.Severity,
		Code:     m.Code,
		Message:  m.Message,
		Detail:   m.Detail,
		Hint:     m.Hint,
		Position: m.Position,
	}
}

// RequestCancel opens a throwaway connection and asks the server to abort
// whatever this session is running. Best effort; the running exchange
// still has to be drained.
func (c *Conn) RequestCancel() error {
	network, addr := c.cfg.networkAddress()
	cancelConn, err := net.DialTimeout(network, addr, 10*time.Second)
	if err != nil {
		return err
	}
	defer cancelConn.Close()

	buf, err := (&pgproto3.CancelRequest{
		ProcessID: c.pid,
		SecretKey: c.secretKey,
	}).Encode(nil)
	if err != nil {
		return err
	}
	cancelConn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := cancelConn.Write(buf); err != nil {
		return err
	}
	// the server closes the cancel connection without replying
	cancelConn.Read(make([]byte, 1))
	return nil
}

// Close terminates the session.
func (c *Conn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.send(time.Now().Add(time.Second), &pgproto3.Terminate{})
	return c.netConn.Close()
}
