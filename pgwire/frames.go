package pgwire

import (
	"encoding/binary"
	"fmt"

	"github.com/jackc/pgx/v5/pgproto3"
)

// decodeBackendMessage decodes one framed backend message body into its
// typed form. Authentication messages share the 'R' type byte and are
// distinguished by their leading code word.
func decodeBackendMessage(msgType byte, body []byte) (pgproto3.BackendMessage, error) {
	var msg pgproto3.BackendMessage

	switch msgType {
	case 'R':
		if len(body) < 4 {
			return nil, fmt.Errorf("pgwire: truncated authentication message")
		}
		switch code := binary.BigEndian.Uint32(body[:4]); code {
		case pgproto3.AuthTypeOk:
			msg = &pgproto3.AuthenticationOk{}
		case pgproto3.AuthTypeCleartextPassword:
			msg = &pgproto3.AuthenticationCleartextPassword{}
		case pgproto3.AuthTypeMD5Password:
			msg = &pgproto3.AuthenticationMD5Password{}
		case pgproto3.AuthTypeSASL:
			msg = &pgproto3.AuthenticationSASL{}
		case pgproto3.AuthTypeSASLContinue:
			msg = &pgproto3.AuthenticationSASLContinue{}
		case pgproto3.AuthTypeSASLFinal:
			msg = &pgproto3.AuthenticationSASLFinal{}
		default:
			return nil, fmt.Errorf("pgwire: unsupported authentication request %d", code)
		}
	case 'K':
		msg = &pgproto3.BackendKeyData{}
	case 'S':
		msg = &pgproto3.ParameterStatus{}
	case 'Z':
		msg = &pgproto3.ReadyForQuery{}
	case 'T':
		msg = &pgproto3.RowDescription{}
	case 'D':
		msg = &pgproto3.DataRow{}
	case 'C':
		msg = &pgproto3.CommandComplete{}
	case 'I':
		msg = &pgproto3.EmptyQueryResponse{}
	case 'E':
		msg = &pgproto3.ErrorResponse{}
	case 'N':
		msg = &pgproto3.NoticeResponse{}
	case 'A':
		msg = &pgproto3.NotificationResponse{}
	case '1':
		msg = &pgproto3.ParseComplete{}
	case '2':
		msg = &pgproto3.BindComplete{}
	case '3':
		msg = &pgproto3.CloseComplete{}
	case 'n':
		msg = &pgproto3.NoData{}
	case 't':
		msg = &pgproto3.ParameterDescription{}
	case 's':
		msg = &pgproto3.PortalSuspended{}
	case 'V':
		msg = &pgproto3.FunctionCallResponse{}
	case 'v':
		msg = &pgproto3.NegotiateProtocolVersion{}
	default:
		return nil, fmt.Errorf("pgwire: unknown backend message type %q", msgType)
	}

	if err := msg.Decode(body); err != nil {
		return nil, fmt.Errorf("pgwire: decoding %T: %w", msg, err)
	}
	return msg, nil
}
