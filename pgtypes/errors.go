package pgtypes

import "fmt"

// DecodeError reports a structural failure while decoding a wire buffer.
// No partial value is ever returned alongside one.
type DecodeError struct {
	OID     OID
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pgtypes: decoding %s: %s", e.OID.Name(), e.Message)
}

func decodeErrf(oid OID, format string, args ...interface{}) error {
	return &DecodeError{OID: oid, Message: fmt.Sprintf(format, args...)}
}

// EncodeError reports a value that cannot be represented in the requested
// wire type.
type EncodeError struct {
	OID     OID
	Message string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("pgtypes: encoding %s: %s", e.OID.Name(), e.Message)
}

func encodeErrf(oid OID, format string, args ...interface{}) error {
	return &EncodeError{OID: oid, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedOIDError is returned when a result column or parameter uses a
// type the codec does not know.
type UnsupportedOIDError struct {
	OID OID
}

func (e *UnsupportedOIDError) Error() string {
	return fmt.Sprintf("pgtypes: unsupported type %s", e.OID.Name())
}
