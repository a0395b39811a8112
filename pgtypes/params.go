package pgtypes

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Param is one bound query parameter: the declared type, the encoded wire
// buffer and its format. A null carries a nil buffer; the driver transmits
// it as length -1.
type Param struct {
	OID    OID
	Value  []byte
	Format int16
}

// Len returns the wire length of the parameter, -1 for null.
func (p Param) Len() int32 {
	if p.Value == nil {
		return -1
	}
	return int32(len(p.Value))
}

// Parameters is an ordered bundle of bound query parameters. Values are
// encoded eagerly when appended, so an encoding error surfaces at bind
// time rather than mid-protocol.
type Parameters struct {
	params []Param
}

// NewParameters encodes the given values in order. See Append for the
// supported types.
func NewParameters(values ...interface{}) (*Parameters, error) {
	p := &Parameters{}
	for _, v := range values {
		if err := p.Append(v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Append infers the wire type of v, encodes it and appends it to the
// bundle. nil appends a null of text type.
func (p *Parameters) Append(v interface{}) error {
	oid, ok := InferOID(v)
	if !ok {
		return encodeErrf(TextOID, "no wire type for parameter of type %T", v)
	}
	return p.AppendTyped(oid, v)
}

// AppendTyped encodes v as the given type and appends it.
func (p *Parameters) AppendTyped(oid OID, v interface{}) error {
	buf, err := EncodeBinary(oid, v)
	if err != nil {
		return err
	}
	p.params = append(p.params, Param{OID: oid, Value: buf, Format: BinaryFormat})
	return nil
}

// AppendText appends a parameter already rendered in text format, leaving
// the server to resolve its type.
func (p *Parameters) AppendText(s string) {
	p.params = append(p.params, Param{OID: 0, Value: []byte(s), Format: TextFormat})
}

// Size returns the number of bound parameters.
func (p *Parameters) Size() int {
	if p == nil {
		return 0
	}
	return len(p.params)
}

// At returns the i-th parameter.
func (p *Parameters) At(i int) Param { return p.params[i] }

// OIDs returns the declared parameter types in order.
func (p *Parameters) OIDs() []OID {
	if p == nil {
		return nil
	}
	oids := make([]OID, len(p.params))
	for i, prm := range p.params {
		oids[i] = prm.OID
	}
	return oids
}

// InferOID maps a native value to the wire type Append would use for it.
func InferOID(v interface{}) (OID, bool) {
	switch v.(type) {
	case nil:
		return TextOID, true
	case bool:
		return BoolOID, true
	case int16:
		return Int2OID, true
	case int32:
		return Int4OID, true
	case int, int64:
		return Int8OID, true
	case float32:
		return Float4OID, true
	case float64:
		return Float8OID, true
	case string:
		return TextOID, true
	case []byte:
		return ByteaOID, true
	case JSON:
		return JSONOID, true
	case decimal.Decimal:
		return NumericOID, true
	case Money:
		return MoneyOID, true
	case uuid.UUID:
		return UUIDOID, true
	case OID:
		return OIDOID, true
	case time.Time:
		return TimestampTZOID, true
	case Time:
		return TimeOID, true
	case TimeTZ:
		return TimeTZOID, true
	case Interval:
		return IntervalOID, true
	case Inet, netip.Prefix, netip.Addr:
		return InetOID, true
	case CIDR:
		return CIDROID, true
	case MACAddr:
		return MacaddrOID, true
	case MACAddr8:
		return Macaddr8OID, true
	case Point:
		return PointOID, true
	case Line:
		return LineOID, true
	case LSeg:
		return LsegOID, true
	case Box:
		return BoxOID, true
	case Path:
		return PathOID, true
	case Polygon:
		return PolygonOID, true
	case Circle:
		return CircleOID, true
	case Int4Range:
		return Int4RangeOID, true
	case Int8Range:
		return Int8RangeOID, true
	case NumRange:
		return NumRangeOID, true
	case TSRange:
		return TSRangeOID, true
	case TSTZRange:
		return TSTZRangeOID, true
	case DateRange:
		return DateRangeOID, true
	case Array:
		arr, ok := ArrayOID(v.(Array).ElemOID)
		return arr, ok
	case []bool:
		return BoolArrayOID, true
	case []int16:
		return Int2ArrayOID, true
	case []int32:
		return Int4ArrayOID, true
	case []int64, []int:
		return Int8ArrayOID, true
	case []float32:
		return Float4ArrayOID, true
	case []float64:
		return Float8ArrayOID, true
	case []string:
		return TextArrayOID, true
	default:
		return 0, false
	}
}
