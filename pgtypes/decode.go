package pgtypes

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// Address families on the wire for inet/cidr. The server uses its own
// AF_INET constant for v4 and AF_INET+1 for v6 regardless of platform.
const (
	wireAFInet  = 2
	wireAFInet6 = 3
)

// DecodeBinary converts a binary wire buffer into the native value for the
// given type. A nil buffer is a null and decodes to nil. The concrete
// result types are:
//
//	bool, int16, int32, int64, float32, float64, string, []byte,
//	decimal.Decimal, Money, uuid.UUID, OID, JSON,
//	Inet, CIDR, MACAddr, MACAddr8,
//	Point, Line, LSeg, Box, Path, Polygon, Circle,
//	time.Time (date, timestamp, timestamptz), Time, TimeTZ, Interval,
//	Int4Range, Int8Range, NumRange, TSRange, TSTZRange, DateRange,
//	Array (any array type).
func DecodeBinary(oid OID, data []byte) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	if IsArrayOID(oid) {
		return decodeArray(oid, data)
	}
	if _, ok := RangeSubtypeOID(oid); ok {
		return decodeRange(oid, data)
	}

	r := newWireReader(oid, data)
	switch oid {
	case BoolOID:
		b := r.byte()
		if err := r.done(); err != nil {
			return nil, err
		}
		return b != 0, nil

	case Int2OID:
		v := r.int16()
		if err := r.done(); err != nil {
			return nil, err
		}
		return v, nil

	case Int4OID:
		v := r.int32()
		if err := r.done(); err != nil {
			return nil, err
		}
		return v, nil

	case Int8OID:
		v := r.int64()
		if err := r.done(); err != nil {
			return nil, err
		}
		return v, nil

	case Float4OID:
		v := r.float32()
		if err := r.done(); err != nil {
			return nil, err
		}
		return v, nil

	case Float8OID:
		v := r.float64()
		if err := r.done(); err != nil {
			return nil, err
		}
		return v, nil

	case OIDOID:
		v := r.uint32()
		if err := r.done(); err != nil {
			return nil, err
		}
		return OID(v), nil

	case TextOID, VarcharOID, CharOID, NameOID:
		return string(data), nil

	case ByteaOID:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case JSONOID:
		out := make(JSON, len(data))
		copy(out, data)
		return out, nil

	case JSONBOID:
		// jsonb prefixes the document with a version byte
		if len(data) < 1 {
			return nil, decodeErrf(oid, "missing version byte")
		}
		if data[0] != 1 {
			return nil, decodeErrf(oid, "unknown version %d", data[0])
		}
		out := make(JSON, len(data)-1)
		copy(out, data[1:])
		return out, nil

	case UUIDOID:
		b := r.take(16)
		if err := r.done(); err != nil {
			return nil, err
		}
		var u uuid.UUID
		copy(u[:], b)
		return u, nil

	case NumericOID:
		return decodeNumeric(oid, r)

	case MoneyOID:
		v := r.int64()
		if err := r.done(); err != nil {
			return nil, err
		}
		return Money(v), nil

	case DateOID:
		days := r.int32()
		if err := r.done(); err != nil {
			return nil, err
		}
		return postgresEpoch.AddDate(0, 0, int(days)), nil

	case TimeOID:
		v := r.int64()
		if err := r.done(); err != nil {
			return nil, err
		}
		if v < 0 || v > microsPerDay {
			return nil, decodeErrf(oid, "time of day %d out of range", v)
		}
		return Time(v), nil

	case TimeTZOID:
		micros := r.int64()
		zone := r.int32()
		if err := r.done(); err != nil {
			return nil, err
		}
		// the wire carries seconds west of UTC; flip to seconds east
		return TimeTZ{Time: Time(micros), OffsetSecs: -zone}, nil

	case TimestampOID, TimestampTZOID:
		v := r.int64()
		if err := r.done(); err != nil {
			return nil, err
		}
		// split into seconds and micros to stay clear of the Duration
		// range limit on far-away timestamps
		sec := v / microsPerSec
		rem := v % microsPerSec
		return time.Unix(postgresEpoch.Unix()+sec, rem*1000).UTC(), nil

	case IntervalOID:
		micros := r.int64()
		days := r.int32()
		months := r.int32()
		if err := r.done(); err != nil {
			return nil, err
		}
		return Interval{Months: months, Days: days, Micros: micros}, nil

	case PointOID:
		p := Point{X: r.float64(), Y: r.float64()}
		if err := r.done(); err != nil {
			return nil, err
		}
		return p, nil

	case LineOID:
		l := Line{A: r.float64(), B: r.float64(), C: r.float64()}
		if err := r.done(); err != nil {
			return nil, err
		}
		return l, nil

	case LsegOID:
		l := LSeg{
			P0: Point{X: r.float64(), Y: r.float64()},
			P1: Point{X: r.float64(), Y: r.float64()},
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return l, nil

	case BoxOID:
		b := Box{
			High: Point{X: r.float64(), Y: r.float64()},
			Low:  Point{X: r.float64(), Y: r.float64()},
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return b, nil

	case PathOID:
		closed := r.byte()
		n := r.int32()
		if r.err != nil {
			return nil, r.err
		}
		if n < 0 {
			return nil, decodeErrf(oid, "negative point count %d", n)
		}
		pts := make([]Point, 0, n)
		for i := int32(0); i < n; i++ {
			pts = append(pts, Point{X: r.float64(), Y: r.float64()})
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return Path{Closed: closed != 0, Points: pts}, nil

	case PolygonOID:
		n := r.int32()
		if r.err != nil {
			return nil, r.err
		}
		if n < 0 {
			return nil, decodeErrf(oid, "negative point count %d", n)
		}
		pts := make([]Point, 0, n)
		for i := int32(0); i < n; i++ {
			pts = append(pts, Point{X: r.float64(), Y: r.float64()})
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return Polygon{Points: pts}, nil

	case CircleOID:
		c := Circle{
			Center: Point{X: r.float64(), Y: r.float64()},
			Radius: r.float64(),
		}
		if err := r.done(); err != nil {
			return nil, err
		}
		return c, nil

	case InetOID, CIDROID:
		family := r.byte()
		bits := r.byte()
		isCIDR := r.byte()
		addrLen := r.byte()
		addrBytes := r.take(int(addrLen))
		if err := r.done(); err != nil {
			return nil, err
		}

		var wantLen byte
		switch family {
		case wireAFInet:
			wantLen = 4
		case wireAFInet6:
			wantLen = 16
		default:
			return nil, decodeErrf(oid, "unknown address family %d", family)
		}
		if addrLen != wantLen {
			return nil, decodeErrf(oid, "address length %d does not match family", addrLen)
		}
		if int(bits) > int(wantLen)*8 {
			return nil, decodeErrf(oid, "netmask /%d too wide for family", bits)
		}

		addr, ok := netip.AddrFromSlice(addrBytes)
		if !ok {
			return nil, decodeErrf(oid, "invalid address bytes")
		}
		prefix := netip.PrefixFrom(addr, int(bits))
		if isCIDR != 0 {
			return CIDR{Prefix: prefix}, nil
		}
		return Inet{Prefix: prefix}, nil

	case MacaddrOID:
		b := r.take(6)
		if err := r.done(); err != nil {
			return nil, err
		}
		var m MACAddr
		copy(m[:], b)
		return m, nil

	case Macaddr8OID:
		b := r.take(8)
		if err := r.done(); err != nil {
			return nil, err
		}
		var m MACAddr8
		copy(m[:], b)
		return m, nil

	default:
		return nil, &UnsupportedOIDError{OID: oid}
	}
}
