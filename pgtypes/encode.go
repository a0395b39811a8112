package pgtypes

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncodeBinary converts a native value into the binary wire form for the
// given type. A nil value encodes to a nil buffer (transported as length
// -1). The accepted value for each type mirrors what DecodeBinary produces,
// with the integer widths also accepting plain int.
func EncodeBinary(oid OID, v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if IsArrayOID(oid) {
		return encodeArrayOID(oid, v)
	}
	if _, ok := RangeSubtypeOID(oid); ok {
		return encodeRangeOID(oid, v)
	}

	w := &wireWriter{}
	switch oid {
	case BoolOID:
		b, ok := v.(bool)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		if b {
			w.byte(1)
		} else {
			w.byte(0)
		}

	case Int2OID:
		n, ok := asInt64(v)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		if n < -32768 || n > 32767 {
			return nil, encodeErrf(oid, "value %d overflows int2", n)
		}
		w.int16(int16(n))

	case Int4OID:
		n, ok := asInt64(v)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		if n < -2147483648 || n > 2147483647 {
			return nil, encodeErrf(oid, "value %d overflows int4", n)
		}
		w.int32(int32(n))

	case Int8OID:
		n, ok := asInt64(v)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.int64(n)

	case Float4OID:
		switch f := v.(type) {
		case float32:
			w.float32(f)
		case float64:
			w.float32(float32(f))
		default:
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}

	case Float8OID:
		switch f := v.(type) {
		case float64:
			w.float64(f)
		case float32:
			w.float64(float64(f))
		default:
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}

	case OIDOID:
		switch n := v.(type) {
		case OID:
			w.uint32(uint32(n))
		case uint32:
			w.uint32(n)
		default:
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}

	case TextOID, VarcharOID, CharOID, NameOID:
		s, ok := asString(v)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.string(s)

	case ByteaOID:
		b, ok := v.([]byte)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.bytes(b)

	case JSONOID:
		s, ok := asString(v)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.string(s)

	case JSONBOID:
		s, ok := asString(v)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.byte(1)
		w.string(s)

	case UUIDOID:
		u, ok := v.(uuid.UUID)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.bytes(u[:])

	case NumericOID:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		encodeNumeric(w, d)

	case MoneyOID:
		m, ok := v.(Money)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.int64(int64(m))

	case DateOID:
		t, ok := v.(time.Time)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		t = t.UTC()
		midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		days := midnight.Unix()/86400 - postgresEpoch.Unix()/86400
		w.int32(int32(days))

	case TimeOID:
		t, ok := v.(Time)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.int64(int64(t))

	case TimeTZOID:
		t, ok := v.(TimeTZ)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.int64(int64(t.Time))
		w.int32(-t.OffsetSecs)

	case TimestampOID, TimestampTZOID:
		t, ok := v.(time.Time)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		t = t.UTC()
		micros := (t.Unix()-postgresEpoch.Unix())*microsPerSec + int64(t.Nanosecond())/1000
		w.int64(micros)

	case IntervalOID:
		iv, ok := v.(Interval)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.int64(iv.Micros)
		w.int32(iv.Days)
		w.int32(iv.Months)

	case PointOID:
		p, ok := v.(Point)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.float64(p.X)
		w.float64(p.Y)

	case LineOID:
		l, ok := v.(Line)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.float64(l.A)
		w.float64(l.B)
		w.float64(l.C)

	case LsegOID:
		l, ok := v.(LSeg)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.float64(l.P0.X)
		w.float64(l.P0.Y)
		w.float64(l.P1.X)
		w.float64(l.P1.Y)

	case BoxOID:
		b, ok := v.(Box)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.float64(b.High.X)
		w.float64(b.High.Y)
		w.float64(b.Low.X)
		w.float64(b.Low.Y)

	case PathOID:
		p, ok := v.(Path)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		if p.Closed {
			w.byte(1)
		} else {
			w.byte(0)
		}
		w.int32(int32(len(p.Points)))
		for _, pt := range p.Points {
			w.float64(pt.X)
			w.float64(pt.Y)
		}

	case PolygonOID:
		p, ok := v.(Polygon)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.int32(int32(len(p.Points)))
		for _, pt := range p.Points {
			w.float64(pt.X)
			w.float64(pt.Y)
		}

	case CircleOID:
		c, ok := v.(Circle)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.float64(c.Center.X)
		w.float64(c.Center.Y)
		w.float64(c.Radius)

	case InetOID, CIDROID:
		prefix, isCIDR, ok := netipPrefixOf(v)
		if !ok || !prefix.IsValid() {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		addr := prefix.Addr()
		if addr.Is4() {
			w.byte(wireAFInet)
		} else {
			w.byte(wireAFInet6)
		}
		w.byte(byte(prefix.Bits()))
		if isCIDR {
			w.byte(1)
		} else {
			w.byte(0)
		}
		raw := addr.AsSlice()
		w.byte(byte(len(raw)))
		w.bytes(raw)

	case MacaddrOID:
		m, ok := v.(MACAddr)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.bytes(m[:])

	case Macaddr8OID:
		m, ok := v.(MACAddr8)
		if !ok {
			return nil, encodeErrf(oid, "cannot encode %T", v)
		}
		w.bytes(m[:])

	default:
		return nil, &UnsupportedOIDError{OID: oid}
	}

	return w.buf, nil
}

func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}

func asString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case JSON:
		return string(s), true
	case []byte:
		return string(s), true
	default:
		return "", false
	}
}

func netipPrefixOf(v interface{}) (p netip.Prefix, isCIDR, ok bool) {
	switch n := v.(type) {
	case Inet:
		return n.Prefix, false, true
	case CIDR:
		return n.Prefix, true, true
	case netip.Prefix:
		return n, false, true
	case netip.Addr:
		return netip.PrefixFrom(n, n.BitLen()), false, true
	default:
		return netip.Prefix{}, false, false
	}
}
