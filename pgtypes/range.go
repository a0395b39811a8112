package pgtypes

import (
	"time"

	"github.com/shopspring/decimal"
)

// Range flag byte. An unbounded side sets its infinity bit and contributes
// no bytes to the buffer.
const (
	rangeEmpty    = 0x01
	rangeLBInc    = 0x02
	rangeUBInc    = 0x04
	rangeLBInf    = 0x08
	rangeUBInf    = 0x10
	rangeReserved = ^byte(rangeEmpty | rangeLBInc | rangeUBInc | rangeLBInf | rangeUBInf)
)

func decodeRange(oid OID, data []byte) (interface{}, error) {
	subOID, ok := RangeSubtypeOID(oid)
	if !ok {
		return nil, &UnsupportedOIDError{OID: oid}
	}

	r := newWireReader(oid, data)
	flags := r.byte()
	if r.err != nil {
		return nil, r.err
	}
	if flags&rangeReserved != 0 {
		return nil, decodeErrf(oid, "reserved flag bits 0x%02x set", flags&rangeReserved)
	}

	var raw rawRange
	if flags&rangeEmpty != 0 {
		if err := r.done(); err != nil {
			return nil, err
		}
		raw.empty = true
		return buildRange(oid, subOID, raw)
	}

	raw.lowerInc = flags&rangeLBInc != 0
	raw.upperInc = flags&rangeUBInc != 0

	if flags&rangeLBInf == 0 {
		v, err := readBound(oid, subOID, r)
		if err != nil {
			return nil, err
		}
		raw.lower, raw.lowerSet = v, true
	}
	if flags&rangeUBInf == 0 {
		v, err := readBound(oid, subOID, r)
		if err != nil {
			return nil, err
		}
		raw.upper, raw.upperSet = v, true
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return buildRange(oid, subOID, raw)
}

type rawRange struct {
	lower, upper       interface{}
	lowerSet, upperSet bool
	lowerInc, upperInc bool
	empty              bool
}

func readBound(oid, subOID OID, r *wireReader) (interface{}, error) {
	n := r.int32()
	if r.err != nil {
		return nil, r.err
	}
	if n < 0 {
		return nil, decodeErrf(oid, "invalid bound length %d", n)
	}
	raw := r.take(int(n))
	if r.err != nil {
		return nil, r.err
	}
	return DecodeBinary(subOID, raw)
}

func buildRange(oid, subOID OID, raw rawRange) (interface{}, error) {
	switch oid {
	case Int4RangeOID:
		return typedRange[int32](oid, raw)
	case Int8RangeOID:
		return typedRange[int64](oid, raw)
	case NumRangeOID:
		return typedRange[decimal.Decimal](oid, raw)
	case TSRangeOID:
		r, err := typedRange[time.Time](oid, raw)
		return TSRange{r}, err
	case TSTZRangeOID:
		r, err := typedRange[time.Time](oid, raw)
		return TSTZRange{r}, err
	case DateRangeOID:
		r, err := typedRange[time.Time](oid, raw)
		return DateRange{r}, err
	default:
		return nil, &UnsupportedOIDError{OID: oid}
	}
}

func typedRange[T any](oid OID, raw rawRange) (Range[T], error) {
	var out Range[T]
	out.Empty = raw.empty
	out.LowerInc = raw.lowerInc
	out.UpperInc = raw.upperInc
	if raw.lowerSet {
		v, ok := raw.lower.(T)
		if !ok {
			return Range[T]{}, decodeErrf(oid, "bound decoded to unexpected type %T", raw.lower)
		}
		out.Lower, out.LowerSet = v, true
	}
	if raw.upperSet {
		v, ok := raw.upper.(T)
		if !ok {
			return Range[T]{}, decodeErrf(oid, "bound decoded to unexpected type %T", raw.upper)
		}
		out.Upper, out.UpperSet = v, true
	}
	return out, nil
}

func encodeRangeOID(oid OID, v interface{}) ([]byte, error) {
	subOID, ok := RangeSubtypeOID(oid)
	if !ok {
		return nil, &UnsupportedOIDError{OID: oid}
	}

	var raw rawRange
	switch r := v.(type) {
	case Int4Range:
		raw = untypeRange(r)
	case Int8Range:
		raw = untypeRange(r)
	case NumRange:
		raw = untypeRange(r)
	case TSRange:
		raw = untypeRange(r.Range)
	case TSTZRange:
		raw = untypeRange(r.Range)
	case DateRange:
		raw = untypeRange(r.Range)
	default:
		return nil, encodeErrf(oid, "cannot encode %T", v)
	}

	w := &wireWriter{}
	if raw.empty {
		w.byte(rangeEmpty)
		return w.buf, nil
	}

	var flags byte
	if raw.lowerInc {
		flags |= rangeLBInc
	}
	if raw.upperInc {
		flags |= rangeUBInc
	}
	if !raw.lowerSet {
		flags |= rangeLBInf
	}
	if !raw.upperSet {
		flags |= rangeUBInf
	}
	w.byte(flags)

	if raw.lowerSet {
		b, err := EncodeBinary(subOID, raw.lower)
		if err != nil {
			return nil, err
		}
		w.int32(int32(len(b)))
		w.bytes(b)
	}
	if raw.upperSet {
		b, err := EncodeBinary(subOID, raw.upper)
		if err != nil {
			return nil, err
		}
		w.int32(int32(len(b)))
		w.bytes(b)
	}
	return w.buf, nil
}

func untypeRange[T any](r Range[T]) rawRange {
	return rawRange{
		lower: r.Lower, upper: r.Upper,
		lowerSet: r.LowerSet, upperSet: r.UpperSet,
		lowerInc: r.LowerInc, upperInc: r.UpperInc,
		empty: r.Empty,
	}
}
