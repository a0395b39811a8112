package pgtypes

import (
	"net/netip"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func roundTrip(t *testing.T, oid OID, v interface{}) interface{} {
	t.Helper()
	buf, err := EncodeBinary(oid, v)
	require.NoError(t, err)
	out, err := DecodeBinary(oid, buf)
	require.NoError(t, err)
	return out
}

func TestScalarRoundTrips(t *testing.T) {
	cases := []struct {
		name string
		oid  OID
		val  interface{}
	}{
		{"bool true", BoolOID, true},
		{"bool false", BoolOID, false},
		{"int2", Int2OID, int16(-12345)},
		{"int4", Int4OID, int32(2000000001)},
		{"int8", Int8OID, int64(-9007199254740993)},
		{"float4", Float4OID, float32(3.5)},
		{"float8", Float8OID, 2.718281828459045},
		{"text", TextOID, "héllo wörld"},
		{"varchar shares text wire type", VarcharOID, "abc"},
		{"bytea", ByteaOID, []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{"oid", OIDOID, OID(24576)},
		{"money", MoneyOID, Money(123456)},
		{"uuid", UUIDOID, uuid.MustParse("6be8d93c-e458-11e8-bd0e-1c872c561fcc")},
		{"macaddr", MacaddrOID, MACAddr{0x08, 0x00, 0x2b, 0x01, 0x02, 0x03}},
		{"macaddr8", Macaddr8OID, MACAddr8{0x08, 0x00, 0x2b, 0x01, 0x02, 0x03, 0x04, 0x05}},
		{"point", PointOID, Point{X: 1.5, Y: -2.25}},
		{"line", LineOID, Line{A: 1, B: -1, C: 8}},
		{"lseg", LsegOID, LSeg{P0: Point{1, 2}, P1: Point{3, 4}}},
		{"box", BoxOID, Box{High: Point{3, 4}, Low: Point{1, 2}}},
		{"circle", CircleOID, Circle{Center: Point{0, 0}, Radius: 5}},
		{"path open", PathOID, Path{Closed: false, Points: []Point{{0, 0}, {1, 1}, {2, 0}}}},
		{"path closed", PathOID, Path{Closed: true, Points: []Point{{0, 0}, {1, 1}}}},
		{"polygon", PolygonOID, Polygon{Points: []Point{{0, 0}, {1, 0}, {1, 1}}}},
		{"time", TimeOID, TimeOf(13, 37, 42, 123456)},
		{"timetz", TimeTZOID, TimeTZ{Time: TimeOf(9, 30, 0, 0), OffsetSecs: -5 * 3600}},
		{"interval", IntervalOID, Interval{Months: 14, Days: 3, Micros: 7_200_000_000}},
		{"json", JSONOID, JSON(`{"a":1}`)},
		{"jsonb", JSONBOID, JSON(`{"b":[1,2]}`)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.val, roundTrip(t, tc.oid, tc.val))
		})
	}
}

func TestTemporalRoundTrips(t *testing.T) {
	date := time.Date(2018, 11, 26, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, date, roundTrip(t, DateOID, date))

	ts := time.Date(2018, 11, 26, 10, 45, 12, 123456000, time.UTC)
	assert.Equal(t, ts, roundTrip(t, TimestampOID, ts))
	assert.Equal(t, ts, roundTrip(t, TimestampTZOID, ts))

	// pre-epoch values must survive as well
	old := time.Date(1969, 7, 20, 20, 17, 40, 0, time.UTC)
	assert.Equal(t, old, roundTrip(t, TimestampTZOID, old))
	oldDate := time.Date(1917, 3, 8, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, oldDate, roundTrip(t, DateOID, oldDate))
}

func TestNumericRoundTrips(t *testing.T) {
	for _, s := range []string{
		"0", "1", "-1", "1.50", "-1.50", "0.5", "1234.5678",
		"300000000", "0.000001", "99999999999999999999.9999",
		"-20300.789",
	} {
		t.Run(s, func(t *testing.T) {
			d, err := decimal.NewFromString(s)
			require.NoError(t, err)
			out := roundTrip(t, NumericOID, d).(decimal.Decimal)
			// precision and scale survive, not just the value
			assert.Equal(t, s, canonicalNumericString(out))
			assert.True(t, d.Equal(out))
		})
	}
}

func TestNetworkRoundTrips(t *testing.T) {
	inet4 := Inet{Prefix: netip.MustParsePrefix("192.168.12.10/32")}
	assert.Equal(t, inet4, roundTrip(t, InetOID, inet4))

	inet6 := Inet{Prefix: netip.MustParsePrefix("2001:db8::1/128")}
	assert.Equal(t, inet6, roundTrip(t, InetOID, inet6))

	cidr := CIDR{Prefix: netip.MustParsePrefix("10.0.0.0/8")}
	assert.Equal(t, cidr, roundTrip(t, CIDROID, cidr))
}

func TestNullIsLengthMinusOneNeverEmpty(t *testing.T) {
	buf, err := EncodeBinary(TextOID, nil)
	require.NoError(t, err)
	assert.Nil(t, buf)

	v, err := DecodeBinary(TextOID, nil)
	require.NoError(t, err)
	assert.Nil(t, v)

	// an empty buffer is an empty string, not a null
	v, err = DecodeBinary(TextOID, []byte{})
	require.NoError(t, err)
	assert.Equal(t, "", v)

	p := &Parameters{}
	require.NoError(t, p.Append(nil))
	assert.Equal(t, int32(-1), p.At(0).Len())
}

func TestShortBufferFails(t *testing.T) {
	for _, tc := range []struct {
		oid OID
		buf []byte
	}{
		{Int4OID, []byte{0, 0, 1}},
		{Int8OID, []byte{0}},
		{UUIDOID, make([]byte, 15)},
		{PointOID, make([]byte, 12)},
		{IntervalOID, make([]byte, 10)},
		{NumericOID, []byte{0, 2}},
	} {
		_, err := DecodeBinary(tc.oid, tc.buf)
		assert.Error(t, err, "oid %s", tc.oid.Name())
		assert.IsType(t, &DecodeError{}, err)
	}
}

func TestTrailingBytesFail(t *testing.T) {
	buf, err := EncodeBinary(Int4OID, int32(7))
	require.NoError(t, err)
	_, err = DecodeBinary(Int4OID, append(buf, 0))
	assert.Error(t, err)
}

func TestUnsupportedOID(t *testing.T) {
	_, err := DecodeBinary(OID(9999), []byte{1})
	var unsup *UnsupportedOIDError
	require.ErrorAs(t, err, &unsup)
	assert.Equal(t, OID(9999), unsup.OID)
}

func TestArrayRoundTrip(t *testing.T) {
	arr := ArrayOf(Int4OID, int32(1), int32(2), nil, int32(4))
	out := roundTrip(t, Int4ArrayOID, arr).(Array)

	assert.Equal(t, Int4OID, out.ElemOID)
	assert.Equal(t, 1, out.DimCount())
	assert.Equal(t, []interface{}{int32(1), int32(2), nil, int32(4)}, out.Elements)
}

func TestMultiDimArrayPreservesDims(t *testing.T) {
	arr := Array{
		ElemOID: TextOID,
		Dims: []ArrayDim{
			{Length: 2, LowerBound: 1},
			{Length: 3, LowerBound: 1},
		},
		Elements: []interface{}{"a", "b", "c", "d", "e", "f"},
	}
	out := roundTrip(t, TextArrayOID, arr).(Array)
	assert.Equal(t, arr.Dims, out.Dims)
	assert.Equal(t, arr.Elements, out.Elements)
}

func TestArrayHeaderBeforeDecode(t *testing.T) {
	arr := ArrayOf(Int8OID, int64(10), int64(20))
	buf, err := EncodeBinary(Int8ArrayOID, arr)
	require.NoError(t, err)

	h, err := DecodeArrayHeader(Int8ArrayOID, buf)
	require.NoError(t, err)
	assert.Equal(t, Int8OID, h.ElemOID)
	assert.Equal(t, 1, len(h.Dims))
	assert.Equal(t, int32(2), h.Dims[0].Length)
}

func TestArrayBadDims(t *testing.T) {
	w := &wireWriter{}
	w.int32(-1) // dimension count
	w.int32(0)
	w.uint32(uint32(Int4OID))
	_, err := DecodeBinary(Int4ArrayOID, w.buf)
	assert.Error(t, err)

	// dims inconsistent with the element payload
	w = &wireWriter{}
	w.int32(1)
	w.int32(0)
	w.uint32(uint32(Int4OID))
	w.int32(3) // claims three elements
	w.int32(1)
	w.int32(4)
	w.int32(0x00000001) // only one present
	_, err = DecodeBinary(Int4ArrayOID, w.buf)
	assert.Error(t, err)
}

func TestRangeRoundTrips(t *testing.T) {
	r := BoundedRange(int32(1), int32(10), true, false)
	assert.Equal(t, r, roundTrip(t, Int4RangeOID, r))

	// unbounded lower side: flag bit set, no bytes for that side
	open := Int8Range{Upper: 42, UpperSet: true, UpperInc: true}
	assert.Equal(t, open, roundTrip(t, Int8RangeOID, open))

	empty := Int4Range{Empty: true}
	buf, err := EncodeBinary(Int4RangeOID, empty)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, buf)
	assert.Equal(t, empty, roundTrip(t, Int4RangeOID, empty))

	num := NumRange(BoundedRange(decimal.RequireFromString("1.5"), decimal.RequireFromString("2.75"), true, true))
	out := roundTrip(t, NumRangeOID, num).(NumRange)
	assert.True(t, num.Lower.Equal(out.Lower))
	assert.True(t, num.Upper.Equal(out.Upper))

	ts := time.Date(2018, 11, 26, 10, 0, 0, 0, time.UTC)
	tsr := TSRange{Range[time.Time]{Lower: ts, LowerSet: true}}
	assert.Equal(t, tsr, roundTrip(t, TSRangeOID, tsr))
}

func TestRangeReservedFlagFails(t *testing.T) {
	_, err := DecodeBinary(Int4RangeOID, []byte{0x40})
	assert.Error(t, err)
	assert.IsType(t, &DecodeError{}, err)
}

func TestParametersEagerEncoding(t *testing.T) {
	p, err := NewParameters(int32(5), "abc", true)
	require.NoError(t, err)
	require.Equal(t, 3, p.Size())

	assert.Equal(t, Int4OID, p.At(0).OID)
	assert.Equal(t, []byte{0, 0, 0, 5}, p.At(0).Value)
	assert.Equal(t, BinaryFormat, p.At(0).Format)
	assert.Equal(t, TextOID, p.At(1).OID)
	assert.Equal(t, []OID{Int4OID, TextOID, BoolOID}, p.OIDs())

	// unsupported parameter types fail at bind time
	perr := (&Parameters{}).Append(struct{}{})
	assert.Error(t, perr)
}

func TestMoneyLocaleFormatting(t *testing.T) {
	m := Money(123456789)

	assert.Equal(t, "1234567.89", MoneyLocale{}.Format(m))
	assert.Equal(t, "1234567.89", ParseMoneyLocale("C").Format(m))
	assert.Equal(t, "1234567.89", ParseMoneyLocale("POSIX").Format(m))

	us := ParseMoneyLocale("en_US.UTF-8")
	assert.True(t, us.valid)
	assert.Contains(t, us.Format(m), "$")

	grouped := MoneyLocale{Tag: language.English, valid: true}
	assert.Equal(t, "1,234,567.89", grouped.Format(m))
}

func TestMoneyParts(t *testing.T) {
	m := MoneyFromParts(-12, 34)
	assert.Equal(t, int64(-12), m.Units())
	assert.Equal(t, int64(34), m.Cents())
	assert.Equal(t, "-12.34", m.String())
}

func TestJSONBVersionByte(t *testing.T) {
	buf, err := EncodeBinary(JSONBOID, JSON(`{}`))
	require.NoError(t, err)
	require.Equal(t, byte(1), buf[0])

	_, err = DecodeBinary(JSONBOID, []byte{9, '{', '}'})
	assert.Error(t, err)
}

func TestTimeTZWireOffsetIsWestPositive(t *testing.T) {
	v := TimeTZ{Time: TimeOf(12, 0, 0, 0), OffsetSecs: 3600} // UTC+1
	buf, err := EncodeBinary(TimeTZOID, v)
	require.NoError(t, err)
	// last four bytes are the zone, seconds west of UTC
	assert.Equal(t, []byte{0xFF, 0xFF, 0xF1, 0xF0}, buf[8:])
	assert.Equal(t, v, roundTrip(t, TimeTZOID, v))
}
