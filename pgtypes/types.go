package pgtypes

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// postgresEpoch is the zero instant of the server's temporal types:
// midnight, January 1st 2000, UTC. Dates count days from it, timestamps
// count microseconds from it.
var postgresEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

const (
	microsPerSec = int64(1_000_000)
	microsPerDay = int64(24) * 3600 * microsPerSec
)

// Time is a time-of-day without zone, in microseconds since midnight.
type Time int64

// TimeOf builds a Time from clock parts.
func TimeOf(hour, min, sec, micros int) Time {
	return Time(((int64(hour)*3600+int64(min)*60+int64(sec))*microsPerSec + int64(micros)))
}

func (t Time) Hour() int   { return int(int64(t) / microsPerSec / 3600) }
func (t Time) Minute() int { return int(int64(t) / microsPerSec / 60 % 60) }
func (t Time) Second() int { return int(int64(t) / microsPerSec % 60) }
func (t Time) Micros() int { return int(int64(t) % microsPerSec) }

func (t Time) String() string {
	if t.Micros() == 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second())
	}
	return fmt.Sprintf("%02d:%02d:%02d.%06d", t.Hour(), t.Minute(), t.Second(), t.Micros())
}

// TimeTZ is a time-of-day with a fixed UTC offset. Offset follows Go
// conventions: seconds east of UTC.
type TimeTZ struct {
	Time       Time
	OffsetSecs int32
}

func (t TimeTZ) String() string {
	sign := "+"
	off := t.OffsetSecs
	if off < 0 {
		sign = "-"
		off = -off
	}
	return fmt.Sprintf("%s%s%02d:%02d", t.Time, sign, off/3600, off/60%60)
}

// Interval is the server's interval value: months and days are kept apart
// from the sub-day microseconds because their lengths vary.
type Interval struct {
	Months int32
	Days   int32
	Micros int64
}

func (iv Interval) String() string {
	var parts []string
	if iv.Months != 0 {
		parts = append(parts, fmt.Sprintf("%d mons", iv.Months))
	}
	if iv.Days != 0 {
		parts = append(parts, fmt.Sprintf("%d days", iv.Days))
	}
	if iv.Micros != 0 || len(parts) == 0 {
		secs := iv.Micros / microsPerSec
		rem := iv.Micros % microsPerSec
		if rem == 0 {
			parts = append(parts, fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs/60%60, secs%60))
		} else {
			parts = append(parts, fmt.Sprintf("%02d:%02d:%02d.%06d", secs/3600, secs/60%60, secs%60, rem))
		}
	}
	return strings.Join(parts, " ")
}

// Money is a fixed-precision currency amount in hundredths of the unit.
type Money int64

// MoneyFromParts builds a Money from whole units and hundredths.
func MoneyFromParts(units int64, cents int64) Money {
	if units < 0 {
		return Money(units*100 - cents)
	}
	return Money(units*100 + cents)
}

func (m Money) Units() int64 { return int64(m) / 100 }
func (m Money) Cents() int64 {
	c := int64(m) % 100
	if c < 0 {
		c = -c
	}
	return c
}

// Decimal returns the amount as an exact decimal with scale 2.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(int64(m), -2)
}

func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Inet is a host address with an optional netmask.
type Inet struct {
	Prefix netip.Prefix
}

func (v Inet) String() string {
	if v.Prefix.Bits() == v.Prefix.Addr().BitLen() {
		return v.Prefix.Addr().String()
	}
	return v.Prefix.String()
}

// CIDR is a network specification; host bits to the right of the mask are
// zero on the wire.
type CIDR struct {
	Prefix netip.Prefix
}

func (v CIDR) String() string { return v.Prefix.String() }

// MACAddr is a 6-octet hardware address.
type MACAddr [6]byte

func (m MACAddr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", m[0], m[1], m[2], m[3], m[4], m[5])
}

// MACAddr8 is an EUI-64 8-octet hardware address.
type MACAddr8 [8]byte

func (m MACAddr8) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x:%02x:%02x",
		m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7])
}

// JSON carries a json or jsonb document verbatim.
type JSON []byte

func (j JSON) String() string { return string(j) }

// Geometric types. All coordinates are float64 on the wire.

type Point struct {
	X, Y float64
}

func (p Point) String() string { return fmt.Sprintf("(%g,%g)", p.X, p.Y) }

// Line is the infinite line Ax + By + C = 0.
type Line struct {
	A, B, C float64
}

func (l Line) String() string { return fmt.Sprintf("{%g,%g,%g}", l.A, l.B, l.C) }

type LSeg struct {
	P0, P1 Point
}

func (l LSeg) String() string { return fmt.Sprintf("[%s,%s]", l.P0, l.P1) }

type Box struct {
	High, Low Point
}

func (b Box) String() string { return fmt.Sprintf("%s,%s", b.High, b.Low) }

type Path struct {
	Closed bool
	Points []Point
}

func (p Path) String() string {
	pts := make([]string, len(p.Points))
	for i, pt := range p.Points {
		pts[i] = pt.String()
	}
	if p.Closed {
		return "(" + strings.Join(pts, ",") + ")"
	}
	return "[" + strings.Join(pts, ",") + "]"
}

type Polygon struct {
	Points []Point
}

func (p Polygon) String() string {
	pts := make([]string, len(p.Points))
	for i, pt := range p.Points {
		pts[i] = pt.String()
	}
	return "(" + strings.Join(pts, ",") + ")"
}

type Circle struct {
	Center Point
	Radius float64
}

func (c Circle) String() string { return fmt.Sprintf("<%s,%g>", c.Center, c.Radius) }

// Range is a range over a bound type. An unset side is unbounded; Empty
// ranges carry no bounds at all.
type Range[T any] struct {
	Lower, Upper       T
	LowerSet, UpperSet bool
	LowerInc, UpperInc bool
	Empty              bool
}

// BoundedRange builds a range with both sides present.
func BoundedRange[T any](lower, upper T, lowerInc, upperInc bool) Range[T] {
	return Range[T]{
		Lower: lower, Upper: upper,
		LowerSet: true, UpperSet: true,
		LowerInc: lowerInc, UpperInc: upperInc,
	}
}

func (r Range[T]) String() string {
	if r.Empty {
		return "empty"
	}
	var b strings.Builder
	if r.LowerInc {
		b.WriteByte('[')
	} else {
		b.WriteByte('(')
	}
	if r.LowerSet {
		fmt.Fprintf(&b, "%v", r.Lower)
	}
	b.WriteByte(',')
	if r.UpperSet {
		fmt.Fprintf(&b, "%v", r.Upper)
	}
	if r.UpperInc {
		b.WriteByte(']')
	} else {
		b.WriteByte(')')
	}
	return b.String()
}

// Concrete range instantiations matching the server's built-in range types.
// The three temporal ranges share a bound type, so they are distinct named
// structs rather than aliases; the codec tells them apart by type.
type (
	Int4Range = Range[int32]
	Int8Range = Range[int64]
	NumRange  = Range[decimal.Decimal]
)

type TSRange struct{ Range[time.Time] }

type TSTZRange struct{ Range[time.Time] }

type DateRange struct{ Range[time.Time] }
