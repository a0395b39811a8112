package pgtypes

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// The server transports numeric as a sequence of base-10000 digits with a
// decimal weight: value = sum(digit[i] * 10000^(weight-i)), displayed with
// dscale fractional digits.
const (
	numericPos = 0x0000
	numericNeg = 0x4000
	numericNaN = 0xC000

	numericMaxWeight = 0x7FFF / 4
)

func decodeNumeric(oid OID, r *wireReader) (decimal.Decimal, error) {
	ndigits := r.int16()
	weight := r.int16()
	sign := r.uint16()
	dscale := r.uint16()

	if r.err != nil {
		return decimal.Decimal{}, r.err
	}
	if ndigits < 0 {
		return decimal.Decimal{}, decodeErrf(oid, "negative digit count %d", ndigits)
	}
	if weight > numericMaxWeight || weight < -numericMaxWeight {
		return decimal.Decimal{}, decodeErrf(oid, "weight %d out of range", weight)
	}
	switch sign {
	case numericPos, numericNeg:
	case numericNaN:
		return decimal.Decimal{}, decodeErrf(oid, "NaN has no decimal representation")
	default:
		return decimal.Decimal{}, decodeErrf(oid, "invalid sign word 0x%04x", sign)
	}

	// Digits are base-10000; accumulate into an integer then shift by the
	// number of fractional base-10000 positions.
	acc := new(big.Int)
	ten4 := big.NewInt(10000)
	for i := int16(0); i < ndigits; i++ {
		d := r.int16()
		if d < 0 || d > 9999 {
			return decimal.Decimal{}, decodeErrf(oid, "digit %d out of base-10000 range", d)
		}
		acc.Mul(acc, ten4)
		acc.Add(acc, big.NewInt(int64(d)))
	}
	if err := r.err; err != nil {
		return decimal.Decimal{}, err
	}

	// exponent of the accumulated integer, in decimal digits
	exp := (int32(weight) - int32(ndigits) + 1) * 4

	// Re-express the coefficient at exactly -dscale so the decoded value
	// prints the server's canonical form (trailing zeros preserved).
	diff := exp + int32(dscale)
	ten := big.NewInt(10)
	for ; diff > 0; diff-- {
		acc.Mul(acc, ten)
	}
	rem := new(big.Int)
	for ; diff < 0; diff++ {
		acc.QuoRem(acc, ten, rem)
		if rem.Sign() != 0 {
			return decimal.Decimal{}, decodeErrf(oid, "display scale %d drops non-zero digits", dscale)
		}
	}
	if sign == numericNeg {
		acc.Neg(acc)
	}
	return decimal.NewFromBigInt(acc, -int32(dscale)), nil
}

func encodeNumeric(w *wireWriter, d decimal.Decimal) {
	// Normalise to an integer coefficient with non-positive exponent.
	dscale := -d.Exponent()
	coeff := new(big.Int).Set(d.Coefficient())
	for ; dscale < 0; dscale++ {
		coeff.Mul(coeff, big.NewInt(10))
	}

	neg := coeff.Sign() < 0
	if neg {
		coeff.Neg(coeff)
	}

	// Pad the fractional part to a whole number of base-10000 positions.
	pad := (4 - int(dscale)%4) % 4
	for i := 0; i < pad; i++ {
		coeff.Mul(coeff, big.NewInt(10))
	}
	fracGroups := (int(dscale) + pad) / 4

	var digits []int16
	ten4 := big.NewInt(10000)
	mod := new(big.Int)
	for coeff.Sign() != 0 {
		coeff.DivMod(coeff, ten4, mod)
		digits = append(digits, int16(mod.Int64()))
	}
	// digits are little-endian base-10000 at this point
	for len(digits) < fracGroups+1 {
		digits = append(digits, 0)
	}

	weight := len(digits) - fracGroups - 1

	// strip trailing zero groups; the weight is unaffected
	first := 0
	for first < len(digits)-1 && digits[first] == 0 {
		first++
	}
	digits = digits[first:]
	// strip leading zero groups, adjusting weight
	for len(digits) > 1 && digits[len(digits)-1] == 0 {
		digits = digits[:len(digits)-1]
		weight--
	}
	if len(digits) == 1 && digits[0] == 0 {
		digits = nil
		weight = 0
	}

	sign := uint16(numericPos)
	if neg {
		sign = numericNeg
	}

	w.int16(int16(len(digits)))
	w.int16(int16(weight))
	w.uint16(sign)
	w.uint16(uint16(dscale))
	for i := len(digits) - 1; i >= 0; i-- {
		w.int16(digits[i])
	}
}

// canonicalNumericString renders a decimal the way the server prints it,
// with exactly the stored scale.
func canonicalNumericString(d decimal.Decimal) string {
	if d.Exponent() < 0 {
		return d.StringFixed(-d.Exponent())
	}
	return d.String()
}
