package pgtypes

import (
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// MoneyLocale controls how Money values are rendered. The zero value prints
// plain fixed-point amounts with no symbol.
//
// The server reports its own monetary locale (lc_monetary) as a parameter
// status on connect; sessions feed that value here so money formatting
// follows the server unless the caller overrides it.
type MoneyLocale struct {
	Tag  language.Tag
	Unit currency.Unit

	valid bool
}

// ParseMoneyLocale interprets a POSIX locale name such as "en_US.UTF-8" the
// way the server's lc_monetary reports it. "C" and "POSIX" (and anything
// unintelligible) yield the neutral zero locale.
func ParseMoneyLocale(name string) MoneyLocale {
	base := name
	if i := strings.IndexAny(base, ".@"); i >= 0 {
		base = base[:i]
	}
	if base == "" || base == "C" || base == "POSIX" {
		return MoneyLocale{}
	}

	tag, err := language.Parse(strings.ReplaceAll(base, "_", "-"))
	if err != nil {
		return MoneyLocale{}
	}

	region, _ := tag.Region()
	unit, ok := currency.FromRegion(region)
	if !ok {
		return MoneyLocale{Tag: tag, valid: true}
	}
	return MoneyLocale{Tag: tag, Unit: unit, valid: true}
}

// Format renders the amount under this locale: grouped digits and the
// locale's currency symbol when one is known.
func (l MoneyLocale) Format(m Money) string {
	if !l.valid {
		return m.String()
	}

	p := message.NewPrinter(l.Tag)
	units := float64(m) / 100

	if l.Unit == (currency.Unit{}) {
		return p.Sprint(number.Decimal(units, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
	}
	return p.Sprint(currency.Symbol(l.Unit.Amount(units)))
}
