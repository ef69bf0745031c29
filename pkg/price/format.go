package price

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders converted amounts for one display locale.
type Formatter struct {
	p *message.Printer
}

// NewFormatter creates a formatter for a BCP 47 locale such as "en" or "tr".
// Unparseable locales fall back to English.
func NewFormatter(locale string) *Formatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	return &Formatter{p: message.NewPrinter(tag)}
}

// Format renders amount in the given currency, e.g. "$ 140.00".
// Codes unknown to the CLDR tables fall back to "CODE 140.00".
func (f *Formatter) Format(amount decimal.Decimal, code string) string {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return code + " " + amount.StringFixed(2)
	}
	return f.p.Sprint(currency.Symbol(unit.Amount(amount.InexactFloat64())))
}

// Convert multiplies a source amount by a rate.
func Convert(amount decimal.Decimal, rate float64) decimal.Decimal {
	return amount.Mul(decimal.NewFromFloat(rate))
}
