package price

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// SourceCurrency is the ISO code of the amounts found in scanned pages.
const SourceCurrency = "CNY"

// Symbols that introduce a source-currency price. The full-width form is common
// on Chinese storefronts.
var Symbols = []string{"¥", "￥"}

// ErrMalformedAmount is returned when a matched number cannot be parsed.
var ErrMalformedAmount = errors.New("malformed amount")

var (
	// symbol, optional single space (incl. no-break space), integer part with
	// grouping commas that never ends on a comma, optional embedded fraction.
	rePrice = regexp.MustCompile(`[¥￥][ \t\x{00A0}]?(\d(?:[\d,]*\d)?)(\.\d+)?`)

	// ReContinuation matches a decimal continuation rendered in a separate fragment,
	// e.g. the ".50" of <sup>.50</sup>.
	ReContinuation = regexp.MustCompile(`^[\s\x{00A0}]*([.,]\d+)`)
)

// Match is one price occurrence within a single text fragment.
// Start and End are byte offsets into the scanned string.
type Match struct {
	Start       int
	End         int
	IntegerPart string // digits and grouping commas, never empty
	Fraction    string // embedded ".ddd" or empty
	Raw         string
}

// HasFraction reports whether the match already carries a decimal part.
func (m Match) HasFraction() bool { return m.Fraction != "" }

// ContainsSymbol is the cheap pre-check before running the matcher.
func ContainsSymbol(s string) bool {
	for _, sym := range Symbols {
		if strings.Contains(s, sym) {
			return true
		}
	}
	return false
}

// FindMatches returns the ordered, non-overlapping price occurrences in s.
func FindMatches(s string) []Match {
	if s == "" || !ContainsSymbol(s) {
		return nil
	}
	idx := rePrice.FindAllStringSubmatchIndex(s, -1)
	if len(idx) == 0 {
		return nil
	}
	out := make([]Match, 0, len(idx))
	for _, loc := range idx {
		m := Match{
			Start:       loc[0],
			End:         loc[1],
			IntegerPart: s[loc[2]:loc[3]],
			Raw:         s[loc[0]:loc[1]],
		}
		if loc[4] >= 0 {
			m.Fraction = s[loc[4]:loc[5]]
		}
		out = append(out, m)
	}
	return out
}

// ParseAmount normalizes an integer part (grouping commas dropped) and an
// optional decimal part whose leading separator may be '.' or ','.
func ParseAmount(integerPart, decimalPart string) (decimal.Decimal, error) {
	digits := strings.ReplaceAll(integerPart, ",", "")
	if digits == "" {
		return decimal.Zero, ErrMalformedAmount
	}
	if decimalPart != "" {
		frac := strings.TrimLeft(decimalPart, ".,")
		if frac == "" {
			return decimal.Zero, ErrMalformedAmount
		}
		digits += "." + frac
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	return d, nil
}
