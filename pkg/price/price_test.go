package price

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMatches(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []Match
	}{
		{
			name:  "empty",
			input: "",
			want:  nil,
		},
		{
			name:  "no symbol",
			input: "costs 1,200 dollars",
			want:  nil,
		},
		{
			name:  "grouped integer",
			input: "¥1,200",
			want:  []Match{{Start: 0, End: 7, IntegerPart: "1,200", Raw: "¥1,200"}},
		},
		{
			name:  "embedded fraction and space",
			input: "now ¥ 12.50!",
			want:  []Match{{Start: 4, End: 12, IntegerPart: "12", Fraction: ".50", Raw: "¥ 12.50"}},
		},
		{
			name:  "full width symbol",
			input: "￥99",
			want:  []Match{{Start: 0, End: 5, IntegerPart: "99", Raw: "￥99"}},
		},
		{
			name:  "trailing comma is punctuation",
			input: "¥1000, then",
			want:  []Match{{Start: 0, End: 6, IntegerPart: "1000", Raw: "¥1000"}},
		},
		{
			name:  "symbol without digits",
			input: "price in ¥ only",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindMatches(tt.input))
		})
	}
}

func TestFindMatchesMultiple(t *testing.T) {
	s := "was ¥2,000 now ¥1,500.99"
	matches := FindMatches(s)
	require.Len(t, matches, 2)

	assert.Equal(t, "¥2,000", matches[0].Raw)
	assert.False(t, matches[0].HasFraction())
	assert.Equal(t, "¥1,500.99", matches[1].Raw)
	assert.True(t, matches[1].HasFraction())
	for _, m := range matches {
		assert.Equal(t, m.Raw, s[m.Start:m.End])
	}
}

func TestFindMatchesInList(t *testing.T) {
	s := "¥1000, ¥1,200, and ¥5"
	matches := FindMatches(s)
	require.Len(t, matches, 3)

	assert.Equal(t, "¥1000", matches[0].Raw)
	assert.Equal(t, "1,200", matches[1].IntegerPart)
	assert.Equal(t, "¥5", matches[2].Raw)
	assert.Equal(t, ", ", s[matches[0].End:matches[1].Start])
}

func TestContainsSymbol(t *testing.T) {
	assert.True(t, ContainsSymbol("a ¥ b"))
	assert.True(t, ContainsSymbol("￥"))
	assert.False(t, ContainsSymbol("$5"))
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		integer, decimal string
		want             string
		wantErr          bool
	}{
		{"1,200", "", "1200", false},
		{"1,200", ".50", "1200.5", false},
		{"1,200", ",50", "1200.5", false},
		{"7", ".", "", true},
		{",", "", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAmount(tt.integer, tt.decimal)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrMalformedAmount)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.String())
	}
}

func TestFormat(t *testing.T) {
	f := NewFormatter("en")

	usd := f.Format(Convert(decimal.NewFromInt(1000), 0.14), "USD")
	assert.Contains(t, usd, "140.00")
	assert.Contains(t, usd, "$")

	eur := f.Format(Convert(decimal.NewFromInt(1000), 0.13), "EUR")
	assert.Contains(t, eur, "130.00")

	// not an ISO 4217 code
	assert.Equal(t, "XYZQ 5.00", f.Format(decimal.NewFromInt(5), "XYZQ"))
}
