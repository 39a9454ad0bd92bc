// Package core implements the commitment calculation engine: term
// resolution, installment counting, per-period amounts, lifecycle
// classification and consolidated summaries. Everything in this package
// is a pure function of its inputs; "today" is always an explicit
// parameter and no I/O happens here.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

const (
	CLP Currency = "CLP"
	USD Currency = "USD"
	EUR Currency = "EUR"
	UF  Currency = "UF"
	UTM Currency = "UTM"
)

// Currency is one of the closed set of units a term or payment can be
// denominated in. CLP is the base currency for all aggregate totals.
type Currency string

// BaseCurrency is the unit all totals are normalized into.
const BaseCurrency = CLP

func (c Currency) Validate() error {
	switch c {
	case CLP, USD, EUR, UF, UTM:
		return nil
	}
	return ErrUnknownCurrency
}

// Decimals returns the number of fractional digits used when displaying
// amounts in this currency. CLP has none; everything else shows two.
func (c Currency) Decimals() int {
	if c == CLP {
		return 0
	}
	return 2
}

// Symbol returns the display prefix for the currency.
func (c Currency) Symbol() string {
	switch c {
	case USD:
		return "US$"
	case EUR:
		return "€"
	case UF:
		return "UF "
	case UTM:
		return "UTM "
	default:
		return "$"
	}
}

// ParseAmount converts a decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// performs half-up rounding on the third decimal place. Returns an error
// for invalid formats, negative values, or zero amounts.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		// Only positive values allowed
		return 0, ErrInvalidAmount
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidAmount
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidAmount
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			fracCents += int64(fracPart[1] - '0')
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	amount := float64(iv) + float64(fracCents)/100.0
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	return amount, nil
}

// FormatAmount renders an amount for display in the given currency,
// using dot thousand separators and a comma decimal separator.
func FormatAmount(amount float64, c Currency) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	decimals := c.Decimals()
	s := strconv.FormatFloat(amount, 'f', decimals, 64)

	intPart := s
	fracPart := ""
	if decimals > 0 {
		if i := strings.IndexByte(s, '.'); i >= 0 {
			intPart, fracPart = s[:i], s[i+1:]
		}
	}
	intPart = groupThousands(intPart)

	out := c.Symbol() + intPart
	if fracPart != "" {
		out += "," + fracPart
	}
	if neg {
		return "-" + out
	}
	return out
}

func groupThousands(digits string) string {
	n := len(digits)
	if n <= 3 {
		return digits
	}
	var b strings.Builder
	first := n % 3
	if first > 0 {
		b.WriteString(digits[:first])
	}
	for i := first; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// FormatBase renders a CLP total.
func FormatBase(amount float64) string {
	return FormatAmount(amount, BaseCurrency)
}
