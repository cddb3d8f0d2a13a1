package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	amountToken  = regexp.MustCompile(`\d[\d.,]*`)
	freeShipping = regexp.MustCompile(`(?i)\bfree\b|無料`)
)

// currencySymbols is checked in order; longer symbols come first so "US$"
// wins over "$".
var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"},
	{"C$", "CAD"},
	{"A$", "AUD"},
	{"$", "USD"},
	{"￥", "JPY"},
	{"¥", "JPY"},
	{"円", "JPY"},
	{"€", "EUR"},
	{"£", "GBP"},
}

// wholeUnitCurrencies have no minor unit, so "1.234" groups thousands.
var wholeUnitCurrencies = map[string]bool{"JPY": true, "KRW": true}

// ParseAmount extracts a non-negative amount from free text such as
// "￥1,980", "$1,234.56" or "1.234,56 €". The last numeric token wins.
// The currency is taken from a symbol in the text, if any.
func ParseAmount(text string) (decimal.Decimal, bool) {
	return ParseAmountIn(text, DetectCurrency("", text, nil))
}

// ParseAmountIn is ParseAmount for text known to be in currency.
func ParseAmountIn(text, currency string) (decimal.Decimal, bool) {
	tokens := amountToken.FindAllString(text, -1)
	if len(tokens) == 0 {
		return decimal.Zero, false
	}
	tok := strings.TrimRight(tokens[len(tokens)-1], ".,")

	lastDot := strings.LastIndex(tok, ".")
	lastComma := strings.LastIndex(tok, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			tok = strings.ReplaceAll(tok, ".", "")
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(tok, ",") == 1 && len(tok)-lastComma-1 != 3 {
			tok = strings.Replace(tok, ",", ".", 1)
		} else {
			tok = strings.ReplaceAll(tok, ",", "")
		}
	case strings.Count(tok, ".") > 1:
		tok = strings.ReplaceAll(tok, ".", "")
	case lastDot >= 0 && wholeUnitCurrencies[currency] && len(tok)-lastDot-1 == 3:
		tok = strings.Replace(tok, ".", "", 1)
	}

	d, err := decimal.NewFromString(tok)
	if err != nil || d.IsNegative() {
		return decimal.Zero, false
	}
	return d, true
}

// ParseShipping returns the shipping charge in the text's own currency.
// Empty, free and unparsable text all mean zero.
func ParseShipping(text string) decimal.Decimal {
	return ParseShippingIn(text, DetectCurrency("", text, nil))
}

// ParseShippingIn is ParseShipping for text known to be in currency.
func ParseShippingIn(text, currency string) decimal.Decimal {
	text = strings.TrimSpace(text)
	if text == "" || freeShipping.MatchString(text) {
		return decimal.Zero
	}
	d, ok := ParseAmountIn(text, currency)
	if !ok {
		return decimal.Zero
	}
	return d
}

// DetectCurrency resolves the currency code for an offer. An explicit ISO
// code wins, then a symbol in the explicit field, then a symbol or known
// code inside the price text. Empty means "not stated".
func DetectCurrency(explicit, priceText string, known []string) string {
	explicit = strings.TrimSpace(explicit)
	if isCurrencyCode(explicit) {
		return strings.ToUpper(explicit)
	}
	for _, text := range []string{explicit, priceText} {
		if text == "" {
			continue
		}
		for _, cs := range currencySymbols {
			if strings.Contains(text, cs.symbol) {
				return cs.code
			}
		}
		upper := strings.ToUpper(text)
		for _, code := range known {
			if strings.Contains(upper, code) {
				return code
			}
		}
	}
	return ""
}

func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
