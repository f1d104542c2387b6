package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// currencyTokens maps the display tokens seen on darwin.md (and the common
// international ones) to ISO-ish currency codes. "lei" and the bare "L"
// suffix are both Moldovan leu.
var currencyTokens = map[string]string{
	"lei":    "MDL",
	"leu":    "MDL",
	"l":      "MDL",
	"mdl":    "MDL",
	"eur":    "EUR",
	"euro":   "EUR",
	"€":      "EUR",
	"usd":    "USD",
	"dollar": "USD",
	"$":      "USD",
}

var (
	numberRe   = regexp.MustCompile(`\d[\d\s.,]*`)
	currencyRe = regexp.MustCompile(`(?i)(lei|leu|mdl|eur|euro|usd|dollar|[€$])|\b[lL]\b`)
)

// ParsePrice normalizes a price display string into a numeric value and a
// currency code. It handles "1,299 lei", "1.299 MDL", "1299 L", "1 299,99 lei"
// and the discount pattern "1,599 → 1,299" (the price after the arrow is the
// current one). Returns ok=false for missing, negative, or zero results;
// malformed prices are a field-level "not found", never an error.
func ParsePrice(text string) (value float64, currency string, ok bool) {
	if text == "" {
		return 0, "", false
	}

	// Discount pattern: old price struck through, arrow, current price.
	for _, arrow := range []string{"→", "->"} {
		if idx := strings.LastIndex(text, arrow); idx >= 0 {
			text = text[idx+len(arrow):]
		}
	}

	numStr := numberRe.FindString(text)
	if numStr == "" {
		return 0, "", false
	}

	value, ok = normalizeNumber(numStr)
	if !ok || value <= 0 {
		return 0, "", false
	}

	currency = "MDL"
	if m := currencyRe.FindString(text); m != "" {
		if code, known := currencyTokens[strings.ToLower(strings.TrimSpace(m))]; known {
			currency = code
		}
	}
	return value, currency, true
}

// normalizeNumber strips grouping separators and detects the decimal
// separator by the trailing group length: a final group of exactly two
// digits after "." or "," is a decimal part, anything else is a thousands
// group.
func normalizeNumber(s string) (float64, bool) {
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, ".,")
	if s == "" {
		return 0, false
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot < 0 && lastComma < 0:
		// Plain integer.

	case lastDot >= 0 && lastComma >= 0:
		// Both present: the later one is the decimal separator.
		dec := lastDot
		if lastComma > lastDot {
			dec = lastComma
		}
		intPart := strings.Map(dropSeparators, s[:dec])
		s = intPart + "." + s[dec+1:]

	default:
		sep := lastDot
		if sep < 0 {
			sep = lastComma
		}
		trailing := len(s) - sep - 1
		if trailing == 2 {
			// Two trailing digits: decimal separator.
			s = strings.Map(dropSeparators, s[:sep]) + "." + s[sep+1:]
		} else {
			// Thousands grouping ("1,299", "1.299", "1.299.000").
			s = strings.Map(dropSeparators, s)
		}
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func dropSeparators(r rune) rune {
	if r == '.' || r == ',' {
		return -1
	}
	return r
}

// FormatPrice renders a numeric price back into the canonical "<value> <code>"
// form used in CSV output.
func FormatPrice(value float64, currency string) string {
	s := strconv.FormatFloat(value, 'f', -1, 64)
	if currency == "" {
		currency = "MDL"
	}
	return s + " " + currency
}
