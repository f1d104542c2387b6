package extract

import "testing"

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		value    float64
		currency string
		ok       bool
	}{
		{"comma thousands lei", "1,299 lei", 1299, "MDL", true},
		{"dot thousands mdl", "1.299 MDL", 1299, "MDL", true},
		{"bare L suffix", "1299 L", 1299, "MDL", true},
		{"plain integer", "24999 lei", 24999, "MDL", true},
		{"space grouping with decimals", "1 299,99 lei", 1299.99, "MDL", true},
		{"nbsp grouping", "12 499 lei", 12499, "MDL", true},
		{"two decimal digits after comma", "999,50 lei", 999.50, "MDL", true},
		{"two decimal digits after dot", "999.50 MDL", 999.50, "MDL", true},
		{"both separators", "1.299,99 lei", 1299.99, "MDL", true},
		{"both separators reversed", "1,299.99 USD", 1299.99, "USD", true},
		{"million with dot grouping", "1.299.000 lei", 1299000, "MDL", true},
		{"euro", "549 €", 549, "EUR", true},
		{"discount arrow", "1,599 → 1,299 lei", 1299, "MDL", true},
		{"discount ascii arrow", "1599 -> 1299 lei", 1299, "MDL", true},
		{"no number", "preț la cerere", 0, "", false},
		{"empty", "", 0, "", false},
		{"zero", "0 lei", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, currency, ok := ParsePrice(tt.text)
			if ok != tt.ok {
				t.Fatalf("ParsePrice(%q) ok = %v, want %v", tt.text, ok, tt.ok)
			}
			if !ok {
				return
			}
			if value != tt.value {
				t.Errorf("ParsePrice(%q) value = %v, want %v", tt.text, value, tt.value)
			}
			if currency != tt.currency {
				t.Errorf("ParsePrice(%q) currency = %q, want %q", tt.text, currency, tt.currency)
			}
		})
	}
}

func TestParsePrice_DefaultCurrency(t *testing.T) {
	value, currency, ok := ParsePrice("1299")
	if !ok {
		t.Fatal("bare number should parse")
	}
	if value != 1299 || currency != "MDL" {
		t.Errorf("got %v %s, want 1299 MDL", value, currency)
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(1299.99, "MDL"); got != "1299.99 MDL" {
		t.Errorf("FormatPrice = %q", got)
	}
	if got := FormatPrice(549, ""); got != "549 MDL" {
		t.Errorf("FormatPrice with empty currency = %q", got)
	}
}
