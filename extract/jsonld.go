package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
)

// StructuredProduct is the subset of schema.org Product data used as a
// selector fallback when the locator tables miss a field.
type StructuredProduct struct {
	Name        string
	Description string
	Images      []string
	SKU         string
	Brand       string
	Price       float64
	Currency    string
	Rating      *float64
	InStock     *bool
}

var jsonLDSelector = cascadia.MustCompile(`script[type="application/ld+json"]`)

// StructuredData scans the document's JSON-LD blocks for a schema.org
// Product. Malformed blocks are skipped; absence is not an error.
func StructuredData(doc *Document) (*StructuredProduct, bool) {
	for _, node := range cascadia.QueryAll(doc.root, jsonLDSelector) {
		raw := strings.TrimSpace(htmlquery.InnerText(node))
		if raw == "" {
			continue
		}
		if sp, ok := decodeProduct(raw); ok {
			return sp, true
		}
	}
	return nil, false
}

func decodeProduct(raw string) (*StructuredProduct, bool) {
	var top any
	if err := json.Unmarshal([]byte(raw), &top); err != nil {
		return nil, false
	}
	for _, candidate := range flattenLD(top) {
		if sp, ok := productFromMap(candidate); ok {
			return sp, true
		}
	}
	return nil, false
}

// flattenLD yields every object in a JSON-LD value: the value itself, array
// elements, and @graph members.
func flattenLD(v any) []map[string]any {
	var out []map[string]any
	switch t := v.(type) {
	case map[string]any:
		out = append(out, t)
		if graph, ok := t["@graph"].([]any); ok {
			for _, g := range graph {
				if m, ok := g.(map[string]any); ok {
					out = append(out, m)
				}
			}
		}
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				out = append(out, m)
			}
		}
	}
	return out
}

func productFromMap(m map[string]any) (*StructuredProduct, bool) {
	if !isProductType(m["@type"]) {
		return nil, false
	}

	sp := &StructuredProduct{
		Name:        stringValue(m["name"]),
		Description: stringValue(m["description"]),
		SKU:         stringValue(m["sku"]),
	}

	switch img := m["image"].(type) {
	case string:
		sp.Images = []string{img}
	case []any:
		for _, i := range img {
			if s, ok := i.(string); ok {
				sp.Images = append(sp.Images, s)
			}
		}
	}

	switch brand := m["brand"].(type) {
	case string:
		sp.Brand = brand
	case map[string]any:
		sp.Brand = stringValue(brand["name"])
	}

	if offers, ok := firstOffer(m["offers"]); ok {
		// JSON-LD prices are machine-formatted; no separator heuristics.
		if price, ok := parseFloatLoose(stringValue(offers["price"])); ok && price > 0 {
			sp.Price = price
		}
		if cur := stringValue(offers["priceCurrency"]); cur != "" {
			sp.Currency = cur
		}
		if avail := stringValue(offers["availability"]); avail != "" {
			inStock := strings.Contains(avail, "InStock")
			sp.InStock = &inStock
		}
	}

	if agg, ok := m["aggregateRating"].(map[string]any); ok {
		if v, ok := parseFloatLoose(stringValue(agg["ratingValue"])); ok {
			sp.Rating = &v
		}
	}

	return sp, true
}

func isProductType(v any) bool {
	switch t := v.(type) {
	case string:
		return t == "Product"
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok && s == "Product" {
				return true
			}
		}
	}
	return false
}

func firstOffer(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				return m, true
			}
		}
	}
	return nil, false
}

// parseFloatLoose parses a plain decimal number, tolerating a comma decimal
// separator.
func parseFloatLoose(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", "."))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// stringValue renders strings and JSON numbers uniformly; numbers keep their
// canonical formatting.
func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		b, _ := json.Marshal(t)
		return string(b)
	}
	return ""
}
