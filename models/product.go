package models

import "time"

// StockStatus is the normalized availability of a product.
type StockStatus string

const (
	StockAvailable  StockStatus = "available"
	StockOutOfStock StockStatus = "out-of-stock"
	StockUnknown    StockStatus = "unknown"
)

// Verdict is the categorical judgment derived from a record's composite
// quality score.
type Verdict string

const (
	VerdictExcellent     Verdict = "excellent"
	VerdictGood          Verdict = "good"
	VerdictNeedsRevision Verdict = "needs-revision"
	VerdictFailed        Verdict = "failed"
)

// QualityScore is the 0-10 composite assessment of one ProductRecord.
// Computed once, immutable, attached to its record.
type QualityScore struct {
	Completeness float64 `json:"completeness"`
	Accuracy     float64 `json:"accuracy"`
	Structure    float64 `json:"structure"`
	Overall      float64 `json:"overall"`
	Verdict      Verdict `json:"verdict"`
}

// ProductRecord is one extracted product. A record is created once per
// successful extraction attempt and never mutated afterwards; re-extracting
// the same URL produces a new record with a fresh ExtractedAt timestamp.
type ProductRecord struct {
	URL         string            `json:"url"`
	Title       string            `json:"title"`
	Price       float64           `json:"price"`
	Currency    string            `json:"currency"`
	Description string            `json:"description,omitempty"`
	Images      []string          `json:"images,omitempty"`
	Brand       string            `json:"brand,omitempty"`
	Category    string            `json:"category"`
	Stock       StockStatus       `json:"stock"`
	Rating      *float64          `json:"rating,omitempty"`
	SKU         string            `json:"sku,omitempty"`
	Specs       map[string]string `json:"specs,omitempty"`

	ExtractionMethod Method        `json:"extraction_method"`
	ExtractedAt      time.Time     `json:"extracted_at"`
	Quality          *QualityScore `json:"quality,omitempty"`
}

// RequiredFieldCount is the number of fields a record must carry to be
// classified as a successful extraction: title, price, category, url.
const RequiredFieldCount = 4

// MissingRequired returns the names of required fields absent from the record.
func (r *ProductRecord) MissingRequired() []string {
	var missing []string
	if r.Title == "" {
		missing = append(missing, "title")
	}
	if r.Price <= 0 {
		missing = append(missing, "price")
	}
	if r.Category == "" {
		missing = append(missing, "category")
	}
	if r.URL == "" {
		missing = append(missing, "url")
	}
	return missing
}
