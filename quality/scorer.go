// Package quality grades extracted product records. A score is computed once
// per record, right after extraction, and attached to it; downstream
// consumers filter on the verdict instead of re-validating fields.
package quality

import (
	"net/url"
	"unicode/utf8"

	"github.com/nasalciuc/darwinscrape/config"
	"github.com/nasalciuc/darwinscrape/extract"
	"github.com/nasalciuc/darwinscrape/models"
)

// Plausible darwin.md price band in MDL. Anything outside is a parsing
// artifact (a struck-through discount digit glued to the real price, a
// phone-number fragment) rather than a real price.
const (
	minPlausiblePrice = 1
	maxPlausiblePrice = 1_000_000
)

// optionalFields counts the non-required fields that feed completeness:
// description, images, brand, stock, rating, sku, specs.
const optionalFields = 7

// Scorer computes 0-10 quality scores from configurable weights and verdict
// thresholds. Stateless and safe for concurrent use.
type Scorer struct {
	cfg config.QualityConfig
}

func NewScorer(cfg config.QualityConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score grades one record. When more than half the required fields are
// missing the verdict is failed no matter what the weighted score says; such
// a record is extraction noise, not a product.
func (s *Scorer) Score(rec *models.ProductRecord) models.QualityScore {
	completeness := s.completeness(rec)
	accuracy := s.accuracy(rec)
	structure := s.structure(rec)

	overall := s.cfg.CompletenessWeight*completeness +
		s.cfg.AccuracyWeight*accuracy +
		s.cfg.StructureWeight*structure

	verdict := s.verdict(overall)
	if len(rec.MissingRequired())*2 > models.RequiredFieldCount {
		verdict = models.VerdictFailed
	}

	return models.QualityScore{
		Completeness: round1(completeness),
		Accuracy:     round1(accuracy),
		Structure:    round1(structure),
		Overall:      round1(overall),
		Verdict:      verdict,
	}
}

// completeness weights required fields at 6 of 10 points and spreads the
// remaining 4 across the optional fields.
func (s *Scorer) completeness(rec *models.ProductRecord) float64 {
	requiredPresent := models.RequiredFieldCount - len(rec.MissingRequired())
	score := 6.0 * float64(requiredPresent) / float64(models.RequiredFieldCount)

	present := 0
	if rec.Description != "" {
		present++
	}
	if len(rec.Images) > 0 {
		present++
	}
	if rec.Brand != "" {
		present++
	}
	if rec.Stock != models.StockUnknown {
		present++
	}
	if rec.Rating != nil {
		present++
	}
	if rec.SKU != "" {
		present++
	}
	if len(rec.Specs) > 0 {
		present++
	}
	score += 4.0 * float64(present) / float64(optionalFields)
	return score
}

// accuracy awards points for values that pass sanity checks: a plausible
// price, a real-looking title, a taxonomy category, a valid URL, and a known
// stock state.
func (s *Scorer) accuracy(rec *models.ProductRecord) float64 {
	score := 0.0

	if rec.Price >= minPlausiblePrice && rec.Price <= maxPlausiblePrice {
		score += 4
	}
	if utf8.RuneCountInString(rec.Title) >= 5 {
		score += 2
	}
	if extract.KnownCategory(rec.Category) {
		score += 2
	}
	if u, err := url.Parse(rec.URL); err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != "" {
		score++
	}
	if rec.Stock != models.StockUnknown {
		score++
	}
	return score
}

// structure rewards rich, well-shaped records: substantial description,
// multiple images, a populated spec table, a rating.
func (s *Scorer) structure(rec *models.ProductRecord) float64 {
	score := 0.0

	if rec.Description != "" {
		score += 3
		if utf8.RuneCountInString(rec.Description) >= 100 {
			score++
		}
	}
	if len(rec.Images) > 0 {
		score += 2
		if len(rec.Images) >= 3 {
			score++
		}
	}
	if len(rec.Specs) >= 3 {
		score += 2
	}
	if rec.Rating != nil {
		score++
	}
	return score
}

func (s *Scorer) verdict(overall float64) models.Verdict {
	switch {
	case overall >= s.cfg.ExcellentThreshold:
		return models.VerdictExcellent
	case overall >= s.cfg.GoodThreshold:
		return models.VerdictGood
	case overall >= s.cfg.RevisionThreshold:
		return models.VerdictNeedsRevision
	default:
		return models.VerdictFailed
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
