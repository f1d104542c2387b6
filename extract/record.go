package extract

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	readability "github.com/go-shiori/go-readability"
	"github.com/nasalciuc/darwinscrape/models"
)

// maxDescriptionRunes bounds the stored description length; darwin.md
// description blocks run to thousands of characters.
const maxDescriptionRunes = 500

// Builder assembles ProductRecords from fetched documents. It is safe for
// concurrent use: the resolver is read-only and the markdown converter is
// goroutine-safe.
type Builder struct {
	resolver *Resolver
	md       *converter.Converter
}

// NewBuilder creates a Builder over the given locator tables.
func NewBuilder(locators *LocatorSet) *Builder {
	return &Builder{
		resolver: NewResolver(locators),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// Build extracts a ProductRecord from rawHTML. pageTitle is the browser/HTTP
// engine's reported title, used as a title fallback. The returned missing
// slice names the required fields that could not be resolved; the caller
// classifies the attempt as a partial failure when it is non-empty.
//
// Field-level misses (malformed price, absent description) are absorbed as
// "not found"; one bad field never aborts extraction of the rest.
func (b *Builder) Build(rawHTML, pageURL, pageTitle string, method models.Method) (*models.ProductRecord, []string) {
	doc, err := NewDocument(rawHTML, pageURL)
	if err != nil {
		// Unparseable markup: report everything missing.
		return nil, []string{"title", "price", "category", "url"}
	}

	sd, hasSD := StructuredData(doc)

	rec := &models.ProductRecord{
		URL:              pageURL,
		Stock:            models.StockUnknown,
		ExtractionMethod: method,
		ExtractedAt:      time.Now().UTC(),
	}

	// Title: locators, then JSON-LD, then the cleaned page <title>.
	if title, ok := b.resolver.Field(doc, FieldTitle); ok {
		rec.Title = title
	} else if hasSD && sd.Name != "" {
		rec.Title = sd.Name
	} else {
		rec.Title = cleanPageTitle(pageTitle)
	}

	// Price: locator text through the separator-detecting normalizer,
	// JSON-LD offer as fallback.
	if text, ok := b.resolver.Field(doc, FieldPrice); ok {
		if value, currency, parsed := ParsePrice(text); parsed {
			rec.Price = value
			rec.Currency = currency
		}
	}
	if rec.Price == 0 && hasSD && sd.Price > 0 {
		rec.Price = sd.Price
		rec.Currency = sd.Currency
		if rec.Currency == "" {
			rec.Currency = "MDL"
		}
	}

	rec.Category = b.category(doc, pageURL)
	rec.Description = b.description(doc, rawHTML, pageURL, sd)

	if images, ok := b.resolver.FieldAll(doc, FieldImages); ok {
		rec.Images = images
	} else if hasSD && len(sd.Images) > 0 {
		rec.Images = sd.Images
	}

	if brand, ok := b.resolver.Field(doc, FieldBrand); ok {
		rec.Brand = brand
	} else if hasSD && sd.Brand != "" {
		rec.Brand = sd.Brand
	}

	if sku, ok := b.resolver.Field(doc, FieldSKU); ok {
		rec.SKU = sku
	} else if hasSD && sd.SKU != "" {
		rec.SKU = sd.SKU
	}

	rec.Stock = b.stock(doc, sd)

	if text, ok := b.resolver.Field(doc, FieldRating); ok {
		if v, parsed := parseFloatLoose(text); parsed && v > 0 && v <= 5 {
			rec.Rating = &v
		}
	}
	if rec.Rating == nil && hasSD && sd.Rating != nil {
		rec.Rating = sd.Rating
	}

	if specs, ok := b.resolver.FieldPairs(doc, FieldSpecs); ok {
		rec.Specs = specs
	}

	return rec, rec.MissingRequired()
}

// category resolves the breadcrumb locators first and falls back to the
// first path segment of the product URL.
func (b *Builder) category(doc *Document, pageURL string) string {
	if raw, ok := b.resolver.Field(doc, FieldCategory); ok {
		return CanonicalCategory(raw)
	}
	if u, err := url.Parse(pageURL); err == nil {
		segments := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(segments) > 0 && segments[0] != "" {
			return CanonicalCategory(strings.ReplaceAll(segments[0], "-", " "))
		}
	}
	return ""
}

// description prefers the locator-matched element converted to markdown,
// falls back to JSON-LD, then to readability over the whole page.
func (b *Builder) description(doc *Document, rawHTML, pageURL string, sd *StructuredProduct) string {
	if fragment, ok := b.resolver.FieldHTML(doc, FieldDescription); ok {
		if md, err := b.md.ConvertString(fragment); err == nil {
			if text := strings.TrimSpace(md); text != "" {
				return truncate(text, maxDescriptionRunes)
			}
		}
	}

	if sd != nil && sd.Description != "" {
		return truncate(sd.Description, maxDescriptionRunes)
	}

	if parsed, err := url.Parse(pageURL); err == nil {
		article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
		if err == nil {
			if text := strings.TrimSpace(article.TextContent); len(text) >= 50 {
				return truncate(text, maxDescriptionRunes)
			}
		} else {
			slog.Debug("readability fallback failed", "url", pageURL, "error", err)
		}
	}
	return ""
}

func (b *Builder) stock(doc *Document, sd *StructuredProduct) models.StockStatus {
	if text, ok := b.resolver.Field(doc, FieldStock); ok {
		return NormalizeStock(text)
	}
	if sd != nil && sd.InStock != nil {
		if *sd.InStock {
			return models.StockAvailable
		}
		return models.StockOutOfStock
	}
	return models.StockUnknown
}

// NormalizeStock maps Romanian and English availability text onto the
// stock enum.
func NormalizeStock(text string) models.StockStatus {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "":
		return models.StockUnknown
	case strings.Contains(t, "indisponibil"),
		strings.Contains(t, "epuizat"),
		strings.Contains(t, "stoc epuizat"),
		strings.Contains(t, "out of stock"),
		strings.Contains(t, "sold out"):
		return models.StockOutOfStock
	case strings.Contains(t, "în stoc"),
		strings.Contains(t, "in stoc"),
		strings.Contains(t, "disponibil"),
		strings.Contains(t, "in stock"),
		strings.Contains(t, "la comand"):
		return models.StockAvailable
	}
	return models.StockUnknown
}

// cleanPageTitle strips site-name suffixes from a document title
// ("iPhone 15 | Darwin" -> "iPhone 15").
func cleanPageTitle(title string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		return ""
	}
	for _, sep := range []string{"|", " - ", "–"} {
		if idx := strings.Index(title, sep); idx > 0 {
			title = title[:idx]
		}
	}
	title = strings.TrimSpace(title)
	if strings.EqualFold(title, "darwin") {
		return ""
	}
	return title
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
