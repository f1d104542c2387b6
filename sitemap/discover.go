// Package sitemap discovers darwin.md product URLs, either from the site's
// XML sitemap tree or by pulling product links out of a category listing page.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	maxFetchRetries = 3
	maxSitemapDepth = 3
)

// productSegments are darwin.md path segments that mark catalog pages.
var productSegments = []string{
	"/telefoane/", "/laptopuri/", "/tablete/", "/accesorii/", "/audio/",
	"/gaming/", "/smart-home/", "/electronice/", "/monitoare/",
	"/smartphone/", "/casti/", "/boxe/",
}

// excludeSegments are service pages that slip into the sitemap but never
// carry a product.
var excludeSegments = []string{
	"/contact", "/despre", "/cos", "/login", "/blog", "/ajutor", "/termeni",
}

var excludeSuffixes = []string{".xml", ".pdf", ".jpg", ".png", ".webp"}

var (
	trailingID = regexp.MustCompile(`/\d+/?$`)
	slugID     = regexp.MustCompile(`-\d+/?$`)
)

// Discoverer fetches and classifies URLs. Safe for single-goroutine use;
// discovery runs once before the batch starts.
type Discoverer struct {
	client  *http.Client
	baseURL string
	log     *slog.Logger

	// backoffUnit scales the retry backoff; tests shrink it.
	backoffUnit time.Duration
}

// New creates a Discoverer rooted at baseURL (e.g. "https://darwin.md").
func New(baseURL string, timeout time.Duration, log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{
		client:      &http.Client{Timeout: timeout},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		log:         log,
		backoffUnit: time.Second,
	}
}

// sitemapDoc covers both sitemap roots: a <sitemapindex> fills Sitemaps, a
// <urlset> fills URLs.
type sitemapDoc struct {
	XMLName  xml.Name
	Sitemaps []sitemapLoc `xml:"sitemap"`
	URLs     []sitemapLoc `xml:"url"`
}

type sitemapLoc struct {
	Loc string `xml:"loc"`
}

// Discover walks the sitemap tree starting at sitemapURL and returns the
// product URLs it finds, deduplicated in first-seen order. Sub-sitemaps that
// fail to fetch are logged and skipped; the call fails only when the root
// sitemap itself is unreachable.
func (d *Discoverer) Discover(ctx context.Context, sitemapURL string) ([]string, error) {
	var (
		products []string
		seen     = make(map[string]struct{})
	)
	if err := d.walk(ctx, sitemapURL, 0, seen, &products); err != nil {
		return nil, err
	}
	d.log.Info("sitemap discovery finished",
		"sitemap", sitemapURL,
		"products", len(products))
	return products, nil
}

func (d *Discoverer) walk(ctx context.Context, sitemapURL string, depth int, seen map[string]struct{}, products *[]string) error {
	if depth >= maxSitemapDepth {
		d.log.Warn("sitemap nesting too deep, skipping", "url", sitemapURL)
		return nil
	}

	body, err := d.fetch(ctx, sitemapURL)
	if err != nil {
		if depth == 0 {
			return fmt.Errorf("fetch root sitemap: %w", err)
		}
		d.log.Warn("sub-sitemap fetch failed, skipping", "url", sitemapURL, "error", err)
		return nil
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(body, &doc); err != nil {
		if depth == 0 {
			return fmt.Errorf("parse root sitemap: %w", err)
		}
		d.log.Warn("sub-sitemap parse failed, skipping", "url", sitemapURL, "error", err)
		return nil
	}

	for _, sm := range doc.Sitemaps {
		loc := strings.TrimSpace(sm.Loc)
		if loc == "" {
			continue
		}
		if err := d.walk(ctx, loc, depth+1, seen, products); err != nil {
			return err
		}
	}

	for _, u := range doc.URLs {
		loc := strings.TrimSpace(u.Loc)
		if loc == "" || !d.IsProductURL(loc) {
			continue
		}
		if _, dup := seen[loc]; dup {
			continue
		}
		seen[loc] = struct{}{}
		*products = append(*products, loc)
	}
	return nil
}

// DiscoverCategory fetches one category listing page and returns the product
// links found in its markup, deduplicated in document order. Used when no
// sitemap is available for a slice of the catalog.
func (d *Discoverer) DiscoverCategory(ctx context.Context, pageURL string) ([]string, error) {
	body, err := d.fetch(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch category page: %w", err)
	}
	return d.ProductLinks(strings.NewReader(string(body)), pageURL)
}

// ProductLinks extracts product URLs from category page HTML. Relative hrefs
// are resolved against pageURL.
func (d *Discoverer) ProductLinks(r io.Reader, pageURL string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse category page: %w", err)
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}

	var (
		links []string
		seen  = make(map[string]struct{})
	)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		full := abs.String()
		if !d.IsProductURL(full) {
			return
		}
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		links = append(links, full)
	})
	return links, nil
}

// IsProductURL reports whether a URL looks like a darwin.md product page:
// same origin, not a service page or asset, and carrying either a known
// catalog segment or a numeric product id.
func (d *Discoverer) IsProductURL(u string) bool {
	if !strings.HasPrefix(u, d.baseURL) {
		return false
	}
	lower := strings.ToLower(strings.TrimSuffix(u, "/"))

	for _, suffix := range excludeSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	for _, segment := range excludeSegments {
		if strings.Contains(lower, segment) {
			return false
		}
	}

	for _, segment := range productSegments {
		if strings.Contains(lower, segment) {
			return true
		}
	}
	return trailingID.MatchString(u) || slugID.MatchString(u)
}

// fetch downloads one URL with retries and exponential backoff between
// attempts.
func (d *Discoverer) fetch(ctx context.Context, fetchURL string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxFetchRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * d.backoffUnit
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

		resp, err := d.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return body, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", maxFetchRetries, lastErr)
}
