package extract

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// Document is one parsed product page, resolvable by both CSS and XPath
// locators. Parsing happens once; resolution is read-only after that.
type Document struct {
	root *html.Node
	base *url.URL
}

// NewDocument parses rawHTML. baseURL is used to absolutize relative image
// URLs and may be empty.
func NewDocument(rawHTML, baseURL string) (*Document, error) {
	root, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, err
	}
	var base *url.URL
	if baseURL != "" {
		base, _ = url.Parse(baseURL)
	}
	return &Document{root: root, base: base}, nil
}

// Resolver tries each field's locators in priority order against a document.
// It is a pure function of (field, document): no mutation, no network I/O.
type Resolver struct {
	locators *LocatorSet
}

func NewResolver(locators *LocatorSet) *Resolver {
	return &Resolver{locators: locators}
}

// Field returns the first non-empty, trimmed value for a semantic field.
// The boolean is the explicit not-found sentinel: ("", false) means no
// locator matched; a successful resolution never carries an empty string.
func (r *Resolver) Field(doc *Document, field string) (string, bool) {
	for _, loc := range r.locators.Field(field) {
		node := loc.first(doc.root)
		if node == nil {
			continue
		}
		value := strings.TrimSpace(loc.value(node))
		if value != "" {
			return value, true
		}
	}
	return "", false
}

// FieldHTML returns the outer HTML of the first element a field's locators
// match, for fields whose markup matters downstream (description rendering).
func (r *Resolver) FieldHTML(doc *Document, field string) (string, bool) {
	for _, loc := range r.locators.Field(field) {
		node := loc.first(doc.root)
		if node == nil {
			continue
		}
		if strings.TrimSpace(htmlquery.InnerText(node)) == "" {
			continue
		}
		var buf bytes.Buffer
		if err := html.Render(&buf, node); err != nil {
			continue
		}
		return buf.String(), true
	}
	return "", false
}

// FieldAll returns every value matched by the first locator that yields any,
// deduplicated and (for URL-shaped values) resolved against the document
// base. Used for multi-valued fields such as images.
func (r *Resolver) FieldAll(doc *Document, field string) ([]string, bool) {
	for _, loc := range r.locators.Field(field) {
		nodes := loc.all(doc.root)
		if len(nodes) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(nodes))
		values := make([]string, 0, len(nodes))
		for _, n := range nodes {
			value := strings.TrimSpace(loc.value(n))
			if value == "" {
				continue
			}
			value = doc.absolutize(value)
			if _, dup := seen[value]; dup {
				continue
			}
			seen[value] = struct{}{}
			values = append(values, value)
		}
		if len(values) > 0 {
			return values, true
		}
	}
	return nil, false
}

// FieldPairs resolves a field whose locators match label/value rows (spec
// tables). Rows with <th>/<td> (or two <td>) children split on the cells;
// plain rows split on the first ":".
func (r *Resolver) FieldPairs(doc *Document, field string) (map[string]string, bool) {
	for _, loc := range r.locators.Field(field) {
		nodes := loc.all(doc.root)
		if len(nodes) == 0 {
			continue
		}
		pairs := make(map[string]string, len(nodes))
		for _, n := range nodes {
			label, value := splitPair(n)
			if label != "" && value != "" {
				pairs[label] = value
			}
		}
		if len(pairs) > 0 {
			return pairs, true
		}
	}
	return nil, false
}

// first returns the first node matched by the locator, or nil.
func (l Locator) first(root *html.Node) *html.Node {
	if l.XPath != nil {
		return htmlquery.QuerySelector(root, l.XPath)
	}
	return cascadia.Query(root, l.CSS)
}

// all returns every node matched by the locator.
func (l Locator) all(root *html.Node) []*html.Node {
	if l.XPath != nil {
		return htmlquery.QuerySelectorAll(root, l.XPath)
	}
	return cascadia.QueryAll(root, l.CSS)
}

// value reads the text (or the configured attribute) of a matched node.
func (l Locator) value(node *html.Node) string {
	if l.Attr != "" {
		return htmlquery.SelectAttr(node, l.Attr)
	}
	return htmlquery.InnerText(node)
}

func (d *Document) absolutize(value string) string {
	if d.base == nil {
		return value
	}
	resolved, err := d.base.Parse(value)
	if err != nil {
		return value
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return value
	}
	return resolved.String()
}

// splitPair extracts (label, value) from a spec row node.
func splitPair(row *html.Node) (string, string) {
	var cells []string
	for c := row.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.Data {
		case "th", "td", "span", "div":
			cells = append(cells, strings.TrimSpace(htmlquery.InnerText(c)))
		}
	}
	if len(cells) >= 2 && cells[0] != "" {
		return cells[0], strings.Join(nonEmpty(cells[1:]), " ")
	}

	text := strings.TrimSpace(htmlquery.InnerText(row))
	if label, value, found := strings.Cut(text, ":"); found {
		return strings.TrimSpace(label), strings.TrimSpace(value)
	}
	return "", ""
}

func nonEmpty(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
