package extract

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
	"gopkg.in/yaml.v3"
)

// Semantic field names resolvable against a product document.
const (
	FieldTitle       = "title"
	FieldPrice       = "price"
	FieldDescription = "description"
	FieldImages      = "images"
	FieldStock       = "stock"
	FieldRating      = "rating"
	FieldSKU         = "sku"
	FieldBrand       = "brand"
	FieldCategory    = "category"
	FieldSpecs       = "specs"
)

// Locator is one locator expression for a semantic field. Expressions use a
// scheme prefix: "css:" (default when omitted) or "xpath:". CSS expressions
// may carry an "@attr" suffix to read an attribute instead of the element
// text; XPath expressions address attributes natively (//img/@src).
type Locator struct {
	raw   string
	CSS   cascadia.Sel
	XPath *xpath.Expr
	Attr  string
}

// LocatorSet is the ordered per-field locator configuration. Static at
// runtime; loaded once from YAML (or the embedded darwin.md defaults).
type LocatorSet struct {
	fields map[string][]Locator
}

//go:embed darwin.yaml
var defaultLocatorYAML []byte

// DefaultLocators returns the embedded darwin.md locator tables.
func DefaultLocators() (*LocatorSet, error) {
	return parseLocatorYAML(defaultLocatorYAML)
}

// LoadLocators reads a locator YAML file from disk. An empty path returns
// the embedded defaults.
func LoadLocators(path string) (*LocatorSet, error) {
	if path == "" {
		return DefaultLocators()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read locator file: %w", err)
	}
	return parseLocatorYAML(data)
}

// Field returns the ordered locators for a semantic field. Unknown fields
// yield an empty slice.
func (ls *LocatorSet) Field(name string) []Locator {
	return ls.fields[name]
}

func parseLocatorYAML(data []byte) (*LocatorSet, error) {
	var raw struct {
		Fields map[string][]string `yaml:"fields"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse locator yaml: %w", err)
	}
	if len(raw.Fields) == 0 {
		return nil, fmt.Errorf("locator yaml defines no fields")
	}

	ls := &LocatorSet{fields: make(map[string][]Locator, len(raw.Fields))}
	for field, exprs := range raw.Fields {
		locs := make([]Locator, 0, len(exprs))
		for _, expr := range exprs {
			loc, err := compileLocator(expr)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field, err)
			}
			locs = append(locs, loc)
		}
		ls.fields[field] = locs
	}
	return ls, nil
}

// compileLocator parses and compiles one locator expression. Compiling at
// load time means a bad selector fails the session at startup instead of
// silently skipping a field on every page.
func compileLocator(expr string) (Locator, error) {
	loc := Locator{raw: expr}

	switch {
	case strings.HasPrefix(expr, "xpath:"):
		compiled, err := xpath.Compile(strings.TrimPrefix(expr, "xpath:"))
		if err != nil {
			return loc, fmt.Errorf("compile xpath %q: %w", expr, err)
		}
		loc.XPath = compiled
		return loc, nil

	default:
		sel := strings.TrimPrefix(expr, "css:")
		// "@attr" suffix reads an attribute instead of element text.
		if at := strings.LastIndex(sel, "@"); at > 0 {
			loc.Attr = sel[at+1:]
			sel = sel[:at]
		}
		compiled, err := cascadia.Parse(sel)
		if err != nil {
			return loc, fmt.Errorf("compile css %q: %w", expr, err)
		}
		loc.CSS = compiled
		return loc, nil
	}
}

func (l Locator) String() string { return l.raw }
