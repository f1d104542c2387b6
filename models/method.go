package models

import "fmt"

// Method identifies one concrete strategy for fetching and reading a product
// page. The set is closed: new strategies are added by defining a constant
// here and implementing the engine.Engine interface, never by dispatching on
// free-form strings.
type Method string

const (
	// MethodStaticParse fetches the page over plain HTTP (with a browser-like
	// TLS fingerprint) and parses the static HTML. Fastest, fails on pages
	// that need JavaScript rendering.
	MethodStaticParse Method = "static-parse"

	// MethodBrowser renders the page in a headless browser.
	MethodBrowser Method = "browser"

	// MethodBrowserStealth renders the page in a headless browser with
	// anti-automation-detection evasions injected before navigation.
	MethodBrowserStealth Method = "browser-stealth"

	// MethodAuto lets the registry pick the best-ranked method.
	MethodAuto Method = "auto"
)

// Methods lists the concrete (dispatchable) methods in their default order,
// fastest first. MethodAuto is a selection policy, not a concrete method, and
// is deliberately absent.
func Methods() []Method {
	return []Method{MethodStaticParse, MethodBrowser, MethodBrowserStealth}
}

// ParseMethod converts a user-supplied string into a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodStaticParse, MethodBrowser, MethodBrowserStealth, MethodAuto:
		return Method(s), nil
	case "":
		return MethodAuto, nil
	}
	return "", fmt.Errorf("unknown extraction method %q", s)
}

func (m Method) String() string { return string(m) }
