package engine

import (
	"context"
	"time"

	"github.com/nasalciuc/darwinscrape/models"
)

// Engine is one concrete extraction method's fetch implementation.
type Engine interface {
	// Name returns the method this engine implements.
	Name() models.Method

	// Fetch retrieves the page content for the given request.
	Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error)
}

// FetchRequest contains everything an engine needs to fetch a page.
type FetchRequest struct {
	URL     string
	Headers map[string]string
	Timeout time.Duration
	Stealth bool
}

// FetchResult is the output of a successful engine fetch.
type FetchResult struct {
	HTML       string
	Title      string
	StatusCode int
	FinalURL   string
	Method     models.Method
}
