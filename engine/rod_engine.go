package engine

import (
	"context"

	"github.com/nasalciuc/darwinscrape/models"
)

// RodFetchFunc is the callback type that wraps the rod scraper logic.
// It is injected from main.go to avoid a circular import (engine/ -> scraper/).
type RodFetchFunc func(ctx context.Context, req *FetchRequest) (*FetchResult, error)

// RodEngine renders pages in a headless browser by delegating to the rod
// scraper via a callback. The forceStealth flag distinguishes the browser
// method from the browser-stealth method.
type RodEngine struct {
	fetchFunc    RodFetchFunc
	forceStealth bool
	method       models.Method
	challenge    *ChallengeDetector
}

// NewRodEngine creates a RodEngine.
//   - fetchFunc: callback that invokes the rod-based scraper (injected from main.go).
//   - forceStealth: when true, the engine always sets Stealth=true on requests.
func NewRodEngine(fetchFunc RodFetchFunc, forceStealth bool, detector *ChallengeDetector) *RodEngine {
	method := models.MethodBrowser
	if forceStealth {
		method = models.MethodBrowserStealth
	}
	return &RodEngine{
		fetchFunc:    fetchFunc,
		forceStealth: forceStealth,
		method:       method,
		challenge:    detector,
	}
}

func (e *RodEngine) Name() models.Method { return e.method }

func (e *RodEngine) Fetch(ctx context.Context, req *FetchRequest) (*FetchResult, error) {
	if e.fetchFunc == nil {
		return nil, models.NewScrapeError(models.ErrCodeInternal,
			string(e.method)+": fetch callback not configured", nil)
	}

	// Clone the request so we don't mutate the caller's copy.
	r := *req
	if e.forceStealth {
		r.Stealth = true
	}

	result, err := e.fetchFunc(ctx, &r)
	if err != nil {
		return nil, err
	}

	if e.challenge != nil && e.challenge.Detect(result.HTML) {
		return nil, models.NewScrapeError(models.ErrCodeChallenge,
			"bot-check interstitial rendered", nil)
	}

	result.Method = e.method
	return result, nil
}
