package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nasalciuc/darwinscrape/extract"
	"github.com/nasalciuc/darwinscrape/models"
)

// ThrottleFunc receives throttling errors (429, challenge pages) observed
// during extraction. The batch scheduler wires the rate governor in here.
type ThrottleFunc func(err error)

// GateFunc blocks until the rate governor admits one outbound request. The
// orchestrator calls it before every method attempt, so escalating through
// the chain is paced the same as any other fetch.
type GateFunc func(ctx context.Context) error

// Orchestrator runs the method fallback chain for a single URL: ranked
// methods are tried in order, each attempt is recorded in the registry, and
// the first record carrying every required field wins. Safe for concurrent
// use by the batch workers.
type Orchestrator struct {
	engines    map[models.Method]Engine
	registry   *Registry
	builder    *extract.Builder
	timeout    time.Duration
	gate       GateFunc
	onThrottle ThrottleFunc

	// dynamicHint flips to true once a static fetch returns markup missing
	// required fields, which on darwin.md means the page is rendered
	// client-side. Rank then biases browser methods upward.
	dynamicHint atomic.Bool
}

// NewOrchestrator assembles the fallback chain. attemptTimeout bounds each
// single method attempt; gate and onThrottle may be nil.
func NewOrchestrator(engines []Engine, registry *Registry, builder *extract.Builder, attemptTimeout time.Duration, gate GateFunc, onThrottle ThrottleFunc) *Orchestrator {
	byMethod := make(map[models.Method]Engine, len(engines))
	for _, e := range engines {
		byMethod[e.Name()] = e
	}
	return &Orchestrator{
		engines:    byMethod,
		registry:   registry,
		builder:    builder,
		timeout:    attemptTimeout,
		gate:       gate,
		onThrottle: onThrottle,
	}
}

// Extract tries each available method once, best-ranked first, until one
// yields a record with all required fields. preferred pins the first method
// to try; MethodAuto defers entirely to the registry ranking.
//
// A fetch that succeeds but misses required fields counts as a failed attempt
// and the chain continues. Success means every required field resolved; a
// chain that exhausts without one yields an ExtractionFailure, never a
// partial record with a nil error.
func (o *Orchestrator) Extract(ctx context.Context, pageURL string, preferred models.Method) (*models.ProductRecord, []models.ExtractionAttempt, error) {
	chain := o.chain(preferred)

	var (
		attempts      []models.ExtractionAttempt
		attemptErrors []models.AttemptError
	)

	for _, method := range chain {
		eng, ok := o.engines[method]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, attempts, err
		}
		if o.gate != nil {
			if err := o.gate(ctx); err != nil {
				return nil, attempts, err
			}
		}

		started := time.Now()
		record, missing, err := o.attempt(ctx, eng, pageURL)
		attempt := models.ExtractionAttempt{
			URL:       pageURL,
			Method:    method,
			StartedAt: started,
			Duration:  time.Since(started),
		}

		switch {
		case err == nil && len(missing) == 0:
			attempt.Success = true
			attempts = append(attempts, attempt)
			o.registry.RecordOutcome(attempt)
			return record, attempts, nil

		case err == nil:
			// Fetched fine but the markup lacked required fields.
			fieldErr := models.NewScrapeError(models.ErrCodeFieldMissing,
				"required fields missing: "+joinFields(missing), nil)
			attempt.Error = fieldErr.Error()
			if method == models.MethodStaticParse {
				o.dynamicHint.Store(true)
			}
			attemptErrors = append(attemptErrors, models.AttemptError{Method: method, Error: attempt.Error})

		default:
			attempt.Error = err.Error()
			attemptErrors = append(attemptErrors, models.AttemptError{Method: method, Error: attempt.Error})
			if models.IsThrottling(err) && o.onThrottle != nil {
				o.onThrottle(err)
			}
			if code := errorCode(err); code == models.ErrCodeNotFound {
				// A 404 is permanent; no browser will render it into a
				// product page.
				attempts = append(attempts, attempt)
				o.registry.RecordOutcome(attempt)
				return nil, attempts, &models.ExtractionFailure{
					URL:      pageURL,
					Attempts: attemptErrors,
					Code:     models.ErrCodeNotFound,
				}
			}
		}

		attempts = append(attempts, attempt)
		o.registry.RecordOutcome(attempt)
		slog.Debug("method failed, escalating",
			"url", pageURL,
			"method", method,
			"error", attempt.Error)
	}

	return nil, attempts, &models.ExtractionFailure{
		URL:      pageURL,
		Attempts: attemptErrors,
		Code:     models.ErrCodeAllMethodsFailed,
	}
}

// attempt runs one engine with the per-attempt timeout and builds a record
// from the fetched markup.
func (o *Orchestrator) attempt(ctx context.Context, eng Engine, pageURL string) (*models.ProductRecord, []string, error) {
	attemptCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	result, err := eng.Fetch(attemptCtx, &FetchRequest{URL: pageURL, Timeout: o.timeout})
	if err != nil {
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, nil, models.NewScrapeError(models.ErrCodeTimeout, "attempt timed out", err)
		}
		return nil, nil, err
	}

	finalURL := result.FinalURL
	if finalURL == "" {
		finalURL = pageURL
	}
	record, missing := o.builder.Build(result.HTML, finalURL, result.Title, eng.Name())
	return record, missing, nil
}

// chain orders the methods for one URL: the preferred method first when
// pinned, the registry ranking for the rest.
func (o *Orchestrator) chain(preferred models.Method) []models.Method {
	ranked := o.registry.Rank(o.dynamicHint.Load())
	if preferred == models.MethodAuto || preferred == "" {
		return ranked
	}

	chain := make([]models.Method, 0, len(ranked))
	chain = append(chain, preferred)
	for _, m := range ranked {
		if m != preferred {
			chain = append(chain, m)
		}
	}
	return chain
}

func errorCode(err error) string {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func joinFields(fields []string) string {
	return strings.Join(fields, ", ")
}
