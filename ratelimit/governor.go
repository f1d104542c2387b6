// Package ratelimit implements the shared rate governor that paces all
// outbound page fetches. Workers never sleep on their own; every delay
// decision lives here so concurrency changes cannot accidentally multiply
// the request rate.
package ratelimit

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nasalciuc/darwinscrape/models"
)

const (
	backoffFactor = 2.0
	decayFactor   = 0.9
)

// Governor enforces a randomized per-request interval within [low, high],
// scaled by an adaptive backoff multiplier. Throttling signals (429,
// challenge pages) double the multiplier and open a cooldown window during
// which every caller blocks. Successful responses decay the multiplier back
// toward 1. Safe for concurrent use.
type Governor struct {
	limiter *rate.Limiter

	mu            sync.Mutex
	low           time.Duration
	high          time.Duration
	multiplier    float64
	maxMultiplier float64
	cooldown      time.Duration
	cooldownUntil time.Time
	cooldowns     int
}

// NewGovernor creates a Governor with the given delay bounds, backoff cap and
// cooldown window.
func NewGovernor(low, high time.Duration, maxMultiplier float64, cooldown time.Duration) *Governor {
	if low <= 0 {
		low = time.Millisecond
	}
	if high < low {
		high = low
	}
	if maxMultiplier < 1 {
		maxMultiplier = 1
	}
	return &Governor{
		limiter:       rate.NewLimiter(rate.Every(low), 1),
		low:           low,
		high:          high,
		multiplier:    1,
		maxMultiplier: maxMultiplier,
		cooldown:      cooldown,
	}
}

// Wait blocks until the caller may issue the next request: any active
// cooldown first, then the shared minimum interval, then a randomized jitter
// that spreads requests within the [low, high] band.
func (g *Governor) Wait(ctx context.Context) error {
	g.mu.Lock()
	pause := time.Until(g.cooldownUntil)
	jitterSpan := time.Duration(float64(g.high-g.low) * g.multiplier)
	g.mu.Unlock()

	if pause > 0 {
		if err := sleepCtx(ctx, pause); err != nil {
			return err
		}
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}

	if jitterSpan > 0 {
		jitter := time.Duration(rand.Int64N(int64(jitterSpan)))
		if err := sleepCtx(ctx, jitter); err != nil {
			return err
		}
	}
	return nil
}

// ReportResponse feeds one fetch outcome back into the governor. Throttling
// errors escalate the backoff and open the cooldown window. Only a successful
// fetch decays the multiplier; non-throttling failures (timeouts, parse
// errors) leave the backoff where it is, since an overloaded server often
// times out before it starts answering 429.
func (g *Governor) ReportResponse(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err != nil && models.IsThrottling(err) {
		prev := g.multiplier
		g.multiplier *= backoffFactor
		if g.multiplier > g.maxMultiplier {
			g.multiplier = g.maxMultiplier
		}
		g.cooldownUntil = time.Now().Add(g.cooldown)
		g.cooldowns++
		g.applyLimitLocked()
		slog.Warn("throttling detected, backing off",
			"multiplier", g.multiplier,
			"previous", prev,
			"cooldown", g.cooldown,
		)
		return
	}

	if err == nil && g.multiplier > 1 {
		g.multiplier *= decayFactor
		if g.multiplier < 1 {
			g.multiplier = 1
		}
		g.applyLimitLocked()
	}
}

// applyLimitLocked re-derives the shared minimum interval from the current
// multiplier. Callers hold g.mu.
func (g *Governor) applyLimitLocked() {
	g.limiter.SetLimit(rate.Every(time.Duration(float64(g.low) * g.multiplier)))
}

// SlowDown nudges the backoff multiplier up without opening a cooldown
// window. The batch monitor calls this when the trailing error rate spikes
// for reasons other than explicit throttling signals.
func (g *Governor) SlowDown() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.multiplier *= 1.5
	if g.multiplier > g.maxMultiplier {
		g.multiplier = g.maxMultiplier
	}
	g.applyLimitLocked()
}

// Multiplier returns the current backoff multiplier.
func (g *Governor) Multiplier() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.multiplier
}

// Cooldowns returns how many cooldown windows this governor has opened.
func (g *Governor) Cooldowns() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cooldowns
}

// InCooldown reports whether a cooldown window is currently open.
func (g *Governor) InCooldown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Now().Before(g.cooldownUntil)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
