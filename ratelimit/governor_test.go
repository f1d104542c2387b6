package ratelimit

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nasalciuc/darwinscrape/models"
)

func throttleErr() error {
	return models.NewScrapeError(models.ErrCodeRateLimited, "server throttling (429)", nil)
}

func TestGovernor_MinimumSpacing(t *testing.T) {
	g := NewGovernor(50*time.Millisecond, 60*time.Millisecond, 8, 0)
	ctx := context.Background()

	const waiters = 4
	times := make([]time.Time, 0, waiters*2)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2; j++ {
				if err := g.Wait(ctx); err != nil {
					t.Errorf("Wait: %v", err)
					return
				}
				mu.Lock()
				times = append(times, time.Now())
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	// The shared limiter guarantees the minimum interval pairwise even
	// across goroutines. Allow a little scheduler slack.
	const slack = 15 * time.Millisecond
	for i := 1; i < len(times); i++ {
		if gap := times[i].Sub(times[i-1]); gap < 50*time.Millisecond-slack {
			t.Errorf("gap %d = %s, want >= ~50ms", i, gap)
		}
	}
}

func TestGovernor_BackoffDoublesAndCaps(t *testing.T) {
	g := NewGovernor(time.Millisecond, 2*time.Millisecond, 8, 0)

	for i, want := range []float64{2, 4, 8, 8} {
		g.ReportResponse(throttleErr())
		if got := g.Multiplier(); got != want {
			t.Errorf("after throttle %d: multiplier = %v, want %v", i+1, got, want)
		}
	}
	if g.Cooldowns() != 4 {
		t.Errorf("cooldowns = %d, want 4", g.Cooldowns())
	}
}

func TestGovernor_SuccessDecaysMultiplier(t *testing.T) {
	g := NewGovernor(time.Millisecond, 2*time.Millisecond, 8, 0)
	g.ReportResponse(throttleErr())
	g.ReportResponse(throttleErr())

	start := g.Multiplier()
	for i := 0; i < 50; i++ {
		g.ReportResponse(nil)
	}
	if got := g.Multiplier(); got != 1 {
		t.Errorf("multiplier = %v after sustained successes (started at %v), want 1", got, start)
	}
}

func TestGovernor_NonThrottlingErrorDoesNotBackOff(t *testing.T) {
	g := NewGovernor(time.Millisecond, 2*time.Millisecond, 8, 0)
	g.ReportResponse(models.NewScrapeError(models.ErrCodeNavigation, "tcp timeout", nil))

	if got := g.Multiplier(); got != 1 {
		t.Errorf("multiplier = %v, ordinary failures must not escalate backoff", got)
	}
	if g.Cooldowns() != 0 {
		t.Errorf("cooldowns = %d, want 0", g.Cooldowns())
	}
}

func TestGovernor_FailureDoesNotDecayMultiplier(t *testing.T) {
	g := NewGovernor(time.Millisecond, 2*time.Millisecond, 8, 0)
	g.SlowDown()
	if got := g.Multiplier(); got != 1.5 {
		t.Fatalf("multiplier = %v after SlowDown, want 1.5", got)
	}

	// Timeouts and parse errors are not evidence the server has calmed down.
	g.ReportResponse(models.NewScrapeError(models.ErrCodeNavigation, "tcp timeout", nil))
	if got := g.Multiplier(); got != 1.5 {
		t.Errorf("multiplier = %v after a failed fetch, backoff must hold at 1.5", got)
	}

	g.ReportResponse(nil)
	if got := g.Multiplier(); math.Abs(got-1.35) > 1e-9 {
		t.Errorf("multiplier = %v after a success, want decayed 1.35", got)
	}
}

func TestGovernor_CooldownBlocksWaiters(t *testing.T) {
	g := NewGovernor(time.Millisecond, 2*time.Millisecond, 8, 120*time.Millisecond)
	g.ReportResponse(throttleErr())

	if !g.InCooldown() {
		t.Fatal("cooldown window should be open")
	}

	start := time.Now()
	if err := g.Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("Wait returned after %s, cooldown should hold ~120ms", elapsed)
	}
}

func TestGovernor_WaitHonorsContext(t *testing.T) {
	g := NewGovernor(time.Millisecond, 2*time.Millisecond, 8, time.Minute)
	g.ReportResponse(throttleErr())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := g.Wait(ctx)
	if err == nil {
		t.Fatal("Wait should fail when the context expires mid-cooldown")
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("Wait did not return promptly on context expiry")
	}
}
