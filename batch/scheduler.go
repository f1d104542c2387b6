// Package batch runs extraction sessions: a bounded worker pool draining a
// URL queue through the fallback orchestrator, with adaptive concurrency and
// a systemic-failure circuit breaker.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nasalciuc/darwinscrape/cache"
	"github.com/nasalciuc/darwinscrape/config"
	"github.com/nasalciuc/darwinscrape/metrics"
	"github.com/nasalciuc/darwinscrape/models"
	"github.com/nasalciuc/darwinscrape/quality"
	"github.com/nasalciuc/darwinscrape/ratelimit"
)

// ErrSessionAborted marks a session stopped by the consecutive-failure
// circuit breaker rather than by draining its queue. Callers distinguish
// this from per-URL failures via errors.Is.
var ErrSessionAborted = errors.New("session aborted: consecutive failure streak")

// maxReportedFailures caps the failure list carried in the summary so a
// large broken batch does not balloon the summary file.
const maxReportedFailures = 100

// gateProbe is how long a gated (parked) worker sleeps before re-checking
// whether the monitor has grown the effective worker count again.
const gateProbe = 200 * time.Millisecond

// Extractor runs the full fallback chain for one URL. Implemented by
// engine.Orchestrator.
type Extractor interface {
	Extract(ctx context.Context, url string, preferred models.Method) (*models.ProductRecord, []models.ExtractionAttempt, error)
}

// RecordWriter receives each scored record as it is produced. Implemented by
// the pipeline writers.
type RecordWriter interface {
	WriteRecord(rec *models.ProductRecord) error
}

// Scheduler drains a URL queue through the extractor with adaptive
// concurrency. One Scheduler runs one session at a time.
type Scheduler struct {
	cfg       config.BatchConfig
	extractor Extractor
	governor  *ratelimit.Governor
	scorer    *quality.Scorer
	writer    RecordWriter       // optional
	records   *cache.RecordCache // optional
	metrics   *metrics.Metrics   // nil-safe
	preferred models.Method

	effective atomic.Int32
	aborted   atomic.Bool

	mu         sync.Mutex
	stopFn     context.CancelFunc
	window     []bool // trailing outcomes, true = failure
	windowPos  int
	windowFill int
	streak     int // consecutive total failures
	lowSamples int // consecutive low-error monitor samples
	processed  int
	succeeded  int
	failed     int
	methods    map[models.Method]*models.MethodStats
	verdicts   map[models.Verdict]int
	failures   []models.URLFailure
	startedAt  time.Time
}

// NewScheduler wires a scheduler. writer and records may be nil; m may be nil
// to disable instrumentation.
func NewScheduler(cfg config.BatchConfig, extractor Extractor, governor *ratelimit.Governor, scorer *quality.Scorer, writer RecordWriter, records *cache.RecordCache, m *metrics.Metrics, preferred models.Method) *Scheduler {
	s := &Scheduler{
		cfg:       cfg,
		extractor: extractor,
		governor:  governor,
		scorer:    scorer,
		writer:    writer,
		records:   records,
		metrics:   m,
		preferred: preferred,
		window:    make([]bool, cfg.ErrorWindow),
		methods:   make(map[models.Method]*models.MethodStats),
		verdicts:  make(map[models.Verdict]int),
	}
	s.effective.Store(int32(cfg.Workers))
	return s
}

// Run processes urls until the queue drains, the circuit breaker trips, or
// ctx is canceled. The summary is returned in every case; err is nil for a
// completed session, ErrSessionAborted for a systemic abort, and the context
// error for cancellation.
func (s *Scheduler) Run(ctx context.Context, urls []string) (*models.SessionSummary, error) {
	queue := dedupe(urls)
	if s.cfg.MaxURLs > 0 && len(queue) > s.cfg.MaxURLs {
		queue = queue[:s.cfg.MaxURLs]
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	s.mu.Lock()
	s.startedAt = time.Now()
	s.stopFn = stop
	s.mu.Unlock()

	slog.Info("session starting",
		"urls", len(queue),
		"workers", s.cfg.Workers,
		"method", s.preferred,
	)

	jobs := make(chan string, len(queue))
	for _, u := range queue {
		jobs <- u
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.MaxWorkers; i++ {
		wg.Add(1)
		go s.worker(runCtx, i, jobs, &wg)
	}

	monitorDone := make(chan struct{})
	go s.monitor(runCtx, monitorDone)

	wg.Wait()
	stop()
	<-monitorDone

	switch {
	case s.aborted.Load():
		summary := s.summary(models.SessionAborted)
		return summary, ErrSessionAborted
	case ctx.Err() != nil:
		return s.summary(models.SessionCanceled), ctx.Err()
	default:
		return s.summary(models.SessionCompleted), nil
	}
}

// worker pulls URLs until the queue drains or the session stops. Workers
// whose index is at or above the effective count park instead of pulling, so
// the monitor can shrink concurrency without killing goroutines.
func (s *Scheduler) worker(ctx context.Context, id int, jobs <-chan string, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		if !s.admit(ctx, id, jobs) {
			return
		}

		select {
		case <-ctx.Done():
			return
		case pageURL, ok := <-jobs:
			if !ok {
				return
			}
			s.process(ctx, pageURL)
		}
	}
}

// admit blocks while the worker is gated out by the effective count. The
// queue is preloaded and closed before workers start, so an empty jobs
// channel means there is no work left and the parked worker can exit.
func (s *Scheduler) admit(ctx context.Context, id int, jobs <-chan string) bool {
	for id >= int(s.effective.Load()) {
		if len(jobs) == 0 {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(gateProbe):
		}
	}
	return ctx.Err() == nil
}

// process runs one URL end to end: cache, extraction, scoring, writing, and
// outcome accounting. Governor pacing happens inside the extractor, before
// each individual fetch of the fallback chain, so cache hits are the only
// path that skips it.
func (s *Scheduler) process(ctx context.Context, pageURL string) {
	if s.records != nil {
		if rec, ok := s.records.Get(pageURL); ok {
			s.metrics.ObserveCacheHit()
			s.recordSuccess(rec, true)
			return
		}
	}

	rec, attempts, err := s.extractor.Extract(ctx, pageURL, s.preferred)
	s.accountAttempts(attempts)
	s.governor.ReportResponse(err)

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.recordFailure(pageURL, err)
		return
	}

	rec.Quality = &models.QualityScore{}
	*rec.Quality = s.scorer.Score(rec)

	if s.writer != nil {
		if werr := s.writer.WriteRecord(rec); werr != nil {
			slog.Error("record write failed", "url", pageURL, "error", werr)
		}
	}
	if s.records != nil {
		s.records.Add(pageURL, rec)
	}
	s.recordSuccess(rec, false)
}

func (s *Scheduler) recordSuccess(rec *models.ProductRecord, fromCache bool) {
	s.metrics.ObserveRecord(verdictOf(rec))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	s.succeeded++
	s.streak = 0
	s.verdicts[verdictOf(rec)]++
	if !fromCache {
		s.pushOutcomeLocked(false)
	}
}

func (s *Scheduler) recordFailure(pageURL string, err error) {
	code := failureCode(err)
	s.metrics.ObserveFailure(code)

	s.mu.Lock()
	s.processed++
	s.failed++
	s.streak++
	streak := s.streak
	s.pushOutcomeLocked(true)
	if len(s.failures) < maxReportedFailures {
		s.failures = append(s.failures, models.URLFailure{URL: pageURL, Reason: err.Error()})
	}
	s.mu.Unlock()

	slog.Warn("url failed terminally",
		"url", pageURL,
		"code", code,
		"streak", streak,
	)

	if streak >= s.cfg.FatalStreak && s.aborted.CompareAndSwap(false, true) {
		slog.Error("consecutive failure streak reached, aborting session",
			"streak", streak,
			"threshold", s.cfg.FatalStreak,
		)
		s.mu.Lock()
		stop := s.stopFn
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
	}
}

// accountAttempts folds the per-method attempt log into the session
// breakdown and the prometheus collectors.
func (s *Scheduler) accountAttempts(attempts []models.ExtractionAttempt) {
	s.mu.Lock()
	for _, a := range attempts {
		st := s.methods[a.Method]
		if st == nil {
			st = &models.MethodStats{}
			s.methods[a.Method] = st
		}
		ms := float64(a.Duration.Milliseconds())
		st.AvgMillis = (st.AvgMillis*float64(st.Attempts) + ms) / float64(st.Attempts+1)
		st.Attempts++
		if a.Success {
			st.Successes++
		}
	}
	s.mu.Unlock()

	for _, a := range attempts {
		s.metrics.ObserveAttempt(a.Method, a.Success, a.Duration)
	}
}

// pushOutcomeLocked appends one outcome to the trailing window ring.
// Callers hold s.mu.
func (s *Scheduler) pushOutcomeLocked(failure bool) {
	s.window[s.windowPos] = failure
	s.windowPos = (s.windowPos + 1) % len(s.window)
	if s.windowFill < len(s.window) {
		s.windowFill++
	}
}

// errorRate returns the failure fraction over the trailing window and how
// many outcomes the window holds.
func (s *Scheduler) errorRate() (float64, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.windowFill == 0 {
		return 0, 0
	}
	failures := 0
	for i := 0; i < s.windowFill; i++ {
		if s.window[i] {
			failures++
		}
	}
	return float64(failures) / float64(s.windowFill), s.windowFill
}

// monitor samples the trailing error rate and adjusts the effective worker
// count: spikes halve concurrency and slow the governor, sustained calm
// grows it back one worker at a time. It also trips the session stop once
// the circuit breaker fires.
func (s *Scheduler) monitor(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	s.metrics.SetEffectiveWorkers(int(s.effective.Load()))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.aborted.Load() {
			// Workers observe ctx via the parent cancel in Run; nothing to
			// sample once the breaker has tripped.
			return
		}

		rate, samples := s.errorRate()
		if samples < s.cfg.ErrorWindow/2 {
			continue
		}

		current := int(s.effective.Load())
		switch {
		case rate >= s.cfg.HighErrorRate && current > s.cfg.MinWorkers:
			next := current / 2
			if next < s.cfg.MinWorkers {
				next = s.cfg.MinWorkers
			}
			s.effective.Store(int32(next))
			s.governor.SlowDown()
			s.mu.Lock()
			s.lowSamples = 0
			s.mu.Unlock()
			slog.Warn("error rate high, shrinking workers",
				"rate", rate,
				"workers", next,
			)
			s.metrics.SetEffectiveWorkers(next)

		case rate <= s.cfg.LowErrorRate && current < s.cfg.MaxWorkers:
			s.mu.Lock()
			s.lowSamples++
			grow := s.lowSamples >= 3
			if grow {
				s.lowSamples = 0
			}
			s.mu.Unlock()
			if grow {
				s.effective.Store(int32(current + 1))
				slog.Info("error rate low, growing workers", "workers", current+1)
				s.metrics.SetEffectiveWorkers(current + 1)
			}

		default:
			s.mu.Lock()
			s.lowSamples = 0
			s.mu.Unlock()
		}
	}
}

// Snapshot reports live session progress for the status endpoint.
type Snapshot struct {
	Processed        int     `json:"processed"`
	Succeeded        int     `json:"succeeded"`
	Failed           int     `json:"failed"`
	EffectiveWorkers int     `json:"effective_workers"`
	ErrorRate        float64 `json:"error_rate"`
	Aborted          bool    `json:"aborted"`
}

func (s *Scheduler) Snapshot() Snapshot {
	rate, _ := s.errorRate()
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Processed:        s.processed,
		Succeeded:        s.succeeded,
		Failed:           s.failed,
		EffectiveWorkers: int(s.effective.Load()),
		ErrorRate:        rate,
		Aborted:          s.aborted.Load(),
	}
}

func (s *Scheduler) summary(status models.SessionStatus) *models.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	finished := time.Now()
	summary := &models.SessionSummary{
		Status:      status,
		StartedAt:   s.startedAt,
		FinishedAt:  finished,
		DurationSec: finished.Sub(s.startedAt).Seconds(),
		Processed:   s.processed,
		Succeeded:   s.succeeded,
		Failed:      s.failed,
		Methods:     make(map[models.Method]*models.MethodStats, len(s.methods)),
		Quality:     make(map[models.Verdict]int, len(s.verdicts)),
		Failures:    append([]models.URLFailure(nil), s.failures...),
	}
	if s.processed > 0 {
		summary.SuccessRate = float64(s.succeeded) / float64(s.processed)
	}
	for m, st := range s.methods {
		clone := *st
		summary.Methods[m] = &clone
	}
	for v, n := range s.verdicts {
		summary.Quality[v] = n
	}
	return summary
}

// dedupe removes repeated URLs while preserving first-seen order, so a URL
// is extracted at most once per session.
func dedupe(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u == "" {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func verdictOf(rec *models.ProductRecord) models.Verdict {
	if rec.Quality == nil {
		return models.VerdictFailed
	}
	return rec.Quality.Verdict
}

func failureCode(err error) string {
	var failure *models.ExtractionFailure
	if errors.As(err, &failure) {
		return failure.Code
	}
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	return models.ErrCodeInternal
}
