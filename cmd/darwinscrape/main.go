package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nasalciuc/darwinscrape/api"
	"github.com/nasalciuc/darwinscrape/batch"
	"github.com/nasalciuc/darwinscrape/cache"
	"github.com/nasalciuc/darwinscrape/config"
	"github.com/nasalciuc/darwinscrape/engine"
	"github.com/nasalciuc/darwinscrape/extract"
	"github.com/nasalciuc/darwinscrape/metrics"
	"github.com/nasalciuc/darwinscrape/models"
	"github.com/nasalciuc/darwinscrape/pipeline"
	"github.com/nasalciuc/darwinscrape/quality"
	"github.com/nasalciuc/darwinscrape/ratelimit"
	"github.com/nasalciuc/darwinscrape/scraper"
	"github.com/nasalciuc/darwinscrape/sitemap"
	"github.com/nasalciuc/darwinscrape/webhook"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func main() {
	os.Exit(run())
}

func run() int {
	// ── 1. Configuration: env defaults, flags override ──────────────
	cfg := config.Load()

	urlsFile := flag.String("urls", "", "file with product URLs, one per line")
	categoryURL := flag.String("category", "", "category page to discover product links from")
	flag.StringVar(&cfg.Sitemap.URL, "sitemap", cfg.Sitemap.URL, "sitemap URL for product discovery")
	flag.IntVar(&cfg.Batch.Workers, "workers", cfg.Batch.Workers, "initial worker count")
	flag.IntVar(&cfg.Batch.MaxURLs, "max-urls", cfg.Batch.MaxURLs, "cap on queue size (0 = unlimited)")
	flag.DurationVar(&cfg.Governor.DelayLow, "delay-low", cfg.Governor.DelayLow, "lower bound of the inter-request delay")
	flag.DurationVar(&cfg.Governor.DelayHigh, "delay-high", cfg.Governor.DelayHigh, "upper bound of the inter-request delay")
	flag.StringVar(&cfg.Scraper.PreferredMethod, "method", cfg.Scraper.PreferredMethod, "extraction method: auto, static-parse, browser, browser-stealth")
	flag.StringVar(&cfg.Output.RecordFile, "output", cfg.Output.RecordFile, "product record output file")
	flag.StringVar(&cfg.Output.Format, "format", cfg.Output.Format, "output format: json, csv, or dual")
	flag.StringVar(&cfg.Output.SummaryFile, "summary", cfg.Output.SummaryFile, "session summary output file")
	flag.Float64Var(&cfg.Quality.RevisionThreshold, "quality-threshold", cfg.Quality.RevisionThreshold, "overall score below this gets a failed verdict")
	locatorsFile := flag.String("locators", "", "field locator YAML (empty = embedded darwin.md defaults)")
	flag.BoolVar(&cfg.Status.Enabled, "status", cfg.Status.Enabled, "serve status endpoints while running")
	flag.Parse()

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		return 1
	}

	// ── 2. Structured logging ───────────────────────────────────────
	initLogger(cfg.Log)
	slog.Info("darwinscrape starting",
		"workers", cfg.Batch.Workers,
		"method", cfg.Scraper.PreferredMethod,
		"format", cfg.Output.Format,
	)

	preferred, err := models.ParseMethod(cfg.Scraper.PreferredMethod)
	if err != nil {
		slog.Error("invalid method", "error", err)
		return 1
	}

	// ── 3. URL queue: file, args, category page, or sitemap ─────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	urls, err := collectURLs(ctx, cfg, *urlsFile, *categoryURL, flag.Args())
	if err != nil {
		slog.Error("url collection failed", "error", err)
		return 1
	}
	if len(urls) == 0 {
		slog.Error("no product URLs to process")
		return 1
	}

	// ── 4. Extraction stack ─────────────────────────────────────────
	locators, err := extract.LoadLocators(*locatorsFile)
	if err != nil {
		slog.Error("failed to load locators", "error", err)
		return 1
	}
	builder := extract.NewBuilder(locators)

	registry := engine.NewRegistry(cfg.Registry.StatsFile)
	if err := registry.Load(); err != nil {
		slog.Warn("method stats unreadable, starting cold", "error", err)
	}

	sc, err := scraper.NewScraper(cfg.Browser, cfg.Scraper)
	if err != nil {
		slog.Error("failed to initialise browser", "error", err)
		return 1
	}
	defer sc.Close()

	// The scraper's Fetch satisfies the rod callback directly; engine/ never
	// imports scraper/, which keeps the dependency one-way.
	detector := engine.NewChallengeDetector()
	engines := []engine.Engine{
		engine.NewHTTPEngine(userAgent, detector),
		engine.NewRodEngine(sc.Fetch, false, detector),
		engine.NewRodEngine(sc.Fetch, true, detector),
	}

	m := metrics.New()
	governor := ratelimit.NewGovernor(
		cfg.Governor.DelayLow,
		cfg.Governor.DelayHigh,
		cfg.Governor.MaxBackoffMultiplier,
		cfg.Governor.Cooldown,
	)
	onThrottle := func(err error) {
		governor.ReportResponse(err)
		m.ObserveCooldown()
	}
	orch := engine.NewOrchestrator(engines, registry, builder, cfg.Scraper.AttemptTimeout, governor.Wait, onThrottle)

	records, err := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	if err != nil {
		slog.Error("failed to initialise record cache", "error", err)
		return 1
	}

	writer, err := pipeline.New(cfg.Output.Format, cfg.Output.RecordFile)
	if err != nil {
		slog.Error("failed to open output", "error", err)
		return 1
	}

	scorer := quality.NewScorer(cfg.Quality)
	scheduler := batch.NewScheduler(cfg.Batch, orch, governor, scorer, writer, records, m, preferred)

	// ── 5. Optional status server ───────────────────────────────────
	var statusSrv *http.Server
	if cfg.Status.Enabled {
		router := api.NewRouter(api.Deps{
			Scheduler: scheduler,
			Registry:  registry,
			Scraper:   sc,
			Metrics:   m,
			StartTime: time.Now(),
		})
		statusSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Status.Host, cfg.Status.Port),
			Handler: router,
		}
		go func() {
			slog.Info("status server listening", "addr", statusSrv.Addr)
			if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("status server error", "error", err)
			}
		}()
	}

	// ── 6. Run the session ──────────────────────────────────────────
	summary, runErr := scheduler.Run(ctx, urls)

	// ── 7. Persist outputs ──────────────────────────────────────────
	if err := writer.Close(); err != nil {
		slog.Error("closing record output failed", "error", err)
	}
	if err := registry.Save(); err != nil {
		slog.Error("persisting method stats failed", "error", err)
	}
	if err := pipeline.WriteSummary(cfg.Output.SummaryFile, summary); err != nil {
		slog.Error("writing session summary failed", "error", err)
	}

	if cfg.Webhook.URL != "" && summary.Status != models.SessionCanceled {
		webhook.DeliverWithRetry(cfg.Webhook.URL, cfg.Webhook.Secret, webhook.NewSessionEvent(summary))
	}

	if statusSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		statusSrv.Shutdown(shutdownCtx)
		cancel()
	}

	// ── 8. Exit code ────────────────────────────────────────────────
	slog.Info("session finished",
		"status", summary.Status,
		"processed", summary.Processed,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
	)
	switch {
	case runErr == nil:
		return 0
	case errors.Is(runErr, batch.ErrSessionAborted):
		return 2
	case errors.Is(runErr, context.Canceled):
		// Operator-initiated stop is a normal exit.
		return 0
	default:
		slog.Error("session failed", "error", runErr)
		return 1
	}
}

// collectURLs assembles the queue: an explicit URL file or positional args
// win; otherwise a category page or the sitemap tree is crawled.
func collectURLs(ctx context.Context, cfg *config.Config, urlsFile, categoryURL string, args []string) ([]string, error) {
	if urlsFile != "" {
		return readURLsFile(urlsFile)
	}
	if len(args) > 0 {
		return args, nil
	}

	base, err := siteBase(cfg.Sitemap.URL)
	if err != nil {
		return nil, err
	}
	d := sitemap.New(base, cfg.Sitemap.FetchTimeout, slog.Default())

	if categoryURL != "" {
		return d.DiscoverCategory(ctx, categoryURL)
	}
	return d.Discover(ctx, cfg.Sitemap.URL)
}

func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return urls, nil
}

// siteBase reduces a sitemap URL to its origin, e.g. "https://darwin.md".
func siteBase(sitemapURL string) (string, error) {
	u, err := url.Parse(sitemapURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid sitemap URL %q", sitemapURL)
	}
	return u.Scheme + "://" + u.Host, nil
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
