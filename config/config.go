package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Browser  BrowserConfig
	Scraper  ScraperConfig
	Governor GovernorConfig
	Batch    BatchConfig
	Quality  QualityConfig
	Output   OutputConfig
	Registry RegistryConfig
	Cache    CacheConfig
	Sitemap  SitemapConfig
	Status   StatusConfig
	Webhook  WebhookConfig
	Log      LogConfig
}

// BrowserConfig controls the Rod browser instance used by the browser methods.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string
}

// ScraperConfig controls per-attempt fetch behavior.
type ScraperConfig struct {
	// AttemptTimeout is the hard deadline for one (URL, method) attempt.
	AttemptTimeout time.Duration // default: 30s

	// HTTPTimeout is the deadline for the static-parse engine alone.
	HTTPTimeout time.Duration // default: 10s

	// BlockedResourceTypes lists browser resource types to block.
	// default: ["Image", "Stylesheet", "Font", "Media"]
	BlockedResourceTypes []string

	// PreferredMethod biases the fallback chain ("auto" lets the registry
	// rank methods by historical performance).
	PreferredMethod string // default: "auto"
}

// GovernorConfig controls the shared rate governor.
type GovernorConfig struct {
	// DelayLow / DelayHigh bound the randomized inter-request interval.
	DelayLow  time.Duration // default: 500ms
	DelayHigh time.Duration // default: 2s

	// MaxBackoffMultiplier caps the exponential backoff applied after
	// throttling signals.
	MaxBackoffMultiplier float64 // default: 8.0

	// Cooldown is the window during which all callers block after a
	// throttling signal.
	Cooldown time.Duration // default: 30s
}

// BatchConfig controls the batch scheduler and its adaptive worker scaling.
type BatchConfig struct {
	// Workers is the initial worker count.
	Workers int // default: 5

	// MinWorkers / MaxWorkers bound the adaptive scaling.
	MinWorkers int // default: 1
	MaxWorkers int // default: 10

	// ErrorWindow is how many trailing outcomes feed the rolling error rate.
	ErrorWindow int // default: 20

	// HighErrorRate shrinks the pool when exceeded; LowErrorRate grows it
	// when sustained. Tunable, not contractual.
	HighErrorRate float64 // default: 0.7
	LowErrorRate  float64 // default: 0.2

	// MonitorInterval is how often the adaptive loop samples the error rate.
	MonitorInterval time.Duration // default: 5s

	// FatalStreak aborts the session after this many consecutive total
	// failures (all methods exhausted), signaling systemic failure.
	FatalStreak int // default: 10

	// MaxURLs truncates the input queue (0 = unlimited).
	MaxURLs int // default: 0
}

// QualityConfig holds the scoring weights and verdict thresholds.
// Defaults mirror the empirically chosen constants; they are deliberately
// configurable rather than contractual.
type QualityConfig struct {
	CompletenessWeight float64 // default: 0.40
	AccuracyWeight     float64 // default: 0.35
	StructureWeight    float64 // default: 0.25

	ExcellentThreshold float64 // default: 8.0
	GoodThreshold      float64 // default: 7.0
	RevisionThreshold  float64 // default: 5.0
}

// OutputConfig controls record and summary file writing.
type OutputConfig struct {
	// RecordFile is the product record output path.
	RecordFile string // default: "output/products.json"

	// Format is "json", "csv", or "dual".
	Format string // default: "json"

	// SummaryFile is the session summary output path.
	SummaryFile string // default: "output/session_summary.json"
}

// RegistryConfig controls method-statistics persistence.
type RegistryConfig struct {
	// StatsFile persists method statistics across sessions. Empty disables
	// persistence.
	StatsFile string // default: "output/method_stats.json"
}

// CacheConfig controls the recent-record LRU cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached records.
	MaxEntries int // default: 1000

	// TTL is how long a cached record suppresses re-extraction.
	TTL time.Duration // default: 1h
}

// SitemapConfig controls product URL discovery.
type SitemapConfig struct {
	// URL is the sitemap (or sitemap index) to discover product URLs from.
	URL string // default: "https://darwin.md/sitemap.xml"

	// FetchTimeout is the per-sitemap-request deadline.
	FetchTimeout time.Duration // default: 20s
}

// StatusConfig controls the optional status/metrics HTTP server.
type StatusConfig struct {
	Enabled bool   // default: false
	Host    string // default: "127.0.0.1"
	Port    int    // default: 8090
}

// WebhookConfig controls session-completion notifications.
type WebhookConfig struct {
	// URL receives session.completed / session.aborted events. Empty disables.
	URL string

	// Secret signs the payload with HMAC-SHA256 when non-empty.
	Secret string
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:     envBoolOr("DARWIN_HEADLESS", true),
			MaxPages:     envIntOr("DARWIN_MAX_PAGES", 10),
			DefaultProxy: os.Getenv("DARWIN_PROXY"),
			NoSandbox:    envBoolOr("DARWIN_NO_SANDBOX", false),
			BrowserBin:   os.Getenv("DARWIN_BROWSER_BIN"),
		},
		Scraper: ScraperConfig{
			AttemptTimeout: envDurationOr("DARWIN_ATTEMPT_TIMEOUT", 30*time.Second),
			HTTPTimeout:    envDurationOr("DARWIN_HTTP_TIMEOUT", 10*time.Second),
			BlockedResourceTypes: envSliceOr("DARWIN_BLOCKED_RESOURCES", []string{
				"Image", "Stylesheet", "Font", "Media",
			}),
			PreferredMethod: envOr("DARWIN_METHOD", "auto"),
		},
		Governor: GovernorConfig{
			DelayLow:             envDurationOr("DARWIN_DELAY_LOW", 500*time.Millisecond),
			DelayHigh:            envDurationOr("DARWIN_DELAY_HIGH", 2*time.Second),
			MaxBackoffMultiplier: envFloatOr("DARWIN_MAX_BACKOFF", 8.0),
			Cooldown:             envDurationOr("DARWIN_COOLDOWN", 30*time.Second),
		},
		Batch: BatchConfig{
			Workers:         envIntOr("DARWIN_WORKERS", 5),
			MinWorkers:      envIntOr("DARWIN_MIN_WORKERS", 1),
			MaxWorkers:      envIntOr("DARWIN_MAX_WORKERS", 10),
			ErrorWindow:     envIntOr("DARWIN_ERROR_WINDOW", 20),
			HighErrorRate:   envFloatOr("DARWIN_HIGH_ERROR_RATE", 0.7),
			LowErrorRate:    envFloatOr("DARWIN_LOW_ERROR_RATE", 0.2),
			MonitorInterval: envDurationOr("DARWIN_MONITOR_INTERVAL", 5*time.Second),
			FatalStreak:     envIntOr("DARWIN_FATAL_STREAK", 10),
			MaxURLs:         envIntOr("DARWIN_MAX_URLS", 0),
		},
		Quality: QualityConfig{
			CompletenessWeight: envFloatOr("DARWIN_QW_COMPLETENESS", 0.40),
			AccuracyWeight:     envFloatOr("DARWIN_QW_ACCURACY", 0.35),
			StructureWeight:    envFloatOr("DARWIN_QW_STRUCTURE", 0.25),
			ExcellentThreshold: envFloatOr("DARWIN_QT_EXCELLENT", 8.0),
			GoodThreshold:      envFloatOr("DARWIN_QT_GOOD", 7.0),
			RevisionThreshold:  envFloatOr("DARWIN_QT_REVISION", 5.0),
		},
		Output: OutputConfig{
			RecordFile:  envOr("DARWIN_RECORD_FILE", "output/products.json"),
			Format:      envOr("DARWIN_OUTPUT_FORMAT", "json"),
			SummaryFile: envOr("DARWIN_SUMMARY_FILE", "output/session_summary.json"),
		},
		Registry: RegistryConfig{
			StatsFile: envOr("DARWIN_STATS_FILE", "output/method_stats.json"),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("DARWIN_CACHE_MAX_ENTRIES", 1000),
			TTL:        envDurationOr("DARWIN_CACHE_TTL", time.Hour),
		},
		Sitemap: SitemapConfig{
			URL:          envOr("DARWIN_SITEMAP_URL", "https://darwin.md/sitemap.xml"),
			FetchTimeout: envDurationOr("DARWIN_SITEMAP_TIMEOUT", 20*time.Second),
		},
		Status: StatusConfig{
			Enabled: envBoolOr("DARWIN_STATUS_ENABLED", false),
			Host:    envOr("DARWIN_STATUS_HOST", "127.0.0.1"),
			Port:    envIntOr("DARWIN_STATUS_PORT", 8090),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("DARWIN_WEBHOOK_URL"),
			Secret: os.Getenv("DARWIN_WEBHOOK_SECRET"),
		},
		Log: LogConfig{
			Level:  envOr("DARWIN_LOG_LEVEL", "info"),
			Format: envOr("DARWIN_LOG_FORMAT", "json"),
		},
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.Browser.MaxPages <= 0 {
		return fmt.Errorf("max pages must be positive")
	}
	if c.Scraper.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive")
	}
	if c.Governor.DelayLow < 0 || c.Governor.DelayHigh < 0 {
		return fmt.Errorf("delay bounds cannot be negative")
	}
	if c.Governor.DelayHigh < c.Governor.DelayLow {
		return fmt.Errorf("delay high (%s) cannot be below delay low (%s)",
			c.Governor.DelayHigh, c.Governor.DelayLow)
	}
	if c.Governor.MaxBackoffMultiplier < 1 {
		return fmt.Errorf("max backoff multiplier must be at least 1")
	}
	if c.Batch.MinWorkers <= 0 {
		return fmt.Errorf("min workers must be positive")
	}
	if c.Batch.MaxWorkers < c.Batch.MinWorkers {
		return fmt.Errorf("max workers (%d) cannot be below min workers (%d)",
			c.Batch.MaxWorkers, c.Batch.MinWorkers)
	}
	if c.Batch.Workers < c.Batch.MinWorkers || c.Batch.Workers > c.Batch.MaxWorkers {
		return fmt.Errorf("workers (%d) must be within [%d, %d]",
			c.Batch.Workers, c.Batch.MinWorkers, c.Batch.MaxWorkers)
	}
	if c.Batch.ErrorWindow <= 0 {
		return fmt.Errorf("error window must be positive")
	}
	if c.Batch.FatalStreak <= 0 {
		return fmt.Errorf("fatal streak must be positive")
	}
	if c.Batch.HighErrorRate <= c.Batch.LowErrorRate {
		return fmt.Errorf("high error rate must exceed low error rate")
	}
	sum := c.Quality.CompletenessWeight + c.Quality.AccuracyWeight + c.Quality.StructureWeight
	if sum < 0.99 || sum > 1.01 {
		return fmt.Errorf("quality weights must sum to 1.0, got %.2f", sum)
	}
	switch c.Output.Format {
	case "json", "csv", "dual":
	default:
		return fmt.Errorf("output format must be json, csv, or dual")
	}
	if c.Output.RecordFile == "" {
		return fmt.Errorf("record file cannot be empty")
	}
	if _, err := parseMethodName(c.Scraper.PreferredMethod); err != nil {
		return err
	}
	return nil
}

// parseMethodName validates the configured method preference without pulling
// in the models package (config stays dependency-free).
func parseMethodName(s string) (string, error) {
	switch s {
	case "", "auto", "static-parse", "browser", "browser-stealth":
		return s, nil
	}
	return "", fmt.Errorf("unknown extraction method %q", s)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
