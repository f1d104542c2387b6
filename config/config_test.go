package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return Load()
}

func TestLoadDefaultsValidate(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max pages", func(c *Config) { c.Browser.MaxPages = 0 }},
		{"zero attempt timeout", func(c *Config) { c.Scraper.AttemptTimeout = 0 }},
		{"negative delay", func(c *Config) { c.Governor.DelayLow = -time.Second }},
		{"inverted delay bounds", func(c *Config) {
			c.Governor.DelayLow = 3 * time.Second
			c.Governor.DelayHigh = time.Second
		}},
		{"backoff below one", func(c *Config) { c.Governor.MaxBackoffMultiplier = 0.5 }},
		{"zero min workers", func(c *Config) { c.Batch.MinWorkers = 0 }},
		{"max below min workers", func(c *Config) {
			c.Batch.MinWorkers = 5
			c.Batch.MaxWorkers = 2
		}},
		{"workers out of range", func(c *Config) { c.Batch.Workers = 99 }},
		{"zero error window", func(c *Config) { c.Batch.ErrorWindow = 0 }},
		{"zero fatal streak", func(c *Config) { c.Batch.FatalStreak = 0 }},
		{"error rates inverted", func(c *Config) {
			c.Batch.HighErrorRate = 0.1
			c.Batch.LowErrorRate = 0.5
		}},
		{"quality weights off", func(c *Config) { c.Quality.CompletenessWeight = 0.9 }},
		{"unknown output format", func(c *Config) { c.Output.Format = "xml" }},
		{"empty record file", func(c *Config) { c.Output.RecordFile = "" }},
		{"unknown method", func(c *Config) { c.Scraper.PreferredMethod = "telepathy" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DARWIN_WORKERS", "7")
	t.Setenv("DARWIN_DELAY_LOW", "250ms")
	t.Setenv("DARWIN_OUTPUT_FORMAT", "dual")
	t.Setenv("DARWIN_HEADLESS", "false")

	cfg := Load()
	if cfg.Batch.Workers != 7 {
		t.Errorf("workers = %d", cfg.Batch.Workers)
	}
	if cfg.Governor.DelayLow != 250*time.Millisecond {
		t.Errorf("delay low = %s", cfg.Governor.DelayLow)
	}
	if cfg.Output.Format != "dual" {
		t.Errorf("format = %s", cfg.Output.Format)
	}
	if cfg.Browser.Headless {
		t.Error("headless should be overridden to false")
	}
}

func TestEnvBadValueFallsBack(t *testing.T) {
	t.Setenv("DARWIN_WORKERS", "many")
	if got := Load().Batch.Workers; got != 5 {
		t.Errorf("workers = %d, want default 5", got)
	}
}
