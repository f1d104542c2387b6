package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nasalciuc/darwinscrape/batch"
	"github.com/nasalciuc/darwinscrape/config"
	"github.com/nasalciuc/darwinscrape/engine"
	"github.com/nasalciuc/darwinscrape/metrics"
	"github.com/nasalciuc/darwinscrape/models"
	"github.com/nasalciuc/darwinscrape/quality"
	"github.com/nasalciuc/darwinscrape/ratelimit"
)

func testDeps() Deps {
	cfg := config.BatchConfig{
		Workers: 2, MinWorkers: 1, MaxWorkers: 4,
		ErrorWindow: 10, HighErrorRate: 0.7, LowErrorRate: 0.2,
		MonitorInterval: time.Second, FatalStreak: 10,
	}
	governor := ratelimit.NewGovernor(time.Millisecond, time.Millisecond, 8, 0)
	scorer := quality.NewScorer(config.QualityConfig{
		CompletenessWeight: 0.40, AccuracyWeight: 0.35, StructureWeight: 0.25,
		ExcellentThreshold: 8, GoodThreshold: 7, RevisionThreshold: 5,
	})
	registry := engine.NewRegistry("")
	registry.RecordOutcome(models.ExtractionAttempt{
		Method:   models.MethodStaticParse,
		Duration: 300 * time.Millisecond,
		Success:  true,
	})

	return Deps{
		Scheduler: batch.NewScheduler(cfg, nil, governor, scorer, nil, nil, nil, models.MethodAuto),
		Registry:  registry,
		Metrics:   metrics.New(),
		StartTime: time.Now(),
	}
}

func TestHealthz(t *testing.T) {
	r := NewRouter(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %s", resp.Status)
	}
}

func TestSessionEndpoint(t *testing.T) {
	r := NewRouter(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/session", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp sessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Session.Processed != 0 {
		t.Errorf("processed = %d before any work", resp.Session.Processed)
	}
	st, ok := resp.Methods[models.MethodStaticParse]
	if !ok || st.Attempts != 1 {
		t.Errorf("method stats not exposed: %+v", resp.Methods)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := NewRouter(testDeps())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
