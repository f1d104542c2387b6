package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nasalciuc/darwinscrape/models"
)

// ewmaAlpha weights the newest latency sample in the running average.
const ewmaAlpha = 0.3

// latencyRefMillis is the latency at which a method's latency score is 0.5.
// Faster methods score toward 1, slower ones toward 0.
const latencyRefMillis = 1000.0

// untriedPrior is the optimistic score for methods with no attempts yet, so
// the ranking still explores them.
const untriedPrior = 0.5

// Ranking weights and the browser bias under a dynamic-rendering hint.
const (
	successWeight = 0.7
	latencyWeight = 0.3
	dynamicBias   = 0.15
)

// methodRecord is the mutable per-method state. Guarded by Registry.mu.
type methodRecord struct {
	Attempts  int64   `json:"attempts"`
	Successes int64   `json:"successes"`
	EWMAms    float64 `json:"ewma_ms"`
}

// Registry tracks per-method performance and ranks methods for the fallback
// chain. State persists across sessions through a JSON memory file so the
// ranking warms up over time. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	methods map[models.Method]*methodRecord
	path    string
}

// NewRegistry creates a Registry persisting to path. An empty path disables
// persistence.
func NewRegistry(path string) *Registry {
	r := &Registry{
		methods: make(map[models.Method]*methodRecord, len(models.Methods())),
		path:    path,
	}
	for _, m := range models.Methods() {
		r.methods[m] = &methodRecord{}
	}
	return r
}

// Load replaces the in-memory stats with the persisted memory file. A missing
// file is not an error: the registry simply starts cold.
func (r *Registry) Load() error {
	if r.path == "" {
		return nil
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("registry: read %s: %w", r.path, err)
	}

	var stored struct {
		Methods map[models.Method]*methodRecord `json:"methods"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("registry: parse %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models.Methods() {
		if rec, ok := stored.Methods[m]; ok && rec != nil {
			r.methods[m] = rec
		}
	}
	return nil
}

// Save writes the memory file atomically: a temp file in the same directory
// followed by a rename, so a crash mid-write never corrupts the stats.
func (r *Registry) Save() error {
	if r.path == "" {
		return nil
	}

	r.mu.Lock()
	payload := struct {
		Methods   map[models.Method]*methodRecord `json:"methods"`
		UpdatedAt time.Time                       `json:"updated_at"`
	}{
		Methods:   make(map[models.Method]*methodRecord, len(r.methods)),
		UpdatedAt: time.Now().UTC(),
	}
	for m, rec := range r.methods {
		clone := *rec
		payload.Methods[m] = &clone
	}
	r.mu.Unlock()

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("registry: marshal: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("registry: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".method_stats-*.json")
	if err != nil {
		return fmt.Errorf("registry: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("registry: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("registry: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("registry: rename: %w", err)
	}
	return nil
}

// RecordOutcome folds one attempt into the method's counters and latency
// average. Attempts for unknown methods are ignored.
func (r *Registry) RecordOutcome(attempt models.ExtractionAttempt) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.methods[attempt.Method]
	if !ok {
		return
	}
	rec.Attempts++
	if attempt.Success {
		rec.Successes++
	}
	ms := float64(attempt.Duration.Milliseconds())
	if rec.EWMAms == 0 {
		rec.EWMAms = ms
	} else {
		rec.EWMAms = ewmaAlpha*ms + (1-ewmaAlpha)*rec.EWMAms
	}
}

// Rank returns the concrete methods ordered best-first. dynamicHint biases
// browser methods upward for pages known to need JavaScript rendering. Ties
// keep the default fastest-first order.
func (r *Registry) Rank(dynamicHint bool) []models.Method {
	r.mu.Lock()
	defer r.mu.Unlock()

	ordered := models.Methods()
	scores := make(map[models.Method]float64, len(ordered))
	for _, m := range ordered {
		scores[m] = r.score(m, dynamicHint)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		return scores[ordered[i]] > scores[ordered[j]]
	})
	return ordered
}

// score computes successRate*0.7 + latencyScore*0.3 for one method.
// Callers hold r.mu.
func (r *Registry) score(m models.Method, dynamicHint bool) float64 {
	rec := r.methods[m]

	var s float64
	if rec.Attempts == 0 {
		s = untriedPrior
	} else {
		successRate := float64(rec.Successes) / float64(rec.Attempts)
		latencyScore := latencyRefMillis / (latencyRefMillis + rec.EWMAms)
		s = successWeight*successRate + latencyWeight*latencyScore
	}

	if dynamicHint && (m == models.MethodBrowser || m == models.MethodBrowserStealth) {
		s += dynamicBias
	}
	return s
}

// Snapshot returns a copy of the per-method stats for status reporting.
func (r *Registry) Snapshot() map[models.Method]models.MethodStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[models.Method]models.MethodStats, len(r.methods))
	for m, rec := range r.methods {
		out[m] = models.MethodStats{
			Attempts:  int(rec.Attempts),
			Successes: int(rec.Successes),
			AvgMillis: rec.EWMAms,
		}
	}
	return out
}

// Reset clears all counters, returning the registry to a cold start.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range models.Methods() {
		r.methods[m] = &methodRecord{}
	}
}
