package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nasalciuc/darwinscrape/models"
)

func record(r *Registry, method models.Method, success bool, d time.Duration) {
	r.RecordOutcome(models.ExtractionAttempt{
		URL:      "https://darwin.md/telefoane/x",
		Method:   method,
		Duration: d,
		Success:  success,
	})
}

func TestRegistry_RankColdStart(t *testing.T) {
	r := NewRegistry("")
	ranked := r.Rank(false)

	// All methods share the untried prior, so the default fastest-first
	// order must survive the stable sort.
	want := models.Methods()
	for i := range want {
		if ranked[i] != want[i] {
			t.Fatalf("cold rank = %v, want %v", ranked, want)
		}
	}
}

func TestRegistry_RankPrefersSuccessfulMethod(t *testing.T) {
	r := NewRegistry("")
	for i := 0; i < 10; i++ {
		record(r, models.MethodStaticParse, false, 200*time.Millisecond)
		record(r, models.MethodBrowser, true, 3*time.Second)
	}

	ranked := r.Rank(false)
	if ranked[0] != models.MethodBrowser {
		t.Errorf("rank[0] = %s, want browser (it succeeds, static never does)", ranked[0])
	}
}

func TestRegistry_RankDynamicHintBiasesBrowser(t *testing.T) {
	r := NewRegistry("")
	// Static ahead on merit thanks to latency, browser slightly better on
	// success rate but much slower.
	for i := 0; i < 10; i++ {
		record(r, models.MethodStaticParse, i < 6, 200*time.Millisecond)
		record(r, models.MethodBrowser, i < 7, 2*time.Second)
	}

	plain := r.Rank(false)
	if plain[0] != models.MethodStaticParse {
		t.Fatalf("without hint rank[0] = %s, want static-parse", plain[0])
	}

	hinted := r.Rank(true)
	if hinted[0] != models.MethodBrowser && hinted[0] != models.MethodBrowserStealth {
		t.Errorf("with hint rank[0] = %s, want a browser method", hinted[0])
	}
}

func TestRegistry_RecordOutcomeUnknownMethod(t *testing.T) {
	r := NewRegistry("")
	record(r, models.Method("carrier-pigeon"), true, time.Second)

	snap := r.Snapshot()
	if _, ok := snap[models.Method("carrier-pigeon")]; ok {
		t.Error("unknown methods must not create stats entries")
	}
	for m, st := range snap {
		if st.Attempts != 0 {
			t.Errorf("method %s gained attempts from an unknown-method outcome", m)
		}
	}
}

func TestRegistry_SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "method_stats.json")

	r := NewRegistry(path)
	record(r, models.MethodStaticParse, true, 150*time.Millisecond)
	record(r, models.MethodStaticParse, true, 250*time.Millisecond)
	record(r, models.MethodBrowser, false, 4*time.Second)
	if err := r.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	fresh := NewRegistry(path)
	if err := fresh.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap := fresh.Snapshot()
	if st := snap[models.MethodStaticParse]; st.Attempts != 2 || st.Successes != 2 {
		t.Errorf("static-parse stats = %+v", st)
	}
	if st := snap[models.MethodBrowser]; st.Attempts != 1 || st.Successes != 0 {
		t.Errorf("browser stats = %+v", st)
	}
}

func TestRegistry_LoadMissingFile(t *testing.T) {
	r := NewRegistry(filepath.Join(t.TempDir(), "absent.json"))
	if err := r.Load(); err != nil {
		t.Errorf("missing memory file should start cold, got error: %v", err)
	}
}

func TestRegistry_LoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "method_stats.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	r := NewRegistry(path)
	if err := r.Load(); err == nil {
		t.Error("corrupt memory file should surface an error")
	}
}

func TestRegistry_Reset(t *testing.T) {
	r := NewRegistry("")
	record(r, models.MethodStaticParse, true, time.Second)
	r.Reset()

	snap := r.Snapshot()
	if st := snap[models.MethodStaticParse]; st.Attempts != 0 {
		t.Errorf("reset left attempts = %d", st.Attempts)
	}
}
