package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nasalciuc/darwinscrape/models"
)

func sampleRecord(url, title string) *models.ProductRecord {
	return &models.ProductRecord{
		URL:      url,
		Title:    title,
		Price:    1299.99,
		Currency: "MDL",
		Category: "Telefoane",
		Stock:    models.StockAvailable,
		Brand:    "Samsung",
		Images:   []string{"https://darwin.md/img/1.jpg", "https://darwin.md/img/2.jpg"},
		Quality: &models.QualityScore{
			Completeness: 9, Accuracy: 8, Structure: 9,
			Overall: 8.7, Verdict: models.VerdictExcellent,
		},
		ExtractionMethod: models.MethodStaticParse,
		ExtractedAt:      time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
}

func TestJSONWriter_ProducesValidArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	w, err := NewJSONWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	urls := []string{
		"https://darwin.md/telefoane/produs-1",
		"https://darwin.md/telefoane/produs-2",
		"https://darwin.md/telefoane/produs-3",
	}
	for _, u := range urls {
		if err := w.WriteRecord(sampleRecord(u, "Telefon")); err != nil {
			t.Fatalf("WriteRecord: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var records []models.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("output is not a valid JSON array: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want 3", len(records))
	}
	if records[1].URL != urls[1] {
		t.Errorf("record order lost: [1].url = %s", records[1].URL)
	}
	if records[0].Quality == nil || records[0].Quality.Verdict != models.VerdictExcellent {
		t.Error("quality score not round-tripped")
	}
}

func TestJSONWriter_EmptySessionIsValidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.json")
	w, err := NewJSONWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var records []models.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("empty output is not a valid JSON array: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestCSVWriter_HeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := sampleRecord("https://darwin.md/telefoane/produs-1", "Samsung Galaxy S24")
	if err := w.WriteRecord(rec); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want header + 1", len(rows))
	}
	if rows[0][0] != "url" || rows[0][2] != "price" {
		t.Errorf("unexpected header: %v", rows[0])
	}

	row := rows[1]
	if row[1] != "Samsung Galaxy S24" {
		t.Errorf("title column = %q", row[1])
	}
	if row[2] != "1299.99" {
		t.Errorf("price column = %q", row[2])
	}
	if row[3] != "MDL" {
		t.Errorf("currency column = %q", row[3])
	}
	if row[12] != "excellent" {
		t.Errorf("verdict column = %q", row[12])
	}
}

func TestCSVWriter_OptionalFieldsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.csv")
	w, err := NewCSVWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	rec := &models.ProductRecord{
		URL:              "https://darwin.md/telefoane/produs-2",
		Title:            "Telefon",
		Price:            500,
		Currency:         "MDL",
		Category:         "Telefoane",
		Stock:            models.StockUnknown,
		ExtractionMethod: models.MethodBrowser,
		ExtractedAt:      time.Now(),
	}
	if err := w.WriteRecord(rec); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	row := rows[1]
	if row[8] != "" || row[11] != "" || row[12] != "" {
		t.Errorf("rating/quality columns should be empty, got %q %q %q", row[8], row[11], row[12])
	}
}

func TestDualWriter_WritesBothFiles(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "records.json")
	csvPath := filepath.Join(dir, "records.csv")

	w, err := NewDualWriter(jsonPath, csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WriteRecord(sampleRecord("https://darwin.md/telefoane/produs-1", "Telefon")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var records []models.ProductRecord
	if err := json.Unmarshal(data, &records); err != nil || len(records) != 1 {
		t.Errorf("json side: %v (%d records)", err, len(records))
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil || len(rows) != 2 {
		t.Errorf("csv side: %v (%d rows)", err, len(rows))
	}
}

func TestNew_FormatSelection(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		format  string
		wantErr bool
	}{
		{"json", false},
		{"csv", false},
		{"dual", false},
		{"xml", true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			w, err := New(tt.format, filepath.Join(dir, tt.format, "records.json"))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error for unknown format")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			w.Close()
		})
	}

	if _, err := os.Stat(filepath.Join(dir, "csv", "records.csv")); err != nil {
		t.Errorf("csv format should write a .csv file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "dual", "records.csv")); err != nil {
		t.Errorf("dual format should write the sibling .csv: %v", err)
	}
}

func TestWriteSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "summary.json")
	summary := &models.SessionSummary{
		Status:      models.SessionCompleted,
		StartedAt:   time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
		FinishedAt:  time.Date(2026, 8, 20, 10, 5, 0, 0, time.UTC),
		DurationSec: 300,
		Processed:   42,
		Succeeded:   40,
		Failed:      2,
		SuccessRate: 0.952,
		Methods: map[models.Method]*models.MethodStats{
			models.MethodStaticParse: {Attempts: 42, Successes: 38, AvgMillis: 320},
			models.MethodBrowser:     {Attempts: 4, Successes: 2, AvgMillis: 2100},
		},
		Quality: map[models.Verdict]int{
			models.VerdictExcellent: 30,
			models.VerdictGood:      10,
		},
		Failures: []models.URLFailure{
			{URL: "https://darwin.md/telefoane/produs-9", Reason: "ALL_METHODS_FAILED"},
		},
	}

	if err := WriteSummary(path, summary); err != nil {
		t.Fatalf("WriteSummary: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got models.SessionSummary
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("summary is not valid JSON: %v", err)
	}
	if got.Status != models.SessionCompleted || got.Processed != 42 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if got.Methods[models.MethodStaticParse] == nil {
		t.Error("method breakdown lost in round-trip")
	}

	// Overwriting an existing summary must succeed.
	summary.Status = models.SessionAborted
	if err := WriteSummary(path, summary); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
}
