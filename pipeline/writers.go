// Package pipeline persists extraction output: product records as a JSON
// array or CSV (or both), and the end-of-session summary.
package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nasalciuc/darwinscrape/models"
)

// Writer receives records as workers produce them and owns the output file
// handles until Close.
type Writer interface {
	WriteRecord(rec *models.ProductRecord) error
	Close() error
}

// New builds the writer for the configured output format: "json", "csv", or
// "dual" (JSON plus a sibling .csv file).
func New(format, recordFile string) (Writer, error) {
	switch format {
	case "json":
		return NewJSONWriter(recordFile)
	case "csv":
		return NewCSVWriter(withExt(recordFile, ".csv"))
	case "dual":
		return NewDualWriter(recordFile, withExt(recordFile, ".csv"))
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// JSONWriter streams records into a single JSON array. The array is valid
// only after Close writes the terminator; a crash mid-session leaves a
// readable prefix.
type JSONWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	wrote  bool
	closed bool
}

// NewJSONWriter creates the output file and opens the array.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString("[\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("open json array: %w", err)
	}
	return &JSONWriter{file: f, writer: w}, nil
}

func (jw *JSONWriter) WriteRecord(rec *models.ProductRecord) error {
	data, err := json.MarshalIndent(rec, "  ", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.wrote {
		if _, err := jw.writer.WriteString(",\n"); err != nil {
			return fmt.Errorf("write separator: %w", err)
		}
	}
	jw.wrote = true
	if _, err := jw.writer.WriteString("  "); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if _, err := jw.writer.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return jw.writer.Flush()
}

// Close terminates the array and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()
	if jw.closed {
		return nil
	}
	jw.closed = true

	if _, err := jw.writer.WriteString("\n]\n"); err != nil {
		return fmt.Errorf("close json array: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// csvHeader defines the flat column layout; nested fields (images, specs)
// are collapsed or dropped since CSV is meant for spreadsheet review.
var csvHeader = []string{
	"url", "title", "price", "currency", "category", "stock", "brand", "sku",
	"rating", "images", "extraction_method", "quality_overall",
	"quality_verdict", "extracted_at",
}

// CSVWriter writes one row per record.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}
	return &CSVWriter{file: f, writer: writer}, nil
}

func (cw *CSVWriter) WriteRecord(rec *models.ProductRecord) error {
	rating := ""
	if rec.Rating != nil {
		rating = strconv.FormatFloat(*rec.Rating, 'f', 1, 64)
	}
	overall, verdict := "", ""
	if rec.Quality != nil {
		overall = strconv.FormatFloat(rec.Quality.Overall, 'f', 1, 64)
		verdict = string(rec.Quality.Verdict)
	}

	row := []string{
		rec.URL,
		rec.Title,
		strconv.FormatFloat(rec.Price, 'f', -1, 64),
		rec.Currency,
		rec.Category,
		string(rec.Stock),
		rec.Brand,
		rec.SKU,
		rating,
		strings.Join(rec.Images, " "),
		string(rec.ExtractionMethod),
		overall,
		verdict,
		rec.ExtractedAt.Format(time.RFC3339),
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()
	if err := cw.writer.Write(row); err != nil {
		return fmt.Errorf("write csv record: %w", err)
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv record: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// DualWriter fans each record out to a JSON and a CSV file.
type DualWriter struct {
	json *JSONWriter
	csv  *CSVWriter
}

func NewDualWriter(jsonFilename, csvFilename string) (*DualWriter, error) {
	jw, err := NewJSONWriter(jsonFilename)
	if err != nil {
		return nil, err
	}
	cw, err := NewCSVWriter(csvFilename)
	if err != nil {
		jw.Close()
		return nil, err
	}
	return &DualWriter{json: jw, csv: cw}, nil
}

func (dw *DualWriter) WriteRecord(rec *models.ProductRecord) error {
	if err := dw.json.WriteRecord(rec); err != nil {
		return err
	}
	return dw.csv.WriteRecord(rec)
}

func (dw *DualWriter) Close() error {
	jsonErr := dw.json.Close()
	csvErr := dw.csv.Close()
	if jsonErr != nil {
		return jsonErr
	}
	return csvErr
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// withExt swaps the file extension, keeping the rest of the path.
func withExt(filename, ext string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ext
}
