package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nasalciuc/darwinscrape/models"
)

// WriteSummary writes the session summary as indented JSON. It writes to a
// temp file in the same directory and renames it over the target so a
// half-written summary never replaces a previous one.
func WriteSummary(filename string, summary *models.SessionSummary) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), ".summary-*.json")
	if err != nil {
		return fmt.Errorf("create temp summary: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write summary: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close summary: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace summary: %w", err)
	}
	return nil
}
