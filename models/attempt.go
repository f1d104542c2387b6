package models

import (
	"fmt"
	"strings"
	"time"
)

// ExtractionAttempt records one (URL, method) pairing. Attempts are created
// by the fallback orchestrator, immutable once recorded, and handed to the
// method registry for statistics aggregation.
type ExtractionAttempt struct {
	URL       string        `json:"url"`
	Method    Method        `json:"method"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// ExtractionFailure is returned when every method in the fallback chain has
// been exhausted for a URL. It carries the per-method errors so the session
// summary can enumerate failure reasons.
type ExtractionFailure struct {
	URL      string         `json:"url"`
	Attempts []AttemptError `json:"attempts"`
	Code     string         `json:"code"`
}

// AttemptError is the error outcome of a single method within a chain.
type AttemptError struct {
	Method Method `json:"method"`
	Error  string `json:"error"`
}

func (f *ExtractionFailure) Error() string {
	parts := make([]string, 0, len(f.Attempts))
	for _, a := range f.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Method, a.Error))
	}
	return fmt.Sprintf("all methods failed for %s [%s]", f.URL, strings.Join(parts, "; "))
}
