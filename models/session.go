package models

import "time"

// SessionStatus is the terminal state of a batch session.
type SessionStatus string

const (
	// SessionCompleted means the queue drained normally.
	SessionCompleted SessionStatus = "completed"

	// SessionAborted means a systemic failure streak stopped the session
	// early. This is a hard stop, distinct from ordinary per-URL failures.
	SessionAborted SessionStatus = "aborted"

	// SessionCanceled means the caller's context was canceled.
	SessionCanceled SessionStatus = "canceled"
)

// MethodStats is the per-method outcome breakdown in a session summary.
type MethodStats struct {
	Attempts  int     `json:"attempts"`
	Successes int     `json:"successes"`
	AvgMillis float64 `json:"avg_ms"`
}

// URLFailure is one terminally failed URL with its reason.
type URLFailure struct {
	URL    string `json:"url"`
	Reason string `json:"reason"`
}

// SessionSummary is the single JSON object emitted at the end of a batch
// session, consumed by external reporting/learning collaborators.
type SessionSummary struct {
	Status      SessionStatus `json:"status"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	DurationSec float64       `json:"duration_seconds"`

	Processed   int     `json:"processed"`
	Succeeded   int     `json:"succeeded"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`

	Methods  map[Method]*MethodStats `json:"method_breakdown"`
	Quality  map[Verdict]int         `json:"quality_distribution"`
	Failures []URLFailure            `json:"failures,omitempty"`
}
