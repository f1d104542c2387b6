package models

import (
	"errors"
	"fmt"
)

// Error codes used across the extraction engine. The batch scheduler and the
// session summary map these onto the transient / permanent / systemic
// taxonomy.
const (
	ErrCodeTimeout          = "EXTRACT_TIMEOUT"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeChallenge        = "CHALLENGE_PAGE"
	ErrCodeNotFound         = "PAGE_NOT_FOUND"
	ErrCodeFieldMissing     = "FIELD_REQUIRED_MISSING"
	ErrCodeAllMethodsFailed = "ALL_METHODS_FAILED"
	ErrCodeSessionAborted   = "SESSION_ABORTED"
	ErrCodeBrowserCrash     = "BROWSER_CRASH"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// IsThrottling reports whether the error is a throttling signal (HTTP 429 or
// a detected challenge/interstitial page) that should feed back into the rate
// governor.
func IsThrottling(err error) bool {
	var se *ScrapeError
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == ErrCodeRateLimited || se.Code == ErrCodeChallenge
}
