package engine

import (
	"strings"
	"sync"

	"github.com/nasalciuc/darwinscrape/simhash"
)

// challengeMarkers are text fragments that identify bot-check interstitials
// regardless of DOM shape.
var challengeMarkers = []string{
	"checking your browser",
	"verify you are human",
	"are you a robot",
	"cf-challenge",
	"cf-browser-verification",
	"just a moment",
	"attention required",
	"access denied",
	"ddos protection",
	"captcha",
}

// simhashThreshold is the maximum Hamming distance at which two DOM
// fingerprints count as the same page template.
const simhashThreshold = 6

// ChallengeDetector classifies fetched documents as challenge/interstitial
// pages. Text markers catch the first instance; its DOM fingerprint is then
// remembered so later variants with rotated copy still match structurally.
// Safe for concurrent use.
type ChallengeDetector struct {
	mu           sync.Mutex
	fingerprints []uint64
}

func NewChallengeDetector() *ChallengeDetector {
	return &ChallengeDetector{}
}

// Detect reports whether rawHTML looks like a bot-check page.
func (d *ChallengeDetector) Detect(rawHTML string) bool {
	if rawHTML == "" {
		return false
	}

	lower := strings.ToLower(rawHTML)
	for _, marker := range challengeMarkers {
		if strings.Contains(lower, marker) {
			d.remember(rawHTML)
			return true
		}
	}

	fp := simhash.FromDOM(rawHTML)
	if fp == 0 {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, known := range d.fingerprints {
		if simhash.Similar(fp, known, simhashThreshold) {
			return true
		}
	}
	return false
}

func (d *ChallengeDetector) remember(rawHTML string) {
	fp := simhash.FromDOM(rawHTML)
	if fp == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, known := range d.fingerprints {
		if simhash.Similar(fp, known, simhashThreshold) {
			return
		}
	}
	d.fingerprints = append(d.fingerprints, fp)
}
