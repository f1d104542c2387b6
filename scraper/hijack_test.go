package scraper

import "testing"

func TestIsTrackerDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"google-analytics.com", true},
		{"www.google-analytics.com", true},
		{"pagead2.googlesyndication.com", true},
		{"mc.yandex.ru", true},
		{"darwin.md", false},
		{"cdn.darwin.md", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isTrackerDomain(tt.host); got != tt.want {
			t.Errorf("isTrackerDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
