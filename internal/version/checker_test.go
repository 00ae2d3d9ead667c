package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsNewer(t *testing.T) {
	tests := []struct {
		name     string
		latest   string
		current  string
		expected bool
	}{
		{"same version", "0.1.0", "0.1.0", false},
		{"patch upgrade", "0.1.1", "0.1.0", true},
		{"patch downgrade", "0.0.9", "0.1.0", false},
		{"major upgrade", "1.0.0", "0.9.9", true},
		{"multi-digit", "0.0.100", "0.0.99", true},
		{"different lengths", "1.0", "0.0.28", true},
		{"shorter current", "0.2.1", "0.2", true},
		{"pre-release same base", "0.1.0-alpha", "0.1.0", false},
		{"build metadata", "0.1.1+build5", "0.1.0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNewer(tt.latest, tt.current); got != tt.expected {
				t.Errorf("IsNewer(%q, %q) = %v, want %v", tt.latest, tt.current, got, tt.expected)
			}
		})
	}
}

func TestChecker_Latest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "perfwatch/0.1.0" {
			t.Errorf("Unexpected user agent %q", ua)
		}
		w.Write([]byte(`{"tag_name": "v0.2.0", "name": "Sparklines", "html_url": "https://example.com/r/0.2.0"}`))
	}))
	defer srv.Close()

	rel, newer, err := NewChecker(srv.URL).Latest(context.Background(), "v0.1.0")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !newer {
		t.Error("Expected 0.2.0 to be newer")
	}
	if rel.Version != "0.2.0" || rel.URL != "https://example.com/r/0.2.0" {
		t.Errorf("Unexpected release: %+v", rel)
	}
}

func TestChecker_LatestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{}`},
		{"invalid json", http.StatusOK, `not json`},
		{"missing tag", http.StatusOK, `{"name": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, _, err := NewChecker(srv.URL).Latest(context.Background(), "0.1.0"); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
