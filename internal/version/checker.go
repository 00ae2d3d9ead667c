package version

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"
)

const (
	// DefaultReleaseURL answers with the latest published release
	DefaultReleaseURL = "https://api.github.com/repos/studiowebux/perfwatch/releases/latest"

	checkTimeout = 5 * time.Second
)

// Release describes a published release
type Release struct {
	Version string `json:"version"`
	Name    string `json:"name"`
	URL     string `json:"url"`
}

// Checker looks up the latest release
type Checker struct {
	url  string
	http *http.Client
}

// NewChecker creates a checker against url (DefaultReleaseURL when empty)
func NewChecker(url string) *Checker {
	if url == "" {
		url = DefaultReleaseURL
	}
	return &Checker{url: url, http: &http.Client{Timeout: checkTimeout}}
}

// Latest fetches the latest release and reports whether it is newer than current
func (c *Checker) Latest(ctx context.Context, current string) (*Release, bool, error) {
	current = strings.TrimPrefix(current, "v")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "perfwatch/"+current)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch latest release: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, false, fmt.Errorf("invalid release response")
	}

	doc := gjson.ParseBytes(body)
	rel := &Release{
		Version: strings.TrimPrefix(doc.Get("tag_name").String(), "v"),
		Name:    doc.Get("name").String(),
		URL:     doc.Get("html_url").String(),
	}
	if rel.Version == "" {
		return nil, false, fmt.Errorf("release has no tag")
	}
	return rel, IsNewer(rel.Version, current), nil
}

// IsNewer reports whether latest is a higher version than current.
// Pre-release and build suffixes are ignored.
func IsNewer(latest, current string) bool {
	a, b := parts(latest), parts(current)
	for len(a) < len(b) {
		a = append(a, 0)
	}
	for len(b) < len(a) {
		b = append(b, 0)
	}
	for i := range a {
		if a[i] != b[i] {
			return a[i] > b[i]
		}
	}
	return false
}

func parts(v string) []int {
	if idx := strings.IndexAny(v, "-+"); idx != -1 {
		v = v[:idx]
	}
	var out []int
	for _, p := range strings.Split(v, ".") {
		// non-numeric parts are skipped
		if n, err := cast.ToIntE(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}
