package fetcher

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"

	"github.com/mietwatch/mietwatch/internal/logger"
)

const robotsPath = "/robots.txt"

// RobotsScanner fetches and caches robots.txt per host. A missing or
// errored robots.txt allows everything (standard practice); the scanner
// degrades silently.
type RobotsScanner struct {
	fetcher *Fetcher

	mu    sync.Mutex
	cache map[string]*robotsEntry // keyed by host
}

type robotsEntry struct {
	data       *robotstxt.RobotsData
	disallowed []string // wildcard-agent Disallow prefixes, for the site profile
	allowAll   bool
}

// NewRobotsScanner creates a RobotsScanner using the given fetcher.
func NewRobotsScanner(f *Fetcher) *RobotsScanner {
	return &RobotsScanner{
		fetcher: f,
		cache:   make(map[string]*robotsEntry),
	}
}

// IsAllowed reports whether rawURL may be crawled under the host's
// robots.txt rules.
func (r *RobotsScanner) IsAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}

	entry := r.entry(ctx, u)
	if entry.allowAll {
		return true
	}
	return entry.data.TestAgent(u.Path, "*")
}

// DisallowedPaths returns the wildcard-agent Disallow prefixes for the
// host of rawURL, for recording on the site profile.
func (r *RobotsScanner) DisallowedPaths(ctx context.Context, rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return r.entry(ctx, u).disallowed
}

func (r *RobotsScanner) entry(ctx context.Context, u *url.URL) *robotsEntry {
	host := strings.ToLower(u.Host)

	r.mu.Lock()
	entry, ok := r.cache[host]
	r.mu.Unlock()
	if ok {
		return entry
	}

	entry = r.fetchEntry(ctx, u.Scheme, host)

	r.mu.Lock()
	r.cache[host] = entry
	r.mu.Unlock()
	return entry
}

func (r *RobotsScanner) fetchEntry(ctx context.Context, scheme, host string) *robotsEntry {
	robotsURL := scheme + "://" + host + robotsPath

	page, err := r.fetcher.Fetch(ctx, robotsURL, nil)
	if err != nil || page.StatusCode != 200 {
		logger.Debug("robots.txt unavailable, allowing all", "host", host, "error", err)
		return &robotsEntry{allowAll: true}
	}

	data, err := robotstxt.FromString(page.HTML)
	if err != nil {
		logger.Debug("robots.txt unparseable, allowing all", "host", host, "error", err)
		return &robotsEntry{allowAll: true}
	}

	return &robotsEntry{
		data:       data,
		disallowed: wildcardDisallows(page.HTML),
	}
}

// wildcardDisallows extracts the Disallow prefixes of the "*" user-agent
// group. The parsed RobotsData answers allow/deny queries but does not
// expose the raw prefixes we persist on the site profile.
func wildcardDisallows(body string) []string {
	var out []string
	inWildcard := false

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}

		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "user-agent:"):
			agent := strings.TrimSpace(line[len("user-agent:"):])
			inWildcard = agent == "*"
		case inWildcard && strings.HasPrefix(lower, "disallow:"):
			path := strings.TrimSpace(line[len("disallow:"):])
			if path != "" {
				out = append(out, path)
			}
		}
	}
	return out
}
