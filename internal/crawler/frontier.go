// Package crawler owns the crawl frontier, page routing, and the
// orchestration of fetch, classify, extract and persist.
package crawler

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// TaskKind is the classification a task ends up with. It transitions
// from unknown exactly once per fetch cycle.
type TaskKind string

const (
	KindUnknown  TaskKind = "unknown"
	KindIndex    TaskKind = "index"
	KindDetail   TaskKind = "detail"
	KindRejected TaskKind = "rejected"
)

// Task is one unit of crawl work.
type Task struct {
	URL            string
	DiscoveredFrom string
	Attempts       int
	Kind           TaskKind

	// PageNum counts pagination hops from the original index page, used
	// to cap crawl blow-up per index URL.
	PageNum int

	// ViaStrategy/ViaSelector name how the URL was discovered, so a
	// later successful extraction can credit the listing-url pattern.
	// ViaPattern marks ViaSelector as a URL regexp; only those are
	// learnable, since the replay matches selectors against raw URLs.
	ViaStrategy string
	ViaSelector string
	ViaPattern  bool
}

// Frontier is the queue of not-yet-processed tasks plus the global
// visited set, keyed by normalized URL. Safe for concurrent use.
type Frontier struct {
	mu      sync.Mutex
	queue   []*Task
	visited map[string]bool
}

// NewFrontier creates an empty frontier.
func NewFrontier() *Frontier {
	return &Frontier{visited: make(map[string]bool)}
}

// Add enqueues a task unless its normalized URL was already seen.
// Returns false for duplicates and unparseable URLs.
func (f *Frontier) Add(t *Task) bool {
	normalized := NormalizeURL(t.URL)
	if normalized == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.visited[normalized] {
		return false
	}
	f.visited[normalized] = true

	t.Kind = KindUnknown
	f.queue = append(f.queue, t)
	return true
}

// Pop removes and returns the next task, or nil when empty.
func (f *Frontier) Pop() *Task {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queue) == 0 {
		return nil
	}
	t := f.queue[0]
	f.queue = f.queue[1:]
	return t
}

// Len returns the number of queued tasks.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Seen reports whether a URL has already been enqueued or processed.
func (f *Frontier) Seen(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visited[NormalizeURL(rawURL)]
}

// VisitedCount returns the total number of distinct URLs discovered.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.visited)
}

// trackingParams are query parameters that vary per discovery path
// without changing the page, and would defeat the visited set and
// downstream deduplication.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"gclid":        true,
	"fbclid":       true,
	"ref":          true,
	"source":       true,
}

// NormalizeURL canonicalizes a URL for visited-set and identity
// comparisons: lowercased host, no fragment, no tracking parameters,
// sorted query, no trailing slash.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}

	u.Fragment = ""
	u.Host = strings.ToLower(u.Host)

	if len(u.Path) > 1 {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	q := u.Query()
	for param := range q {
		if trackingParams[strings.ToLower(param)] {
			q.Del(param)
		}
	}
	u.RawQuery = encodeSorted(q)

	return u.String()
}

func encodeSorted(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		for _, v := range q[k] {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

// SameOrigin reports whether two URLs share scheme and host.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil {
		return false
	}
	return ua.Scheme == ub.Scheme && strings.EqualFold(ua.Host, ub.Host)
}
