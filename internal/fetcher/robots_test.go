package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const robotsBody = `# crawl rules
User-agent: googlebot
Disallow: /nur-fuer-andere/

User-agent: *
Disallow: /admin/
Disallow: /suche
Allow: /

Sitemap: https://example.de/sitemap.xml
`

func robotsServer(t *testing.T, body string, status int, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func TestIsAllowed(t *testing.T) {
	srv := robotsServer(t, robotsBody, http.StatusOK, nil)
	defer srv.Close()

	r := NewRobotsScanner(newTestFetcher())
	ctx := context.Background()

	tests := []struct {
		path string
		want bool
	}{
		{"/wohnungen/expose/1234", true},
		{"/admin/login", false},
		{"/suche", false},
		{"/suche/seite-2", false},
		{"/nur-fuer-andere/seite", true}, // other agent's rule
	}

	for _, tt := range tests {
		if got := r.IsAllowed(ctx, srv.URL+tt.path); got != tt.want {
			t.Errorf("IsAllowed(%s) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIsAllowed_CachesPerHost(t *testing.T) {
	var hits atomic.Int32
	srv := robotsServer(t, robotsBody, http.StatusOK, &hits)
	defer srv.Close()

	r := NewRobotsScanner(newTestFetcher())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		r.IsAllowed(ctx, fmt.Sprintf("%s/wohnung/%d", srv.URL, i))
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
}

func TestIsAllowed_MissingRobotsAllowsAll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	r := NewRobotsScanner(newTestFetcher())
	if !r.IsAllowed(context.Background(), srv.URL+"/anything") {
		t.Error("a missing robots.txt must allow everything")
	}
}

func TestDisallowedPaths(t *testing.T) {
	srv := robotsServer(t, robotsBody, http.StatusOK, nil)
	defer srv.Close()

	r := NewRobotsScanner(newTestFetcher())
	got := r.DisallowedPaths(context.Background(), srv.URL+"/")

	want := []string{"/admin/", "/suche"}
	if len(got) != len(want) {
		t.Fatalf("DisallowedPaths = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("DisallowedPaths[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestWildcardDisallows_IgnoresOtherAgents(t *testing.T) {
	got := wildcardDisallows(robotsBody)
	for _, p := range got {
		if p == "/nur-fuer-andere/" {
			t.Error("another agent's Disallow leaked into the wildcard set")
		}
	}
}
