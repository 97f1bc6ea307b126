package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestScan_PlainSitemap(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sitemap.xml" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/xml")
		fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%[1]s/wohnungen/expose/1001</loc></url>
  <url><loc>%[1]s/wohnungen/expose/1002</loc></url>
  <url><loc>%[1]s/blog/unternehmensnews</loc></url>
  <url><loc>https://other-host.de/mieten/123</loc></url>
</urlset>`, srvURL)
	}))
	defer srv.Close()
	srvURL = srv.URL

	s := NewSitemapScanner(newTestFetcher())
	got := s.Scan(context.Background(), srv.URL)

	if len(got) != 2 {
		t.Fatalf("expected 2 rental URLs, got %d: %v", len(got), got)
	}
	for _, u := range got {
		if !strings.Contains(u, "/wohnungen/expose/") {
			t.Errorf("unexpected URL %q", u)
		}
		if strings.Contains(u, "other-host") {
			t.Errorf("off-host URL leaked: %q", u)
		}
	}
}

func TestScan_SitemapIndex(t *testing.T) {
	var srvURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <sitemap><loc>%[1]s/sitemap-mieten.xml</loc></sitemap>
  <sitemap><loc>%[1]s/sitemap-kaufen.xml</loc></sitemap>
</sitemapindex>`, srvURL)
		case "/sitemap-mieten.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/mieten/wohnung-2201</loc></url>
</urlset>`, srvURL)
		case "/sitemap-kaufen.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>%s/kaufen/haus-9</loc></url>
</urlset>`, srvURL)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	srvURL = srv.URL

	s := NewSitemapScanner(newTestFetcher())
	got := s.Scan(context.Background(), srv.URL)

	if len(got) != 1 {
		t.Fatalf("expected 1 URL from the index, got %d: %v", len(got), got)
	}
	if !strings.HasSuffix(got[0], "/mieten/wohnung-2201") {
		t.Errorf("got %q", got[0])
	}
}

func TestScan_MissingSitemap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s := NewSitemapScanner(newTestFetcher())
	if got := s.Scan(context.Background(), srv.URL); len(got) != 0 {
		t.Errorf("expected no URLs without a sitemap, got %v", got)
	}
}

func TestRentalRelated(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://x.de/wohnungen/expose/1", true},
		{"https://x.de/immobilien-mieten/berlin", true},
		{"https://x.de/en/rental/flat-12", true},
		{"https://x.de/karriere", false},
		{"https://x.de/presse/2026", false},
	}
	for _, tt := range tests {
		if got := rentalRelated(tt.url); got != tt.want {
			t.Errorf("rentalRelated(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
