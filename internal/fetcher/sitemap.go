package fetcher

import (
	"context"
	"encoding/xml"
	"net/url"
	"strings"

	"github.com/mietwatch/mietwatch/internal/logger"
)

// Bounds on recursive sitemap expansion.
const (
	maxSitemapDepth = 3
	maxSitemapDocs  = 50
	maxSitemapURLs  = 5000
)

// rentalKeywords filter sitemap URLs to rental-related site sections.
var rentalKeywords = []string{
	"miete", "mieten", "wohnung", "wohnungen", "immobilie",
	"rent", "rental", "listing", "expose", "apartment", "anzeige",
}

// xmlURLSet is the root element of a standard sitemap.
type xmlURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []xmlURL `xml:"url"`
}

type xmlURL struct {
	Loc string `xml:"loc"`
}

// xmlSitemapIndex is the root element of a sitemap index.
type xmlSitemapIndex struct {
	XMLName  xml.Name     `xml:"sitemapindex"`
	Sitemaps []xmlSitemap `xml:"sitemap"`
}

type xmlSitemap struct {
	Loc string `xml:"loc"`
}

// SitemapScanner discovers candidate URLs from a host's sitemap.xml,
// recursively following sitemap-index entries.
type SitemapScanner struct {
	fetcher *Fetcher
}

// NewSitemapScanner creates a SitemapScanner using the given fetcher.
func NewSitemapScanner(f *Fetcher) *SitemapScanner {
	return &SitemapScanner{fetcher: f}
}

// Scan fetches the sitemap for rootURL's host and returns rental-related
// URLs on the same host. Failures return an empty slice; homepage link
// discovery is the fallback seed source.
func (s *SitemapScanner) Scan(ctx context.Context, rootURL string) []string {
	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" {
		return nil
	}

	sitemapURL := root.Scheme + "://" + root.Host + "/sitemap.xml"

	var (
		urls []string
		seen = make(map[string]bool)
		docs int
	)
	s.scan(ctx, sitemapURL, root.Host, 0, &docs, seen, &urls)

	logger.Debug("sitemap scan complete", "host", root.Host, "urls", len(urls))
	return urls
}

func (s *SitemapScanner) scan(ctx context.Context, sitemapURL, host string, depth int, docs *int, seen map[string]bool, out *[]string) {
	if depth > maxSitemapDepth || *docs >= maxSitemapDocs || len(*out) >= maxSitemapURLs {
		return
	}
	*docs++

	page, err := s.fetcher.Fetch(ctx, sitemapURL, nil)
	if err != nil || page.StatusCode != 200 || page.HTML == "" {
		logger.Debug("sitemap unavailable", "url", sitemapURL, "error", err)
		return
	}
	body := []byte(page.HTML)

	// Sitemap index: recurse into child sitemaps.
	var index xmlSitemapIndex
	if err := xml.Unmarshal(body, &index); err == nil && len(index.Sitemaps) > 0 {
		for _, child := range index.Sitemaps {
			loc := strings.TrimSpace(child.Loc)
			if loc == "" || seen[loc] {
				continue
			}
			seen[loc] = true
			s.scan(ctx, loc, host, depth+1, docs, seen, out)
		}
		return
	}

	var urlset xmlURLSet
	if err := xml.Unmarshal(body, &urlset); err != nil {
		logger.Debug("sitemap unparseable", "url", sitemapURL, "error", err)
		return
	}

	for _, entry := range urlset.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" || seen[loc] {
			continue
		}
		seen[loc] = true

		u, err := url.Parse(loc)
		if err != nil || !strings.EqualFold(u.Host, host) {
			continue
		}
		if !rentalRelated(loc) {
			continue
		}
		*out = append(*out, loc)
		if len(*out) >= maxSitemapURLs {
			return
		}
	}
}

func rentalRelated(u string) bool {
	lower := strings.ToLower(u)
	for _, kw := range rentalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
