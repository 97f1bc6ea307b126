package crawler

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/learn"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// Candidate is a detail-page URL found on an index page, tagged with how
// it was found so later extraction success can credit the pattern.
type Candidate struct {
	URL      string
	Strategy string // "configured", "learned" or "generic"
	Selector string

	// IsPattern marks Selector as a URL regexp. CSS selectors cannot be
	// replayed against bare URLs, so only pattern candidates feed the
	// learned listing-url replay.
	IsPattern bool
}

// Discovery strategy names recorded on listing-url patterns.
const (
	ViaConfigured = "configured"
	ViaLearned    = "learned"
	ViaGeneric    = "generic"
)

// genericListingHrefRe matches hrefs that look like a single listing:
// a numeric id of at least 4 digits, or a known detail path segment.
var genericListingHrefRe = regexp.MustCompile(`(?i)(/expose/|/anzeige/|/inserat/|/immobilie/|/rooms?/|[/_-]\d{4,}(?:\.html?)?(?:$|[/?]))`)

// searchishRe rejects URLs that are further search/filter pages rather
// than single listings.
var searchishRe = regexp.MustCompile(`(?i)([?&](page|seite|sort|filter|q|suche)=|/(suche|search|filter)(/|$))`)

// LinkExtractor pulls candidate detail URLs out of an index page.
type LinkExtractor struct {
	learner *learn.Learner
}

// NewLinkExtractor creates a LinkExtractor.
func NewLinkExtractor(learner *learn.Learner) *LinkExtractor {
	return &LinkExtractor{learner: learner}
}

// Extract tries, in order: operator-configured selectors/patterns, the
// host's best learned listing-url pattern, then generic heuristics. The
// first source that yields candidates wins.
func (e *LinkExtractor) Extract(page *fetcher.Page, site *siteconfig.Site) []Candidate {
	if page.Doc == nil {
		return nil
	}

	if site != nil {
		if candidates := e.fromConfigured(page, site); len(candidates) > 0 {
			return candidates
		}
	}

	if candidates := e.fromLearned(page); len(candidates) > 0 {
		return candidates
	}

	return e.fromGeneric(page)
}

func (e *LinkExtractor) fromConfigured(page *fetcher.Page, site *siteconfig.Site) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)

	if site.ListingLinkSelector != "" {
		collectLinks(page, site.ListingLinkSelector, func(abs string) {
			if acceptCandidate(abs, page.URL, seen) {
				out = append(out, Candidate{URL: abs, Strategy: ViaConfigured, Selector: site.ListingLinkSelector})
			}
		})
	}

	if site.HasURLPattern() {
		collectLinks(page, "a[href]", func(abs string) {
			if site.MatchesListingURL(abs) && acceptCandidate(abs, page.URL, seen) {
				out = append(out, Candidate{URL: abs, Strategy: ViaConfigured, Selector: site.ListingURLPattern, IsPattern: true})
			}
		})
	}

	return out
}

func (e *LinkExtractor) fromLearned(page *fetcher.Page) []Candidate {
	host := hostOf(page.URL)
	pattern := e.learner.BestPattern(host, learn.CategoryListingURL)
	if pattern == nil || pattern.Selector == "" {
		return nil
	}

	re, err := regexp.Compile(pattern.Selector)
	if err != nil {
		return nil
	}

	var out []Candidate
	seen := make(map[string]bool)
	collectLinks(page, "a[href]", func(abs string) {
		if re.MatchString(abs) && acceptCandidate(abs, page.URL, seen) {
			out = append(out, Candidate{URL: abs, Strategy: ViaLearned, Selector: pattern.Selector, IsPattern: true})
		}
	})
	return out
}

func (e *LinkExtractor) fromGeneric(page *fetcher.Page) []Candidate {
	var out []Candidate
	seen := make(map[string]bool)

	collectLinks(page, "a[href]", func(abs string) {
		u, err := url.Parse(abs)
		if err != nil {
			return
		}
		if !genericListingHrefRe.MatchString(u.Path) && !genericListingHrefRe.MatchString(abs) {
			return
		}
		if acceptCandidate(abs, page.URL, seen) {
			out = append(out, Candidate{URL: abs, Strategy: ViaGeneric, Selector: genericListingHrefRe.String(), IsPattern: true})
		}
	})

	// data-id carrying containers with a link inside are a result-card
	// convention some sites use without id-bearing hrefs.
	page.Doc.Find("[data-id] a[href], [data-listing-id] a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := absoluteURL(href, page.URL)
		if abs == "" {
			return
		}
		if acceptCandidate(abs, page.URL, seen) {
			out = append(out, Candidate{URL: abs, Strategy: ViaGeneric, Selector: "[data-id] a"})
		}
	})

	return out
}

// collectLinks resolves each matching anchor's href to absolute and
// passes it to fn.
func collectLinks(page *fetcher.Page, selector string, fn func(abs string)) {
	page.Doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if abs := absoluteURL(href, page.URL); abs != "" {
			fn(abs)
		}
	})
}

// acceptCandidate keeps a URL only if it is same-origin with the page it
// was found on, not an obvious search/filter URL, and not yet seen.
func acceptCandidate(abs, pageURL string, seen map[string]bool) bool {
	if !SameOrigin(abs, pageURL) {
		return false
	}
	if searchishRe.MatchString(abs) {
		return false
	}
	normalized := NormalizeURL(abs)
	if normalized == "" || seen[normalized] {
		return false
	}
	seen[normalized] = true
	return true
}

func absoluteURL(href, baseURL string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if !u.IsAbs() {
		base, err := url.Parse(baseURL)
		if err != nil {
			return ""
		}
		u = base.ResolveReference(u)
	}
	u.Fragment = ""
	return u.String()
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}
