// Package classify decides whether a fetched page is a listing index, a
// listing detail page, or noise. This single decision gates all
// downstream extraction work.
package classify

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mietwatch/mietwatch/internal/fetcher"
)

// Kind is the classification outcome.
type Kind string

const (
	KindIndex  Kind = "index"
	KindDetail Kind = "detail"
	KindNoise  Kind = "noise"
)

// Config holds the classifier's tunable thresholds. The defaults are
// empirical, not invariants.
type Config struct {
	// MinIndexLinks/MaxIndexLinks bound the listing-link count for an
	// index page. Below the minimum is probably a "related listings"
	// widget; above the maximum an unfiltered catalog mixing in noise.
	MinIndexLinks int
	MaxIndexLinks int

	// MinRepeatedContainers is the sibling-container count treated as a
	// result-list signal.
	MinRepeatedContainers int
}

// DefaultConfig returns the default thresholds.
func DefaultConfig() Config {
	return Config{
		MinIndexLinks:         10,
		MaxIndexLinks:         290,
		MinRepeatedContainers: 4,
	}
}

// Result carries the classification and the signals it was based on,
// for logging and tests.
type Result struct {
	Kind           Kind
	ListingLinks   int
	RepeatedGroups int
	Reason         string
}

// Classifier is a state-free page classifier.
type Classifier struct {
	config Config
}

// New creates a Classifier.
func New(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.MinIndexLinks == 0 {
		cfg.MinIndexLinks = def.MinIndexLinks
	}
	if cfg.MaxIndexLinks == 0 {
		cfg.MaxIndexLinks = def.MaxIndexLinks
	}
	if cfg.MinRepeatedContainers == 0 {
		cfg.MinRepeatedContainers = def.MinRepeatedContainers
	}
	return &Classifier{config: cfg}
}

// listingURLShapeRe matches URL shapes typical of single-listing pages.
var listingURLShapeRe = regexp.MustCompile(`(?i)(/expose/|/anzeige/|/inserat/|/wohnung/|/immobilie/|/rooms?/|[/_-]\d{4,}(?:\.html?|/)?(?:$|\?))`)

var (
	priceTokenRe   = regexp.MustCompile(`(?i)\d[\d.,\s]*\s*(?:€|eur\b|euro\b)|(?:kaltmiete|warmmiete|miete)\s*:?\s*\d`)
	surfaceTokenRe = regexp.MustCompile(`(?i)\d[\d.,]*\s*(?:m²|m2\b|qm\b|sq\.?\s?ft)`)
	roomsTokenRe   = regexp.MustCompile(`(?i)\d[\d.,]*\s*(?:zimmer|zi\.|rooms?\b|bedrooms?\b)`)
	noiseKeywordRe = regexp.MustCompile(`(?i)\b(impressum|datenschutz|privacy policy|terms of (?:use|service)|agb|cookie-richtlinie|login|sign in|anmelden|registrieren|kontaktformular|karriere|jobs bei|pressemitteilung|404|seite nicht gefunden|page not found)\b`)
)

// Classify inspects one fetched page. Ambiguous pages come back as
// noise; wasted extraction attempts cost more than a skipped page.
func (c *Classifier) Classify(page *fetcher.Page) Result {
	if page.Doc == nil {
		return Result{Kind: KindNoise, Reason: "no parsed document"}
	}

	links := c.countListingLinks(page)
	groups := c.countRepeatedContainers(page.Doc)

	inRange := func(n int) bool { return n >= c.config.MinIndexLinks && n <= c.config.MaxIndexLinks }

	if inRange(links) || inRange(groups) {
		return Result{
			Kind:           KindIndex,
			ListingLinks:   links,
			RepeatedGroups: groups,
			Reason:         fmt.Sprintf("%d listing links, %d repeated containers", links, groups),
		}
	}

	if c.looksLikeDetail(page) {
		return Result{
			Kind:         KindDetail,
			ListingLinks: links,
			Reason:       "price and surface/rooms tokens present",
		}
	}

	return Result{
		Kind:           KindNoise,
		ListingLinks:   links,
		RepeatedGroups: groups,
		Reason:         "no index or detail signals",
	}
}

// countListingLinks counts distinct anchors whose href matches a known
// listing URL shape.
func (c *Classifier) countListingLinks(page *fetcher.Page) int {
	base, _ := url.Parse(page.URL)
	seen := make(map[string]bool)

	page.Doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return
		}
		u, err := url.Parse(href)
		if err != nil {
			return
		}
		if !u.IsAbs() && base != nil {
			u = base.ResolveReference(u)
		}
		abs := u.String()
		if !listingURLShapeRe.MatchString(u.Path + pathQuerySuffix(u)) {
			return
		}
		seen[abs] = true
	})

	return len(seen)
}

func pathQuerySuffix(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

// countRepeatedContainers finds the largest group of sibling elements
// sharing a tag and class that each contain a link. Result lists render
// as many near-identical cards.
func (c *Classifier) countRepeatedContainers(doc *goquery.Document) int {
	counts := make(map[string]int)

	doc.Find("div[class], li[class], article[class]").Each(func(_ int, s *goquery.Selection) {
		if s.Find("a[href]").Length() == 0 {
			return
		}
		class, _ := s.Attr("class")
		class = strings.Join(strings.Fields(class), " ")
		if class == "" {
			return
		}
		key := goquery.NodeName(s) + "." + class
		counts[key]++
	})

	max := 0
	for _, n := range counts {
		if n > max {
			max = n
		}
	}
	if max < c.config.MinRepeatedContainers {
		return 0
	}
	return max
}

// looksLikeDetail checks for a plausible price token plus at least one
// of surface/rooms, absent noise signatures.
func (c *Classifier) looksLikeDetail(page *fetcher.Page) bool {
	text := page.Doc.Text()

	if !priceTokenRe.MatchString(text) {
		return false
	}
	if !surfaceTokenRe.MatchString(text) && !roomsTokenRe.MatchString(text) {
		return false
	}

	title := page.Doc.Find("title").Text() + " " + page.Doc.Find("h1").Text()
	if noiseKeywordRe.MatchString(title) || noiseKeywordRe.MatchString(page.URL) {
		return false
	}

	// Blog markup: per-article timestamps/authors.
	if page.Doc.Find("article time, .post-meta, [rel=author]").Length() > 0 {
		return false
	}

	// Navigation-heavy pages: most of the visible text lives in links.
	if linkDensity(page.Doc) > 0.65 {
		return false
	}

	return true
}

func linkDensity(doc *goquery.Document) float64 {
	body := doc.Find("body")
	total := len(strings.Join(strings.Fields(body.Text()), " "))
	if total == 0 {
		return 1
	}
	linked := 0
	body.Find("a").Each(func(_ int, s *goquery.Selection) {
		linked += len(strings.Join(strings.Fields(s.Text()), " "))
	})
	return float64(linked) / float64(total)
}
