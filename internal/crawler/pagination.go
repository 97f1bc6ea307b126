package crawler

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// nextLinkSelectors are tried in order to find a "next page" anchor.
var nextLinkSelectors = []string{
	`a[rel="next"]`,
	`link[rel="next"]`,
	`a[aria-label*="next" i]`,
	`a[aria-label*="nächste" i]`,
	`a[aria-label*="weiter" i]`,
	`a.next`,
	`a.pagination-next`,
}

var nextLinkTextRe = regexp.MustCompile(`(?i)^\s*(next|weiter|nächste|»|›|>)\s*$`)

var pageParamKeys = []string{"page", "seite", "p"}

var trailingPageRe = regexp.MustCompile(`/(page|seite)([/-])(\d+)/?$`)

// PaginationFollower finds the next page of an index; the orchestrator
// bounds how many pages per index URL it follows.
type PaginationFollower struct{}

// NewPaginationFollower creates a PaginationFollower.
func NewPaginationFollower() *PaginationFollower {
	return &PaginationFollower{}
}

// Next returns the next-page URL of an index page, if one is found.
// Operator-configured selectors win over generic detection.
func (p *PaginationFollower) Next(page *fetcher.Page, site *siteconfig.Site) (string, bool) {
	if page.Doc == nil {
		return "", false
	}

	if site != nil && site.NextPageSelector != "" {
		if next := firstHref(page, site.NextPageSelector); next != "" {
			return next, true
		}
	}

	for _, selector := range nextLinkSelectors {
		if next := firstHref(page, selector); next != "" {
			return next, true
		}
	}

	if next := nextByLinkText(page); next != "" {
		return next, true
	}

	if next := incrementPageParam(page.URL); next != "" {
		return next, true
	}

	return "", false
}

func firstHref(page *fetcher.Page, selector string) string {
	var href string
	page.Doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		h, ok := s.Attr("href")
		if !ok || h == "" {
			return true
		}
		href = absoluteURL(h, page.URL)
		return href == ""
	})
	if href != "" && SameOrigin(href, page.URL) {
		return href
	}
	return ""
}

func nextByLinkText(page *fetcher.Page) string {
	var href string
	page.Doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !nextLinkTextRe.MatchString(s.Text()) {
			return true
		}
		h, _ := s.Attr("href")
		href = absoluteURL(h, page.URL)
		return href == ""
	})
	if href != "" && SameOrigin(href, page.URL) {
		return href
	}
	return ""
}

// incrementPageParam synthesizes the next URL when the current one
// carries a page=/seite= query parameter or a trailing page path
// segment. Only applies to URLs already paginated; page 1 URLs without
// markers are left to anchor-based detection.
func incrementPageParam(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	q := u.Query()
	for _, key := range pageParamKeys {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		q.Set(key, strconv.Itoa(n+1))
		u.RawQuery = q.Encode()
		return u.String()
	}

	// Keep the site's own key and separator: /seite/3 advances to
	// /seite/4, /page-2 to /page-3.
	if m := trailingPageRe.FindStringSubmatch(u.Path); m != nil {
		n, err := strconv.Atoi(m[3])
		if err != nil {
			return ""
		}
		u.Path = trailingPageRe.ReplaceAllString(u.Path, "")
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + m[1] + m[2] + strconv.Itoa(n+1)
		return u.String()
	}

	return ""
}
