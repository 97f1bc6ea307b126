package crawler

import (
	"testing"

	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

func TestNext_RelNext(t *testing.T) {
	html := `<html><body><a rel="next" href="/suche?page=2">Weiter</a></body></html>`
	p := NewPaginationFollower()

	next, ok := p.Next(pageFromHTML(t, "https://example.de/suche", html), nil)
	if !ok || next != "https://example.de/suche?page=2" {
		t.Errorf("got %q, %v", next, ok)
	}
}

func TestNext_LinkText(t *testing.T) {
	tests := []string{"Weiter", "nächste", "»", "Next"}
	for _, label := range tests {
		html := `<html><body><a href="/suche/2">` + label + `</a></body></html>`
		p := NewPaginationFollower()
		next, ok := p.Next(pageFromHTML(t, "https://example.de/suche", html), nil)
		if !ok || next != "https://example.de/suche/2" {
			t.Errorf("label %q: got %q, %v", label, next, ok)
		}
	}
}

func TestNext_ConfiguredSelectorWins(t *testing.T) {
	html := `<html><body>
	<a rel="next" href="/wrong">generic</a>
	<a class="custom-next" href="/suche?seite=5">custom</a>
	</body></html>`

	cfg, err := siteconfig.Parse([]byte(`
sites:
  - host: example.de
    next_page_selector: "a.custom-next"
`))
	if err != nil {
		t.Fatal(err)
	}

	p := NewPaginationFollower()
	next, ok := p.Next(pageFromHTML(t, "https://example.de/suche", html), cfg.ForHost("example.de"))
	if !ok || next != "https://example.de/suche?seite=5" {
		t.Errorf("got %q, %v", next, ok)
	}
}

func TestNext_IncrementPageParam(t *testing.T) {
	// No next anchor at all; the URL itself carries the page marker.
	html := `<html><body><p>Ergebnisse</p></body></html>`
	p := NewPaginationFollower()

	next, ok := p.Next(pageFromHTML(t, "https://example.de/suche?page=3", html), nil)
	if !ok || next != "https://example.de/suche?page=4" {
		t.Errorf("query param: got %q, %v", next, ok)
	}

	next, ok = p.Next(pageFromHTML(t, "https://example.de/mieten/page/2", html), nil)
	if !ok || next != "https://example.de/mieten/page/3" {
		t.Errorf("path segment: got %q, %v", next, ok)
	}

	// The site's own scheme survives: seite stays seite, a dash stays
	// a dash.
	next, ok = p.Next(pageFromHTML(t, "https://example.de/mieten/seite/3", html), nil)
	if !ok || next != "https://example.de/mieten/seite/4" {
		t.Errorf("seite segment: got %q, %v", next, ok)
	}

	next, ok = p.Next(pageFromHTML(t, "https://example.de/mieten/page-2", html), nil)
	if !ok || next != "https://example.de/mieten/page-3" {
		t.Errorf("dash separator: got %q, %v", next, ok)
	}

	// An unpaginated URL yields nothing; inventing page 2 without an
	// anchor risks crawling a redirect loop.
	if next, ok = p.Next(pageFromHTML(t, "https://example.de/mieten", html), nil); ok {
		t.Errorf("expected no next page, got %q", next)
	}
}

func TestNext_RejectsOffsiteAnchor(t *testing.T) {
	html := `<html><body><a rel="next" href="https://tracker.example.com/suche?page=2">Weiter</a></body></html>`
	p := NewPaginationFollower()

	if next, ok := p.Next(pageFromHTML(t, "https://example.de/suche", html), nil); ok {
		t.Errorf("off-site next link must be ignored, got %q", next)
	}
}
