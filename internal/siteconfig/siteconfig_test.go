package siteconfig

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleYAML = `
sites:
  - host: Example.DE
    provider: beispiel
    listing_link_selector: "a.result"
    listing_url_pattern: "/expose/\\d+"
    next_page_selector: "a.next"
    fields:
      price: ".kaltmiete"
      title: "h1.expose-title"
  - host: other.de
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	site := cfg.ForHost("example.de")
	if site == nil {
		t.Fatal("host lookup must be case-insensitive")
	}
	if site.Provider != "beispiel" {
		t.Errorf("provider = %q", site.Provider)
	}
	if !site.MatchesListingURL("https://example.de/expose/123") {
		t.Error("URL pattern should match")
	}
	if site.MatchesListingURL("https://example.de/kontakt") {
		t.Error("URL pattern should not match")
	}
	if got := site.FieldSelector("price"); got != ".kaltmiete" {
		t.Errorf("price selector = %q", got)
	}
	if got := site.FieldSelector("rooms"); got != "" {
		t.Errorf("unconfigured category should be empty, got %q", got)
	}

	// A host entry without a pattern never matches by pattern.
	other := cfg.ForHost("other.de")
	if other == nil {
		t.Fatal("other.de missing")
	}
	if other.HasURLPattern() || other.MatchesListingURL("https://other.de/expose/1") {
		t.Error("no configured pattern must mean no pattern matches")
	}
	if other.Provider != "other.de" {
		t.Errorf("provider should default to host, got %q", other.Provider)
	}
}

func TestParse_BadPattern(t *testing.T) {
	_, err := Parse([]byte(`
sites:
  - host: example.de
    listing_url_pattern: "([unclosed"
`))
	if err == nil {
		t.Error("expected an error for an invalid pattern")
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.ForHost("example.de") != nil {
		t.Error("empty config should know no hosts")
	}

	cfg, err = Load("")
	if err != nil || cfg == nil {
		t.Fatalf("empty path should give an empty config: %v", err)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ForHost("example.de") == nil {
		t.Error("loaded config missing example.de")
	}
}

func TestForHost_NilConfig(t *testing.T) {
	var cfg *Config
	if cfg.ForHost("example.de") != nil {
		t.Error("nil config should return nil site")
	}
}
