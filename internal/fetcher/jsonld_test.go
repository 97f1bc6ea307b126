package fetcher

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestParseJSONLD_FlattensGraphAndArrays(t *testing.T) {
	html := `<html><head>
	<script type="application/ld+json">
	{"@graph": [
		{"@type": "Apartment", "name": "A"},
		{"@type": "Organization", "name": "B"}
	]}
	</script>
	<script type="application/ld+json">
	[{"@type": "Offer", "price": "900"}]
	</script>
	<script type="application/ld+json">not json at all</script>
	</head><body></body></html>`

	nodes := parseJSONLD(docFromHTML(t, html))
	if len(nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %d: %v", len(nodes), nodes)
	}

	names := make(map[any]bool)
	for _, n := range nodes {
		names[n["name"]] = true
	}
	if !names["A"] || !names["B"] {
		t.Errorf("@graph members missing: %v", nodes)
	}
}

func TestParseJSONLD_Empty(t *testing.T) {
	if nodes := parseJSONLD(docFromHTML(t, "<html><body></body></html>")); nodes != nil {
		t.Errorf("expected nil for a page without JSON-LD, got %v", nodes)
	}
}
