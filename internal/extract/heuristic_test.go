package extract

import (
	"context"
	"testing"

	"github.com/mietwatch/mietwatch/internal/listing"
)

const heuristicDetailHTML = `<html>
<head>
<title>Seitentitel</title>
<meta property="og:title" content="3-Zimmer-Wohnung in Leipzig Südvorstadt">
<meta name="description" content="Großzügige Altbauwohnung mit Balkon in der Südvorstadt, ruhige Lage.">
</head>
<body>
<h1>Anders als og:title</h1>
<div class="rent-price">Kaltmiete: 780,00 €</div>
<div class="object-address">04275 Leipzig</div>
<p>Die Wohnung bietet 82,5 m² auf 3 Zimmer, verteilt über eine Etage.
Sie wird unmöbliert vermietet und ist ab dem 1. April verfügbar.</p>
<img src="/fotos/wohnzimmer.jpg">
<img data-src="/fotos/kueche.jpg">
</body></html>`

func TestHeuristic_FullPage(t *testing.T) {
	s := NewHeuristicStrategy()
	page := testPage(t, "https://example.de/expose/42", heuristicDetailHTML, nil)

	partial, selectors, err := s.Extract(context.Background(), page, nil)
	if err != nil {
		t.Fatal(err)
	}

	if partial.Title != "3-Zimmer-Wohnung in Leipzig Südvorstadt" {
		t.Errorf("og:title should win: %q", partial.Title)
	}
	if partial.Price != 780 {
		t.Errorf("expected price 780, got %d", partial.Price)
	}
	if partial.Surface == nil || *partial.Surface != 82.5 {
		t.Errorf("expected surface 82.5, got %v", partial.Surface)
	}
	if partial.Rooms == nil || *partial.Rooms != 3 {
		t.Errorf("expected 3 rooms, got %v", partial.Rooms)
	}
	if partial.Location == "" {
		t.Errorf("expected a location, got none")
	}
	if partial.Description == "" {
		t.Error("expected the meta description")
	}
	if len(partial.Images) != 2 {
		t.Errorf("expected 2 images (src and data-src), got %d", len(partial.Images))
	}
	if partial.Furnished != nil {
		t.Error("an explicitly unfurnished flat must not be flagged furnished")
	}
	if partial.Type != listing.TypeApartment {
		t.Errorf("expected apartment from title token, got %s", partial.Type)
	}

	// The price came from a class-based selector, so a selector hint is
	// recorded for the learner.
	if selectors[listing.FieldPrice] == "" {
		t.Error("expected a price selector hint")
	}
}

func TestHeuristic_TitleFallbacks(t *testing.T) {
	s := NewHeuristicStrategy()

	page := testPage(t, "https://example.de/a", `<html><head><title>Nur Titel</title></head><body></body></html>`, nil)
	partial, _, _ := s.Extract(context.Background(), page, nil)
	if partial.Title != "Nur Titel" {
		t.Errorf("expected title-tag fallback, got %q", partial.Title)
	}

	page = testPage(t, "https://example.de/b", `<html><body><h1>Nur H1</h1></body></html>`, nil)
	partial, _, _ = s.Extract(context.Background(), page, nil)
	if partial.Title != "Nur H1" {
		t.Errorf("expected h1 fallback, got %q", partial.Title)
	}
}

func TestHeuristic_PriceFromPageText(t *testing.T) {
	// No price-ish selectors: the page-wide regex is the last resort and
	// records no selector hint.
	html := `<html><body><h1>Zimmer frei</h1><p>Miete 430 € warm, 16 qm, zentral.</p></body></html>`
	s := NewHeuristicStrategy()
	partial, selectors, _ := s.Extract(context.Background(), testPage(t, "https://example.de/z", html, nil), nil)

	if partial.Price != 430 {
		t.Errorf("expected 430, got %d", partial.Price)
	}
	if selectors[listing.FieldPrice] != "" {
		t.Errorf("regex fallback must not record a selector, got %q", selectors[listing.FieldPrice])
	}
}

func TestHeuristic_FurnishedFlag(t *testing.T) {
	html := `<html><body><h1>Apartment</h1><p>Das Apartment wird vollmöbliert übergeben.</p></body></html>`
	s := NewHeuristicStrategy()
	partial, _, _ := s.Extract(context.Background(), testPage(t, "https://example.de/m", html, nil), nil)

	if partial.Furnished == nil || !*partial.Furnished {
		t.Error("expected furnished=true")
	}
}

func TestHeuristic_PLZLocationFallback(t *testing.T) {
	html := `<html><body><h1>Wohnung</h1><p>Gelegen in 80331 München, nahe Stadtmitte.</p></body></html>`
	s := NewHeuristicStrategy()
	partial, _, _ := s.Extract(context.Background(), testPage(t, "https://example.de/m", html, nil), nil)

	if partial.Location != "München" {
		t.Errorf("expected München from PLZ pattern, got %q", partial.Location)
	}
}
