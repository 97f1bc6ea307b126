package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

var (
	heuristicPriceRe   = regexp.MustCompile(`(?i)(\d[\d.,\s]*\d|\d)\s*(?:€|eur\b|euro\b)`)
	heuristicSurfaceRe = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(?:m²|m2\b|qm\b)`)
	heuristicRoomsRe   = regexp.MustCompile(`(?i)(\d[\d.,]*)\s*(?:zimmer|zi\.|rooms?\b)`)
	plzCityRe          = regexp.MustCompile(`\b\d{5}\s+([A-ZÄÖÜ][a-zäöüß]+(?:[ -][A-ZÄÖÜ][a-zäöüß]+)*)`)
	furnishedRe        = regexp.MustCompile(`(?i)\b(möbliert|furnished|vollmöbliert)\b`)
	unfurnishedRe      = regexp.MustCompile(`(?i)\b(unmöbliert|unfurnished|nicht möbliert)\b`)
)

// priceySelectors are element selectors likely to carry the asking rent,
// tried before falling back to a whole-page regex scan.
var priceySelectors = []string{
	"[class*=price]", "[id*=price]", "[class*=miete]", "[class*=kaltmiete]",
	"[itemprop=price]", "[data-price]",
}

// HeuristicStrategy extracts fields via regex and generic markup
// conventions. Lowest trust, but works on hosts never seen before.
type HeuristicStrategy struct{}

// NewHeuristicStrategy creates the heuristic strategy.
func NewHeuristicStrategy() *HeuristicStrategy {
	return &HeuristicStrategy{}
}

// Name returns the strategy identifier.
func (s *HeuristicStrategy) Name() string { return StrategyHeuristic }

// Extract scans visible text and common markup for listing fields.
func (s *HeuristicStrategy) Extract(_ context.Context, page *fetcher.Page, _ *siteconfig.Site) (*listing.Partial, map[listing.Field]string, error) {
	partial := &listing.Partial{}
	if page.Doc == nil {
		return partial, nil, nil
	}
	doc := page.Doc
	selectors := make(map[listing.Field]string)

	text := visibleText(doc)

	s.extractTitle(doc, partial)
	s.extractPrice(doc, text, partial, selectors)

	if m := heuristicSurfaceRe.FindStringSubmatch(text); m != nil {
		if v, ok := listing.ParseDecimal(m[1]); ok && v > 0 {
			partial.Surface = &v
		}
	}
	if m := heuristicRoomsRe.FindStringSubmatch(text); m != nil {
		if v, ok := listing.ParseDecimal(m[1]); ok && v > 0 {
			partial.Rooms = &v
		}
	}

	s.extractLocation(doc, text, partial)
	s.extractDescription(doc, partial)
	s.extractImages(doc, partial)

	if furnishedRe.MatchString(text) && !unfurnishedRe.MatchString(text) {
		t := true
		partial.Furnished = &t
	}
	if typ := listing.MapType(partial.Title + " " + partial.Description); typ != listing.TypeOther {
		partial.Type = typ
	}

	return partial, selectors, nil
}

func (s *HeuristicStrategy) extractTitle(doc *goquery.Document, p *listing.Partial) {
	if og, ok := doc.Find(`meta[property="og:title"]`).Attr("content"); ok && strings.TrimSpace(og) != "" {
		p.Title = strings.TrimSpace(og)
		return
	}
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		p.Title = h1
		return
	}
	p.Title = strings.TrimSpace(doc.Find("title").First().Text())
}

func (s *HeuristicStrategy) extractPrice(doc *goquery.Document, text string, p *listing.Partial, selectors map[listing.Field]string) {
	for _, sel := range priceySelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		if price, ok := listing.ParsePrice(node.Text()); ok {
			p.Price = price
			selectors[listing.FieldPrice] = sel
			return
		}
	}

	if m := heuristicPriceRe.FindStringSubmatch(text); m != nil {
		if price, ok := listing.ParsePrice(m[1]); ok {
			p.Price = price
		}
	}
}

func (s *HeuristicStrategy) extractLocation(doc *goquery.Document, text string, p *listing.Partial) {
	for _, sel := range []string{"address", "[class*=address]", "[class*=location]", "[itemprop=address]"} {
		if loc := strings.TrimSpace(doc.Find(sel).First().Text()); loc != "" {
			p.Location = strings.Join(strings.Fields(loc), " ")
			return
		}
	}
	if m := plzCityRe.FindStringSubmatch(text); m != nil {
		p.Location = m[1]
	}
}

func (s *HeuristicStrategy) extractDescription(doc *goquery.Document, p *listing.Partial) {
	if meta, ok := doc.Find(`meta[name="description"]`).Attr("content"); ok && len(strings.TrimSpace(meta)) >= 40 {
		p.Description = strings.TrimSpace(meta)
		return
	}

	longest := ""
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		t := strings.TrimSpace(sel.Text())
		if len(t) > len(longest) {
			longest = t
		}
	})
	if len(longest) >= 80 {
		p.Description = longest
	}
}

func (s *HeuristicStrategy) extractImages(doc *goquery.Document, p *listing.Partial) {
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		if src := imageSrc(img); src != "" {
			p.Images = append(p.Images, src)
		}
	})
}

// visibleText returns the page text without script/style noise.
func visibleText(doc *goquery.Document) string {
	clone := doc.Clone()
	clone.Find("script, style, noscript").Remove()
	return clone.Find("body").Text()
}
