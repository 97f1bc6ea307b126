package extract

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// Field category names used in site config files and learned selectors.
const (
	CategoryTitle       = "title"
	CategoryPrice       = "price"
	CategorySurface     = "surface"
	CategoryRooms       = "rooms"
	CategoryLocation    = "location"
	CategoryDistrict    = "district"
	CategoryDescription = "description"
	CategoryImages      = "images"
)

// ConfiguredStrategy applies operator-supplied CSS selectors from the
// site configuration table.
type ConfiguredStrategy struct{}

// NewConfiguredStrategy creates the configured-selector strategy.
func NewConfiguredStrategy() *ConfiguredStrategy {
	return &ConfiguredStrategy{}
}

// Name returns the strategy identifier.
func (s *ConfiguredStrategy) Name() string { return StrategyConfigured }

// Extract applies each configured field selector to the page.
func (s *ConfiguredStrategy) Extract(_ context.Context, page *fetcher.Page, site *siteconfig.Site) (*listing.Partial, map[listing.Field]string, error) {
	partial := &listing.Partial{}
	if site == nil || page.Doc == nil {
		return partial, nil, nil
	}

	selectors := make(map[listing.Field]string)
	for category, selector := range site.Fields {
		applySelector(page.Doc, category, selector, partial)
		if f, ok := categoryField[category]; ok {
			selectors[f] = selector
		}
	}
	return partial, selectors, nil
}

// categoryField maps config category names to listing fields.
var categoryField = map[string]listing.Field{
	CategoryTitle:       listing.FieldTitle,
	CategoryPrice:       listing.FieldPrice,
	CategorySurface:     listing.FieldSurface,
	CategoryRooms:       listing.FieldRooms,
	CategoryLocation:    listing.FieldLocation,
	CategoryDistrict:    listing.FieldDistrict,
	CategoryDescription: listing.FieldDescription,
	CategoryImages:      listing.FieldImages,
}

// applySelector evaluates one CSS selector and parses its text into the
// partial's field for the category. Shared by the configured and learned
// strategies.
func applySelector(doc *goquery.Document, category, selector string, p *listing.Partial) {
	if selector == "" {
		return
	}

	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return
	}
	text := strings.TrimSpace(sel.Text())

	switch category {
	case CategoryTitle:
		if text != "" {
			p.Title = text
		}
	case CategoryPrice:
		if price, ok := listing.ParsePrice(text); ok {
			p.Price = price
		}
	case CategorySurface:
		if v, ok := listing.ParseDecimal(text); ok && v > 0 {
			p.Surface = &v
		}
	case CategoryRooms:
		if v, ok := listing.ParseDecimal(text); ok && v > 0 {
			p.Rooms = &v
		}
	case CategoryLocation:
		if text != "" {
			p.Location = text
		}
	case CategoryDistrict:
		if text != "" {
			p.District = text
		}
	case CategoryDescription:
		if text != "" {
			p.Description = text
		}
	case CategoryImages:
		doc.Find(selector).Each(func(_ int, img *goquery.Selection) {
			if src := imageSrc(img); src != "" {
				p.Images = append(p.Images, src)
			}
		})
	}
}

func imageSrc(s *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-lazy-src"} {
		if v, ok := s.Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}
