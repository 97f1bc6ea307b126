package extract

import (
	"context"
	"strings"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// listingJSONLDTypes are schema.org node types describing a rental offer.
var listingJSONLDTypes = map[string]bool{
	"Product":               true,
	"Apartment":             true,
	"House":                 true,
	"SingleFamilyResidence": true,
	"Residence":             true,
	"RealEstateListing":     true,
	"Accommodation":         true,
	"Offer":                 true,
	"Room":                  true,
}

// StructuredStrategy reads embedded JSON-LD. Highest trust: values it
// yields are never overwritten by later strategies.
type StructuredStrategy struct{}

// NewStructuredStrategy creates the JSON-LD strategy.
func NewStructuredStrategy() *StructuredStrategy {
	return &StructuredStrategy{}
}

// Name returns the strategy identifier.
func (s *StructuredStrategy) Name() string { return StrategyStructured }

// Extract maps schema.org listing nodes onto a partial record.
func (s *StructuredStrategy) Extract(_ context.Context, page *fetcher.Page, _ *siteconfig.Site) (*listing.Partial, map[listing.Field]string, error) {
	partial := &listing.Partial{}

	for _, node := range page.StructuredData {
		if !isListingNode(node) {
			continue
		}
		s.mapNode(node, partial)
	}

	return partial, nil, nil
}

func isListingNode(node map[string]any) bool {
	switch t := node["@type"].(type) {
	case string:
		return listingJSONLDTypes[t]
	case []any:
		for _, v := range t {
			if s, ok := v.(string); ok && listingJSONLDTypes[s] {
				return true
			}
		}
	}
	return false
}

func (s *StructuredStrategy) mapNode(node map[string]any, p *listing.Partial) {
	if p.Title == "" {
		p.Title = stringValue(node["name"])
	}
	if p.Description == "" {
		p.Description = stringValue(node["description"])
	}

	if p.Price <= 0 {
		if offers, ok := node["offers"].(map[string]any); ok {
			if price, ok := numberValue(offers["price"]); ok && price > 0 {
				p.Price = int(price + 0.5)
			}
		}
		if price, ok := numberValue(node["price"]); p.Price <= 0 && ok && price > 0 {
			p.Price = int(price + 0.5)
		}
	}

	if p.Surface == nil {
		if size, ok := node["floorSize"].(map[string]any); ok {
			if v, ok := numberValue(size["value"]); ok && v > 0 {
				p.Surface = &v
			}
		}
	}

	if p.Rooms == nil {
		if v, ok := numberValue(node["numberOfRooms"]); ok && v > 0 {
			p.Rooms = &v
		}
	}

	if addr, ok := node["address"].(map[string]any); ok {
		locality := stringValue(addr["addressLocality"])
		if p.Location == "" && locality != "" {
			p.Location = locality
		}
		if p.District == "" {
			p.District = stringValue(addr["addressRegion"])
		}
	} else if p.Location == "" {
		p.Location = stringValue(node["address"])
	}

	if geo, ok := node["geo"].(map[string]any); ok && p.Lat == nil {
		lat, okLat := numberValue(geo["latitude"])
		lng, okLng := numberValue(geo["longitude"])
		if okLat && okLng {
			p.Lat = &lat
			p.Lng = &lng
		}
	}

	if len(p.Images) == 0 {
		p.Images = imageValues(node["image"])
	}
}

func stringValue(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		return listing.ParseDecimal(t)
	}
	return 0, false
}

func imageValues(v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case []any:
		var out []string
		for _, item := range t {
			switch img := item.(type) {
			case string:
				out = append(out, img)
			case map[string]any:
				if u := stringValue(img["url"]); u != "" {
					out = append(out, u)
				}
			}
		}
		return out
	case map[string]any:
		if u := stringValue(t["url"]); u != "" {
			return []string{u}
		}
	}
	return nil
}
