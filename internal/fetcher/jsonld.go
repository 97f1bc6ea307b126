package fetcher

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// parseJSONLD extracts all JSON-LD nodes embedded in the document.
// Top-level arrays and @graph containers are flattened so consumers see
// a plain list of nodes.
func parseJSONLD(doc *goquery.Document) []map[string]any {
	var nodes []map[string]any

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}

		var parsed any
		if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
			return
		}
		nodes = append(nodes, flattenJSONLD(parsed)...)
	})

	return nodes
}

func flattenJSONLD(v any) []map[string]any {
	switch t := v.(type) {
	case []any:
		var out []map[string]any
		for _, item := range t {
			out = append(out, flattenJSONLD(item)...)
		}
		return out
	case map[string]any:
		if graph, ok := t["@graph"]; ok {
			out := flattenJSONLD(graph)
			// The wrapper itself may still carry a @type of interest.
			if _, hasType := t["@type"]; hasType {
				out = append(out, t)
			}
			return out
		}
		return []map[string]any{t}
	default:
		return nil
	}
}
