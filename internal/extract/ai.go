package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/llm"
	"github.com/mietwatch/mietwatch/internal/logger"
	"github.com/mietwatch/mietwatch/internal/ratelimit"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// maxAIContentBytes bounds the page text sent to the LLM.
const maxAIContentBytes = 40 * 1024

const aiSystemPrompt = `You extract rental listing data from web page text.
Return only facts present in the content. If the page is not a single
rental listing (search results, blog post, error page, ad landing page),
set is_valid_listing to false and leave the other fields empty.`

// aiResponse is the JSON shape requested from the LLM.
type aiResponse struct {
	IsValidListing bool     `json:"is_valid_listing"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	Location       string   `json:"location"`
	District       string   `json:"district"`
	Surface        float64  `json:"surface"`
	Rooms          float64  `json:"rooms"`
	PropertyType   string   `json:"property_type"`
	Furnished      *bool    `json:"furnished"`
	Images         []string `json:"images"`
}

// aiSchema is the structured-output schema sent with every request.
var aiSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"is_valid_listing": map[string]any{"type": "boolean"},
		"title":            map[string]any{"type": "string"},
		"description":      map[string]any{"type": "string"},
		"price":            map[string]any{"type": "number", "description": "monthly rent as a plain number"},
		"location":         map[string]any{"type": "string"},
		"district":         map[string]any{"type": "string"},
		"surface":          map[string]any{"type": "number", "description": "living area in square meters"},
		"rooms":            map[string]any{"type": "number"},
		"property_type":    map[string]any{"type": "string", "enum": []any{"apartment", "house", "studio", "room", "other"}},
		"furnished":        map[string]any{"type": "boolean"},
		"images":           map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
	"required": []any{"is_valid_listing"},
}

// AIStrategy invokes an external LLM as the last-resort extractor,
// gated by a global call budget. Its not-a-listing veto is final.
type AIStrategy struct {
	provider llm.Provider
	budget   *ratelimit.Budget
}

// NewAIStrategy creates the AI strategy. budget may not be nil; the
// orchestrator owns the global rate windows.
func NewAIStrategy(provider llm.Provider, budget *ratelimit.Budget) *AIStrategy {
	return &AIStrategy{provider: provider, budget: budget}
}

// Name returns the strategy identifier.
func (s *AIStrategy) Name() string { return StrategyAI }

// Extract sends the page text to the LLM and maps the response to a
// partial record. Blocks until the global budget admits the call.
func (s *AIStrategy) Extract(ctx context.Context, page *fetcher.Page, _ *siteconfig.Site) (*listing.Partial, map[listing.Field]string, error) {
	if err := s.budget.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("ai budget wait: %w", err)
	}

	content := page.HTML
	if page.Doc != nil {
		content = visibleText(page.Doc)
	}
	content = strings.Join(strings.Fields(content), " ")
	if len(content) > maxAIContentBytes {
		content = content[:maxAIContentBytes]
	}

	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: aiSystemPrompt},
			{Role: llm.RoleUser, Content: fmt.Sprintf("URL: %s\n\nPage content:\n%s", page.URL, content)},
		},
		Temperature: 0.1,
		JSONSchema:  aiSchema,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ai completion: %w", err)
	}

	logger.Debug("ai extraction complete",
		"url", page.URL,
		"provider", s.provider.Name(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens)

	var parsed aiResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, nil, fmt.Errorf("ai response parse: %w", err)
	}

	if !parsed.IsValidListing {
		return nil, nil, ErrVetoed
	}

	partial := &listing.Partial{
		Title:       strings.TrimSpace(parsed.Title),
		Description: strings.TrimSpace(parsed.Description),
		Location:    strings.TrimSpace(parsed.Location),
		District:    strings.TrimSpace(parsed.District),
		Furnished:   parsed.Furnished,
		Images:      parsed.Images,
	}
	if parsed.Price > 0 {
		partial.Price = int(parsed.Price + 0.5)
	}
	if parsed.Surface > 0 {
		v := parsed.Surface
		partial.Surface = &v
	}
	if parsed.Rooms > 0 {
		v := parsed.Rooms
		partial.Rooms = &v
	}
	if parsed.PropertyType != "" {
		partial.Type = listing.MapType(parsed.PropertyType)
	}

	return partial, nil, nil
}
