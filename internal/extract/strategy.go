// Package extract turns detail-page HTML into partial listing records
// via an ordered chain of strategies: configured selectors, structured
// data, learned patterns, generic heuristics, and an optional external
// AI fallback.
package extract

import (
	"context"
	"errors"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/learn"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/logger"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// Strategy names, also used as learner keys.
const (
	StrategyConfigured = "configured"
	StrategyStructured = "structured"
	StrategyLearned    = "learned"
	StrategyHeuristic  = "heuristic"
	StrategyAI         = "ai"
)

// ErrVetoed is returned when the AI strategy flags the page as not a
// real listing. The page must be rejected, not persisted.
var ErrVetoed = errors.New("page vetoed by ai strategy")

// Strategy is one pluggable extraction algorithm. The returned selector
// map names, per filled field, the CSS selector that produced the value
// (when one exists) so the learner can replay it on later crawls.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, page *fetcher.Page, site *siteconfig.Site) (*listing.Partial, map[listing.Field]string, error)
}

// strategyTrust weights per-strategy confidence contributions.
var strategyTrust = map[string]float64{
	StrategyConfigured: 0.95,
	StrategyStructured: 1.0,
	StrategyLearned:    0.85,
	StrategyHeuristic:  0.6,
	StrategyAI:         0.7,
}

// Result is the outcome of running the chain on one page. Ephemeral,
// never persisted.
type Result struct {
	Partial    *listing.Partial
	FilledBy   map[listing.Field]string // field -> strategy that filled it
	SelectorOf map[listing.Field]string // field -> selector, when one applies
	Tried      []string
	Confidence float64
}

// Chain runs strategies in the host's learned priority order,
// short-circuiting once the required fields are filled. Later strategies
// only fill gaps; they never overwrite an earlier strategy's value.
type Chain struct {
	structured *StructuredStrategy
	learned    *LearnedStrategy
	heuristic  *HeuristicStrategy
	configured *ConfiguredStrategy
	ai         *AIStrategy // nil when no AI provider is configured

	learner *learn.Learner
}

// canonicalOrder is the default strategy order before any learning.
var canonicalOrder = []string{StrategyStructured, StrategyLearned, StrategyHeuristic}

// NewChain builds the strategy chain. ai may be nil.
func NewChain(learner *learn.Learner, ai *AIStrategy) *Chain {
	return &Chain{
		structured: NewStructuredStrategy(),
		learned:    NewLearnedStrategy(learner),
		heuristic:  NewHeuristicStrategy(),
		configured: NewConfiguredStrategy(),
		ai:         ai,
		learner:    learner,
	}
}

func (c *Chain) byName(name string) Strategy {
	switch name {
	case StrategyStructured:
		return c.structured
	case StrategyLearned:
		return c.learned
	case StrategyHeuristic:
		return c.heuristic
	default:
		return nil
	}
}

// Extract runs the chain for a detail page on the given host.
// The AI strategy, when configured, runs only if the ranked strategies
// leave required fields empty, and its not-a-listing veto is final.
func (c *Chain) Extract(ctx context.Context, page *fetcher.Page, host string, site *siteconfig.Site) (*Result, error) {
	result := &Result{
		Partial:    &listing.Partial{},
		FilledBy:   make(map[listing.Field]string),
		SelectorOf: make(map[listing.Field]string),
	}

	// Operator-configured selectors are the highest-priority source and
	// are not subject to learned ranking.
	if site != nil && len(site.Fields) > 0 {
		c.runStrategy(ctx, c.configured, page, site, result)
	}

	order := c.learner.RankStrategies(host, canonicalOrder)
	for _, name := range order {
		if result.Partial.RequiredFilled() {
			break
		}
		s := c.byName(name)
		if s == nil {
			continue
		}
		c.runStrategy(ctx, s, page, site, result)
	}

	if c.ai != nil && !result.Partial.RequiredFilled() {
		partial, _, err := c.ai.Extract(ctx, page, site)
		result.Tried = append(result.Tried, StrategyAI)
		switch {
		case errors.Is(err, ErrVetoed):
			return result, ErrVetoed
		case err != nil:
			logger.Warn("ai strategy failed", "url", page.URL, "error", err)
		default:
			mergeInto(result, partial, nil, StrategyAI)
		}
	}

	result.Confidence = confidence(result)
	return result, nil
}

func (c *Chain) runStrategy(ctx context.Context, s Strategy, page *fetcher.Page, site *siteconfig.Site, result *Result) {
	partial, selectors, err := s.Extract(ctx, page, site)
	result.Tried = append(result.Tried, s.Name())
	if err != nil {
		logger.Debug("strategy failed", "strategy", s.Name(), "url", page.URL, "error", err)
		return
	}
	mergeInto(result, partial, selectors, s.Name())
}

// mergeInto fills the result's gaps from partial and records which
// strategy (and selector, if any) supplied each newly filled field.
func mergeInto(result *Result, partial *listing.Partial, selectors map[listing.Field]string, strategy string) {
	if partial == nil {
		return
	}
	before := make(map[listing.Field]bool)
	for _, f := range result.Partial.FilledFields() {
		before[f] = true
	}

	result.Partial.Merge(partial)

	for _, f := range result.Partial.FilledFields() {
		if !before[f] {
			result.FilledBy[f] = strategy
			if sel := selectors[f]; sel != "" {
				result.SelectorOf[f] = sel
			}
		}
	}
}

// confidence scores the result from which fields were filled and by
// which strategy. Required fields carry double weight.
func confidence(r *Result) float64 {
	if len(r.FilledBy) == 0 {
		return 0
	}
	weights := map[listing.Field]float64{
		listing.FieldTitle:    2,
		listing.FieldPrice:    2,
		listing.FieldLocation: 2,
	}
	var total, max float64
	for _, f := range []listing.Field{
		listing.FieldTitle, listing.FieldPrice, listing.FieldLocation,
		listing.FieldSurface, listing.FieldRooms, listing.FieldType,
		listing.FieldImages, listing.FieldDescription,
	} {
		w := weights[f]
		if w == 0 {
			w = 1
		}
		max += w
		if strategy, ok := r.FilledBy[f]; ok {
			total += w * strategyTrust[strategy]
		}
	}
	return total / max
}

// LearnableCategories maps listing fields to learner categories.
var LearnableCategories = map[listing.Field]learn.Category{
	listing.FieldTitle:   learn.CategoryTitle,
	listing.FieldPrice:   learn.CategoryPrice,
	listing.FieldSurface: learn.CategorySurface,
	listing.FieldRooms:   learn.CategoryRooms,
}
