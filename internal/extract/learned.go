package extract

import (
	"context"
	"net/url"

	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/learn"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
)

// learnedFieldCategories are the categories the learned strategy can
// re-apply a stored selector for.
var learnedFieldCategories = []struct {
	learnCat learn.Category
	category string
}{
	{learn.CategoryTitle, CategoryTitle},
	{learn.CategoryPrice, CategoryPrice},
	{learn.CategorySurface, CategorySurface},
	{learn.CategoryRooms, CategoryRooms},
}

// LearnedStrategy re-applies the host's best-ranked selector per field
// category, as recorded by the pattern learner on earlier crawls.
type LearnedStrategy struct {
	learner *learn.Learner
}

// NewLearnedStrategy creates the learned-pattern strategy.
func NewLearnedStrategy(learner *learn.Learner) *LearnedStrategy {
	return &LearnedStrategy{learner: learner}
}

// Name returns the strategy identifier.
func (s *LearnedStrategy) Name() string { return StrategyLearned }

// Extract applies the best learned selector for each category that has
// one. Hosts with no history yield an empty partial.
func (s *LearnedStrategy) Extract(_ context.Context, page *fetcher.Page, _ *siteconfig.Site) (*listing.Partial, map[listing.Field]string, error) {
	partial := &listing.Partial{}
	if page.Doc == nil {
		return partial, nil, nil
	}

	host := hostOf(page.URL)
	selectors := make(map[listing.Field]string)
	for _, fc := range learnedFieldCategories {
		pattern := s.learner.BestPattern(host, fc.learnCat)
		if pattern == nil || pattern.Selector == "" {
			continue
		}
		applySelector(page.Doc, fc.category, pattern.Selector, partial)
		if f, ok := categoryField[fc.category]; ok {
			selectors[f] = pattern.Selector
		}
	}

	return partial, selectors, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
