// Package learn tracks which extraction strategies and selectors work per
// host, so repeated crawls converge on the cheapest successful strategy.
package learn

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Category is the field category a learned pattern applies to.
type Category string

const (
	CategoryPrice      Category = "price"
	CategorySurface    Category = "surface"
	CategoryRooms      Category = "rooms"
	CategoryTitle      Category = "title"
	CategoryListingURL Category = "listing_url"
)

// LearnedPattern records how well one strategy/selector pair performed
// for a field category on a host.
type LearnedPattern struct {
	Category   Category  `json:"category"`
	Strategy   string    `json:"strategy"`
	Selector   string    `json:"selector,omitempty"`
	Successes  int       `json:"successes"`
	Failures   int       `json:"failures"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// Score is the pattern's success ratio. Patterns that never ran score 0.
func (p *LearnedPattern) Score() float64 {
	total := p.Successes + p.Failures
	if total == 0 {
		return 0
	}
	return float64(p.Successes) / float64(total)
}

// SiteProfile is everything learned and configured about one host. It is
// created on first contact and never deleted, so learning compounds
// across runs.
type SiteProfile struct {
	Host            string            `json:"host"`
	Provider        string            `json:"provider"`
	DisallowedPaths []string          `json:"disallowed_paths,omitempty"`
	Patterns        []*LearnedPattern `json:"patterns,omitempty"`
}

// Store persists site profiles between runs.
type Store interface {
	LoadProfiles(ctx context.Context) (map[string]*SiteProfile, error)
	SaveProfile(ctx context.Context, p *SiteProfile) error
}

// Learner owns the in-memory learning state for one orchestrator
// instance. All methods are safe for concurrent use.
type Learner struct {
	mu       sync.Mutex
	profiles map[string]*SiteProfile
	store    Store
	now      func() time.Time
}

// New creates a Learner backed by the given store. A nil store keeps
// learning in memory only.
func New(store Store) *Learner {
	return &Learner{
		profiles: make(map[string]*SiteProfile),
		store:    store,
		now:      time.Now,
	}
}

// Load reads persisted profiles from the store.
func (l *Learner) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	profiles, err := l.store.LoadProfiles(ctx)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for host, p := range profiles {
		l.profiles[host] = p
	}
	return nil
}

// Flush persists all profiles to the store.
func (l *Learner) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	l.mu.Lock()
	profiles := make([]*SiteProfile, 0, len(l.profiles))
	for _, p := range l.profiles {
		profiles = append(profiles, p)
	}
	l.mu.Unlock()

	for _, p := range profiles {
		if err := l.store.SaveProfile(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Profile returns the profile for host, creating it on first contact.
func (l *Learner) Profile(host string) *SiteProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.profileLocked(host)
}

func (l *Learner) profileLocked(host string) *SiteProfile {
	p, ok := l.profiles[host]
	if !ok {
		p = &SiteProfile{Host: host, Provider: host}
		l.profiles[host] = p
	}
	return p
}

// Hosts returns all known hosts, sorted.
func (l *Learner) Hosts() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	hosts := make([]string, 0, len(l.profiles))
	for h := range l.profiles {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// RecordSuccess notes that strategy (with optional selector) produced an
// accepted value for the category on host.
func (l *Learner) RecordSuccess(host string, cat Category, strategy, selector string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.profileLocked(host)
	pat := findPattern(p, cat, strategy)
	if pat == nil {
		pat = &LearnedPattern{Category: cat, Strategy: strategy}
		p.Patterns = append(p.Patterns, pat)
	}
	pat.Successes++
	pat.LastUsedAt = l.now()
	if selector != "" {
		pat.Selector = selector
	}
}

// RecordFailure notes that the category was left unfilled on host after
// all strategies ran. Every pattern known for the category takes the
// failure, so its ranking decays.
func (l *Learner) RecordFailure(host string, cat Category) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.profileLocked(host)
	for _, pat := range p.Patterns {
		if pat.Category == cat {
			pat.Failures++
			pat.LastUsedAt = l.now()
		}
	}
}

// BestPattern returns the highest-ranked pattern for (host, category),
// or nil when nothing has been learned yet. Ranking is recomputed lazily
// on read: success ratio, ties broken by recency.
func (l *Learner) BestPattern(host string, cat Category) *LearnedPattern {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.profiles[host]
	if !ok {
		return nil
	}

	var best *LearnedPattern
	for _, pat := range p.Patterns {
		if pat.Category != cat || pat.Successes == 0 {
			continue
		}
		if best == nil || betterRanked(pat, best) {
			best = pat
		}
	}
	return best
}

// RankStrategies orders the canonical strategy names by their aggregate
// score on host, most successful first. Strategies without history keep
// their canonical relative order, after all scored ones.
func (l *Learner) RankStrategies(host string, canonical []string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	type agg struct {
		successes int
		failures  int
		lastUsed  time.Time
	}
	scores := make(map[string]*agg)
	if p, ok := l.profiles[host]; ok {
		for _, pat := range p.Patterns {
			a := scores[pat.Strategy]
			if a == nil {
				a = &agg{}
				scores[pat.Strategy] = a
			}
			a.successes += pat.Successes
			a.failures += pat.Failures
			if pat.LastUsedAt.After(a.lastUsed) {
				a.lastUsed = pat.LastUsedAt
			}
		}
	}

	score := func(name string) float64 {
		a := scores[name]
		if a == nil {
			return 0
		}
		total := a.successes + a.failures
		if total == 0 {
			return 0
		}
		return float64(a.successes) / float64(total)
	}

	ranked := make([]string, len(canonical))
	copy(ranked, canonical)
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})
	return ranked
}

func betterRanked(a, b *LearnedPattern) bool {
	sa, sb := a.Score(), b.Score()
	if sa != sb {
		return sa > sb
	}
	return a.LastUsedAt.After(b.LastUsedAt)
}

func findPattern(p *SiteProfile, cat Category, strategy string) *LearnedPattern {
	for _, pat := range p.Patterns {
		if pat.Category == cat && pat.Strategy == strategy {
			return pat
		}
	}
	return nil
}
