package learn

import (
	"context"
	"testing"
	"time"
)

type memStore struct {
	profiles map[string]*SiteProfile
	saved    int
}

func newMemStore() *memStore {
	return &memStore{profiles: make(map[string]*SiteProfile)}
}

func (m *memStore) LoadProfiles(_ context.Context) (map[string]*SiteProfile, error) {
	return m.profiles, nil
}

func (m *memStore) SaveProfile(_ context.Context, p *SiteProfile) error {
	m.profiles[p.Host] = p
	m.saved++
	return nil
}

func TestRecordSuccess_CreatesAndCounts(t *testing.T) {
	l := New(nil)
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")

	pat := l.BestPattern("example.de", CategoryPrice)
	if pat == nil {
		t.Fatal("expected a learned pattern")
	}
	if pat.Successes != 2 {
		t.Errorf("expected 2 successes, got %d", pat.Successes)
	}
	if pat.Selector != ".price" {
		t.Errorf("expected selector .price, got %q", pat.Selector)
	}
}

func TestBestPattern_PrefersHigherScore(t *testing.T) {
	l := New(nil)
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")
	l.RecordSuccess("example.de", CategoryPrice, "structured", "")
	l.RecordFailure("example.de", CategoryPrice) // decays both

	// heuristic: 2/3, structured: 1/2
	pat := l.BestPattern("example.de", CategoryPrice)
	if pat == nil || pat.Strategy != "heuristic" {
		t.Fatalf("expected heuristic to win, got %+v", pat)
	}
}

func TestBestPattern_RequiresSuccess(t *testing.T) {
	l := New(nil)
	if l.BestPattern("unknown.de", CategoryPrice) != nil {
		t.Error("unknown host should have no pattern")
	}

	// A pattern that only ever failed must not be recommended.
	l.RecordSuccess("example.de", CategoryTitle, "heuristic", "h1")
	l.RecordFailure("example.de", CategoryPrice)
	if l.BestPattern("example.de", CategoryPrice) != nil {
		t.Error("a never-successful category should have no best pattern")
	}
}

func TestRankStrategies_ConvergesOnWinner(t *testing.T) {
	l := New(nil)
	canonical := []string{"structured", "learned", "heuristic"}

	// No history: canonical order preserved.
	got := l.RankStrategies("example.de", canonical)
	for i := range canonical {
		if got[i] != canonical[i] {
			t.Fatalf("expected canonical order without history, got %v", got)
		}
	}

	// After the heuristic strategy keeps succeeding where structured
	// fails, the heuristic must be tried first.
	for i := 0; i < 5; i++ {
		l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")
	}
	l.RecordSuccess("example.de", CategoryTitle, "structured", "")
	l.RecordFailure("example.de", CategoryTitle)
	l.RecordFailure("example.de", CategoryTitle)

	got = l.RankStrategies("example.de", canonical)
	if got[0] != "heuristic" {
		t.Errorf("expected heuristic ranked first, got %v", got)
	}
}

func TestRankStrategies_IsPerHost(t *testing.T) {
	l := New(nil)
	for i := 0; i < 3; i++ {
		l.RecordSuccess("a.de", CategoryPrice, "heuristic", ".p")
	}

	got := l.RankStrategies("b.de", []string{"structured", "learned", "heuristic"})
	if got[0] != "structured" {
		t.Errorf("learning on a.de must not affect b.de: %v", got)
	}
}

func TestRecordFailure_DecaysAllCategoryPatterns(t *testing.T) {
	l := New(nil)
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".a")
	l.RecordSuccess("example.de", CategoryPrice, "structured", "")
	l.RecordSuccess("example.de", CategoryTitle, "heuristic", "h1")

	l.RecordFailure("example.de", CategoryPrice)

	p := l.Profile("example.de")
	for _, pat := range p.Patterns {
		switch {
		case pat.Category == CategoryPrice && pat.Failures != 1:
			t.Errorf("price pattern %s should have 1 failure, got %d", pat.Strategy, pat.Failures)
		case pat.Category == CategoryTitle && pat.Failures != 0:
			t.Errorf("title pattern should be untouched, got %d failures", pat.Failures)
		}
	}
}

func TestLoadAndFlush_RoundTrip(t *testing.T) {
	store := newMemStore()
	l := New(store)
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")

	if err := l.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if store.saved != 1 {
		t.Fatalf("expected 1 saved profile, got %d", store.saved)
	}

	l2 := New(store)
	if err := l2.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	pat := l2.BestPattern("example.de", CategoryPrice)
	if pat == nil || pat.Selector != ".price" {
		t.Fatalf("expected pattern to survive the round trip, got %+v", pat)
	}
}

func TestScore(t *testing.T) {
	p := &LearnedPattern{}
	if p.Score() != 0 {
		t.Error("virgin pattern should score 0")
	}
	p.Successes, p.Failures = 3, 1
	if p.Score() != 0.75 {
		t.Errorf("expected 0.75, got %v", p.Score())
	}
}

func TestBestPattern_TiesBrokenByRecency(t *testing.T) {
	l := New(nil)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	l.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	l.RecordSuccess("example.de", CategoryPrice, "structured", "")
	l.RecordSuccess("example.de", CategoryPrice, "heuristic", ".price")

	// Both score 1.0; heuristic was used more recently.
	pat := l.BestPattern("example.de", CategoryPrice)
	if pat == nil || pat.Strategy != "heuristic" {
		t.Fatalf("expected the more recent pattern, got %+v", pat)
	}
}
