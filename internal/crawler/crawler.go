package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/mietwatch/mietwatch/internal/classify"
	"github.com/mietwatch/mietwatch/internal/extract"
	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/geo"
	"github.com/mietwatch/mietwatch/internal/learn"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/logger"
	"github.com/mietwatch/mietwatch/internal/ratelimit"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
	"github.com/mietwatch/mietwatch/internal/store"
)

// ErrNoSeeds is reported when discovery finds nothing to crawl.
var ErrNoSeeds = errors.New("no discoverable tasks from root seed")

// Config holds orchestrator tunables.
type Config struct {
	Workers        int
	PerHostRPM     int           // fetch requests per minute per host
	HostBurst      int           // token bucket burst per host
	PageCap        int           // pagination pages followed per index URL
	HostileBackoff time.Duration // how long a 403/429 host stays deprioritized
}

// DefaultConfig returns the default orchestrator tunables.
func DefaultConfig() Config {
	return Config{
		Workers:        4,
		PerHostRPM:     30,
		HostBurst:      3,
		PageCap:        10,
		HostileBackoff: 5 * time.Minute,
	}
}

// Options is the per-run crawl budget.
type Options struct {
	MaxListings int
	MaxDuration time.Duration
	SaveResults bool
}

// Deps are the collaborators an Orchestrator is built from. Learning
// state and the visited set are owned per instance, never ambient, so
// concurrent crawls cannot cross-contaminate.
type Deps struct {
	Fetcher    *fetcher.Fetcher
	Robots     *fetcher.RobotsScanner
	Sitemaps   *fetcher.SitemapScanner
	Classifier *classify.Classifier
	Chain      *extract.Chain
	Learner    *learn.Learner
	Normalizer *listing.Normalizer
	Store      store.ListingStore
	Geocoder   geo.Resolver // optional
	Sites      *siteconfig.Config
	Hosts      *ratelimit.HostLimiter
}

// Orchestrator drives fetch, classify, extract and persist for one
// crawl at a time.
type Orchestrator struct {
	deps   Deps
	config Config

	links *LinkExtractor
	pager *PaginationFollower

	mu           sync.Mutex
	hostileUntil map[string]time.Time
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PerHostRPM <= 0 {
		cfg.PerHostRPM = def.PerHostRPM
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = def.PageCap
	}
	if cfg.HostileBackoff <= 0 {
		cfg.HostileBackoff = def.HostileBackoff
	}
	if deps.Hosts == nil {
		deps.Hosts = ratelimit.NewHostLimiter(cfg.PerHostRPM, cfg.HostBurst)
	}

	return &Orchestrator{
		deps:         deps,
		config:       cfg,
		links:        NewLinkExtractor(deps.Learner),
		pager:        NewPaginationFollower(),
		hostileUntil: make(map[string]time.Time),
	}
}

// runState is the mutable state of one crawl run.
type runState struct {
	frontier *Frontier
	report   *Report
	provider string
	rootURL  string
	opts     Options
	deadline time.Time

	mu        sync.Mutex
	persisted int
}

// RunCrawl is the sole entry point: it discovers, crawls and persists
// listings starting from rootURL until the frontier or the budget is
// exhausted. In-flight work completes and persists on budget expiry.
func (o *Orchestrator) RunCrawl(ctx context.Context, rootURL string, opts Options) (*Report, error) {
	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid root url %q", rootURL)
	}
	host := hostOf(rootURL)

	if err := o.deps.Learner.Load(ctx); err != nil {
		logger.Warn("loading learned profiles failed, starting fresh", "error", err)
	}

	provider := host
	site := o.deps.Sites.ForHost(host)
	if site != nil && site.Provider != "" {
		provider = site.Provider
	}
	profile := o.deps.Learner.Profile(host)
	profile.Provider = provider

	run := &runState{
		frontier: NewFrontier(),
		report:   &Report{RootURL: rootURL},
		provider: provider,
		rootURL:  rootURL,
		opts:     opts,
	}
	if opts.MaxDuration > 0 {
		run.deadline = time.Now().Add(opts.MaxDuration)
	}

	o.seed(ctx, run, rootURL, profile)
	if run.frontier.Len() == 0 {
		run.report.Errors = append(run.report.Errors, TaskError{URL: rootURL, Reason: ReasonFetchError, Detail: ErrNoSeeds.Error()})
		return run.report, nil
	}

	o.drive(ctx, run)

	if err := o.deps.Learner.Flush(ctx); err != nil {
		logger.Warn("persisting learned profiles failed", "error", err)
	}

	run.report.TotalURLsDiscovered = run.frontier.VisitedCount()
	logger.Info("crawl finished",
		"root", rootURL,
		"discovered", run.report.TotalURLsDiscovered,
		"persisted", run.report.ListingsPersisted,
		"errors", len(run.report.Errors))
	return run.report, nil
}

// seed fills the frontier from robots/sitemap discovery, falling back
// to the homepage itself.
func (o *Orchestrator) seed(ctx context.Context, run *runState, rootURL string, profile *learn.SiteProfile) {
	if paths := o.deps.Robots.DisallowedPaths(ctx, rootURL); len(paths) > 0 {
		profile.DisallowedPaths = paths
	}

	for _, u := range o.deps.Sitemaps.Scan(ctx, rootURL) {
		if o.deps.Robots.IsAllowed(ctx, u) {
			run.frontier.Add(&Task{URL: u, DiscoveredFrom: "sitemap", ViaStrategy: "sitemap"})
		}
	}

	// The homepage is always a seed: it feeds link discovery when the
	// sitemap is missing or incomplete.
	if o.deps.Robots.IsAllowed(ctx, rootURL) {
		run.frontier.Add(&Task{URL: rootURL, DiscoveredFrom: "root"})
	}
}

// drive runs the worker pool until the frontier drains or the budget
// expires. On expiry no new tasks are dispatched; in-flight tasks are
// allowed to finish and persist.
func (o *Orchestrator) drive(ctx context.Context, run *runState) {
	sem := make(chan struct{}, o.config.Workers)
	var wg sync.WaitGroup

	for {
		if ctx.Err() != nil {
			break
		}
		if !run.deadline.IsZero() && time.Now().After(run.deadline) {
			logger.Info("crawl duration budget expired, draining", "root", run.rootURL)
			break
		}
		if run.opts.MaxListings > 0 && run.persistedCount() >= run.opts.MaxListings {
			logger.Info("crawl listing budget reached, draining", "root", run.rootURL)
			break
		}

		task := run.frontier.Pop()
		if task == nil {
			wg.Wait()
			if run.frontier.Len() == 0 {
				break
			}
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(t *Task) {
			defer wg.Done()
			defer func() { <-sem }()
			o.process(ctx, run, t)
		}(task)
	}

	wg.Wait()
}

func (run *runState) persistedCount() int {
	run.mu.Lock()
	defer run.mu.Unlock()
	return run.persisted
}

func (run *runState) addError(e TaskError) {
	run.mu.Lock()
	defer run.mu.Unlock()
	run.report.Errors = append(run.report.Errors, e)
}

// process runs one task to a terminal state. Task errors are aggregated,
// never propagated.
func (o *Orchestrator) process(ctx context.Context, run *runState, task *Task) {
	host := hostOf(task.URL)
	site := o.deps.Sites.ForHost(host)

	if until, hostile := o.hostileHost(host); hostile {
		task.Kind = KindRejected
		logger.Debug("skipping hostile host", "url", task.URL, "until", until)
		return
	}

	if !o.deps.Robots.IsAllowed(ctx, task.URL) {
		task.Kind = KindRejected
		logger.Debug("robots disallowed", "url", task.URL)
		return
	}

	if err := o.deps.Hosts.Wait(ctx, host); err != nil {
		task.Kind = KindRejected
		return
	}

	page, err := o.deps.Fetcher.Fetch(ctx, task.URL, nil)
	task.Attempts++
	if err != nil {
		task.Kind = KindRejected
		var hostile *fetcher.HostileError
		if errors.As(err, &hostile) {
			o.markHostile(host)
			run.addError(TaskError{URL: task.URL, Reason: ReasonHostileHost, Detail: err.Error()})
			return
		}
		if ctx.Err() != nil {
			return
		}
		run.addError(TaskError{URL: task.URL, Reason: ReasonFetchError, Detail: err.Error()})
		return
	}

	result := o.deps.Classifier.Classify(page)
	switch result.Kind {
	case classify.KindIndex:
		task.Kind = KindIndex
		o.processIndex(run, page, task, site)
	case classify.KindDetail:
		task.Kind = KindDetail
		o.processDetail(ctx, run, page, task, host, site)
	default:
		task.Kind = KindRejected
		run.mu.Lock()
		run.report.NoisePages++
		run.mu.Unlock()
		logger.Debug("page classified as noise", "url", task.URL, "reason", result.Reason)
	}
}

// processIndex fans an index page out into detail tasks and the next
// pagination page, then terminates the task.
func (o *Orchestrator) processIndex(run *runState, page *fetcher.Page, task *Task, site *siteconfig.Site) {
	run.mu.Lock()
	run.report.IndexPages++
	run.mu.Unlock()

	added := 0
	for _, cand := range o.links.Extract(page, site) {
		ok := run.frontier.Add(&Task{
			URL:            cand.URL,
			DiscoveredFrom: task.URL,
			ViaStrategy:    cand.Strategy,
			ViaSelector:    cand.Selector,
			ViaPattern:     cand.IsPattern,
		})
		if ok {
			added++
		}
	}

	if task.PageNum+1 < o.config.PageCap {
		if next, ok := o.pager.Next(page, site); ok && SameOrigin(next, run.rootURL) {
			run.frontier.Add(&Task{
				URL:            next,
				DiscoveredFrom: task.URL,
				PageNum:        task.PageNum + 1,
			})
		}
	}

	logger.Info("index expanded", "url", task.URL, "new_tasks", added, "page", task.PageNum)
}

// processDetail extracts, validates and persists one listing, and feeds
// the outcome back into the pattern learner.
func (o *Orchestrator) processDetail(ctx context.Context, run *runState, page *fetcher.Page, task *Task, host string, site *siteconfig.Site) {
	run.mu.Lock()
	run.report.DetailPages++
	run.mu.Unlock()

	result, err := o.deps.Chain.Extract(ctx, page, host, site)
	if errors.Is(err, extract.ErrVetoed) {
		task.Kind = KindRejected
		run.addError(TaskError{URL: task.URL, Reason: ReasonVetoed})
		return
	}
	if err != nil {
		task.Kind = KindRejected
		run.addError(TaskError{URL: task.URL, Reason: ReasonIncomplete, Detail: err.Error()})
		return
	}

	o.recordLearning(host, result)

	rec, err := o.deps.Normalizer.Build(result.Partial, NormalizeURL(task.URL), run.provider, time.Now())
	if err != nil {
		task.Kind = KindRejected
		reason := ReasonValidation
		if errors.Is(err, listing.ErrMissingRequired) {
			reason = ReasonIncomplete
		}
		run.addError(TaskError{URL: task.URL, Reason: reason, Detail: err.Error()})
		return
	}

	o.backfillCoordinates(ctx, rec)

	if run.opts.SaveResults {
		outcome, err := o.deps.Store.Upsert(ctx, rec)
		if err != nil {
			task.Kind = KindRejected
			run.addError(TaskError{URL: task.URL, Reason: ReasonPersistFailure, Detail: err.Error()})
			return
		}
		run.mu.Lock()
		if outcome == store.OutcomeInserted {
			run.report.Inserted++
		} else {
			run.report.Updated++
		}
		run.mu.Unlock()
	}

	run.mu.Lock()
	run.report.ListingsPersisted++
	run.persisted++
	run.mu.Unlock()

	// A persisted listing proves the discovery pattern that surfaced
	// this URL works on this host. CSS-selector discoveries are not
	// recorded: the replay matches selectors against raw URLs, so only
	// URL regexps are learnable.
	if task.ViaPattern && task.ViaStrategy != "" && task.ViaStrategy != "sitemap" {
		o.deps.Learner.RecordSuccess(host, learn.CategoryListingURL, task.ViaStrategy, task.ViaSelector)
	}

	logger.Info("listing extracted",
		"url", task.URL,
		"price", rec.Price,
		"confidence", fmt.Sprintf("%.2f", result.Confidence),
		"strategies", result.Tried)
}

// recordLearning credits the strategy that filled each learnable field
// and debits categories left unfilled after the whole chain.
func (o *Orchestrator) recordLearning(host string, result *extract.Result) {
	for field, cat := range extract.LearnableCategories {
		if strategy, ok := result.FilledBy[field]; ok {
			o.deps.Learner.RecordSuccess(host, cat, strategy, result.SelectorOf[field])
		} else {
			o.deps.Learner.RecordFailure(host, cat)
		}
	}
}

// backfillCoordinates fills missing lat/lng via the optional geocoder.
// Failures are logged and ignored; they never block persistence.
func (o *Orchestrator) backfillCoordinates(ctx context.Context, rec *listing.Record) {
	if o.deps.Geocoder == nil || rec.Lat != nil {
		return
	}
	point, err := o.deps.Geocoder.Resolve(ctx, rec.Location)
	if err != nil {
		logger.Debug("geocoding failed", "location", rec.Location, "error", err)
		return
	}
	if point != nil {
		rec.Lat = &point.Lat
		rec.Lng = &point.Lng
	}
}

func (o *Orchestrator) markHostile(host string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hostileUntil[host] = time.Now().Add(o.config.HostileBackoff)
	logger.Warn("host marked hostile", "host", host, "backoff", o.config.HostileBackoff)
}

func (o *Orchestrator) hostileHost(host string) (time.Time, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	until, ok := o.hostileUntil[host]
	if !ok || time.Now().After(until) {
		return time.Time{}, false
	}
	return until, true
}
