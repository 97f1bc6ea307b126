package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mietwatch/mietwatch/internal/classify"
	"github.com/mietwatch/mietwatch/internal/crawler"
	"github.com/mietwatch/mietwatch/internal/extract"
	"github.com/mietwatch/mietwatch/internal/fetcher"
	"github.com/mietwatch/mietwatch/internal/geo"
	"github.com/mietwatch/mietwatch/internal/learn"
	"github.com/mietwatch/mietwatch/internal/listing"
	"github.com/mietwatch/mietwatch/internal/llm"
	"github.com/mietwatch/mietwatch/internal/logger"
	"github.com/mietwatch/mietwatch/internal/ratelimit"
	"github.com/mietwatch/mietwatch/internal/siteconfig"
	"github.com/mietwatch/mietwatch/internal/store"
)

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Crawl a rental site and persist its listings",
	Long: `Crawl discovers listing pages starting from a root URL (sitemap
first, homepage links as fallback), extracts rental fields through the
strategy chain and upserts validated listings into SQLite.

Examples:
  # Full crawl with defaults
  mietwatch crawl -u "https://www.example-wohnen.de"

  # Bounded crawl, AI fallback via Anthropic
  mietwatch crawl -u "https://www.example-wohnen.de" \
      --max-duration 10m --ai-provider anthropic

  # Dry run, write the report to a file
  mietwatch crawl -u "https://www.example-wohnen.de" \
      --save=false -o report.json`,
	RunE: runCrawl,
}

func init() {
	rootCmd.AddCommand(crawlCmd)

	flags := crawlCmd.Flags()

	flags.StringP("url", "u", "", "root URL of the site to crawl (required)")
	flags.String("sites", "", "path to site-specific selector overrides (YAML)")

	// Budget settings
	flags.Int("max-listings", 0, "stop after this many persisted listings (0=unlimited)")
	flags.Duration("max-duration", 0, "stop dispatching new pages after this duration (0=unlimited)")
	flags.Bool("save", true, "persist results (use --save=false for a dry run)")

	// Crawl settings
	flags.IntP("concurrency", "c", 4, "concurrent page workers")
	flags.Int("host-rpm", 30, "max fetch requests per minute per host")
	flags.Int("page-cap", 10, "max pagination pages followed per index page")
	flags.Duration("timeout", 30*time.Second, "request timeout")
	flags.String("user-agent", "", "override the request user-agent")

	// AI fallback settings
	flags.String("ai-provider", "", "AI fallback provider: anthropic, openai, openrouter (empty=disabled)")
	flags.StringP("model", "m", "", "model name (provider-specific)")
	flags.StringP("api-key", "k", "", "API key (or use env var)")
	flags.Int("ai-per-minute", 10, "max AI calls per minute")
	flags.Int("ai-per-hour", 100, "max AI calls per hour")

	// Geo settings
	flags.String("geo-fallback", "", "fixed fallback coordinate as \"lat,lng\" for listings without one")

	// Output settings
	flags.StringP("output", "o", "", "write the crawl report JSON to this file (default: stdout)")

	_ = crawlCmd.MarkFlagRequired("url")

	_ = viper.BindPFlag("ai_provider", flags.Lookup("ai-provider"))
	_ = viper.BindPFlag("model", flags.Lookup("model"))
	_ = viper.BindPFlag("api_key", flags.Lookup("api-key"))
}

func runCrawl(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{
		Debug: viper.GetBool("debug"),
		Quiet: viper.GetBool("quiet"),
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootURL, _ := cmd.Flags().GetString("url")
	logger.Debug("crawl command starting", "url", rootURL)

	sitesPath, _ := cmd.Flags().GetString("sites")
	sites, err := siteconfig.Load(sitesPath)
	if err != nil {
		logger.Error("failed to load site config", "path", sitesPath, "error", err)
		return err
	}

	dbPath := viper.GetString("db")
	db, err := store.OpenSQLite(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		return err
	}
	defer func() { _ = db.Close() }()
	logger.Debug("database opened", "path", dbPath)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	fetchCfg := fetcher.DefaultConfig()
	fetchCfg.Timeout = timeout
	if ua, _ := cmd.Flags().GetString("user-agent"); ua != "" {
		fetchCfg.UserAgent = ua
	}
	f := fetcher.New(fetchCfg)

	learner := learn.New(db)

	ai, err := buildAIStrategy(cmd)
	if err != nil {
		logger.Error("failed to configure AI fallback", "error", err)
		return err
	}
	chain := extract.NewChain(learner, ai)

	geocoder, err := buildGeocoder(cmd)
	if err != nil {
		return err
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	hostRPM, _ := cmd.Flags().GetInt("host-rpm")
	pageCap, _ := cmd.Flags().GetInt("page-cap")

	orch := crawler.New(crawler.Deps{
		Fetcher:    f,
		Robots:     fetcher.NewRobotsScanner(f),
		Sitemaps:   fetcher.NewSitemapScanner(f),
		Classifier: classify.New(classify.DefaultConfig()),
		Chain:      chain,
		Learner:    learner,
		Normalizer: listing.NewNormalizer(listing.DefaultBounds()),
		Store:      db,
		Geocoder:   geocoder,
		Sites:      sites,
		Hosts:      ratelimit.NewHostLimiter(hostRPM, 1),
	}, crawler.Config{
		Workers:    concurrency,
		PerHostRPM: hostRPM,
		PageCap:    pageCap,
	})

	maxListings, _ := cmd.Flags().GetInt("max-listings")
	maxDuration, _ := cmd.Flags().GetDuration("max-duration")
	save, _ := cmd.Flags().GetBool("save")
	if !save {
		logger.Info("dry run, nothing will be persisted")
	}

	report, err := orch.RunCrawl(ctx, rootURL, crawler.Options{
		MaxListings: maxListings,
		MaxDuration: maxDuration,
		SaveResults: save,
	})
	if err != nil {
		logger.Error("crawl failed", "error", err)
		return err
	}

	return writeReport(cmd, report)
}

func writeReport(cmd *cobra.Command, report *crawler.Report) error {
	out := os.Stdout
	if outPath, _ := cmd.Flags().GetString("output"); outPath != "" {
		f, err := os.Create(outPath) //#nosec G304 -- CLI tool writes to user-specified output file
		if err != nil {
			logger.Error("failed to create output file", "path", outPath, "error", err)
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// buildAIStrategy wires the optional AI fallback from flags and env.
// Without a provider (or without an API key) the chain runs AI-free.
func buildAIStrategy(cmd *cobra.Command) (*extract.AIStrategy, error) {
	provider := viper.GetString("ai_provider")
	if provider == "" {
		logger.Debug("AI fallback disabled, no provider configured")
		return nil, nil
	}

	apiKey := viper.GetString("api_key")
	if apiKey == "" {
		return nil, fmt.Errorf("ai provider %q configured but no API key set", provider)
	}

	p, err := llm.New(provider, llm.ProviderConfig{
		APIKey: apiKey,
		Model:  viper.GetString("model"),
	})
	if err != nil {
		return nil, err
	}

	perMinute, _ := cmd.Flags().GetInt("ai-per-minute")
	perHour, _ := cmd.Flags().GetInt("ai-per-hour")
	budget := ratelimit.NewBudget(perMinute, perHour)

	logger.Debug("AI fallback enabled", "provider", p.Name())
	return extract.NewAIStrategy(p, budget), nil
}

func buildGeocoder(cmd *cobra.Command) (geo.Resolver, error) {
	raw, _ := cmd.Flags().GetString("geo-fallback")
	if raw == "" {
		return nil, nil
	}
	parts := strings.SplitN(raw, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid geo-fallback %q, want \"lat,lng\"", raw)
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lng, errLng := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLng != nil {
		return nil, fmt.Errorf("invalid geo-fallback %q, want \"lat,lng\"", raw)
	}
	return geo.Fixed{Point: geo.Point{Lat: lat, Lng: lng}}, nil
}
