// Package fetcher retrieves pages over HTTP with browser-like headers,
// bounded retries, and pre-parsed structured data. It never mutates
// shared learning state.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/mietwatch/mietwatch/internal/logger"
)

// TransientError marks a fetch failure worth retrying (network error,
// timeout, 5xx).
type TransientError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// HostileError marks a 403/429 response. The host is currently hostile;
// the orchestrator backs off the whole host instead of retrying.
type HostileError struct {
	URL        string
	StatusCode int
}

func (e *HostileError) Error() string {
	return fmt.Sprintf("host hostile for %s (status %d)", e.URL, e.StatusCode)
}

// Page is the result of one successful fetch.
type Page struct {
	URL         string
	StatusCode  int
	ContentType string
	HTML        string
	FetchedAt   time.Time

	// Doc is the parsed HTML document, nil for non-HTML responses.
	Doc *goquery.Document

	// StructuredData holds any embedded JSON-LD nodes, flattened.
	StructuredData []map[string]any
}

// Config holds fetcher settings.
type Config struct {
	UserAgent  string
	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration // first backoff delay, doubled per attempt
}

// DefaultConfig returns sensible fetcher defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:  "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0",
		Timeout:    30 * time.Second,
		MaxRetries: 3,
		RetryBase:  time.Second,
	}
}

// Fetcher issues rate-limit-agnostic HTTP requests. Rate limiting is the
// orchestrator's job; the fetcher only retries.
type Fetcher struct {
	config Config
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates a Fetcher.
func New(cfg Config) *Fetcher {
	def := DefaultConfig()
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	if cfg.RetryBase == 0 {
		cfg.RetryBase = def.RetryBase
	}
	return &Fetcher{config: cfg, sleep: sleepCtx}
}

// Fetch retrieves a page, retrying transient failures with exponential
// backoff. 403/429 responses return a HostileError immediately.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string, headers map[string]string) (*Page, error) {
	var lastErr error
	delay := f.config.RetryBase

	for attempt := 0; attempt <= f.config.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("fetch retrying", "url", targetURL, "attempt", attempt, "delay", delay)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
			delay *= 2
		}

		page, err := f.fetchOnce(ctx, targetURL, headers)
		if err == nil {
			return page, nil
		}

		var hostile *HostileError
		if errors.As(err, &hostile) {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, targetURL string, headers map[string]string) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page := &Page{URL: targetURL, FetchedAt: time.Now()}

	c := colly.NewCollector(colly.UserAgent(f.config.UserAgent))
	c.SetRequestTimeout(f.config.Timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "de-DE,de;q=0.9,en;q=0.7")
		for k, v := range headers {
			r.Headers.Set(k, v)
		}
	})

	var fetchErr error
	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.ContentType = r.Headers.Get("Content-Type")
		page.HTML = string(r.Body)
	})
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
			page.StatusCode = status
		}
		switch status {
		case 403, 429:
			fetchErr = &HostileError{URL: targetURL, StatusCode: status}
		default:
			fetchErr = &TransientError{URL: targetURL, StatusCode: status, Err: err}
		}
	})

	if err := c.Visit(targetURL); err != nil && fetchErr == nil {
		fetchErr = &TransientError{URL: targetURL, Err: err}
	}
	if fetchErr != nil {
		return nil, fetchErr
	}

	if isHTML(page.ContentType) && page.HTML != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
		if err != nil {
			return nil, fmt.Errorf("parse html for %s: %w", targetURL, err)
		}
		page.Doc = doc
		page.StructuredData = parseJSONLD(doc)
	}

	return page, nil
}

func isHTML(contentType string) bool {
	return contentType == "" ||
		strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
