// Package siteconfig loads operator-supplied per-host selector overrides.
// Configured selectors are the highest-priority, non-learned extraction
// source; unconfigured hosts fall through to learned and generic
// heuristics.
package siteconfig

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Site holds the overrides for one host.
type Site struct {
	Host     string `yaml:"host"`
	Provider string `yaml:"provider,omitempty"`

	// Index pages
	ListingLinkSelector string `yaml:"listing_link_selector,omitempty"`
	ListingURLPattern   string `yaml:"listing_url_pattern,omitempty"`
	NextPageSelector    string `yaml:"next_page_selector,omitempty"`

	// Detail pages: field category -> CSS selector
	Fields map[string]string `yaml:"fields,omitempty"`

	urlPattern *regexp.Regexp
}

// MatchesListingURL reports whether the configured URL pattern matches.
// Always false when no pattern is configured.
func (s *Site) MatchesListingURL(u string) bool {
	if s.urlPattern == nil {
		return false
	}
	return s.urlPattern.MatchString(u)
}

// HasURLPattern reports whether a listing URL pattern is configured.
func (s *Site) HasURLPattern() bool { return s.urlPattern != nil }

// FieldSelector returns the configured selector for a field category.
func (s *Site) FieldSelector(category string) string {
	if s == nil {
		return ""
	}
	return s.Fields[category]
}

// Config is the operator-editable site table.
type Config struct {
	Sites []*Site `yaml:"sites"`

	byHost map[string]*Site
}

// Load reads the site configuration from a YAML file. A missing path
// returns an empty config, not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		return &Config{byHost: map[string]*Site{}}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{byHost: map[string]*Site{}}, nil
		}
		return nil, fmt.Errorf("read site config: %w", err)
	}

	return Parse(data)
}

// Parse parses site configuration YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse site config: %w", err)
	}

	cfg.byHost = make(map[string]*Site, len(cfg.Sites))
	for _, s := range cfg.Sites {
		s.Host = strings.ToLower(strings.TrimSpace(s.Host))
		if s.Host == "" {
			continue
		}
		if s.Provider == "" {
			s.Provider = s.Host
		}
		if s.ListingURLPattern != "" {
			re, err := regexp.Compile(s.ListingURLPattern)
			if err != nil {
				return nil, fmt.Errorf("site %s: bad listing_url_pattern: %w", s.Host, err)
			}
			s.urlPattern = re
		}
		cfg.byHost[s.Host] = s
	}
	return &cfg, nil
}

// ForHost returns the overrides for host, or nil when unconfigured.
func (c *Config) ForHost(host string) *Site {
	if c == nil {
		return nil
	}
	return c.byHost[strings.ToLower(host)]
}
