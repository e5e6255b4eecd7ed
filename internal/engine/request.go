package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/dealmungchi/dealcrawler/internal/crawler"
	"github.com/dealmungchi/dealcrawler/internal/retry"
)

var (
	// ErrNoSources is returned when a request names no source
	ErrNoSources = errors.New("crawl request names no sources")
	// ErrUnknownSource is returned when a request names an unregistered source
	ErrUnknownSource = errors.New("unknown source")
	// ErrInvalidOptions is returned for out-of-range options
	ErrInvalidOptions = errors.New("invalid crawl options")
)

// Options tunes one crawl job. Nil fields take the orchestrator defaults.
type Options struct {
	MaxPages        *int `json:"maxPages,omitempty"`
	PageDelayMs     *int `json:"pageDelayMs,omitempty"`
	DetailDelayMs   *int `json:"detailDelayMs,omitempty"`
	SkipDetail      bool `json:"skipDetail,omitempty"`
	Concurrent      bool `json:"concurrent,omitempty"`
	RetryAttempts   *int `json:"retryAttempts,omitempty"`
	RetryDelayMs    *int `json:"retryDelayMs,omitempty"`
	TimeFilterHours *int `json:"timeFilterHours,omitempty"`
}

// CrawlJobRequest asks for one crawl over the named sources
type CrawlJobRequest struct {
	Sources []string `json:"sources"`
	Options Options  `json:"options"`
}

// Defaults are applied to options a request leaves unset
type Defaults struct {
	MaxPages          int
	PageDelay         time.Duration
	DetailDelay       time.Duration
	RetryAttempts     int
	RetryDelay        time.Duration
	BackoffMultiplier float64
	MaxRetryDelay     time.Duration
}

// DefaultSettings returns the stock job defaults
func DefaultSettings() Defaults {
	return Defaults{
		MaxPages:          1,
		RetryAttempts:     3,
		RetryDelay:        time.Second,
		BackoffMultiplier: 2,
	}
}

// settings is a validated request with defaults merged in
type settings struct {
	maxPages    int
	pageDelay   time.Duration
	detailDelay time.Duration
	skipDetail  bool
	concurrent  bool
	retry       retry.Policy
	timeFilter  time.Duration
}

func intOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

func msOr(v *int, def time.Duration) time.Duration {
	if v == nil {
		return def
	}
	return time.Duration(*v) * time.Millisecond
}

// validate checks req against the registry and merges defaults. Repeated
// source names are crawled once.
func validate(req CrawlJobRequest, registry *crawler.Registry, def Defaults) ([]crawler.Source, settings, error) {
	names := lo.Uniq(lo.Filter(lo.Map(req.Sources, func(s string, _ int) string {
		return strings.TrimSpace(s)
	}), func(s string, _ int) bool {
		return s != ""
	}))
	if len(names) == 0 {
		return nil, settings{}, ErrNoSources
	}

	sources := make([]crawler.Source, 0, len(names))
	var unknown []string
	for _, name := range names {
		src, ok := registry.Lookup(name)
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		sources = append(sources, src)
	}
	if len(unknown) > 0 {
		return nil, settings{}, fmt.Errorf("%w: %s", ErrUnknownSource, strings.Join(unknown, ", "))
	}

	opts := req.Options
	for name, v := range map[string]*int{
		"pageDelayMs":     opts.PageDelayMs,
		"detailDelayMs":   opts.DetailDelayMs,
		"retryAttempts":   opts.RetryAttempts,
		"retryDelayMs":    opts.RetryDelayMs,
		"timeFilterHours": opts.TimeFilterHours,
	} {
		if v != nil && *v < 0 {
			return nil, settings{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidOptions, name)
		}
	}
	if opts.MaxPages != nil && *opts.MaxPages < 1 {
		return nil, settings{}, fmt.Errorf("%w: maxPages must be at least 1", ErrInvalidOptions)
	}

	s := settings{
		maxPages:    max(intOr(opts.MaxPages, def.MaxPages), 1),
		pageDelay:   msOr(opts.PageDelayMs, def.PageDelay),
		detailDelay: msOr(opts.DetailDelayMs, def.DetailDelay),
		skipDetail:  opts.SkipDetail,
		concurrent:  opts.Concurrent,
		retry: retry.Policy{
			Attempts:   intOr(opts.RetryAttempts, def.RetryAttempts),
			BaseDelay:  msOr(opts.RetryDelayMs, def.RetryDelay),
			Multiplier: def.BackoffMultiplier,
			MaxDelay:   def.MaxRetryDelay,
		},
		timeFilter: time.Duration(intOr(opts.TimeFilterHours, 0)) * time.Hour,
	}
	return sources, s, nil
}
