package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dealmungchi/dealcrawler/config"
	"github.com/dealmungchi/dealcrawler/helpers"
	"github.com/dealmungchi/dealcrawler/internal/crawler"
	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/services/cache"
	"github.com/dealmungchi/dealcrawler/services/publisher"
	"github.com/dealmungchi/dealcrawler/services/store"
)

// app holds the services every command builds on
type app struct {
	cfg       *config.Config
	log       *logger.Logger
	store     store.Gateway
	cache     cache.CacheService
	publisher publisher.Publisher
	registry  *crawler.Registry
	bus       *events.Bus
}

// newApp connects the configured backends. Postgres, Redis and Memcache are
// optional: without an address the in-memory store and cache are used and
// nothing is published.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg: cfg,
		log: logger.ForComponent("app"),
		bus: events.NewBus(events.DefaultBufferSize),
	}

	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			_ = pg.Close()
			return nil, err
		}
		a.store = pg
		a.log.Info().Msg("Using Postgres deal store")
	} else {
		a.store = store.NewMemory()
		a.log.Warn().Msg("DATABASE_URL not set, deals are kept in memory")
	}

	if cfg.Memcache.Addr != "" {
		a.cache = cache.NewMemcacheService(cfg.Memcache.Addr)
		a.log.Info().Str("addr", cfg.Memcache.Addr).Msg("Using Memcache for rate-limit blocks")
	} else {
		a.cache = cache.NewMemoryCache()
	}

	if cfg.Redis.Addr != "" {
		pub, err := publisher.NewRedisPublisher(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.publisher = pub
		a.log.Info().
			Str("addr", cfg.Redis.Addr).
			Int("db", cfg.Redis.DB).
			Str("stream", cfg.Redis.StreamPrefix).
			Msg("Connected to Redis")
	}

	fetcher := helpers.NewFetcher(&http.Client{Timeout: cfg.HTTPTimeout})
	registry, err := crawler.NewSiteRegistry(crawler.SiteConfigs(cfg.Sites), fetcher, crawler.RegistryOptions{
		CacheSvc:          a.cache,
		BlockTime:         cfg.Crawl.BlockTime,
		RequestsPerSecond: cfg.Crawl.RequestsPerSecond,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build source registry: %w", err)
	}
	a.registry = registry

	return a, nil
}

// orchestrator builds the crawl engine over the app's services
func (a *app) orchestrator(opts ...engine.Option) *engine.Orchestrator {
	c := a.cfg.Crawl
	base := []engine.Option{
		engine.WithBus(a.bus),
		engine.WithDefaults(engine.Defaults{
			MaxPages:          c.MaxPages,
			PageDelay:         c.PageDelay,
			DetailDelay:       c.DetailDelay,
			RetryAttempts:     c.RetryAttempts,
			RetryDelay:        c.RetryDelay,
			BackoffMultiplier: c.BackoffMultiplier,
			MaxRetryDelay:     c.MaxRetryDelay,
		}),
		engine.WithConcurrency(c.MaxConcurrentSources, c.PerSourceConcurrency),
	}
	if a.publisher != nil {
		base = append(base, engine.WithSink(a.publisher))
	}
	return engine.New(a.registry, a.store, append(base, opts...)...)
}

// Close releases every backend connection
func (a *app) Close() {
	a.bus.Close()
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close store")
		}
	}
}
