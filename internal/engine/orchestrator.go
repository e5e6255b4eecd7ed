// Package engine runs crawl jobs: it fans a request out to per-source
// workers, bounds their concurrency and aggregates what they report.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/dealmungchi/dealcrawler/internal/crawler"
	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/internal/dedup"
	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/internal/normalize"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

// Gateway is the persistence the engine needs
type Gateway interface {
	dedup.Checker
	// SaveIfNew stores d unless its key exists. saved is false when it did.
	SaveIfNew(ctx context.Context, d deal.Deal) (saved bool, err error)
	// MarkEnded flips a stored deal to ended. updated is false when it was
	// unknown or already ended.
	MarkEnded(ctx context.Context, source, nativeID string) (updated bool, err error)
}

// Sink receives every newly saved deal, keyed by source
type Sink interface {
	Publish(key string, message []byte) error
}

// Recorder collects crawl metrics
type Recorder interface {
	PageFetched(source string)
	FetchFailed(source string, errType errors.ErrorType)
	DealsSaved(source string, n int)
	JobFinished(success bool, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) PageFetched(string)                   {}
func (nopRecorder) FetchFailed(string, errors.ErrorType) {}
func (nopRecorder) DealsSaved(string, int)               {}
func (nopRecorder) JobFinished(bool, time.Duration)      {}

const (
	defaultMaxConcurrentSources = 4
	defaultPerSourceConcurrency = 1
)

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithBus publishes progress events to bus
func WithBus(bus *events.Bus) Option {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithSink publishes saved deals to sink
func WithSink(sink Sink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithRecorder reports metrics to r
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

// WithLogger sets the logger
func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithNormalizer replaces the default normalizer
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(o *Orchestrator) { o.normalizer = n }
}

// WithDefaults sets the values merged into requests
func WithDefaults(d Defaults) Option {
	return func(o *Orchestrator) { o.defaults = d }
}

// WithConcurrency bounds how many sources run at once across all jobs and
// how many jobs may crawl the same source at once.
func WithConcurrency(maxSources, perSource int) Option {
	return func(o *Orchestrator) {
		if maxSources > 0 {
			o.maxSources = maxSources
		}
		if perSource > 0 {
			o.perSourceLimit = perSource
		}
	}
}

// WithClock sets the time source for time filtering
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator executes crawl jobs. It is safe for concurrent use; jobs
// share the concurrency limits but nothing else.
type Orchestrator struct {
	registry   *crawler.Registry
	gateway    Gateway
	normalizer *normalize.Normalizer
	bus        *events.Bus
	sink       Sink
	recorder   Recorder
	log        *logger.Logger
	defaults   Defaults
	now        func() time.Time

	maxSources     int
	perSourceLimit int
	global         *semaphore.Weighted

	mu        sync.Mutex
	perSource map[string]*semaphore.Weighted
}

// New creates an Orchestrator over the sources in registry
func New(registry *crawler.Registry, gateway Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:       registry,
		gateway:        gateway,
		normalizer:     normalize.New(),
		recorder:       nopRecorder{},
		log:            logger.ForComponent("engine"),
		defaults:       DefaultSettings(),
		now:            time.Now,
		maxSources:     defaultMaxConcurrentSources,
		perSourceLimit: defaultPerSourceConcurrency,
		perSource:      make(map[string]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.global = semaphore.NewWeighted(int64(o.maxSources))
	return o
}

// Sources returns the names a request may use
func (o *Orchestrator) Sources() []string {
	return o.registry.Names()
}

// Validate checks req without running it
func (o *Orchestrator) Validate(req CrawlJobRequest) error {
	_, _, err := validate(req, o.registry, o.defaults)
	return err
}

// ExecuteCrawlJob runs req to completion. Only request validation fails the
// call; source failures are reported in the result's Errors.
func (o *Orchestrator) ExecuteCrawlJob(ctx context.Context, req CrawlJobRequest) (*CrawlJobResult, error) {
	sources, s, err := validate(req, o.registry, o.defaults)
	if err != nil {
		return nil, err
	}
	return o.run(ctx, uuid.NewString(), sources, s), nil
}

// StartCrawlJob validates req and runs it in the background. The returned
// channel yields the result once and is then closed.
func (o *Orchestrator) StartCrawlJob(ctx context.Context, req CrawlJobRequest) (string, <-chan *CrawlJobResult, error) {
	sources, s, err := validate(req, o.registry, o.defaults)
	if err != nil {
		return "", nil, err
	}

	jobID := uuid.NewString()
	done := make(chan *CrawlJobResult, 1)
	go func() {
		defer close(done)
		done <- o.run(ctx, jobID, sources, s)
	}()
	return jobID, done, nil
}

// job is the state shared by the workers of one job
type job struct {
	id       string
	settings settings
	index    *dedup.Index
	cutoff   time.Time
	log      *logger.Logger
}

type outcome struct {
	stats SourceStats
	err   *SourceError
}

func (o *Orchestrator) run(ctx context.Context, jobID string, sources []crawler.Source, s settings) *CrawlJobResult {
	start := time.Now()
	j := &job{
		id:       jobID,
		settings: s,
		index:    dedup.NewIndex(o.gateway),
		log:      o.log.ForJob(jobID),
	}
	if s.timeFilter > 0 {
		j.cutoff = o.now().Add(-s.timeFilter)
	}

	j.log.Info().
		Strs("sources", lo.Map(sources, func(src crawler.Source, _ int) string { return src.Name })).
		Bool("concurrent", s.concurrent).
		Int("max_pages", s.maxPages).
		Msg("Starting crawl job")

	outcomes := make([]outcome, len(sources))
	if s.concurrent {
		// Plain group: one failing source must not cancel its siblings.
		var g errgroup.Group
		g.SetLimit(min(o.maxSources, len(sources)))
		for i, src := range sources {
			g.Go(func() error {
				outcomes[i] = o.runSource(ctx, j, src)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, src := range sources {
			outcomes[i] = o.runSource(ctx, j, src)
		}
	}

	result := &CrawlJobResult{
		JobID:  jobID,
		Stats:  Stats{PerSource: make(map[string]SourceStats, len(sources))},
		Errors: make(map[string]SourceError),
	}
	for _, out := range outcomes {
		result.Stats.PerSource[out.stats.Source] = out.stats
		result.Stats.TotalCrawled += out.stats.TotalCrawled
		result.Stats.TotalSaved += out.stats.TotalSaved
		result.Stats.TotalUpdated += out.stats.Updated
		if out.err != nil {
			result.Errors[out.stats.Source] = *out.err
			if out.err.Cancelled {
				result.Cancelled = true
			}
		}
	}
	elapsed := time.Since(start)
	result.Stats.ElapsedMs = elapsed.Milliseconds()
	result.Success = len(result.Errors) == 0
	o.recorder.JobFinished(result.Success, elapsed)

	j.log.Info().
		Bool("success", result.Success).
		Int("total_crawled", result.Stats.TotalCrawled).
		Int("total_saved", result.Stats.TotalSaved).
		Int("total_updated", result.Stats.TotalUpdated).
		Int("failed_sources", len(result.Errors)).
		Dur("elapsed", elapsed).
		Msg("Crawl job finished")
	return result
}

// runSource waits for a slot and runs one source to completion
func (o *Orchestrator) runSource(ctx context.Context, j *job, src crawler.Source) outcome {
	w := newSourceWorker(o, j, src)

	release, err := o.acquire(ctx, src.Name)
	if err != nil {
		return w.cancelled(1)
	}
	defer release()

	if ctx.Err() != nil {
		return w.cancelled(1)
	}
	return w.run(ctx)
}

// acquire takes the per-source slot before the global one. Every caller
// uses the same order, so two jobs can never hold one each and wait on the
// other.
func (o *Orchestrator) acquire(ctx context.Context, source string) (func(), error) {
	sem := o.sourceSemaphore(source)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if err := o.global.Acquire(ctx, 1); err != nil {
		sem.Release(1)
		return nil, err
	}
	return func() {
		o.global.Release(1)
		sem.Release(1)
	}, nil
}

func (o *Orchestrator) sourceSemaphore(source string) *semaphore.Weighted {
	o.mu.Lock()
	defer o.mu.Unlock()

	sem, ok := o.perSource[source]
	if !ok {
		sem = semaphore.NewWeighted(int64(o.perSourceLimit))
		o.perSource[source] = sem
	}
	return sem
}

func (o *Orchestrator) publish(e events.Event) {
	if o.bus != nil {
		o.bus.Publish(e)
	}
}
