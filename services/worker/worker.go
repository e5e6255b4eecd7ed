package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/services/publisher"
)

// JobRunner executes crawl jobs
type JobRunner interface {
	ExecuteCrawlJob(ctx context.Context, req engine.CrawlJobRequest) (*engine.CrawlJobResult, error)
}

// Worker runs a fixed crawl job on a cron schedule and trims the output
// streams after every run
type Worker struct {
	ctx       context.Context
	runner    JobRunner
	publisher publisher.Publisher
	logger    *logger.Logger
	request   engine.CrawlJobRequest
	cron      *cron.Cron
}

// NewWorker creates a new worker. pub may be nil when nothing is published.
func NewWorker(
	ctx context.Context,
	runner JobRunner,
	pub publisher.Publisher,
	schedule string,
	req engine.CrawlJobRequest,
) (*Worker, error) {
	log := logger.ForWorker()
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cl := cronLogger{log: log}

	w := &Worker{
		ctx:       ctx,
		runner:    runner,
		publisher: pub,
		logger:    log,
		request:   req,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
	}
	if _, err := w.cron.AddFunc(schedule, func() { w.RunOnce() }); err != nil {
		return nil, fmt.Errorf("invalid crawl schedule %q: %w", schedule, err)
	}
	return w, nil
}

// Start runs the job once, then on every tick until the context is done.
// It returns after the in-flight run, if any, has finished.
func (w *Worker) Start() error {
	w.RunOnce()
	w.cron.Start()

	<-w.ctx.Done()
	stopped := w.cron.Stop()
	<-stopped.Done()
	return nil
}

// RunOnce executes the configured job and trims the streams
func (w *Worker) RunOnce() *engine.CrawlJobResult {
	if w.ctx.Err() != nil {
		return nil
	}

	start := time.Now()
	result, err := w.runner.ExecuteCrawlJob(w.ctx, w.request)
	if err != nil {
		w.logger.Error().Err(err).Msg("Scheduled crawl rejected")
		return nil
	}

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(); err != nil {
			w.logger.Error().Err(err).Msg("Stream trimming failed")
		}
	}

	w.logger.Info().
		Str("job_id", result.JobID).
		Bool("success", result.Success).
		Int("saved", result.Stats.TotalSaved).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled crawl finished")
	for source, serr := range result.Errors {
		w.logger.Warn().Str("source", source).Str("type", string(serr.Type)).Msg(serr.Message)
	}
	return result
}

// cronLogger adapts the zerolog wrapper to cron.Logger
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
