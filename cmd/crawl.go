package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/internal/handler"
	"github.com/dealmungchi/dealcrawler/internal/platform/rabbitmq"
	"github.com/dealmungchi/dealcrawler/logger"
)

type crawlFlags struct {
	maxPages        int
	pageDelayMs     int
	detailDelayMs   int
	skipDetail      bool
	concurrent      bool
	retryAttempts   int
	retryDelayMs    int
	timeFilterHours int
	jsonOutput      bool
	enqueue         bool
}

// request builds a job request. Only flags the user set override the
// configured defaults.
func (f *crawlFlags) request(sources []string, changed func(name string) bool) engine.CrawlJobRequest {
	opts := engine.Options{
		SkipDetail: f.skipDetail,
		Concurrent: f.concurrent,
	}
	if changed("max-pages") {
		opts.MaxPages = lo.ToPtr(f.maxPages)
	}
	if changed("page-delay") {
		opts.PageDelayMs = lo.ToPtr(f.pageDelayMs)
	}
	if changed("detail-delay") {
		opts.DetailDelayMs = lo.ToPtr(f.detailDelayMs)
	}
	if changed("retry-attempts") {
		opts.RetryAttempts = lo.ToPtr(f.retryAttempts)
	}
	if changed("retry-delay") {
		opts.RetryDelayMs = lo.ToPtr(f.retryDelayMs)
	}
	if changed("time-filter") {
		opts.TimeFilterHours = lo.ToPtr(f.timeFilterHours)
	}
	return engine.CrawlJobRequest{Sources: sources, Options: opts}
}

func newCrawlCommand() *cobra.Command {
	var f crawlFlags

	cmd := &cobra.Command{
		Use:   "crawl <source>...",
		Short: "Run one crawl job and print its result",
		Example: `  dealcrawler crawl clien ppomppu --max-pages 3 --concurrent
  dealcrawler crawl quasarzone --time-filter 6 --skip-detail
  dealcrawler crawl ruliweb --enqueue`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := f.request(args, cmd.Flags().Changed)
			if f.enqueue {
				return enqueueCrawl(cmd.Context(), req)
			}
			return runCrawl(cmd, req, f.jsonOutput)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.maxPages, "max-pages", 1, "pages to crawl per source")
	flags.IntVar(&f.pageDelayMs, "page-delay", 0, "delay between pages in milliseconds")
	flags.IntVar(&f.detailDelayMs, "detail-delay", 0, "delay before each detail page in milliseconds")
	flags.BoolVar(&f.skipDetail, "skip-detail", false, "do not open detail pages")
	flags.BoolVar(&f.concurrent, "concurrent", false, "crawl sources concurrently")
	flags.IntVar(&f.retryAttempts, "retry-attempts", 3, "retries per failed page")
	flags.IntVar(&f.retryDelayMs, "retry-delay", 1000, "initial retry delay in milliseconds")
	flags.IntVar(&f.timeFilterHours, "time-filter", 0, "skip posts older than this many hours")
	flags.BoolVar(&f.jsonOutput, "json", false, "print the result as JSON")
	flags.BoolVar(&f.enqueue, "enqueue", false, "queue the job on RabbitMQ instead of running it")

	return cmd
}

func runCrawl(cmd *cobra.Command, req engine.CrawlJobRequest, jsonOutput bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	progress, unsubscribe := a.bus.Subscribe()
	defer unsubscribe()
	go logProgress(progress, logger.ForComponent("crawl"))

	result, err := a.orchestrator().ExecuteCrawlJob(ctx, req)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	renderResult(out, result)
	return nil
}

func logProgress(ch <-chan events.Event, log *logger.Logger) {
	for e := range ch {
		switch e.Type {
		case events.TypeProgress:
			log.Info().
				Str("source", e.Source).
				Int("page", e.Page).
				Int("found", e.FoundOnPage).
				Int("total", e.TotalSoFar).
				Msg("Page crawled")
		case events.TypeError:
			log.Warn().
				Str("source", e.Source).
				Int("page", e.Page).
				Bool("will_retry", e.WillRetry).
				Msg(e.Message)
		}
	}
}

func enqueueCrawl(ctx context.Context, req engine.CrawlJobRequest) error {
	if cfg.RabbitMQ.URL == "" {
		return fmt.Errorf("RABBITMQ_URL is not set")
	}

	conn, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	mq, err := rabbitmq.NewRabbitMQ(conn, cfg.RabbitMQ.Exchange)
	if err != nil {
		return err
	}
	defer mq.Close()

	if err := mq.DeclareQueue(cfg.RabbitMQ.Queue); err != nil {
		return err
	}

	body, err := json.Marshal(handler.CrawlCommand{Sources: req.Sources, Options: req.Options})
	if err != nil {
		return fmt.Errorf("encode crawl command: %w", err)
	}
	if err := mq.Publish(ctx, cfg.RabbitMQ.Queue, body); err != nil {
		return err
	}

	logger.ForComponent("crawl").Info().
		Strs("sources", req.Sources).
		Str("queue", cfg.RabbitMQ.Queue).
		Msg("Crawl command queued")
	return nil
}
