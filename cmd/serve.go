package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dealmungchi/dealcrawler/internal/api"
	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/internal/handler"
	"github.com/dealmungchi/dealcrawler/internal/metrics"
	"github.com/dealmungchi/dealcrawler/internal/platform/rabbitmq"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/services/publisher"
	"github.com/dealmungchi/dealcrawler/services/worker"
)

func newServeCommand() *cobra.Command {
	var noSchedule bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the scheduled crawler and the command consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), !noSchedule)
		},
	}
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "do not run the scheduled crawl job")

	return cmd
}

func serve(parent context.Context, scheduled bool) error {
	log := logger.ForComponent("serve")
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	m.WatchBus(a.bus)
	orch := a.orchestrator(engine.WithRecorder(m))

	log.Info().
		Str("environment", cfg.Environment).
		Strs("sources", orch.Sources()).
		Msg("Starting dealcrawler")

	g, ctx := errgroup.WithContext(ctx)

	// everything that can fail is built before the first goroutine starts
	var w *worker.Worker
	if scheduled && cfg.Schedule.Cron != "" && len(cfg.Schedule.Sources) > 0 {
		req := engine.CrawlJobRequest{
			Sources: cfg.Schedule.Sources,
			Options: engine.Options{MaxPages: lo.ToPtr(cfg.Schedule.MaxPages)},
		}
		if err := orch.Validate(req); err != nil {
			return fmt.Errorf("scheduled crawl: %w", err)
		}
		if w, err = worker.NewWorker(ctx, orch, a.publisher, cfg.Schedule.Cron, req); err != nil {
			return err
		}
		log.Info().Str("schedule", cfg.Schedule.Cron).Strs("sources", req.Sources).Msg("Scheduled crawl enabled")
	}

	var mq *rabbitmq.RabbitMQ
	if cfg.RabbitMQ.URL != "" {
		if mq, err = startConsumer(ctx, orch); err != nil {
			return err
		}
		defer mq.Close()
	}

	srv := api.NewServer(api.Params{
		Context:  ctx,
		Crawler:  orch,
		Deals:    a.store,
		Bus:      a.bus,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger.ForComponent("api"),
	})
	g.Go(func() error {
		if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.publisher != nil {
		fwd := publisher.NewForwarder(a.bus, a.publisher)
		g.Go(func() error {
			fwd.Run(ctx)
			return nil
		})
	}
	if w != nil {
		g.Go(w.Start)
	}
	if mq != nil {
		g.Go(func() error {
			<-mq.Done()
			return nil
		})
	}

	err = g.Wait()
	log.Info().Msg("Shutting down gracefully...")
	return err
}

func startConsumer(ctx context.Context, runner handler.JobRunner) (*rabbitmq.RabbitMQ, error) {
	conn, err := rabbitmq.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	mq, err := rabbitmq.NewRabbitMQ(conn, cfg.RabbitMQ.Exchange)
	if err != nil {
		return nil, err
	}
	if err := mq.DeclareQueue(cfg.RabbitMQ.Queue); err != nil {
		return nil, err
	}

	h := handler.NewHandler(mq, runner, logger.ForComponent("rmq"))
	if err := h.Start(ctx, cfg.RabbitMQ.Queue); err != nil {
		return nil, err
	}
	logger.ForComponent("rmq").Info().Str("queue", cfg.RabbitMQ.Queue).Msg("Consuming crawl commands")
	return mq, nil
}
