package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dealmungchi/dealcrawler/internal/deal"
	"github.com/dealmungchi/dealcrawler/internal/engine"
	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/logger"
	"github.com/dealmungchi/dealcrawler/services/store"
)

const (
	readHeaderTimeout = 10 * time.Second

	// DefaultHeartbeatInterval is how often an idle event stream gets a comment line
	DefaultHeartbeatInterval = 15 * time.Second
)

// CrawlService runs crawl jobs
type CrawlService interface {
	Sources() []string
	ExecuteCrawlJob(ctx context.Context, req engine.CrawlJobRequest) (*engine.CrawlJobResult, error)
	StartCrawlJob(ctx context.Context, req engine.CrawlJobRequest) (string, <-chan *engine.CrawlJobResult, error)
}

// DealReader is the read side of the deal store
type DealReader interface {
	FindAll(ctx context.Context, f store.Filter) ([]deal.Deal, error)
	FindByID(ctx context.Context, id string) (deal.Deal, error)
}

// Params holds the dependencies of the HTTP API
type Params struct {
	// Context bounds asynchronous jobs. It defaults to context.Background.
	Context  context.Context
	Crawler  CrawlService
	Deals    DealReader
	Bus      *events.Bus
	Gatherer prometheus.Gatherer
	Logger   *logger.Logger

	HeartbeatInterval time.Duration
}

// Server serves the HTTP API
type Server struct {
	ctx       context.Context
	crawler   CrawlService
	deals     DealReader
	bus       *events.Bus
	gatherer  prometheus.Gatherer
	log       *logger.Logger
	heartbeat time.Duration
}

// NewServer creates a Server
func NewServer(p Params) *Server {
	s := &Server{
		ctx:       p.Context,
		crawler:   p.Crawler,
		deals:     p.Deals,
		bus:       p.Bus,
		gatherer:  p.Gatherer,
		log:       p.Logger,
		heartbeat: p.HeartbeatInterval,
	}
	if s.ctx == nil {
		s.ctx = context.Background()
	}
	if s.log == nil {
		s.log = logger.ForComponent("api")
	}
	if s.heartbeat <= 0 {
		s.heartbeat = DefaultHeartbeatInterval
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	return s
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(s.log))

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	v1.POST("/crawl", s.crawl)
	v1.GET("/crawl/events", s.streamEvents)
	v1.GET("/sources", s.sources)
	v1.GET("/deals", s.listDeals)
	v1.GET("/deals/:id", s.getDeal)

	return router
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if s.bus != nil {
		// open event streams never finish on their own
		s.bus.Close()
	}
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func loggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
