// Package metrics exposes crawl metrics to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dealmungchi/dealcrawler/internal/events"
	"github.com/dealmungchi/dealcrawler/pkg/errors"
)

const (
	// Namespace is the namespace for all crawler metrics.
	Namespace = "dealcrawler"
	// Subsystem is the subsystem for engine metrics.
	Subsystem = "engine"
)

// Metrics implements engine.Recorder on Prometheus collectors
type Metrics struct {
	factory promauto.Factory

	PagesFetchedTotal  *prometheus.CounterVec
	FetchFailuresTotal *prometheus.CounterVec
	DealsSavedTotal    *prometheus.CounterVec
	JobsTotal          *prometheus.CounterVec
	JobDurationSeconds prometheus.Histogram
}

// NewMetrics creates and registers the metrics on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		factory: factory,
		PagesFetchedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "pages_fetched_total",
				Help:      "Total number of list pages fetched",
			},
			[]string{"source"},
		),
		FetchFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "fetch_failures_total",
				Help:      "Total number of failed page fetch attempts",
			},
			[]string{"source", "type"},
		),
		DealsSavedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "deals_saved_total",
				Help:      "Total number of newly persisted deals",
			},
			[]string{"source"},
		),
		JobsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "jobs_total",
				Help:      "Total number of finished crawl jobs",
			},
			[]string{"status"},
		),
		JobDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: Subsystem,
				Name:      "job_duration_seconds",
				Help:      "Duration of crawl jobs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
			},
		),
	}
}

func (m *Metrics) PageFetched(source string) {
	m.PagesFetchedTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) FetchFailed(source string, errType errors.ErrorType) {
	if errType == "" {
		errType = "unknown"
	}
	m.FetchFailuresTotal.WithLabelValues(source, string(errType)).Inc()
}

func (m *Metrics) DealsSaved(source string, n int) {
	m.DealsSavedTotal.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) JobFinished(success bool, elapsed time.Duration) {
	status := "success"
	if !success {
		status = "failed"
	}
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDurationSeconds.Observe(elapsed.Seconds())
}

// WatchBus exports the subscriber count and dropped events of bus
func (m *Metrics) WatchBus(bus *events.Bus) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "subscribers",
			Help:      "Number of active event subscribers",
		},
		func() float64 { return float64(bus.SubscriberCount()) },
	)
	m.factory.NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		},
		func() float64 { return float64(bus.Dropped()) },
	)
}
