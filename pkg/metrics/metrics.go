// Package metrics defines the Prometheus metric collectors used across the
// pipeline and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the pipeline.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	JobsEnqueuedTotal    *prometheus.CounterVec
	JobsDequeuedTotal    *prometheus.CounterVec
	JobsCompletedTotal   prometheus.Counter
	JobsFailedTotal      prometheus.Counter
	JobRetriesTotal      prometheus.Counter
	DuplicatesTotal      prometheus.Counter
	QueueDepth           *prometheus.GaugeVec
	JobDuration          *prometheus.HistogramVec
	ChunksProcessedTotal prometheus.Counter
	EventsPublishedTotal *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		JobsEnqueuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_enqueued_total",
				Help: "Total jobs pushed onto the queue by priority lane.",
			},
			[]string{"lane"},
		),
		JobsDequeuedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_dequeued_total",
				Help: "Total jobs popped off the queue by priority lane.",
			},
			[]string{"lane"},
		),
		JobsCompletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_completed_total",
				Help: "Total jobs that finished processing successfully.",
			},
		),
		JobsFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_jobs_failed_total",
				Help: "Total jobs that failed terminally after exhausting retries.",
			},
		),
		JobRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_job_retries_total",
				Help: "Total retry attempts scheduled across all jobs.",
			},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_duplicate_requests_total",
				Help: "Total submissions rejected because the idempotency key was already used.",
			},
		),
		QueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ingestion_queue_depth",
				Help: "Current number of jobs waiting in each priority lane.",
			},
			[]string{"lane"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ingestion_job_duration_seconds",
				Help:    "End-to-end processing time per job attempt by outcome.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"outcome"},
		),
		ChunksProcessedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingestion_chunks_processed_total",
				Help: "Total document chunks produced by the processor.",
			},
		),
		EventsPublishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingestion_events_published_total",
				Help: "Job lifecycle events published to Kafka by type and status.",
			},
			[]string{"type", "status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.JobsEnqueuedTotal,
		m.JobsDequeuedTotal,
		m.JobsCompletedTotal,
		m.JobsFailedTotal,
		m.JobRetriesTotal,
		m.DuplicatesTotal,
		m.QueueDepth,
		m.JobDuration,
		m.ChunksProcessedTotal,
		m.EventsPublishedTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
