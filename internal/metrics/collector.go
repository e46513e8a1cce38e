// Package metrics wires prometheus.client_golang into the two places
// this service has real throughput to observe: the daily batch
// pipeline's per-stage duration/error counts, and the HTTP read
// surface's per-route request duration/status counts. There is no
// simulated or sampled data here — every series is driven by a real
// Observe/Inc call from internal/scheduler or internal/interfaces/http.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric this process exposes on /metrics.
type Collector struct {
	StageDuration *prometheus.HistogramVec
	StageRuns     *prometheus.CounterVec
	StageErrors   *prometheus.CounterVec

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec

	PredictionsScored prometheus.Counter
	ModelsTrained     prometheus.Counter
}

// NewCollector builds and registers the collector's metrics against
// the default prometheus registry.
func NewCollector() *Collector {
	c := &Collector{
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_pipeline_stage_duration_seconds",
				Help:    "Duration of each daily-pipeline stage in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage", "result"},
		),
		StageRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_pipeline_stage_runs_total",
				Help: "Total number of pipeline stage executions",
			},
			[]string{"stage", "result"},
		),
		StageErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_pipeline_stage_errors_total",
				Help: "Total number of per-unit failures within a pipeline stage",
			},
			[]string{"stage"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scout_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scout_http_requests_total",
				Help: "Total number of HTTP requests served",
			},
			[]string{"route", "method", "status"},
		),
		PredictionsScored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_predictions_scored_total",
				Help: "Total number of prediction snapshots inserted",
			},
		),
		ModelsTrained: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scout_models_trained_total",
				Help: "Total number of model versions trained",
			},
		),
	}

	prometheus.MustRegister(
		c.StageDuration, c.StageRuns, c.StageErrors,
		c.HTTPRequestDuration, c.HTTPRequestsTotal,
		c.PredictionsScored, c.ModelsTrained,
	)
	return c
}

// StageTimer times one pipeline stage invocation.
type StageTimer struct {
	c     *Collector
	stage string
	start time.Time
}

func (c *Collector) StartStage(stage string) *StageTimer {
	return &StageTimer{c: c, stage: stage, start: time.Now()}
}

func (t *StageTimer) Stop(result string) {
	t.c.StageDuration.WithLabelValues(t.stage, result).Observe(time.Since(t.start).Seconds())
	t.c.StageRuns.WithLabelValues(t.stage, result).Inc()
}

func (c *Collector) RecordStageError(stage string) {
	c.StageErrors.WithLabelValues(stage).Inc()
}

// Handler exposes the registered metrics for Prometheus scraping.
func (c *Collector) Handler() http.Handler { return promhttp.Handler() }

// InstrumentRoute wraps an http.HandlerFunc so every request to
// `route` is counted and timed by method and response status.
func (c *Collector) InstrumentRoute(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusCapture{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)
		status := http.StatusText(rw.statusCode)
		c.HTTPRequestDuration.WithLabelValues(route, r.Method, status).Observe(time.Since(start).Seconds())
		c.HTTPRequestsTotal.WithLabelValues(route, r.Method, status).Inc()
	}
}

type statusCapture struct {
	http.ResponseWriter
	statusCode int
}

func (s *statusCapture) WriteHeader(code int) {
	s.statusCode = code
	s.ResponseWriter.WriteHeader(code)
}
