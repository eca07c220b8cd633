// Package metrics provides Prometheus metrics instrumentation for the API server.
//
// Metrics exposed:
//   - breatheeasy_forecast_stage_seconds: Histogram of forecast stage durations
//     (source, provide, rollout, direct, total, fit) by variant
//   - breatheeasy_errors_total: Counter of errors by component and reason
//   - breatheeasy_history_cache_total: Counter of history cache lookups by
//     dataset and result (hit or miss)
//   - breatheeasy_http_requests_total: Counter of HTTP requests by route and status
//   - breatheeasy_http_request_seconds: Histogram of HTTP request latency by route
//   - breatheeasy_artifacts_saved_total: Counter of trained artifacts by variant
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the server. It satisfies
// forecast.Recorder.
type Metrics struct {
	StageSeconds   *prometheus.HistogramVec
	ErrorsTotal    *prometheus.CounterVec
	CacheLookups   *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
	HTTPSeconds    *prometheus.HistogramVec
	ArtifactsSaved *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		StageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breatheeasy_forecast_stage_seconds",
			Help:    "Time spent in each forecast stage",
			Buckets: prometheus.DefBuckets, // .005 .. 10
		}, []string{"variant", "stage"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "breatheeasy_errors_total",
			Help: "Total number of errors by component and reason",
		}, []string{"component", "reason"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "breatheeasy_history_cache_total",
			Help: "History cache lookups by dataset and result",
		}, []string{"dataset", "result"}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "breatheeasy_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "status"}),

		HTTPSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "breatheeasy_http_request_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),

		ArtifactsSaved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "breatheeasy_artifacts_saved_total",
			Help: "Trained predictor artifacts saved by variant",
		}, []string{"variant"}),
	}
}

// ObserveStage records the time a forecast spent in stage.
func (m *Metrics) ObserveStage(variant, stage string, seconds float64) {
	m.StageSeconds.WithLabelValues(variant, stage).Observe(seconds)
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// ObserveCache counts a history cache lookup.
func (m *Metrics) ObserveCache(dataset string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(dataset, result).Inc()
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.HTTPSeconds.WithLabelValues(route).Observe(d.Seconds())
}

// RecordArtifact counts a saved artifact.
func (m *Metrics) RecordArtifact(variant string) {
	m.ArtifactsSaved.WithLabelValues(variant).Inc()
}
