package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/sma-exam-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the HTTP surface
// and the exam lifecycle engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	lifecycleTransitions *prometheus.CounterVec
	resultSubmissions    prometheus.Counter
	updateConflicts      prometheus.Counter

	cacheLatency prometheus.Observer
	cacheHits    prometheus.Counter
	cacheMisses  prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	lifecycleTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "exam_lifecycle_transitions_total",
		Help: "Total exam status transitions by edge",
	}, []string{"from", "to"})

	resultSubmissions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_result_submissions_total",
		Help: "Total student result submissions ingested",
	})

	updateConflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_update_conflicts_total",
		Help: "Total optimistic update conflicts observed",
	})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, lifecycleTransitions,
		resultSubmissions, updateConflicts, cacheLatency, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:             registry,
		handler:              promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:      requestDuration,
		requestTotal:         requestTotal,
		lifecycleTransitions: lifecycleTransitions,
		resultSubmissions:    resultSubmissions,
		updateConflicts:      updateConflicts,
		cacheLatency:         cacheLatency,
		cacheHits:            cacheHits,
		cacheMisses:          cacheMisses,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveHTTPRequest records one completed HTTP request.
func (s *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	labels := prometheus.Labels{"method": method, "path": path, "status": strconv.Itoa(status)}
	s.requestDuration.With(labels).Observe(duration.Seconds())
	s.requestTotal.With(labels).Inc()
}

// RecordLifecycleTransition counts one status transition edge.
func (s *MetricsService) RecordLifecycleTransition(from, to models.ExamStatus) {
	s.lifecycleTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordResultSubmission counts one ingested student result.
func (s *MetricsService) RecordResultSubmission() {
	s.resultSubmissions.Inc()
}

// RecordUpdateConflict counts one lost optimistic update race.
func (s *MetricsService) RecordUpdateConflict() {
	s.updateConflicts.Inc()
}

// RecordCacheOperation records one cache lookup.
func (s *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	s.cacheLatency.Observe(duration.Seconds())
	if hit {
		s.cacheHits.Inc()
	} else {
		s.cacheMisses.Inc()
	}
}
