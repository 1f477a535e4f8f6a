package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the gateway and
// the generation engine.
type MetricsService struct {
	registry *prometheus.Registry
	handler  http.Handler

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec

	generationDuration prometheus.Histogram
	generationTotal    prometheus.Counter
	generationScore    prometheus.Histogram
	conflictsDetected  prometheus.Counter
	refinementApplied  prometheus.Counter
	refinementRejected prometheus.Counter
}

// NewMetricsService registers the collectors.
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

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "class_generation_duration_seconds",
		Help:    "Wall time of one full generation run",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	generationTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_generation_runs_total",
		Help: "Total number of completed generation runs",
	})

	generationScore := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "class_generation_score",
		Help:    "Optimization score distribution of generated proposals",
		Buckets: []float64{50, 60, 70, 80, 90, 95, 100},
	})

	conflictsDetected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_generation_conflicts_total",
		Help: "Total conflicts detected across generation runs",
	})

	refinementApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_refinement_edits_applied_total",
		Help: "Total manual edits applied",
	})

	refinementRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "class_refinement_edits_rejected_total",
		Help: "Total manual edits rejected",
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		generationDuration, generationTotal, generationScore, conflictsDetected,
		refinementApplied, refinementRejected,
	)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		generationDuration: generationDuration,
		generationTotal:    generationTotal,
		generationScore:    generationScore,
		conflictsDetected:  conflictsDetected,
		refinementApplied:  refinementApplied,
		refinementRejected: refinementRejected,
	}
}

// Handler exposes the Prometheus scrape endpoint.
func (s *MetricsService) Handler() http.Handler {
	return s.handler
}

// ObserveRequest records one HTTP request.
func (s *MetricsService) ObserveRequest(method, path string, status int, duration time.Duration) {
	labels := []string{method, path, strconv.Itoa(status)}
	s.requestDuration.WithLabelValues(labels...).Observe(duration.Seconds())
	s.requestTotal.WithLabelValues(labels...).Inc()
}

// ObserveGeneration records one completed generation run.
func (s *MetricsService) ObserveGeneration(duration time.Duration, score float64, conflicts int) {
	s.generationDuration.Observe(duration.Seconds())
	s.generationTotal.Inc()
	s.generationScore.Observe(score)
	s.conflictsDetected.Add(float64(conflicts))
}

// ObserveRefinement records the outcome of one edit batch.
func (s *MetricsService) ObserveRefinement(applied, rejected int) {
	s.refinementApplied.Add(float64(applied))
	s.refinementRejected.Add(float64(rejected))
}
