package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by dispatch and execution collectors.
const (
	StatusOK        = "ok"
	StatusException = "exception"
	StatusError     = "error"
)

// PrometheusMetrics wraps prometheus collectors for tasklet.
type PrometheusMetrics struct {
	registry *prometheus.Registry

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec

	executionTotal    *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec

	serializationFailures *prometheus.CounterVec

	queueDepth     prometheus.Gauge
	activeRequests prometheus.Gauge
}

// Default histogram buckets for durations (in milliseconds)
var defaultBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

var promMetrics *PrometheusMetrics

// InitPrometheus initializes the Prometheus metrics subsystem.
func InitPrometheus(namespace string, buckets []float64) {
	if len(buckets) == 0 {
		buckets = defaultBuckets
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	pm := &PrometheusMetrics{
		registry: registry,

		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Total number of task dispatches",
			},
			[]string{"task", "mode", "backend", "status"},
		),

		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_milliseconds",
				Help:      "Duration of task dispatches in milliseconds",
				Buckets:   buckets,
			},
			[]string{"task", "mode", "backend"},
		),

		executionTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of requests handled on the execution side",
			},
			[]string{"function", "surface", "status"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_milliseconds",
				Help:      "Duration of handled requests in milliseconds",
				Buckets:   buckets,
			},
			[]string{"function", "surface"},
		),

		serializationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "serialization_failures_total",
				Help:      "Values a serializer refused to pack",
			},
			[]string{"serializer"},
		),

		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "local_queue_depth",
				Help:      "Calls waiting on local executor queues",
			},
		),

		activeRequests: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_requests",
				Help:      "Requests currently executing on the execution side",
			},
		),
	}

	registry.MustRegister(
		pm.dispatchTotal,
		pm.dispatchDuration,
		pm.executionTotal,
		pm.executionDuration,
		pm.serializationFailures,
		pm.queueDepth,
		pm.activeRequests,
	)

	promMetrics = pm
}

// RecordDispatch records one task dispatch.
func RecordDispatch(task, mode, backend, status string, durationMs float64) {
	global.recordDispatch(task, status)
	if promMetrics == nil {
		return
	}
	promMetrics.dispatchTotal.WithLabelValues(task, mode, backend, status).Inc()
	promMetrics.dispatchDuration.WithLabelValues(task, mode, backend).Observe(durationMs)
}

// RecordExecution records one request handled by the router.
func RecordExecution(function, surface, status string, durationMs float64) {
	global.recordExecution(function, status, durationMs)
	if promMetrics == nil {
		return
	}
	promMetrics.executionTotal.WithLabelValues(function, surface, status).Inc()
	promMetrics.executionDuration.WithLabelValues(function, surface).Observe(durationMs)
}

// RecordSerializationFailure records a value the serializer refused.
func RecordSerializationFailure(serializer string) {
	if promMetrics == nil {
		return
	}
	promMetrics.serializationFailures.WithLabelValues(serializer).Inc()
}

// AddQueueDepth moves the local queue depth gauge by delta.
func AddQueueDepth(delta int) {
	if promMetrics == nil {
		return
	}
	promMetrics.queueDepth.Add(float64(delta))
}

// IncActiveRequests increments the active requests gauge.
func IncActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Inc()
}

// DecActiveRequests decrements the active requests gauge.
func DecActiveRequests() {
	if promMetrics == nil {
		return
	}
	promMetrics.activeRequests.Dec()
}

// PrometheusHandler returns an HTTP handler for Prometheus metrics scraping.
func PrometheusHandler() http.Handler {
	if promMetrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("prometheus metrics not initialized"))
		})
	}
	return promhttp.HandlerFor(promMetrics.registry, promhttp.HandlerOpts{})
}
