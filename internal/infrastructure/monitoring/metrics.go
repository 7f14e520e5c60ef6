package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics, registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// gRPC metrics
	GRPCCalls    *prometheus.CounterVec
	GRPCDuration *prometheus.HistogramVec
	GRPCErrors   *prometheus.CounterVec

	// Memory manager operations
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	UploadBytes       prometheus.Counter
	UploadsStored     prometheus.Gauge

	startTime time.Time

	// Snapshot for the health endpoint
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON output
type MetricsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	TotalDuration float64 `json:"total_duration_seconds"`
	Operations    int64   `json:"operations"`
	FailedOps     int64   `json:"failed_operations"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

var latencyBuckets = []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memmgr_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memmgr_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memmgr_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memmgr_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000, 10000000},
			},
			[]string{"method", "path"},
		),

		GRPCCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memmgr_grpc_calls_total",
				Help: "Total number of gRPC calls",
			},
			[]string{"method", "status"},
		),
		GRPCDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memmgr_grpc_duration_seconds",
				Help:    "gRPC call duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"method"},
		),
		GRPCErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memmgr_grpc_errors_total",
				Help: "Total number of gRPC errors",
			},
			[]string{"method", "code"},
		),

		Operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memmgr_operations_total",
				Help: "Memory manager operations by result code",
			},
			[]string{"op", "result"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memmgr_operation_duration_seconds",
				Help:    "Memory manager operation duration in seconds",
				Buckets: latencyBuckets,
			},
			[]string{"op"},
		),
		UploadBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "memmgr_upload_bytes_total",
				Help: "Logical bytes received into upload bundles",
			},
		),
		UploadsStored: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memmgr_uploads_stored",
				Help: "Number of images currently held",
			},
		),
	}

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "memmgr_uptime_seconds",
			Help: "Service uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.TotalDuration += duration.Seconds()
	if status[0] == '4' || status[0] == '5' {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordGRPCCall records a gRPC call
func (m *Metrics) RecordGRPCCall(method, status string, duration time.Duration) {
	m.GRPCCalls.WithLabelValues(method, status).Inc()
	m.GRPCDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordGRPCError records a gRPC error
func (m *Metrics) RecordGRPCError(method, code string) {
	m.GRPCErrors.WithLabelValues(method, code).Inc()
}

// RecordOperation records one allocator or upload operation
func (m *Metrics) RecordOperation(op, result string, duration time.Duration) {
	m.Operations.WithLabelValues(op, result).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.Operations++
	if result != ResultOK {
		m.snapshot.FailedOps++
	}
	m.mu.Unlock()
}

// RecordUpload records a stored image
func (m *Metrics) RecordUpload(length int64) {
	m.UploadBytes.Add(float64(length))
}

// SetUploadsStored sets the number of held images
func (m *Metrics) SetUploadsStored(n int) {
	m.UploadsStored.Set(float64(n))
}

// Snapshot returns the current snapshot
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
