// Package metrics exposes Prometheus collectors for pin operations.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// Request metrics
	RequestsTotal   *prometheus.CounterVec   // {service,method,status}
	RequestDuration *prometheus.HistogramVec // {service,method}

	// Pin lifecycle
	UploadsTotal         *prometheus.CounterVec // {kind,status}
	UploadBytes          prometheus.Counter
	PinFallbacksTotal    *prometheus.CounterVec // {status}
	MetadataUpdatesTotal *prometheus.CounterVec // {op,status}
	UnpinsTotal          *prometheus.CounterVec // {status}
	ReconcilesTotal      *prometheus.CounterVec // {status}

	// Visibility
	VisibilityWait *prometheus.HistogramVec // {visible}

	// State
	Pins  prometheus.Gauge
	Peers prometheus.Gauge
}

// New registers the collectors on registry under namespace. A nil registry
// uses the default registerer.
func New(registry prometheus.Registerer, namespace string) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Backend HTTP requests by service, method and status",
		}, []string{"service", "method", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Backend HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service", "method"}),

		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Uploads by kind (file, folder) and status",
		}, []string{"kind", "status"}),

		UploadBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Total bytes submitted to the content store",
		}),

		PinFallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pin_fallbacks_total",
			Help:      "Pins sent to the fallback pinning service by status",
		}, []string{"status"}),

		MetadataUpdatesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_updates_total",
			Help:      "Tag metadata writes by operation and status",
		}, []string{"op", "status"}),

		UnpinsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unpins_total",
			Help:      "Unpin requests by status",
		}, []string{"status"}),

		ReconcilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconciles_total",
			Help:      "Pin listing reconciliations by status",
		}, []string{"status"}),

		VisibilityWait: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "visibility_wait_seconds",
			Help:      "Time spent waiting for a new pin to appear",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"visible"}),

		Pins: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pins",
			Help:      "Pins in the reconciled set",
		}),

		Peers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cluster_peers",
			Help:      "Cluster peers seen on the last status check",
		}),
	}
}

// Status labels
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusOK
}

// ObserveRequest records one backend HTTP exchange. Status 0 means the
// request never got a response.
func (m *Metrics) ObserveRequest(service, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.RequestsTotal.WithLabelValues(service, method, code).Inc()
	m.RequestDuration.WithLabelValues(service, method).Observe(elapsed.Seconds())
}

// RecordUpload records a finished upload.
func (m *Metrics) RecordUpload(kind string, bytes int64, err error) {
	if m == nil {
		return
	}
	m.UploadsTotal.WithLabelValues(kind, StatusOf(err)).Inc()
	if err == nil {
		m.UploadBytes.Add(float64(bytes))
	}
}

// RecordFallback records a fallback pin attempt.
func (m *Metrics) RecordFallback(err error) {
	if m == nil {
		return
	}
	m.PinFallbacksTotal.WithLabelValues(StatusOf(err)).Inc()
}

// RecordMetadataUpdate records a tag metadata write.
func (m *Metrics) RecordMetadataUpdate(op string, err error) {
	if m == nil {
		return
	}
	m.MetadataUpdatesTotal.WithLabelValues(op, StatusOf(err)).Inc()
}

// RecordUnpin records an unpin.
func (m *Metrics) RecordUnpin(err error) {
	if m == nil {
		return
	}
	m.UnpinsTotal.WithLabelValues(StatusOf(err)).Inc()
}

// RecordReconcile records a reconciliation and the resulting set size.
func (m *Metrics) RecordReconcile(pins int, err error) {
	if m == nil {
		return
	}
	m.ReconcilesTotal.WithLabelValues(StatusOf(err)).Inc()
	if err == nil {
		m.Pins.Set(float64(pins))
	}
}

// RecordVisibilityWait records how long a visibility wait took.
func (m *Metrics) RecordVisibilityWait(elapsed time.Duration, visible bool) {
	if m == nil {
		return
	}
	m.VisibilityWait.WithLabelValues(strconv.FormatBool(visible)).Observe(elapsed.Seconds())
}

// SetPeers records the current peer count.
func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.Peers.Set(float64(n))
}
