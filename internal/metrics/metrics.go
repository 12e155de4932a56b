// Package metrics exposes Prometheus instruments for the pipeline daemons.
//
// All methods are nil-safe so daemons can run without a registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every instrument exported by radarflowd.
type Metrics struct {
	registry *prometheus.Registry

	// Download daemon
	FilesDownloaded *prometheus.CounterVec // radarflow_files_downloaded_total{source}
	DownloadFailed  *prometheus.CounterVec // radarflow_download_failures_total{source}
	DownloadRetries *prometheus.CounterVec // radarflow_download_retries_total{source}
	BytesDownloaded *prometheus.CounterVec // radarflow_bytes_downloaded_total{source}
	DownloadsActive prometheus.Gauge       // radarflow_downloads_in_flight

	// Processing daemon
	VolumesProcessed prometheus.Counter   // radarflow_volumes_processed_total
	VolumesFailed    prometheus.Counter   // radarflow_volumes_failed_total
	VolumesReset     prometheus.Counter   // radarflow_volumes_reset_total
	VolumeDuration   prometheus.Histogram // radarflow_volume_processing_seconds
	VolumesPending   prometheus.Gauge     // radarflow_volumes_pending

	// Product daemon
	ProductsGenerated *prometheus.CounterVec // radarflow_products_generated_total{product_type}
	ProductsFailed    *prometheus.CounterVec // radarflow_products_failed_total{product_type,error_type}

	// Loops
	CycleDuration *prometheus.HistogramVec // radarflow_cycle_duration_seconds{daemon}
	CycleErrors   *prometheus.CounterVec   // radarflow_cycle_errors_total{daemon}
}

// New registers all instruments on a fresh registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers all instruments on registry.
func NewWithRegistry(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,

		FilesDownloaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_files_downloaded_total",
			Help: "Files downloaded successfully by source",
		}, []string{"source"}),
		DownloadFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_download_failures_total",
			Help: "Files recorded as failed after exhausting retries",
		}, []string{"source"}),
		DownloadRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_download_retries_total",
			Help: "Download attempts beyond the first",
		}, []string{"source"}),
		BytesDownloaded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_bytes_downloaded_total",
			Help: "Bytes written by successful downloads",
		}, []string{"source"}),
		DownloadsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radarflow_downloads_in_flight",
			Help: "Downloads currently running",
		}),

		VolumesProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "radarflow_volumes_processed_total",
			Help: "Volumes decoded into an artifact",
		}),
		VolumesFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "radarflow_volumes_failed_total",
			Help: "Volumes marked failed",
		}),
		VolumesReset: factory.NewCounter(prometheus.CounterOpts{
			Name: "radarflow_volumes_reset_total",
			Help: "Stuck volumes returned to pending",
		}),
		VolumeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "radarflow_volume_processing_seconds",
			Help:    "Decode and merge duration per volume",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		VolumesPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "radarflow_volumes_pending",
			Help: "Volumes eligible for processing at the start of the last cycle",
		}),

		ProductsGenerated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_products_generated_total",
			Help: "Products rendered successfully",
		}, []string{"product_type"}),
		ProductsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_products_failed_total",
			Help: "Products marked failed by error type",
		}, []string{"product_type", "error_type"}),

		CycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "radarflow_cycle_duration_seconds",
			Help:    "Duration of one daemon cycle",
			Buckets: prometheus.DefBuckets,
		}, []string{"daemon"}),
		CycleErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "radarflow_cycle_errors_total",
			Help: "Cycles that returned an error",
		}, []string{"daemon"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Downloaded(source string, bytes int64) {
	if m == nil {
		return
	}
	m.FilesDownloaded.WithLabelValues(source).Inc()
	m.BytesDownloaded.WithLabelValues(source).Add(float64(bytes))
}

func (m *Metrics) DownloadFailure(source string) {
	if m == nil {
		return
	}
	m.DownloadFailed.WithLabelValues(source).Inc()
}

func (m *Metrics) DownloadRetry(source string) {
	if m == nil {
		return
	}
	m.DownloadRetries.WithLabelValues(source).Inc()
}

func (m *Metrics) DownloadStarted() {
	if m == nil {
		return
	}
	m.DownloadsActive.Inc()
}

func (m *Metrics) DownloadFinished() {
	if m == nil {
		return
	}
	m.DownloadsActive.Dec()
}

func (m *Metrics) VolumeProcessed(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.VolumesProcessed.Inc()
	m.VolumeDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) VolumeFailed() {
	if m == nil {
		return
	}
	m.VolumesFailed.Inc()
}

func (m *Metrics) VolumesResetBy(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.VolumesReset.Add(float64(n))
}

func (m *Metrics) SetVolumesPending(n int) {
	if m == nil {
		return
	}
	m.VolumesPending.Set(float64(n))
}

func (m *Metrics) ProductGenerated(productType string) {
	if m == nil {
		return
	}
	m.ProductsGenerated.WithLabelValues(productType).Inc()
}

func (m *Metrics) ProductFailed(productType, errorType string) {
	if m == nil {
		return
	}
	m.ProductsFailed.WithLabelValues(productType, errorType).Inc()
}

// ObserveCycle records one loop iteration for daemon.
func (m *Metrics) ObserveCycle(daemon string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.CycleDuration.WithLabelValues(daemon).Observe(elapsed.Seconds())
	if err != nil {
		m.CycleErrors.WithLabelValues(daemon).Inc()
	}
}
