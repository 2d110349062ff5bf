// Package metrics provides Prometheus metrics for audit and sync runs.
//
// Each Recorder owns its registry so a run can export exactly its own series
// to a node-exporter textfile, or serve them from the MCP HTTP server.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "costplus"

// Recorder holds the metric vectors for one process.
type Recorder struct {
	registry *prometheus.Registry

	ItemsClassified *prometheus.CounterVec
	WritesTotal     *prometheus.CounterVec
	ItemErrors      *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		ItemsClassified: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "items_classified_total",
				Help:      "Catalog items classified, by driver, entity and status",
			},
			[]string{"driver", "entity", "status"},
		),
		WritesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "price_writes_total",
				Help:      "Wholesale price writes, by entity and outcome",
			},
			[]string{"entity", "outcome"},
		),
		ItemErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "item_errors_total",
				Help:      "Recoverable per-item fetch errors",
			},
			[]string{"type"},
		),
		RunDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Duration of audit and sync runs",
				Buckets:   []float64{1, 5, 10, 30, 60, 300, 600, 1800},
			},
			[]string{"driver"},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_requests_total",
				Help:      "HTTP requests sent to the store API",
			},
			[]string{"code", "method"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_request_duration_seconds",
				Help:      "Duration of HTTP requests to the store API",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"code", "method"},
		),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordItem counts one classified item.
func (r *Recorder) RecordItem(driver, entity, status string) {
	if r == nil {
		return
	}
	r.ItemsClassified.WithLabelValues(driver, entity, status).Inc()
}

// RecordWrite counts one write attempt.
func (r *Recorder) RecordWrite(entity string, err error) {
	if r == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	r.WritesTotal.WithLabelValues(entity, outcome).Inc()
}

// RecordItemError counts one recoverable fetch error.
func (r *Recorder) RecordItemError(errType string) {
	if r == nil {
		return
	}
	r.ItemErrors.WithLabelValues(errType).Inc()
}

// RecordRun observes a finished run.
func (r *Recorder) RecordRun(driver string, d time.Duration) {
	if r == nil {
		return
	}
	r.RunDuration.WithLabelValues(driver).Observe(d.Seconds())
}

// InstrumentRoundTripper wraps next with request counting and timing.
func (r *Recorder) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if r == nil {
		return next
	}
	return promhttp.InstrumentRoundTripperCounter(r.HTTPRequests,
		promhttp.InstrumentRoundTripperDuration(r.HTTPDuration, next))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes all series to path for the node-exporter textfile
// collector. The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
