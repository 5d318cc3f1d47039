// Package metrics registers the Prometheus metrics used by pluginfilter.
// The serve command exposes them on /metrics; batch runs can dump them to a
// node-exporter textfile with WriteTextfile.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probe result labels.
const (
	ResultValid          = "valid"
	ResultHTTPError      = "http_error"
	ResultTransportError = "transport_error"
	ResultMissingURL     = "missing_url"
)

var (
	// ProbesTotal counts finished records labelled by result.
	ProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginfilter_probes_total",
			Help: "Total number of plugin records checked, by result.",
		},
		[]string{"result"},
	)

	// ProbeDuration observes HEAD probe latency in seconds.
	ProbeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pluginfilter_probe_duration_seconds",
			Help:    "Duration of a single HEAD probe in seconds.",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// ProbesInFlight is the number of probes currently holding a concurrency
	// slot, summed over every batch in the process. The ceiling applies per
	// batch, so concurrent batches (serve mode) can push it above the limit.
	ProbesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pluginfilter_probes_in_flight",
			Help: "Number of HEAD probes currently in flight.",
		},
	)

	// RunsTotal counts filter runs by status ("success", "error").
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pluginfilter_runs_total",
			Help: "Total number of filter runs, by status.",
		},
		[]string{"status"},
	)
)

// WriteTextfile writes every metric in the default registry to path in the
// text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
