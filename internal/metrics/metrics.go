// Package metrics exposes Prometheus metrics for the dispatcher.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Terminal results of processing one delivery.
const (
	ResultHandled    = "handled"
	ResultUnhandled  = "unhandled"
	ResultUnresolved = "unresolved"
	ResultMalformed  = "malformed"
	ResultRetried    = "retried"
	ResultGaveUp     = "gaveup"
)

var (
	webhooksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidehook_webhooks_processed_total",
			Help: "Total number of webhook deliveries processed, by terminal result",
		},
		[]string{"result"},
	)

	handlerFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidehook_handler_failures_total",
			Help: "Total number of per-project handler failures",
		},
		[]string{"event"},
	)

	retriesScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tidehook_retries_total",
			Help: "Total number of delayed retries scheduled, by attempt number",
		},
		[]string{"attempt"},
	)

	processDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tidehook_process_duration_seconds",
			Help:    "Time spent processing one webhook delivery",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordProcessed(result string) {
	webhooksProcessed.WithLabelValues(result).Inc()
}

func RecordHandlerFailure(event string) {
	handlerFailures.WithLabelValues(event).Inc()
}

func RecordRetry(attempt string) {
	retriesScheduled.WithLabelValues(attempt).Inc()
}

func ObserveProcessDuration(d time.Duration) {
	processDuration.Observe(d.Seconds())
}
