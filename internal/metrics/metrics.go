// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Unit outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var (
	unitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_units_total",
			Help: "Work units finished, labeled by outcome and failure kind.",
		},
		[]string{"outcome", "kind"},
	)

	attemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_attempts_total",
			Help: "Processing attempts issued against the extraction service.",
		},
	)

	recoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_recoveries_total",
			Help: "Service recoveries, labeled by trigger and whether the service came back.",
		},
		[]string{"trigger", "recovered"},
	)

	recoveryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_recovery_duration_seconds",
			Help:    "Wall-clock time of stop/start/poll recoveries.",
			Buckets: []float64{5, 10, 20, 30, 60, 90, 120, 180},
		},
		[]string{"trigger"},
	)

	healthProbesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_health_probes_total",
			Help: "Health probes against the extraction service, labeled by status.",
		},
		[]string{"status"},
	)

	indexPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_index_pages_total",
			Help: "Index pages fetched, labeled by result.",
		},
		[]string{"result"},
	)

	processedGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "harvester_processed_urls",
			Help: "URLs processed successfully in the current run.",
		},
	)

	stateGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harvester_state",
			Help: "1 for the orchestrator state currently held, 0 otherwise.",
		},
		[]string{"state"},
	)

	rateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_rate_limit_delays_seconds",
			Help:    "Histogram of per-host politeness waits.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"host"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_http_request_duration_seconds",
			Help:    "Status server request latency, labeled by method, route and status.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	stateMu   sync.Mutex
	lastState string
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveUnit counts a finished work unit.
func ObserveUnit(outcome, kind string) {
	unitsTotal.WithLabelValues(outcome, kind).Inc()
}

// ObserveAttempt counts one processing attempt.
func ObserveAttempt() {
	attemptsTotal.Inc()
}

// ObserveRecovery records a recovery and how long it took.
func ObserveRecovery(trigger string, recovered bool, took time.Duration) {
	recoveriesTotal.WithLabelValues(trigger, strconv.FormatBool(recovered)).Inc()
	recoveryDurationSeconds.WithLabelValues(trigger).Observe(took.Seconds())
}

// ObserveProbe counts a health probe.
func ObserveProbe(status string) {
	healthProbesTotal.WithLabelValues(status).Inc()
}

// ObserveIndexPage counts an index page fetch.
func ObserveIndexPage(result string) {
	indexPagesTotal.WithLabelValues(result).Inc()
}

// SetProcessed publishes the run's processed total.
func SetProcessed(n int) {
	processedGauge.Set(float64(n))
}

// SetState flips the state gauge to the given state.
func SetState(state string) {
	stateMu.Lock()
	defer stateMu.Unlock()
	if lastState != "" {
		stateGauge.WithLabelValues(lastState).Set(0)
	}
	stateGauge.WithLabelValues(state).Set(1)
	lastState = state
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one status server request.
func ObserveHTTPRequest(method, route string, status int, took time.Duration) {
	httpRequestDurationSeconds.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}
