package subprocess

import (
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusMetricsCollector implements MetricsCollector using Prometheus metrics
type PrometheusMetricsCollector struct {
	// Spawn metrics
	spawns        *prometheus.CounterVec
	spawnFailures *prometheus.CounterVec
	spawnDuration *prometheus.HistogramVec

	// Lifecycle metrics
	running      prometheus.Gauge
	exits        *prometheus.CounterVec
	lifetime     *prometheus.HistogramVec
	signals      *prometheus.CounterVec
	waitTimeouts *prometheus.CounterVec

	// Stream metrics
	pumpedBytes *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewPrometheusMetricsCollector creates a new Prometheus metrics collector
func NewPrometheusMetricsCollector(namespace string) *PrometheusMetricsCollector {
	if namespace == "" {
		namespace = "subprocess"
	}

	pmc := &PrometheusMetricsCollector{
		registry: prometheus.NewRegistry(),
	}

	pmc.spawns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawns_total",
			Help:      "Total number of child processes started",
		},
		[]string{"program"},
	)

	pmc.spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_failures_total",
			Help:      "Total number of failed spawn attempts",
		},
		[]string{"program", "code"},
	)

	pmc.spawnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "spawn_duration_seconds",
			Help:      "Time spent in the process creation call",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"program"},
	)

	pmc.running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes_running",
			Help:      "Child processes started and not yet observed to exit",
		},
	)

	pmc.exits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exits_total",
			Help:      "Total number of observed child exits",
		},
		[]string{"program", "state"},
	)

	pmc.lifetime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_lifetime_seconds",
			Help:      "Time from spawn to observed exit",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"program"},
	)

	pmc.signals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signals_total",
			Help:      "Total number of signals delivered to children",
		},
		[]string{"program", "signal"},
	)

	pmc.waitTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wait_timeouts_total",
			Help:      "Total number of bounded waits that ran out",
		},
		[]string{"program"},
	)

	pmc.pumpedBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pumped_bytes_total",
			Help:      "Bytes moved between caller buffers and child streams",
		},
		[]string{"program", "stream"},
	)

	pmc.registry.MustRegister(
		pmc.spawns,
		pmc.spawnFailures,
		pmc.spawnDuration,
		pmc.running,
		pmc.exits,
		pmc.lifetime,
		pmc.signals,
		pmc.waitTimeouts,
		pmc.pumpedBytes,
	)

	return pmc
}

// ProcessSpawned records a successful spawn
func (pmc *PrometheusMetricsCollector) ProcessSpawned(program string, duration time.Duration) {
	pmc.spawns.WithLabelValues(program).Inc()
	pmc.spawnDuration.WithLabelValues(program).Observe(duration.Seconds())
	pmc.running.Inc()
}

// SpawnFailed records a failed spawn
func (pmc *PrometheusMetricsCollector) SpawnFailed(program string, code ErrorCode) {
	pmc.spawnFailures.WithLabelValues(program, string(code)).Inc()
}

// ProcessExited records an observed exit
func (pmc *PrometheusMetricsCollector) ProcessExited(program string, state State, lifetime time.Duration) {
	pmc.exits.WithLabelValues(program, state.String()).Inc()
	pmc.lifetime.WithLabelValues(program).Observe(lifetime.Seconds())
	pmc.running.Dec()
}

// SignalSent records a delivered signal
func (pmc *PrometheusMetricsCollector) SignalSent(program string, sig syscall.Signal) {
	pmc.signals.WithLabelValues(program, sig.String()).Inc()
}

// WaitTimedOut records a bounded wait that ran out
func (pmc *PrometheusMetricsCollector) WaitTimedOut(program string) {
	pmc.waitTimeouts.WithLabelValues(program).Inc()
}

// BytesPumped records bytes moved by a stream pump
func (pmc *PrometheusMetricsCollector) BytesPumped(program, stream string, n int64) {
	pmc.pumpedBytes.WithLabelValues(program, stream).Add(float64(n))
}

// Registry returns the Prometheus registry for HTTP handler registration
func (pmc *PrometheusMetricsCollector) Registry() *prometheus.Registry {
	return pmc.registry
}

// Ensure PrometheusMetricsCollector implements MetricsCollector
var _ MetricsCollector = (*PrometheusMetricsCollector)(nil)
