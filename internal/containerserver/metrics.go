package containerserver

import "github.com/prometheus/client_golang/prometheus"

// metrics is the Prometheus registry SPEC_FULL.md §6's expansion exposes
// at GET /metrics: execution count, execution latency, and active session
// gauge. It uses its own registry rather than the global default one so
// multiple Server instances in the same test binary never collide on
// metric registration.
type metrics struct {
	registry        *prometheus.Registry
	executionsTotal *prometheus.CounterVec
	executionMS     prometheus.Histogram
	activeSessions  prometheus.Gauge
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()

	executionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "codemode_executions_total",
		Help: "Total number of /execute calls, partitioned by outcome.",
	}, []string{"outcome"})

	executionMS := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "codemode_execution_duration_ms",
		Help:    "Execution latency in milliseconds.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "codemode_active_sessions",
		Help: "Number of sessions currently tracked by this container.",
	})

	registry.MustRegister(executionsTotal, executionMS, activeSessions)

	return &metrics{
		registry:        registry,
		executionsTotal: executionsTotal,
		executionMS:     executionMS,
		activeSessions:  activeSessions,
	}
}

func (m *metrics) observeExecution(outcome string, elapsedMS int64) {
	m.executionsTotal.WithLabelValues(outcome).Inc()
	m.executionMS.Observe(float64(elapsedMS))
}
