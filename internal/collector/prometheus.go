package collector

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"ensemble/internal/core"
)

const metricsPrefix = "ensemble_"

// promMetrics lives in a private registry so that several collectors, one
// per run or per test, never collide on registration.
type promMetrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

func newPromMetrics() *promMetrics {
	m := &promMetrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "operations_total",
				Help: "Operations performed by actors",
			},
			[]string{"actor", "operation", "phase", "outcome"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricsPrefix + "operation_duration_seconds",
				Help:    "Operation latency",
				Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
			},
			[]string{"actor", "operation"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "operation_bytes_total",
				Help: "Bytes sent and received by actor operations",
			},
			[]string{"actor", "direction"},
		),
	}
	m.registry.MustRegister(m.operations, m.latency, m.bytes)
	return m
}

// WriteMetricsFile writes the collector's Prometheus metrics to path in the
// text exposition format, replacing the file atomically.
func (c *Collector) WriteMetricsFile(path string) error {
	return prometheus.WriteToTextfile(path, c.Registry())
}

func (m *promMetrics) observe(e core.Event) {
	outcome := "success"
	if !e.Success {
		outcome = "failure"
	}
	m.operations.WithLabelValues(e.Actor, e.Operation, strconv.FormatUint(uint64(e.Phase), 10), outcome).Inc()
	m.latency.WithLabelValues(e.Actor, e.Operation).Observe(e.Duration.Seconds())
	if e.BytesSent > 0 {
		m.bytes.WithLabelValues(e.Actor, "sent").Add(float64(e.BytesSent))
	}
	if e.BytesRecv > 0 {
		m.bytes.WithLabelValues(e.Actor, "received").Add(float64(e.BytesRecv))
	}
}
