// Package telemetry provides the service's loggers and prometheus metrics.
package telemetry

import (
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jaehyun-park/krdaily/internal/executor"
)

// NewLogger creates a prefixed logger in the service's standard shape.
func NewLogger(prefix string) *log.Logger {
	return log.New(log.Writer(), "["+prefix+"] ", log.LstdFlags)
}

// Metrics holds the run and step counters exposed on /metrics.
type Metrics struct {
	RunsTotal      prometheus.Counter
	RunDuration    prometheus.Histogram
	StepsSucceeded *prometheus.CounterVec
	StepsFailed    *prometheus.CounterVec
	ItemsDropped   *prometheus.CounterVec
}

// NewMetrics registers the service metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "krdaily_runs_total",
			Help: "Number of report runs started.",
		}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "krdaily_run_duration_seconds",
			Help:    "Wall-clock duration of report runs.",
			Buckets: prometheus.DefBuckets,
		}),
		StepsSucceeded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krdaily_steps_succeeded_total",
			Help: "Plan steps that produced a retained item.",
		}, []string{"operation", "layer"}),
		StepsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krdaily_steps_failed_total",
			Help: "Plan steps that failed at the tool boundary.",
		}, []string{"operation", "layer"}),
		ItemsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "krdaily_items_dropped_total",
			Help: "Collected items discarded below the quality threshold.",
		}, []string{"layer"}),
	}
}

// ExecutorCallbacks adapts the metrics to the executor's callback hooks.
func (m *Metrics) ExecutorCallbacks() executor.Metrics {
	if m == nil {
		return executor.Metrics{}
	}
	return executor.Metrics{
		StepSucceeded: func(operation, layer string) {
			m.StepsSucceeded.WithLabelValues(operation, layer).Inc()
		},
		StepFailed: func(operation, layer string) {
			m.StepsFailed.WithLabelValues(operation, layer).Inc()
		},
		ItemDropped: func(layer string) {
			m.ItemsDropped.WithLabelValues(layer).Inc()
		},
	}
}
