package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OperationMetrics records the lifecycle of application service operations.
type OperationMetrics interface {
	RecordOperationAttempt(ctx context.Context, operation, service string)
	RecordOperationSuccess(ctx context.Context, operation, service string)
	RecordOperationFailure(ctx context.Context, operation, service string)
	RecordOperationDuration(ctx context.Context, operation, service string, duration time.Duration)
}

type promOperationMetrics struct {
	attempts  *prometheus.CounterVec
	successes *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewOperationMetrics registers operation counters under the given subsystem.
func NewOperationMetrics(reg prometheus.Registerer, subsystem string) OperationMetrics {
	labels := []string{"service", "operation"}
	m := &promOperationMetrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judgeboard",
			Subsystem: subsystem,
			Name:      "operation_attempts_total",
			Help:      "Service operations started.",
		}, labels),
		successes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judgeboard",
			Subsystem: subsystem,
			Name:      "operation_success_total",
			Help:      "Service operations that returned without an infrastructure error.",
		}, labels),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "judgeboard",
			Subsystem: subsystem,
			Name:      "operation_failure_total",
			Help:      "Service operations that returned an infrastructure error or panicked.",
		}, labels),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "judgeboard",
			Subsystem: subsystem,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, labels),
	}
	reg.MustRegister(m.attempts, m.successes, m.failures, m.duration)
	return m
}

func (m *promOperationMetrics) RecordOperationAttempt(_ context.Context, operation, service string) {
	m.attempts.WithLabelValues(service, operation).Inc()
}

func (m *promOperationMetrics) RecordOperationSuccess(_ context.Context, operation, service string) {
	m.successes.WithLabelValues(service, operation).Inc()
}

func (m *promOperationMetrics) RecordOperationFailure(_ context.Context, operation, service string) {
	m.failures.WithLabelValues(service, operation).Inc()
}

func (m *promOperationMetrics) RecordOperationDuration(_ context.Context, operation, service string, duration time.Duration) {
	m.duration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

type noopOperationMetrics struct{}

// NewNoopOperationMetrics returns metrics that record nothing.
func NewNoopOperationMetrics() OperationMetrics { return noopOperationMetrics{} }

func (noopOperationMetrics) RecordOperationAttempt(context.Context, string, string)                {}
func (noopOperationMetrics) RecordOperationSuccess(context.Context, string, string)                {}
func (noopOperationMetrics) RecordOperationFailure(context.Context, string, string)                {}
func (noopOperationMetrics) RecordOperationDuration(context.Context, string, string, time.Duration) {}
