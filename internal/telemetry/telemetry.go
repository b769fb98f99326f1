// Package telemetry exports poll activity as Prometheus metrics.
package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/cadence"
)

const namespace = "cadence"

// PollMetrics is a [cadence.PollObserver] backed by Prometheus collectors.
//
// Metrics are labelled by poller name:
//   - cadence_poll_ticks_total{target,outcome}
//   - cadence_poll_tick_duration_seconds{target}
//   - cadence_poll_ticks_skipped_total{target}
//   - cadence_poll_active{target}
//   - cadence_poll_retries{target}
type PollMetrics struct {
	ticks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	skipped  *prometheus.CounterVec
	active   *prometheus.GaugeVec
	retries  *prometheus.GaugeVec
}

// NewPollMetrics registers the poll collectors with reg. Collectors that are
// already registered are reused, so several schedulers can share a registry.
// A nil reg means prometheus.DefaultRegisterer.
func NewPollMetrics(reg prometheus.Registerer) (*PollMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ticks, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_ticks_total",
		Help:      "Number of finished poll invocations by outcome.",
	}, []string{"target", "outcome"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_tick_duration_seconds",
		Help:      "Duration of poll invocations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	skipped, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "poll_ticks_skipped_total",
		Help:      "Number of ticks skipped because the previous invocation was still running.",
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	active, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_active",
		Help:      "Whether a polling session is active (1) or idle (0).",
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	retries, err := register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "poll_retries",
		Help:      "Consecutive failures when the session last changed state.",
	}, []string{"target"}))
	if err != nil {
		return nil, err
	}

	return &PollMetrics{
		ticks:    ticks,
		duration: duration,
		skipped:  skipped,
		active:   active,
		retries:  retries,
	}, nil
}

// register adds c to reg, returning the existing collector of the same type
// when one with an identical description is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// TickStarted is a no-op; ticks are counted when they finish.
func (m *PollMetrics) TickStarted(string) {}

// TickFinished counts the tick by outcome and observes its latency.
func (m *PollMetrics) TickFinished(name string, err error, latency time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		if errors.Is(err, cadence.ErrOperationPanic) {
			outcome = "panic"
		}
	}
	m.ticks.WithLabelValues(name, outcome).Inc()
	m.duration.WithLabelValues(name).Observe(latency.Seconds())
}

// TickSkipped counts a tick skipped because of overlap.
func (m *PollMetrics) TickSkipped(name string) {
	m.skipped.WithLabelValues(name).Inc()
}

// SessionChanged updates the active and retry gauges of the target.
func (m *PollMetrics) SessionChanged(name string, active bool, retryCount int) {
	value := 0.0
	if active {
		value = 1
	}
	m.active.WithLabelValues(name).Set(value)
	m.retries.WithLabelValues(name).Set(float64(retryCount))
}
