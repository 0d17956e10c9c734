// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "taskforperks"

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeTimeout = "timeout"
)

// Metrics owns a private registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	jobRuns     *prometheus.CounterVec
	jobSkips    *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	claimsExpired prometheus.Counter
	notifications *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_runs_total",
			Help:      "Scheduled job runs by job and outcome.",
		}, []string{"job", "outcome"}),
		jobSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_skipped_ticks_total",
			Help:      "Ticks skipped because the previous run of the job was still in progress.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Duration of scheduled job runs.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"job"}),
		claimsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_expired_total",
			Help:      "Claims moved from PENDING to EXPIRED by the sweeper.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "task_notifications_total",
			Help:      "Task update notifications published, by outcome.",
		}, []string{"outcome"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_dropped_total",
			Help:      "Events dropped because a subscriber's buffer was full.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.jobRuns,
		m.jobSkips,
		m.jobDuration,
		m.claimsExpired,
		m.notifications,
		m.eventsDropped,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRun records one finished job run.
func (m *Metrics) ObserveRun(job string, d time.Duration, outcome string) {
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

// ObserveSkip records a tick skipped because job was still running.
func (m *Metrics) ObserveSkip(job string) {
	m.jobSkips.WithLabelValues(job).Inc()
}

// ClaimsExpired adds n to the expired-claims counter.
func (m *Metrics) ClaimsExpired(n int64) {
	if n > 0 {
		m.claimsExpired.Add(float64(n))
	}
}

// NotificationPublished records the outcome of one publish.
func (m *Metrics) NotificationPublished(err error) {
	if err != nil {
		m.notifications.WithLabelValues(OutcomeFailure).Inc()
		return
	}
	m.notifications.WithLabelValues(OutcomeSuccess).Inc()
}

// EventDropped records one event dropped for a slow subscriber.
func (m *Metrics) EventDropped(string) {
	m.eventsDropped.Inc()
}
