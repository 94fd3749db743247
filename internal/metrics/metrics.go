// Package metrics exposes pipeline counters for Prometheus scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "crm_mail"

// Task outcomes
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeFailure = "failure"
	OutcomeDropped = "dropped"
)

// Metrics holds the collectors of the service. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	tasks        *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge
	synced       prometheus.Counter
	tracking     *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Background tasks processed, by task and outcome.",
		}, []string{"task", "outcome"}),
		taskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of background task attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Tasks waiting for a worker.",
		}),
		synced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_synced_total",
			Help:      "Inbound emails materialized by mailbox sync.",
		}),
		tracking: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracking_events_total",
			Help:      "Tracking pixel and link hits, by kind and token validity.",
		}, []string{"kind", "valid"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tasks, m.taskDuration, m.queueDepth, m.synced, m.tracking,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TaskDone records one task attempt
func (m *Metrics) TaskDone(task, outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(task, outcome).Inc()
	m.taskDuration.WithLabelValues(task).Observe(took.Seconds())
}

// QueueDepth sets the number of pending tasks
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// EmailsSynced adds n ingested emails
func (m *Metrics) EmailsSynced(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.synced.Add(float64(n))
}

// TrackingEvent records a pixel or link hit
func (m *Metrics) TrackingEvent(kind string, valid bool) {
	if m == nil {
		return
	}
	v := "false"
	if valid {
		v = "true"
	}
	m.tracking.WithLabelValues(kind, v).Inc()
}
