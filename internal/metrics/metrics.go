// Package metrics exposes Prometheus metrics fed from the event bus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"newsbot/internal/automation"
	"newsbot/internal/eventbus"
	"newsbot/internal/task/engine"
)

const namespace = "newsbot"

// Metrics holds the collectors registered for one process.
type Metrics struct {
	reg *prometheus.Registry

	TasksTotal         *prometheus.CounterVec
	TaskDuration       *prometheus.HistogramVec
	TaskQueueDelay     prometheus.Histogram
	TasksRunning       prometheus.Gauge
	RunsTotal          *prometheus.CounterVec
	RunDuration        *prometheus.HistogramVec
	ArticlesStored     *prometheus.CounterVec
	NewslettersTotal   *prometheus.CounterVec
	ConfigReloadsTotal prometheus.Counter
}

// New creates a registry with the process collectors and the newsbot
// metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	m := &Metrics{reg: reg}

	m.TasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tasks_total",
			Help:      "Task lifecycle events by outcome",
		},
		[]string{"outcome"},
	)
	m.TaskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "task_duration_seconds",
			Help:      "Task execution time",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7min
		},
		[]string{"outcome"},
	)
	m.TaskQueueDelay = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "task_queue_delay_seconds",
			Help:      "Time tasks wait in the queue before a worker picks them up",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
	m.TasksRunning = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "tasks_running",
			Help:      "Tasks currently executing",
		},
	)
	m.RunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "runs_total",
			Help:      "Schedule and daily runs by outcome and failing stage",
		},
		[]string{"kind", "outcome", "stage"},
	)
	m.RunDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "run_duration_seconds",
			Help:      "End-to-end run time",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"kind"},
	)
	m.ArticlesStored = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "automation",
			Name:      "articles_stored_total",
			Help:      "Articles written into the working set by runs",
		},
		[]string{"kind"},
	)
	m.NewslettersTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "newsletter",
			Name:      "events_total",
			Help:      "Newsletter lifecycle transitions",
		},
		[]string{"event"},
	)
	m.ConfigReloadsTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Applied configuration reloads",
		},
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Consume updates metrics from bus events until ctx ends.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(e)
		}
	}
}

// Observe applies a single event.
func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.TaskStarted:
		m.TasksRunning.Inc()
		if te, ok := e.Data.(engine.TaskEvent); ok {
			m.TaskQueueDelay.Observe(te.QueueDelay.Seconds())
		}
	case eventbus.TaskFinished, eventbus.TaskFailed:
		m.TasksRunning.Dec()
		outcome := "succeeded"
		if e.Type == eventbus.TaskFailed {
			outcome = "failed"
		}
		m.TasksTotal.WithLabelValues(outcome).Inc()
		if te, ok := e.Data.(engine.TaskEvent); ok {
			m.TaskDuration.WithLabelValues(outcome).Observe(te.Duration.Seconds())
		}
	case eventbus.TaskSkipped:
		m.TasksTotal.WithLabelValues("skipped").Inc()
	case eventbus.TaskDropped:
		m.TasksTotal.WithLabelValues("dropped").Inc()
	case eventbus.RunCompleted:
		res, ok := e.Data.(automation.RunResult)
		if !ok {
			return
		}
		kind := string(res.Kind)
		m.RunsTotal.WithLabelValues(kind, string(res.Outcome), res.Stage()).Inc()
		m.RunDuration.WithLabelValues(kind).Observe(res.Duration.Seconds())
		m.ArticlesStored.WithLabelValues(kind).Add(float64(res.Articles))
	case eventbus.NewsletterCreated, eventbus.NewsletterApproved, eventbus.NewsletterRejected, eventbus.NewsletterPublished:
		m.NewslettersTotal.WithLabelValues(e.Type).Inc()
	case eventbus.ConfigReloaded:
		m.ConfigReloadsTotal.Inc()
	}
}
