package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type WorkerMetrics struct {
	registry *prometheus.Registry

	notifyTotal    *prometheus.CounterVec
	notifyDuration *prometheus.HistogramVec
	notifyInFlight prometheus.Gauge
}

func NewWorkerMetrics(service string) *WorkerMetrics {
	registry := prometheus.NewRegistry()

	notifyTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permit",
			Subsystem: "worker",
			Name:      "intake_events_total",
			Help:      "Total handled intake-completed events by status.",
		},
		[]string{"service", "status"},
	)
	notifyDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "permit",
			Subsystem: "worker",
			Name:      "intake_event_duration_seconds",
			Help:      "Intake-completed event handling duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	notifyInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "permit",
			Subsystem: "worker",
			Name:      "intake_events_in_flight",
			Help:      "Number of in-flight intake event handlers.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(notifyTotal, notifyDuration, notifyInFlight)

	return &WorkerMetrics{
		registry:       registry,
		notifyTotal:    notifyTotal,
		notifyDuration: notifyDuration,
		notifyInFlight: notifyInFlight,
	}
}

func (m *WorkerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *WorkerMetrics) StartEvent() {
	m.notifyInFlight.Inc()
}

func (m *WorkerMetrics) FinishEvent(service string, duration time.Duration, err error) {
	m.notifyInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}

	m.notifyTotal.WithLabelValues(service, status).Inc()
	m.notifyDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}
