package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HTTPServerMetrics struct {
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	intakeTotal        *prometheus.CounterVec
	intakeDuration     *prometheus.HistogramVec
	addressSourceTotal *prometheus.CounterVec
	geocodeTotal       *prometheus.CounterVec
	guidanceTotal      *prometheus.CounterVec
	guidanceDuration   *prometheus.HistogramVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "permit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "permit",
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	intakeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permit",
			Subsystem: "intake",
			Name:      "requests_total",
			Help:      "Total completed intake flows by guidance origin.",
		},
		[]string{"service", "origin"},
	)
	intakeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "permit",
			Subsystem: "intake",
			Name:      "duration_seconds",
			Help:      "End-to-end intake flow duration in seconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"service"},
	)
	addressSourceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permit",
			Subsystem: "intake",
			Name:      "address_source_total",
			Help:      "Which document yielded the customer address.",
		},
		[]string{"service", "source"},
	)
	geocodeTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permit",
			Subsystem: "geocode",
			Name:      "lookups_total",
			Help:      "Total jurisdiction resolutions by outcome.",
		},
		[]string{"service", "outcome"},
	)
	guidanceTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "permit",
			Subsystem: "guidance",
			Name:      "lookups_total",
			Help:      "Total guidance lookups by origin.",
		},
		[]string{"service", "origin"},
	)
	guidanceDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "permit",
			Subsystem: "guidance",
			Name:      "generation_duration_seconds",
			Help:      "Guidance generation duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		intakeTotal,
		intakeDuration,
		addressSourceTotal,
		geocodeTotal,
		guidanceTotal,
		guidanceDuration,
	)

	return &HTTPServerMetrics{
		registry:           registry,
		requestTotal:       requestTotal,
		requestDuration:    requestDuration,
		requestInFlight:    requestInFlight,
		intakeTotal:        intakeTotal,
		intakeDuration:     intakeDuration,
		addressSourceTotal: addressSourceTotal,
		geocodeTotal:       geocodeTotal,
		guidanceTotal:      guidanceTotal,
		guidanceDuration:   guidanceDuration,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(service string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/projects/"):
		return "/v1/projects/{project_id}"
	case strings.HasPrefix(path, "/v1/guidance/") && path != "/v1/guidance/search" && path != "/v1/guidance/stats" && path != "/v1/guidance/generate":
		return "/v1/guidance/{guidance_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordIntake(service, origin string, duration time.Duration) {
	if origin == "" {
		origin = "unknown"
	}
	m.intakeTotal.WithLabelValues(service, origin).Inc()
	m.intakeDuration.WithLabelValues(service).Observe(duration.Seconds())
}

func (m *HTTPServerMetrics) RecordAddressSource(service, source string) {
	if source == "" {
		source = "none"
	}
	m.addressSourceTotal.WithLabelValues(service, source).Inc()
}

func (m *HTTPServerMetrics) RecordGeocode(service, outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	m.geocodeTotal.WithLabelValues(service, outcome).Inc()
}

func (m *HTTPServerMetrics) RecordGuidanceLookup(service, origin string) {
	if origin == "" {
		origin = "unknown"
	}
	m.guidanceTotal.WithLabelValues(service, origin).Inc()
}

func (m *HTTPServerMetrics) RecordGuidanceGeneration(service string, duration time.Duration) {
	m.guidanceDuration.WithLabelValues(service).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}

func (w *statusRecorder) Push(target string, opts *http.PushOptions) error {
	pusher, ok := w.ResponseWriter.(http.Pusher)
	if !ok {
		return http.ErrNotSupported
	}
	return pusher.Push(target, opts)
}
