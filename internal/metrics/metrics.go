// Package metrics holds the Prometheus collectors of the reconciler
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "reconciler"

// Metrics owns a registry and every collector registered in it. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	outcomesTotal         *prometheus.CounterVec
	dispatchFailuresTotal prometheus.Counter
	collaboratorFailures  *prometheus.CounterVec
	intakeMessagesTotal   *prometheus.CounterVec
	mirrorDroppedTotal    prometheus.Counter
	reconcileDuration     prometheus.Histogram
}

// New creates the collectors in a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"handler", "method"},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outcomes_total",
				Help:      "Reconciliation outcomes by kind",
			},
			[]string{"kind"},
		),
		dispatchFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alert_dispatch_failures_total",
				Help:      "Alerts that could not be delivered to the chat sink",
			},
		),
		collaboratorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_failures_total",
				Help:      "Failed calls to the ledger or the evaluation platform",
			},
			[]string{"collaborator"},
		),
		intakeMessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intake_messages_total",
				Help:      "Kafka intake messages by result",
			},
			[]string{"result"},
		),
		mirrorDroppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "event_mirror_dropped_total",
				Help:      "Events not mirrored to Kafka",
			},
		),
		reconcileDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reconcile_duration_seconds",
				Help:      "Duration of one submission, fetch to event",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.outcomesTotal,
		m.dispatchFailuresTotal,
		m.collaboratorFailures,
		m.intakeMessagesTotal,
		m.mirrorDroppedTotal,
		m.reconcileDuration,
	)
	return m
}

// Registry exposes the registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEventBus exports the retained event count
func (m *Metrics) ObserveEventBus(size func() int) {
	if m == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_bus_events",
			Help:      "Events currently retained by the event bus",
		},
		func() float64 { return float64(size()) },
	))
}

func (m *Metrics) RecordOutcome(kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.outcomesTotal.WithLabelValues(kind).Inc()
	m.reconcileDuration.Observe(took.Seconds())
}

func (m *Metrics) RecordDispatchFailure() {
	if m == nil {
		return
	}
	m.dispatchFailuresTotal.Inc()
}

func (m *Metrics) RecordCollaboratorFailure(collaborator string) {
	if m == nil {
		return
	}
	m.collaboratorFailures.WithLabelValues(collaborator).Inc()
}

func (m *Metrics) RecordIntake(result string) {
	if m == nil {
		return
	}
	m.intakeMessagesTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordMirrorDrop() {
	if m == nil {
		return
	}
	m.mirrorDroppedTotal.Inc()
}

// InstrumentHandler wraps an HTTP handler with request count and latency
func (m *Metrics) InstrumentHandler(handlerName string, handler http.HandlerFunc) http.HandlerFunc {
	if m == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		handler(wrapped, r)

		m.httpRequestDuration.WithLabelValues(handlerName, r.Method).Observe(time.Since(startTime).Seconds())
		m.httpRequestsTotal.WithLabelValues(handlerName, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
