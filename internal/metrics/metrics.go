package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gateway_ledger"

// Metrics holds the ledger's Prometheus collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	entriesPosted   *prometheus.CounterVec
	postedAmount    *prometheus.CounterVec
	replays         *prometheus.CounterVec
	failures        *prometheus.CounterVec
	reservations    *prometheus.CounterVec
	integrityOK     prometheus.Gauge
	integrityRuns   *prometheus.CounterVec
	integrityTiming prometheus.Histogram

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New builds and registers the collectors. Process and Go runtime collectors
// are included when withRuntime is true.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		entriesPosted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "entries_posted_total",
			Help:      "Journal entries committed, by reference type.",
		}, []string{"reference_type"}),
		postedAmount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "posted_minor_units_total",
			Help:      "Sum of entry totals committed, in minor currency units.",
		}, []string{"reference_type"}),
		replays: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "replays_total",
			Help:      "Posts answered with an already committed entry.",
		}, []string{"reference_type"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_failures_total",
			Help:      "Failed ledger operations, by operation and error kind.",
		}, []string{"operation", "kind"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reservations",
			Name:      "resolved_total",
			Help:      "Withdrawal reservations reaching a terminal state.",
		}, []string{"state"}),
		integrityOK: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "healthy",
			Help:      "1 when the last integrity check passed, 0 while the alarm is raised.",
		}),
		integrityRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "checks_total",
			Help:      "Integrity checks run, by outcome.",
		}, []string{"outcome"}),
		integrityTiming: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "integrity",
			Name:      "check_duration_seconds",
			Help:      "Duration of integrity checks.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}
	m.integrityOK.Set(1)

	m.Registry.MustRegister(
		m.entriesPosted, m.postedAmount, m.replays, m.failures, m.reservations,
		m.integrityOK, m.integrityRuns, m.integrityTiming,
		m.httpInFlight, m.httpRequests, m.httpDuration,
	)
	if withRuntime {
		m.Registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	}
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EntryPosted(referenceType string, amount int64, replayed bool) {
	if replayed {
		m.replays.WithLabelValues(referenceType).Inc()
		return
	}
	m.entriesPosted.WithLabelValues(referenceType).Inc()
	m.postedAmount.WithLabelValues(referenceType).Add(float64(amount))
}

func (m *Metrics) OperationFailed(operation, kind string) {
	m.failures.WithLabelValues(operation, kind).Inc()
}

func (m *Metrics) ReservationResolved(state string) {
	m.reservations.WithLabelValues(state).Inc()
}

func (m *Metrics) IntegrityChecked(healthy bool, d time.Duration) {
	outcome := "healthy"
	if !healthy {
		outcome = "violation"
	}
	m.integrityRuns.WithLabelValues(outcome).Inc()
	m.integrityTiming.Observe(d.Seconds())
	m.SetIntegrityHealthy(healthy)
}

func (m *Metrics) SetIntegrityHealthy(healthy bool) {
	if healthy {
		m.integrityOK.Set(1)
		return
	}
	m.integrityOK.Set(0)
}

// InstrumentHandler records request counts and latency labelled by the
// matched chi route pattern, which keeps label cardinality bounded.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
