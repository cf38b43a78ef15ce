// Package metrics holds the Prometheus collectors exported at /metrics.
// Every method is safe to call on a nil *Metrics so tests and CLI commands
// can run without a registry.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hospitrack"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpDuration        *prometheus.HistogramVec
	reservations        *prometheus.CounterVec
	releases            *prometheus.CounterVec
	transitions         *prometheus.CounterVec
	inventoryDrift      *prometheus.CounterVec
	sweptHolds          prometheus.Counter
	appointments        *prometheus.CounterVec
	labOrders           *prometheus.CounterVec
	eventFailures       *prometheus.CounterVec
	circuitBreakerState *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bed_reservations_total",
			Help:      "Bed reservation attempts by outcome.",
		}, []string{"outcome"}),
		releases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bed_releases_total",
			Help:      "Hold release attempts by result.",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_transitions_total",
			Help:      "Committed reservation status transitions by target status.",
		}, []string{"to"}),
		inventoryDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_drift_total",
			Help:      "Releases that could not be credited back because the inventory row was edited outside the coordinator.",
		}, []string{"reason"}),
		sweptHolds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swept_holds_total",
			Help:      "Reserved holds auto-released by the expiry sweeper.",
		}),
		appointments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appointments_total",
			Help:      "Appointment bookings and status updates.",
		}, []string{"action"}),
		labOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lab_orders_total",
			Help:      "Lab orders issued and completed.",
		}, []string{"action"}),
		eventFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_failures_total",
			Help:      "Events that a sink failed to deliver.",
		}, []string{"sink"}),
		circuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpDuration,
		m.reservations, m.releases, m.transitions, m.inventoryDrift, m.sweptHolds,
		m.appointments, m.labOrders, m.eventFailures, m.circuitBreakerState,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveReservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRelease(result string) {
	if m == nil {
		return
	}
	m.releases.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveInventoryDrift(reason string) {
	if m == nil {
		return
	}
	m.inventoryDrift.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveSweptHold() {
	if m == nil {
		return
	}
	m.sweptHolds.Inc()
}

func (m *Metrics) ObserveAppointment(action string) {
	if m == nil {
		return
	}
	m.appointments.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveLabOrder(action string) {
	if m == nil {
		return
	}
	m.labOrders.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveEventFailure(sink string) {
	if m == nil {
		return
	}
	m.eventFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetCircuitBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.circuitBreakerState.WithLabelValues(name).Set(state)
}
