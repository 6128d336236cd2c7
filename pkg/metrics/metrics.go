// Package metrics exposes Prometheus collectors for login, resolution and
// delivery outcomes.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ekaya_intake"

// Metrics groups the collectors of the service. A nil *Metrics is valid and
// records nothing, so services can be built without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	loginAttempts  *prometheus.CounterVec
	logins         *prometheus.CounterVec
	discoveries    *prometheus.CounterVec
	resolutions    *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	deliveryLines  *prometheus.CounterVec
	activeSessions prometheus.Gauge
}

// New creates the collectors on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login strategy attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Completed authentications by mechanism and result.",
		}, []string{"mechanism", "result"}),
		discoveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_discoveries_total",
			Help:      "Schema discoveries by tier.",
		}, []string{"tier"}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "item_resolutions_total",
			Help:      "Line item resolutions by kind and stage.",
		}, []string{"kind", "stage"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Delivery pushes by final status.",
		}, []string{"status", "dry_run"}),
		deliveryLines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_lines_total",
			Help:      "Delivery lines by disposition.",
		}, []string{"disposition"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Operator sessions holding a database connection.",
		}),
	}

	reg.MustRegister(
		m.loginAttempts,
		m.logins,
		m.discoveries,
		m.resolutions,
		m.deliveries,
		m.deliveryLines,
		m.activeSessions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) LoginAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) Login(mechanism string, success bool) {
	if m == nil {
		return
	}
	result := "failure"
	if success {
		result = "success"
	}
	m.logins.WithLabelValues(mechanism, result).Inc()
}

func (m *Metrics) Discovery(tier string) {
	if m == nil {
		return
	}
	m.discoveries.WithLabelValues(tier).Inc()
}

func (m *Metrics) Resolution(kind, stage string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(kind, stage).Inc()
}

func (m *Metrics) Delivery(status string, dryRun bool, autoResolved, manuallyChosen, unresolved int) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(status, strconv.FormatBool(dryRun)).Inc()
	m.deliveryLines.WithLabelValues("auto_resolved").Add(float64(autoResolved))
	m.deliveryLines.WithLabelValues("manually_chosen").Add(float64(manuallyChosen))
	m.deliveryLines.WithLabelValues("unresolved").Add(float64(unresolved))
}

func (m *Metrics) SessionOpened() {
	if m == nil {
		return
	}
	m.activeSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
