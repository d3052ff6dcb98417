// Package metrics exposes the prometheus counters of the participant engine
// and its collaborators. A nil *Metrics records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry       *prometheus.Registry
	transitions    *prometheus.CounterVec
	auditFailures  prometheus.Counter
	notifyFailures *prometheus.CounterVec
	pointerRepairs *prometheus.CounterVec
	pages          *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "role_transitions_total",
			Help:      "Committed participant role transitions.",
		}, []string{"op", "role"}),
		auditFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "audit_event_failures_total",
			Help:      "Audit events that could not be written and were dropped.",
		}),
		notifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "notification_failures_total",
			Help:      "Notifications that failed to deliver.",
		}, []string{"channel"}),
		pointerRepairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "pointer_repairs_total",
			Help:      "Subject pointers corrected by the reconciler.",
		}, []string{"role"}),
		pages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "warroom",
			Name:      "oncall_pages_total",
			Help:      "Oncall pages sent, by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Transition(op, role string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(op, role).Inc()
}

func (m *Metrics) AuditFailure() {
	if m == nil {
		return
	}
	m.auditFailures.Inc()
}

func (m *Metrics) NotifyFailure(channel string) {
	if m == nil {
		return
	}
	m.notifyFailures.WithLabelValues(channel).Inc()
}

func (m *Metrics) PointerRepair(role string) {
	if m == nil {
		return
	}
	m.pointerRepairs.WithLabelValues(role).Inc()
}

func (m *Metrics) Page(ok bool) {
	if m == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	m.pages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
