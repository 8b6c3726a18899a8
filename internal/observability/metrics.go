package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes prometheus counters for the core operations.
type Metrics struct {
	ticketsSubmitted        *prometheus.CounterVec
	transitions             *prometheus.CounterVec
	transitionConflicts     prometheus.Counter
	notificationsDispatched prometheus.Counter
	requestErrors           *prometheus.CounterVec
}

// NewMetrics registers counters with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ticketsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "itsm_tickets_submitted_total",
			Help: "Tickets accepted by the intake normalizer, by routed workflow.",
		}, []string{"workflow"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "itsm_transitions_total",
			Help: "Successful workflow transitions, by workflow and action.",
		}, []string{"workflow", "action"}),
		transitionConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "itsm_transition_conflicts_total",
			Help: "Transitions rejected because of a stale version.",
		}),
		notificationsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "itsm_notifications_dispatched_total",
			Help: "Notifications written by the dispatcher.",
		}),
		requestErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "itsm_request_errors_total",
			Help: "Request failures by error code.",
		}, []string{"code"}),
	}
}

// ObserveSubmission records an accepted submission.
func (m *Metrics) ObserveSubmission(workflow string) {
	if m == nil {
		return
	}
	m.ticketsSubmitted.WithLabelValues(workflow).Inc()
}

// ObserveTransition records a successful transition.
func (m *Metrics) ObserveTransition(workflow, action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(workflow, action).Inc()
}

// ObserveConflict records an optimistic-concurrency loss.
func (m *Metrics) ObserveConflict() {
	if m == nil {
		return
	}
	m.transitionConflicts.Inc()
}

// ObserveDispatch records a dispatched notification.
func (m *Metrics) ObserveDispatch() {
	if m == nil {
		return
	}
	m.notificationsDispatched.Inc()
}

// RecordError records a request failure by error code.
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.requestErrors.WithLabelValues(code).Inc()
}
