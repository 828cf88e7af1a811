package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the assistant. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MessagesAdmitted       prometheus.Counter
	MessagesRejected       *prometheus.CounterVec
	FilterErrors           *prometheus.CounterVec
	Activations            prometheus.Counter
	RateLimitWarnings      prometheus.Counter
	DispatchRoutes         *prometheus.CounterVec
	RegistrationsStarted   prometheus.Counter
	RegistrationsSubmitted prometheus.Counter
	RegistrationsCancelled prometheus.Counter
	AIFailures             prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesAdmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_messages_admitted_total",
			Help: "Inbound messages that passed every admission filter",
		}),
		MessagesRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dinsos_bot_messages_rejected_total",
			Help: "Inbound messages rejected by an admission filter",
		}, []string{"filter"}),
		FilterErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dinsos_bot_filter_errors_total",
			Help: "Admission filter lookups that failed and were resolved by policy",
		}, []string{"filter", "policy"}),
		Activations: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_activations_total",
			Help: "Senders activated by a trigger or bot keyword",
		}),
		RateLimitWarnings: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_rate_limit_warnings_total",
			Help: "Rate-limit warnings sent (at most one per sender window)",
		}),
		DispatchRoutes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dinsos_bot_dispatch_routes_total",
			Help: "Dispatched messages by resolved route",
		}, []string{"route"}),
		RegistrationsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_registrations_started_total",
			Help: "Registration conversations started",
		}),
		RegistrationsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_registrations_submitted_total",
			Help: "Registration records written",
		}),
		RegistrationsCancelled: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_registrations_cancelled_total",
			Help: "Registration conversations cancelled at confirmation",
		}),
		AIFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dinsos_bot_ai_failures_total",
			Help: "Knowledge responder failures replaced by the fallback message",
		}),
	}
}

func (m *Metrics) IncAdmitted() {
	if m == nil {
		return
	}
	m.MessagesAdmitted.Inc()
}

func (m *Metrics) IncRejected(filter string) {
	if m == nil {
		return
	}
	m.MessagesRejected.WithLabelValues(filter).Inc()
}

func (m *Metrics) IncFilterError(filter, policy string) {
	if m == nil {
		return
	}
	m.FilterErrors.WithLabelValues(filter, policy).Inc()
}

func (m *Metrics) IncActivations() {
	if m == nil {
		return
	}
	m.Activations.Inc()
}

func (m *Metrics) IncRateLimitWarnings() {
	if m == nil {
		return
	}
	m.RateLimitWarnings.Inc()
}

func (m *Metrics) IncRoute(route string) {
	if m == nil {
		return
	}
	m.DispatchRoutes.WithLabelValues(route).Inc()
}

func (m *Metrics) IncRegistrationsStarted() {
	if m == nil {
		return
	}
	m.RegistrationsStarted.Inc()
}

func (m *Metrics) IncRegistrationsSubmitted() {
	if m == nil {
		return
	}
	m.RegistrationsSubmitted.Inc()
}

func (m *Metrics) IncRegistrationsCancelled() {
	if m == nil {
		return
	}
	m.RegistrationsCancelled.Inc()
}

func (m *Metrics) IncAIFailures() {
	if m == nil {
		return
	}
	m.AIFailures.Inc()
}
