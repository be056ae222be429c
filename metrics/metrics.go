package metrics

import (
	"strconv"

	authsession "github.com/goliatone/go-authsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for session operations.
type Metrics struct {
	SessionsPublished     *prometheus.CounterVec
	GuardDecisions        *prometheus.CounterVec
	AuthorizationFailures *prometheus.CounterVec
	OperationFailures     *prometheus.CounterVec
}

var _ authsession.MetricsRecorder = (*Metrics)(nil)

// New registers and returns session metrics collectors on reg. A nil reg
// uses prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_sessions_published_total",
			Help: "Total number of sessions published, by state",
		}, []string{"state"}),
		GuardDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_guard_decisions_total",
			Help: "Total number of guard evaluations, by guard and outcome",
		}, []string{"guard", "allowed"}),
		AuthorizationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_authorization_failures_total",
			Help: "Total number of outbound authorization failures, by whether they caused a sign out",
		}, []string{"handled"}),
		OperationFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authsession_operation_failures_total",
			Help: "Total number of failed session operations, by operation and error code",
		}, []string{"operation", "code"}),
	}
}

// SessionPublished increments the publish counter for state.
func (m *Metrics) SessionPublished(state authsession.State) {
	if m == nil {
		return
	}
	m.SessionsPublished.WithLabelValues(string(state)).Inc()
}

// GuardEvaluated records a guard outcome.
func (m *Metrics) GuardEvaluated(guard string, allowed bool) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(guard, strconv.FormatBool(allowed)).Inc()
}

// AuthorizationFailure records a rejected outbound credential.
func (m *Metrics) AuthorizationFailure(handled bool) {
	if m == nil {
		return
	}
	m.AuthorizationFailures.WithLabelValues(strconv.FormatBool(handled)).Inc()
}

// OperationFailed records a failed operation. Errors without a code are
// labeled "unknown".
func (m *Metrics) OperationFailed(operation, textCode string) {
	if m == nil {
		return
	}
	if textCode == "" {
		textCode = "unknown"
	}
	m.OperationFailures.WithLabelValues(operation, textCode).Inc()
}
