// metrics — счётчики Prometheus для решений границы аутентификации.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "web_edge"

// Исходы edge guard.
const (
	GuardRenewed          = "renewed"
	GuardRedirectMissing  = "redirect_missing"
	GuardRedirectRejected = "redirect_refresh_failed"
)

// Исходы тихого обновления в пайплайне клиента.
const (
	RefreshRotated = "rotated"
	RefreshFailed  = "failed"
	RefreshShared  = "shared"
)

// Metrics — набор счётчиков сервиса. Нулевой *Metrics безопасен: все методы no-op.
type Metrics struct {
	guardDecisions     *prometheus.CounterVec
	invitationOutcomes *prometheus.CounterVec
	tokenRefreshes     *prometheus.CounterVec
}

// New создаёт счётчики и регистрирует их в reg.
// В тестах передаётся свой prometheus.NewRegistry(), в main — DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Edge guard decisions on protected paths by outcome",
		}, []string{"outcome"}),
		invitationOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitation_outcomes_total",
			Help:      "Invitation accept outcomes by kind",
		}, []string{"kind"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Silent credential renewals performed by the API client pipeline",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(m.guardDecisions, m.invitationOutcomes, m.tokenRefreshes)
	}

	return m
}

// GuardDecision учитывает решение guard.
func (m *Metrics) GuardDecision(outcome string) {
	if m == nil {
		return
	}
	m.guardDecisions.WithLabelValues(outcome).Inc()
}

// InvitationOutcome учитывает исход приёма приглашения.
func (m *Metrics) InvitationOutcome(kind string) {
	if m == nil {
		return
	}
	m.invitationOutcomes.WithLabelValues(kind).Inc()
}

// TokenRefresh учитывает тихое обновление.
func (m *Metrics) TokenRefresh(result string) {
	if m == nil {
		return
	}
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

// GuardDecisions — для проверок в тестах через testutil.
func (m *Metrics) GuardDecisions() *prometheus.CounterVec { return m.guardDecisions }

// InvitationOutcomes — для проверок в тестах через testutil.
func (m *Metrics) InvitationOutcomes() *prometheus.CounterVec { return m.invitationOutcomes }

// TokenRefreshes — для проверок в тестах через testutil.
func (m *Metrics) TokenRefreshes() *prometheus.CounterVec { return m.tokenRefreshes }
