package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersAndCounts(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := New(reg)

	m.GuardDecision(GuardRenewed)
	m.GuardDecision(GuardRenewed)
	m.GuardDecision(GuardRedirectMissing)
	m.InvitationOutcome("token_invalid")
	m.TokenRefresh(RefreshRotated)

	require.Equal(t, 2.0, testutil.ToFloat64(m.GuardDecisions().WithLabelValues(GuardRenewed)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.GuardDecisions().WithLabelValues(GuardRedirectMissing)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.InvitationOutcomes().WithLabelValues("token_invalid")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.TokenRefreshes().WithLabelValues(RefreshRotated)))

	n, err := testutil.GatherAndCount(reg, "web_edge_guard_decisions_total")
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestNew_DoubleRegisterPanics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_ = New(reg)
	require.Panics(t, func() { _ = New(reg) })
}

func TestNilMetrics_NoOp(t *testing.T) {
	t.Parallel()

	var m *Metrics
	require.NotPanics(t, func() {
		m.GuardDecision(GuardRenewed)
		m.InvitationOutcome("generic")
		m.TokenRefresh(RefreshFailed)
	})
}
