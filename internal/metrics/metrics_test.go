package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegisterAndCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOutcome(OutcomeAccepted, 0.01)
	m.ObserveOutcome(OutcomeBadCredentials, 0.02)
	m.ObserveOutcome(OutcomeBadCredentials, 0.02)
	m.ObserveLockout()
	m.ObserveStoreFault("lookup")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues(OutcomeAccepted)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Verifications.WithLabelValues(OutcomeBadCredentials)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Lockouts))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreFaults.WithLabelValues("lookup")))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "security_verifications_total")
	assert.Contains(t, names, "security_verification_duration_seconds")
}

func TestNopDoesNotRegister(t *testing.T) {
	m := Nop()
	m.ObserveOutcome(OutcomeAccountDisabled, 0)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues(OutcomeAccountDisabled)))

	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	assert.Panics(t, func() { NewMetrics(reg) })
}
