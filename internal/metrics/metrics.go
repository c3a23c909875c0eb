// Package metrics exposes Prometheus collectors for credential verification.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "security"

// Verification outcome label values.
const (
	OutcomeAccepted        = "accepted"
	OutcomeBadCredentials  = "bad_credentials"
	OutcomeAccountDisabled = "account_disabled"
)

// Metrics holds the collectors updated by the services.
type Metrics struct {
	Verifications *prometheus.CounterVec
	Lockouts      prometheus.Counter
	StoreFaults   *prometheus.CounterVec
	VerifyLatency prometheus.Histogram
}

// NewMetrics creates the collectors and registers them on reg.
// A nil registerer leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Credential verifications by outcome.",
		}, []string{"outcome"}),
		Lockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lockouts_total",
			Help:      "Accounts disabled by the consecutive failure policy.",
		}),
		StoreFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_faults_total",
			Help:      "Account store failures during verification, by step.",
		}, []string{"step"}),
		VerifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "verification_duration_seconds",
			Help:      "Time spent verifying credentials.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Verifications, m.Lockouts, m.StoreFaults, m.VerifyLatency)
	}
	return m
}

// Nop returns unregistered collectors, for callers that do not export metrics.
func Nop() *Metrics {
	return NewMetrics(nil)
}

// ObserveOutcome counts one verification result.
func (m *Metrics) ObserveOutcome(outcome string, seconds float64) {
	m.Verifications.WithLabelValues(outcome).Inc()
	m.VerifyLatency.Observe(seconds)
}

// ObserveLockout counts one account disabled by the lockout policy.
func (m *Metrics) ObserveLockout() {
	m.Lockouts.Inc()
}

// ObserveStoreFault counts one store failure at the named step.
func (m *Metrics) ObserveStoreFault(step string) {
	m.StoreFaults.WithLabelValues(step).Inc()
}
