// Package metrics provides observability for the registration flow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the registration flow's Prometheus metrics. A nil *Metrics
// is valid and records nothing, which keeps unit tests free of registry
// bookkeeping.
type Metrics struct {
	SendsTotal        *prometheus.CounterVec
	VerifiesTotal     *prometheus.CounterVec
	CooldownRejected  prometheus.Counter
	GuardDuplicates   prometheus.Counter
	AccountsCreated   prometheus.Counter
	ProvisionFailed   prometheus.Counter
	ProvisionDuration prometheus.Histogram
}

// New creates and registers all registration metrics.
func New() *Metrics {
	return &Metrics{
		SendsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_sends_total",
			Help: "Verification sends by channel and outcome",
		}, []string{"channel", "outcome"}),
		VerifiesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "enroll_verifies_total",
			Help: "Verification checks by channel and outcome",
		}, []string{"channel", "outcome"}),
		CooldownRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_cooldown_rejected_total",
			Help: "Sends rejected because the resend cooldown was still running",
		}),
		GuardDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_guard_duplicates_total",
			Help: "Sends blocked because the identifier already has an account",
		}),
		AccountsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_accounts_created_total",
			Help: "Accounts provisioned from completed registrations",
		}),
		ProvisionFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "enroll_provision_failed_total",
			Help: "Provisioning attempts rejected by the account store",
		}),
		ProvisionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "enroll_provision_duration_seconds",
			Help:    "Duration of account provisioning",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// RecordSend counts one send attempt for a channel.
func (m *Metrics) RecordSend(channel, outcome string) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordVerify counts one verify attempt for a channel.
func (m *Metrics) RecordVerify(channel, outcome string) {
	if m == nil {
		return
	}
	m.VerifiesTotal.WithLabelValues(channel, outcome).Inc()
}

// RecordCooldownRejected counts a send turned away by the cooldown gate.
func (m *Metrics) RecordCooldownRejected() {
	if m == nil {
		return
	}
	m.CooldownRejected.Inc()
}

// RecordGuardDuplicate counts a send blocked by the existence guard.
func (m *Metrics) RecordGuardDuplicate() {
	if m == nil {
		return
	}
	m.GuardDuplicates.Inc()
}

// RecordAccountCreated counts a successful provisioning.
func (m *Metrics) RecordAccountCreated() {
	if m == nil {
		return
	}
	m.AccountsCreated.Inc()
}

// RecordProvisionFailed counts a provisioning attempt the backend rejected.
func (m *Metrics) RecordProvisionFailed() {
	if m == nil {
		return
	}
	m.ProvisionFailed.Inc()
}

// ObserveProvision records the duration of a provisioning attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveProvision(start time.Time) {
	if m == nil {
		return
	}
	m.ProvisionDuration.Observe(time.Since(start).Seconds())
}
