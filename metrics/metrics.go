// Package metrics exposes Prometheus counters for the authentication flow.
// A nil *Metrics is valid and records nothing, so wiring them up stays
// optional for tests and embedded use.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Result labels shared across counters
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the counters for the session core
type Metrics struct {
	otpSends      *prometheus.CounterVec
	otpConfirms   *prometheus.CounterVec
	logins        *prometheus.CounterVec
	logouts       *prometheus.CounterVec
	verdictCache  *prometheus.CounterVec
	expiryEvents  *prometheus.CounterVec
	revalidations *prometheus.CounterVec
}

// New creates the counters and registers them with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		otpSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "otp_sends_total",
			Help:      "Passcode dispatch attempts by result.",
		}, []string{"result"}),
		otpConfirms: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "otp_confirms_total",
			Help:      "Passcode confirm attempts by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "logins_total",
			Help:      "Login attempts by method and result.",
		}, []string{"method", "result"}),
		logouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "logouts_total",
			Help:      "Logout sequences by trigger.",
		}, []string{"trigger"}),
		verdictCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "verdict_cache_total",
			Help:      "Validation verdict cache lookups by outcome.",
		}, []string{"outcome"}),
		expiryEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "expiry_events_total",
			Help:      "Session expiry events by outcome.",
		}, []string{"outcome"}),
		revalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tiffauth",
			Name:      "revalidations_total",
			Help:      "Periodic remote revalidation checks by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.otpSends,
		m.otpConfirms,
		m.logins,
		m.logouts,
		m.verdictCache,
		m.expiryEvents,
		m.revalidations,
	)

	return m
}

// ObserveOTPSend records a passcode dispatch attempt
func (m *Metrics) ObserveOTPSend(result string) {
	if m == nil {
		return
	}
	m.otpSends.WithLabelValues(result).Inc()
}

// ObserveOTPConfirm records a passcode confirm attempt
func (m *Metrics) ObserveOTPConfirm(result string) {
	if m == nil {
		return
	}
	m.otpConfirms.WithLabelValues(result).Inc()
}

// ObserveLogin records a login attempt
func (m *Metrics) ObserveLogin(method, result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(method, result).Inc()
}

// ObserveLogout records a completed logout sequence
func (m *Metrics) ObserveLogout(trigger string) {
	if m == nil {
		return
	}
	m.logouts.WithLabelValues(trigger).Inc()
}

// ObserveVerdictCache records a cache lookup outcome, "hit" or "miss"
func (m *Metrics) ObserveVerdictCache(outcome string) {
	if m == nil {
		return
	}
	m.verdictCache.WithLabelValues(outcome).Inc()
}

// ObserveExpiryEvent records an expiry signal outcome, "handled" or "dropped"
func (m *Metrics) ObserveExpiryEvent(outcome string) {
	if m == nil {
		return
	}
	m.expiryEvents.WithLabelValues(outcome).Inc()
}

// ObserveRevalidation records a periodic remote check result
func (m *Metrics) ObserveRevalidation(result string) {
	if m == nil {
		return
	}
	m.revalidations.WithLabelValues(result).Inc()
}
