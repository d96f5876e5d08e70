package session

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects issuer-level counters. A nil *Metrics is valid and
// records nothing, so tests can construct a Service without a registry.
type Metrics struct {
	logins      *prometheus.CounterVec
	renewals    *prometheus.CounterVec
	revocations *prometheus.CounterVec
	sweeps      *prometheus.CounterVec
}

// NewMetrics registers and returns the issuer metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markethub",
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markethub",
			Subsystem: "auth",
			Name:      "renewals_total",
			Help:      "Renewal attempts by result.",
		}, []string{"result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markethub",
			Subsystem: "auth",
			Name:      "revocations_total",
			Help:      "Revoked sessions by reason.",
		}, []string{"reason"}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "markethub",
			Subsystem: "auth",
			Name:      "sweep_deleted_total",
			Help:      "Rows deleted by the expiry sweep, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.logins, m.renewals, m.revocations, m.sweeps)
	return m
}

func (m *Metrics) login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) renewal(result string) {
	if m == nil {
		return
	}
	m.renewals.WithLabelValues(result).Inc()
}

func (m *Metrics) revocation(reason RevocationReason, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.WithLabelValues(string(reason)).Add(float64(n))
}

func (m *Metrics) swept(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.sweeps.WithLabelValues(kind).Add(float64(n))
}
