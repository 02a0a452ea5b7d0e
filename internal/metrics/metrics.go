// Package metrics holds the engine's prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "spendguard"

const (
	OutcomeAllowed = "allowed"
	OutcomeDenied  = "denied"
	OutcomeError   = "error"

	OutcomeRecorded  = "recorded"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
)

type Metrics struct {
	decisions            *prometheus.CounterVec
	versionConflicts     prometheus.Counter
	spendRetries         prometheus.Counter
	reservationsReleased prometheus.Counter
	ledgerTransactions   *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enforcement_decisions_total",
			Help:      "Budget enforcement decisions by operation and outcome.",
		}, []string{"operation", "outcome"}),
		versionConflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "budget_version_conflicts_total",
			Help:      "Optimistic version conflicts on budget spend.",
		}),
		spendRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "direct_spend_retries_total",
			Help:      "Direct spend attempts retried after a conflict.",
		}),
		reservationsReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_expired_released_total",
			Help:      "Expired reservations released by the sweep.",
		}),
		ledgerTransactions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_transactions_total",
			Help:      "Ledger transactions by outcome.",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) Decision(operation, outcome string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) VersionConflict() {
	if m == nil {
		return
	}
	m.versionConflicts.Inc()
}

func (m *Metrics) SpendRetry() {
	if m == nil {
		return
	}
	m.spendRetries.Inc()
}

func (m *Metrics) ReservationsReleased(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.reservationsReleased.Add(float64(n))
}

func (m *Metrics) LedgerTransaction(outcome string) {
	if m == nil {
		return
	}
	m.ledgerTransactions.WithLabelValues(outcome).Inc()
}
