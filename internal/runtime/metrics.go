package runtime

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Transaction outcomes recorded in metrics
const (
	StatusCommitted = "committed"
	StatusFailed    = "failed"
	StatusRejected  = "rejected"
)

// Metrics holds all Prometheus metrics for the executor
type Metrics struct {
	Transactions      *prometheus.CounterVec
	InstructionErrors *prometheus.CounterVec
	BetsPlaced        prometheus.Counter
	BetsResolved      *prometheus.CounterVec
	PayoutLamports    prometheus.Counter
	ExecutionLatency  prometheus.Histogram
}

// NewMetrics creates the executor metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dicesettle_transactions_total",
			Help: "Transactions processed by outcome",
		}, []string{"status"}),
		InstructionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dicesettle_instruction_errors_total",
			Help: "Instruction failures by error name",
		}, []string{"error"}),
		BetsPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dicesettle_bets_placed_total",
			Help: "Bets opened",
		}),
		BetsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dicesettle_bets_resolved_total",
			Help: "Bets settled by outcome",
		}, []string{"outcome"}),
		PayoutLamports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dicesettle_payout_lamports_total",
			Help: "Lamports paid out to winning players",
		}),
		ExecutionLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dicesettle_execution_latency_seconds",
			Help:    "Transaction execution latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.Transactions,
			m.InstructionErrors,
			m.BetsPlaced,
			m.BetsResolved,
			m.PayoutLamports,
			m.ExecutionLatency,
		)
	}

	return m
}
