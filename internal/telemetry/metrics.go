// Package telemetry defines the Prometheus metrics of the lattice core.
package telemetry

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the core's counters. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	decisions *prometheus.CounterVec
	mutations *prometheus.CounterVec
	cascaded  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
	claims    *prometheus.CounterVec
}

// New creates the metrics and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_authz_decisions_total",
			Help: "Authorization decisions by result",
		}, []string{"result"}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_mutations_total",
			Help: "Committed entity mutations by operation and kind",
		}, []string{"op", "kind"}),
		cascaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_cascade_deleted_total",
			Help: "Records removed by deletes, including cascades, by kind",
		}, []string{"kind"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_conflicts_total",
			Help: "Concurrency and cascade conflicts by reason",
		}, []string{"reason"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lattice_checkpoint_claims_total",
			Help: "Checkpoint claim attempts by result",
		}, []string{"result"}),
	}
	for _, c := range []prometheus.Collector{m.decisions, m.mutations, m.cascaded, m.conflicts, m.claims} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Decision counts one authorization decision.
func (m *Metrics) Decision(allowed bool) {
	if m == nil {
		return
	}
	result := "deny"
	if allowed {
		result = "allow"
	}
	m.decisions.WithLabelValues(result).Inc()
}

// Mutation counts one committed mutation.
func (m *Metrics) Mutation(op, kind string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(op, kind).Inc()
}

// Deleted counts records removed by one delete.
func (m *Metrics) Deleted(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.cascaded.WithLabelValues(kind).Add(float64(n))
}

// Conflict counts a conflict by reason code.
func (m *Metrics) Conflict(reason string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(reason).Inc()
}

// Claim counts one checkpoint claim attempt.
func (m *Metrics) Claim(won bool) {
	if m == nil {
		return
	}
	result := "lost"
	if won {
		result = "won"
	}
	m.claims.WithLabelValues(result).Inc()
}

// LogSummary writes every non-zero counter in g to logger at debug level.
func LogSummary(logger *slog.Logger, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			value := metric.GetCounter().GetValue()
			if value == 0 {
				continue
			}
			attrs := []any{"metric", mf.GetName(), "value", value}
			for _, lp := range metric.GetLabel() {
				attrs = append(attrs, lp.GetName(), lp.GetValue())
			}
			logger.Debug("metric", attrs...)
		}
	}
	return nil
}
