package sampler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the step method counters, labelled by step method name. One
// Metrics value is shared by every chain of a run.
type Metrics struct {
	Accepted          *prometheus.CounterVec
	Rejected          *prometheus.CounterVec
	Retunes           *prometheus.CounterVec
	DegenerateRetunes *prometheus.CounterVec
	Phase             *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	labels := []string{"step_method"}

	return &Metrics{
		Accepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptmc",
			Name:      "proposals_accepted_total",
			Help:      "Metropolis proposals accepted",
		}, labels),
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptmc",
			Name:      "proposals_rejected_total",
			Help:      "Metropolis proposals rejected (including zero probability proposals)",
		}, labels),
		Retunes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptmc",
			Name:      "covariance_retunes_total",
			Help:      "Proposal covariance updates",
		}, labels),
		DegenerateRetunes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "adaptmc",
			Name:      "covariance_degenerate_total",
			Help:      "Covariance updates that could not be factorized (previous factor kept)",
		}, labels),
		Phase: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "adaptmc",
			Name:      "sampler_phase",
			Help:      "0 during greedy warm-up, 1 once adaptive",
		}, labels),
	}
}

// The methods below are nil-safe so samplers can call them unconditionally

func (m *Metrics) accept(name string) {
	if m != nil {
		m.Accepted.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) reject(name string) {
	if m != nil {
		m.Rejected.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) retune(name string, degenerate bool) {
	if m == nil {
		return
	}
	m.Retunes.WithLabelValues(name).Inc()
	if degenerate {
		m.DegenerateRetunes.WithLabelValues(name).Inc()
	}
}

func (m *Metrics) phase(name string, p Phase) {
	if m != nil {
		m.Phase.WithLabelValues(name).Set(float64(p))
	}
}
