package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/andresmedinaorbidi/clarity/internal/intent"
	"github.com/andresmedinaorbidi/clarity/internal/provenance"
)

// Metrics holds Prometheus collectors for dispatch and field merging.
// A nil *Metrics records nothing.
type Metrics struct {
	// Dispatches counts decisions by action and outcome.
	// Labels: action, outcome (executed, refused, failed)
	Dispatches *prometheus.CounterVec

	// Checkpoints counts gates reached.
	// Labels: gate
	Checkpoints *prometheus.CounterVec

	// FieldMerges counts provenance writes.
	// Labels: path (merge, assume, user), result (accepted, rejected)
	FieldMerges *prometheus.CounterVec

	// ChainLength observes how many skills each chain ran.
	ChainLength prometheus.Histogram
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Dispatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clarity",
				Subsystem: "orchestrator",
				Name:      "dispatches_total",
				Help:      "Total number of dispatched intent decisions",
			},
			[]string{"action", "outcome"},
		),
		Checkpoints: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clarity",
				Subsystem: "orchestrator",
				Name:      "checkpoints_total",
				Help:      "Total number of approval gates reached",
			},
			[]string{"gate"},
		),
		FieldMerges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "clarity",
				Subsystem: "provenance",
				Name:      "field_writes_total",
				Help:      "Total number of tracked field writes by path and result",
			},
			[]string{"path", "result"},
		),
		ChainLength: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "clarity",
				Subsystem: "orchestrator",
				Name:      "chain_length",
				Help:      "Number of skills executed per chain",
				Buckets:   []float64{0, 1, 2, 3, 4, 5, 6, 8},
			},
		),
	}
}

func (m *Metrics) dispatched(action intent.Action, outcome string) {
	if m == nil {
		return
	}
	m.Dispatches.WithLabelValues(string(action), outcome).Inc()
}

func (m *Metrics) checkpoint(gate string) {
	if m == nil {
		return
	}
	m.Checkpoints.WithLabelValues(gate).Inc()
}

func (m *Metrics) fieldWrite(path string, rec provenance.MergeRecord) {
	if m == nil {
		return
	}
	result := "rejected"
	if rec.Accepted {
		result = "accepted"
	}
	m.FieldMerges.WithLabelValues(path, result).Inc()
}

func (m *Metrics) chain(executed int) {
	if m == nil {
		return
	}
	m.ChainLength.Observe(float64(executed))
}
