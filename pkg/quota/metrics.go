package quota

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Decision outcomes used as metric label values.
const (
	OutcomeAllowed    = "allowed"
	OutcomeDenied     = "denied"
	OutcomeFailedOpen = "failed_open"
	OutcomeInvalid    = "invalid"
)

// Metrics holds the enforcement collectors.
type Metrics struct {
	Decisions *prometheus.CounterVec
	Warnings  *prometheus.CounterVec
}

// NewMetrics creates and registers the quota collectors. A nil registerer
// leaves them unregistered, which is what tests usually want.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "quota",
			Name:      "decisions_total",
			Help:      "Quota enforcement decisions by resource and outcome.",
		}, []string{"resource", "outcome"}),
		Warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "quota",
			Name:      "warnings_total",
			Help:      "Threshold warnings emitted by resource.",
		}, []string{"resource"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Decisions, m.Warnings} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) decision(resource, outcome string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(resource, outcome).Inc()
}

func (m *Metrics) warning(resource string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(resource).Inc()
}
