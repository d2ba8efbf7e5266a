package billing

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the billing collectors.
type Metrics struct {
	Transitions *prometheus.CounterVec
	Payments    *prometheus.CounterVec
}

// NewMetrics creates and registers the billing collectors. A nil registerer
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "billing",
			Name:      "transitions_total",
			Help:      "Subscription lifecycle transitions.",
		}, []string{"from", "to", "event"}),
		Payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Recorded payments by kind and status.",
		}, []string{"kind", "status"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Transitions, m.Payments} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) transition(from, to Status, event string) {
	if m != nil && from != to {
		m.Transitions.WithLabelValues(string(from), string(to), event).Inc()
	}
}

func (m *Metrics) payment(p Payment) {
	if m != nil {
		m.Payments.WithLabelValues(string(p.Kind), string(p.Status)).Inc()
	}
}
