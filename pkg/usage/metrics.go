package usage

import "github.com/prometheus/client_golang/prometheus"

// Archive outcomes used as metric label values.
const (
	OutcomeArchived = "archived"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Metrics holds the usage collectors.
type Metrics struct {
	Recorded *prometheus.CounterVec
	Dropped  *prometheus.CounterVec
	Archived *prometheus.CounterVec
}

// NewMetrics creates and registers the usage collectors. A nil registerer
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Recorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "usage",
			Name:      "events_recorded_total",
			Help:      "Usage events appended by resource.",
		}, []string{"resource"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "usage",
			Name:      "events_dropped_total",
			Help:      "Usage events that could not be appended by resource.",
		}, []string{"resource"}),
		Archived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meterkit",
			Subsystem: "usage",
			Name:      "archive_tenants_total",
			Help:      "Per-tenant archival outcomes.",
		}, []string{"outcome"}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Recorded, m.Dropped, m.Archived} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) recorded(resource string) {
	if m != nil {
		m.Recorded.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) dropped(resource string) {
	if m != nil {
		m.Dropped.WithLabelValues(resource).Inc()
	}
}

func (m *Metrics) archived(outcome string) {
	if m != nil {
		m.Archived.WithLabelValues(outcome).Inc()
	}
}
