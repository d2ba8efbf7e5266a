package usage

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Snapshot is a usage report for one tenant and period window. Archived
// snapshots are immutable.
type Snapshot struct {
	ID          uuid.UUID                             `json:"id"`
	TenantID    uuid.UUID                             `json:"tenant_id"`
	PlanID      string                                `json:"plan_id"`
	Period      metering.Period                       `json:"period"`
	PeriodStart time.Time                             `json:"period_start"`
	PeriodEnd   time.Time                             `json:"period_end"`
	Usage       metering.Totals                       `json:"usage"`
	Limits      map[metering.Resource]metering.Limit  `json:"limits"`
	PercentUsed map[metering.Resource]float64         `json:"percent_used"`
	Costs       map[metering.Resource]decimal.Decimal `json:"costs"`
	TotalCost   decimal.Decimal                       `json:"total_cost"`
	Currency    string                                `json:"currency"`
	CreatedAt   time.Time                             `json:"created_at"`
}

// Growth compares one resource between two snapshots.
type Growth struct {
	Previous decimal.Decimal `json:"previous"`
	Current  decimal.Decimal `json:"current"`
	// Percent is (current-previous)/previous*100. It is only meaningful when Comparable.
	Percent    float64 `json:"percent"`
	Comparable bool    `json:"comparable"`
}

// Trend is the result of TrendAnalysis. When Sufficient is false there were
// fewer than two snapshots and Growth is empty.
type Trend struct {
	TenantID   uuid.UUID                    `json:"tenant_id"`
	Sufficient bool                         `json:"sufficient"`
	Snapshots  []Snapshot                   `json:"snapshots"`
	Growth     map[metering.Resource]Growth `json:"growth,omitempty"`
}

func growth(prev, cur decimal.Decimal) Growth {
	g := Growth{Previous: prev, Current: cur}
	switch {
	case prev.IsZero() && cur.IsZero():
		g.Comparable = true
	case prev.IsZero():
		g.Comparable = false
	default:
		g.Comparable = true
		g.Percent = cur.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return g
}
