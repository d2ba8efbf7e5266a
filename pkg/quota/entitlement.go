package quota

import (
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// FreeTierPlanID identifies the default entitlement in reports and logs.
const FreeTierPlanID = "free"

// Source tells where an entitlement came from.
type Source string

const (
	SourcePlan    Source = "plan"
	SourceDefault Source = "default"
)

const gib = 1 << 30

// FreeTierLimits returns the fixed entitlement of tenants without an active subscription.
func FreeTierLimits() map[metering.Resource]metering.Limit {
	return map[metering.Resource]metering.Limit{
		metering.ResourceStorage:       metering.LimitedInt(gib),
		metering.ResourceProcessing:    metering.LimitedInt(60),
		metering.ResourceAPICalls:      metering.LimitedInt(1000),
		metering.ResourceTranscription: metering.LimitedInt(30),
		metering.ResourceAITokens:      metering.LimitedInt(50000),
	}
}

// Entitlement is the set of limits a tenant may consume within its current
// accounting window.
type Entitlement struct {
	TenantID    uuid.UUID
	PlanID      string
	Source      Source
	Limits      map[metering.Resource]metering.Limit
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// Limit returns the limit for r. Resources missing from the map permit nothing.
func (e Entitlement) Limit(r metering.Resource) metering.Limit {
	if l, ok := e.Limits[r]; ok {
		return l
	}
	return metering.LimitedInt(0)
}

// IsDefault reports whether the tenant is on the free tier.
func (e Entitlement) IsDefault() bool {
	return e.Source == SourceDefault
}

func cloneLimits(in map[metering.Resource]metering.Limit) map[metering.Resource]metering.Limit {
	if in == nil {
		return make(map[metering.Resource]metering.Limit)
	}
	return maps.Clone(in)
}
