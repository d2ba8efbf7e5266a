package quota

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Warning band, inclusive on both ends.
const (
	WarningThreshold  = 80.0
	ExceededThreshold = 100.0
)

// Warning is emitted when projected usage reaches the warning band.
type Warning struct {
	TenantID    uuid.UUID
	PlanID      string
	Resource    metering.Resource
	Current     decimal.Decimal
	Limit       metering.Limit
	PercentUsed float64
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// InWarningBand reports whether percent qualifies for a warning.
func InWarningBand(percent float64) bool {
	return percent >= WarningThreshold && percent <= ExceededThreshold
}

// Notifier receives threshold warnings.
type Notifier interface {
	QuotaWarning(ctx context.Context, w Warning) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, w Warning) error

func (f NotifierFunc) QuotaWarning(ctx context.Context, w Warning) error {
	return f(ctx, w)
}
