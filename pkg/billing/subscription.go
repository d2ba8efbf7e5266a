package billing

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Subscription links a tenant to a plan. A tenant has at most one
// subscription that is not cancelled.
type Subscription struct {
	ID                  uuid.UUID
	TenantID            uuid.UUID
	PlanID              string
	Status              Status
	CurrentPeriodStart  time.Time
	CurrentPeriodEnd    time.Time
	TrialEndsAt         *time.Time
	Currency            string
	Amount              decimal.Decimal // price per cycle
	ConsecutiveFailures int
	CancellationReason  string
	CancelledAt         *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsTrialing returns true if the subscription is in trial status.
func (s *Subscription) IsTrialing() bool {
	return s.Status == StatusTrialing
}

// IsCancelled returns true if the subscription is cancelled.
func (s *Subscription) IsCancelled() bool {
	return s.Status == StatusCancelled
}

// TrialExpiredAt reports whether a trialing subscription's trial has ended at now.
func (s *Subscription) TrialExpiredAt(now time.Time) bool {
	if !s.IsTrialing() || s.TrialEndsAt == nil {
		return false
	}
	return !now.Before(*s.TrialEndsAt)
}

// RemainingDaysAt returns the whole days left in the current period at now,
// rounding partial days up.
func (s *Subscription) RemainingDaysAt(now time.Time) int {
	remaining := s.CurrentPeriodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

// startPeriod sets a fresh period of days starting at start.
func (s *Subscription) startPeriod(start time.Time, days int) {
	s.CurrentPeriodStart = start
	s.CurrentPeriodEnd = start.AddDate(0, 0, days)
}

// rollPeriod advances the current period by one cycle.
func (s *Subscription) rollPeriod(days int) {
	s.startPeriod(s.CurrentPeriodEnd, days)
}
