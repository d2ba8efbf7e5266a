package billing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// DefaultCycleDays is used by plans that do not declare a billing cycle.
const DefaultCycleDays = 30

// Plan is an immutable catalog entry. Changing a plan means publishing a new
// one under a new id.
type Plan struct {
	ID        string
	Name      string
	Version   int
	Quotas    map[metering.Resource]metering.Limit
	Prices    map[string]decimal.Decimal // per billing cycle, keyed by ISO 4217 code
	TrialDays int
	CycleDays int
	Active    bool
}

// HasTrial reports whether new subscriptions start in the trialing state.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// DaysInCycle returns the billing cycle length in days.
func (p Plan) DaysInCycle() int {
	if p.CycleDays <= 0 {
		return DefaultCycleDays
	}
	return p.CycleDays
}

// Price returns the price per cycle in currency.
func (p Plan) Price(currency string) (decimal.Decimal, error) {
	price, ok := p.Prices[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s does not support %s", ErrCurrencyNotSupported, p.ID, currency)
	}
	return price, nil
}

// Validate checks the plan invariants: every resource has a quota, prices and
// quotas are non-negative and the cycle is positive.
func (p Plan) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPlan)
	}
	for _, r := range metering.AllResources() {
		l, ok := p.Quotas[r]
		if !ok {
			return fmt.Errorf("%w: %s has no quota for %s", ErrInvalidPlan, p.ID, r)
		}
		if amount, finite := l.Amount(); finite && amount.IsNegative() {
			return fmt.Errorf("%w: %s has a negative %s quota", ErrInvalidPlan, p.ID, r)
		}
	}
	for r := range p.Quotas {
		if !r.Valid() {
			return fmt.Errorf("%w: %s has unknown resource %q", ErrInvalidPlan, p.ID, r)
		}
	}
	if len(p.Prices) == 0 {
		return fmt.Errorf("%w: %s has no prices", ErrInvalidPlan, p.ID)
	}
	for cur, price := range p.Prices {
		if price.IsNegative() {
			return fmt.Errorf("%w: %s has a negative %s price", ErrInvalidPlan, p.ID, cur)
		}
	}
	if p.TrialDays < 0 || p.CycleDays < 0 {
		return fmt.Errorf("%w: %s has negative trial or cycle days", ErrInvalidPlan, p.ID)
	}
	return nil
}
