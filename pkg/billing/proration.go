package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Proration is the cost delta of moving between plans mid-cycle.
// Money fields are rounded to cents.
type Proration struct {
	FromPlanID    string
	ToPlanID      string
	Currency      string
	RemainingDays int
	DailyRateOld  decimal.Decimal
	DailyRateNew  decimal.Decimal
	// UnusedCredit is what is left of the old plan for the remaining days.
	UnusedCredit decimal.Decimal
	// NewCost is the price of the new plan for the remaining days.
	NewCost decimal.Decimal
	// ProratedAmount is the charge; zero for downgrades and same-plan changes.
	ProratedAmount decimal.Decimal
	// Credit is owed to the tenant on downgrades; zero otherwise.
	Credit       decimal.Decimal
	Direction    Direction
	NewPlanPrice decimal.Decimal
}

// Prorate computes the cost of switching from one plan to another with
// remainingDays left in the cycle. Rates are derived from each plan's own
// cycle length. Amounts multiply before dividing so round prices stay exact.
// Staying on the same plan costs nothing whatever remainingDays is; the cycle
// bound only applies to real changes.
func Prorate(from, to Plan, remainingDays int, currency string) (Proration, error) {
	if from.ID == "" || to.ID == "" {
		return Proration{}, fmt.Errorf("%w: plan ids are required", ErrProrationInput)
	}
	if remainingDays < 0 {
		return Proration{}, fmt.Errorf("%w: remaining days cannot be negative", ErrProrationInput)
	}
	oldPrice, err := from.Price(currency)
	if err != nil {
		return Proration{}, fmt.Errorf("%w: %w", ErrProrationInput, err)
	}
	newPrice, err := to.Price(currency)
	if err != nil {
		return Proration{}, fmt.Errorf("%w: %w", ErrProrationInput, err)
	}

	oldDays := decimal.NewFromInt(int64(from.DaysInCycle()))
	newDays := decimal.NewFromInt(int64(to.DaysInCycle()))
	remaining := decimal.NewFromInt(int64(remainingDays))

	p := Proration{
		FromPlanID:     from.ID,
		ToPlanID:       to.ID,
		Currency:       currency,
		RemainingDays:  remainingDays,
		DailyRateOld:   oldPrice.Div(oldDays).Round(2),
		DailyRateNew:   newPrice.Div(newDays).Round(2),
		ProratedAmount: decimal.Zero,
		Credit:         decimal.Zero,
		Direction:      DirectionNone,
		NewPlanPrice:   newPrice,
	}

	if from.ID == to.ID {
		p.UnusedCredit = decimal.Zero
		p.NewCost = decimal.Zero
		return p, nil
	}
	if remainingDays > from.DaysInCycle() {
		return Proration{}, fmt.Errorf("%w: %d remaining days exceed the %d day cycle", ErrProrationInput, remainingDays, from.DaysInCycle())
	}

	p.UnusedCredit = oldPrice.Mul(remaining).Div(oldDays).Round(2)
	p.NewCost = newPrice.Mul(remaining).Div(newDays).Round(2)

	delta := p.NewCost.Sub(p.UnusedCredit)
	switch {
	case delta.IsPositive():
		p.ProratedAmount = delta
		p.Direction = DirectionCharge
	case delta.IsNegative():
		p.Credit = delta.Neg()
		p.Direction = DirectionCredit
	}
	return p, nil
}
