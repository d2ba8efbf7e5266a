package usage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Rate prices Per units of a resource at Price.
type Rate struct {
	Price decimal.Decimal
	Per   decimal.Decimal
}

// Cost returns the price of quantity, rounded to cents. Negative quantities cost nothing.
func (r Rate) Cost(quantity decimal.Decimal) decimal.Decimal {
	if !quantity.IsPositive() {
		return decimal.Zero
	}
	return quantity.Mul(r.Price).Div(r.Per).Round(2)
}

// Pricing is the per-unit price table used for report cost breakdowns.
type Pricing struct {
	Currency string
	Rates    map[metering.Resource]Rate
}

// DefaultPricing returns the built-in USD price table.
func DefaultPricing() Pricing {
	return Pricing{
		Currency: "USD",
		Rates: map[metering.Resource]Rate{
			metering.ResourceStorage:       {Price: decimal.RequireFromString("0.10"), Per: decimal.NewFromInt(1 << 30)},
			metering.ResourceProcessing:    {Price: decimal.RequireFromString("0.05"), Per: decimal.NewFromInt(1)},
			metering.ResourceAPICalls:      {Price: decimal.RequireFromString("0.001"), Per: decimal.NewFromInt(1)},
			metering.ResourceTranscription: {Price: decimal.RequireFromString("0.024"), Per: decimal.NewFromInt(1)},
			metering.ResourceAITokens:      {Price: decimal.RequireFromString("0.02"), Per: decimal.NewFromInt(1000)},
		},
	}
}

// Validate checks that every resource has a usable rate.
func (p Pricing) Validate() error {
	for _, r := range metering.AllResources() {
		rate, ok := p.Rates[r]
		if !ok {
			return fmt.Errorf("%w: missing %s", ErrIncompletePricing, r)
		}
		if rate.Price.IsNegative() || !rate.Per.IsPositive() {
			return fmt.Errorf("%w: %s", ErrInvalidPricing, r)
		}
	}
	return nil
}

// Breakdown prices every resource in totals and returns the per-resource
// costs along with their sum.
func (p Pricing) Breakdown(totals metering.Totals) (map[metering.Resource]decimal.Decimal, decimal.Decimal) {
	costs := make(map[metering.Resource]decimal.Decimal, len(p.Rates))
	sum := decimal.Zero
	for _, r := range metering.AllResources() {
		c := p.Rates[r].costOrZero(totals.Get(r))
		costs[r] = c
		sum = sum.Add(c)
	}
	return costs, sum
}

func (r Rate) costOrZero(q decimal.Decimal) decimal.Decimal {
	if r.Per.IsZero() {
		return decimal.Zero
	}
	return r.Cost(q)
}
