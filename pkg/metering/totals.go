package metering

import (
	"maps"

	"github.com/shopspring/decimal"
)

// Totals holds a consumed quantity per resource.
type Totals map[Resource]decimal.Decimal

// NewTotals returns totals with an explicit zero for every resource.
func NewTotals() Totals {
	t := make(Totals, len(allResources))
	for _, r := range allResources {
		t[r] = decimal.Zero
	}
	return t
}

// Get returns the total for r, zero if absent.
func (t Totals) Get(r Resource) decimal.Decimal {
	if v, ok := t[r]; ok {
		return v
	}
	return decimal.Zero
}

// Add increments the total for r.
func (t Totals) Add(r Resource, q decimal.Decimal) {
	t[r] = t.Get(r).Add(q)
}

// Clone returns an independent copy.
func (t Totals) Clone() Totals {
	return maps.Clone(t)
}
