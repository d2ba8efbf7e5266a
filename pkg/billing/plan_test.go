package billing_test

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/metering"
)

func quotas(limit int64) map[metering.Resource]metering.Limit {
	q := make(map[metering.Resource]metering.Limit)
	for _, r := range metering.AllResources() {
		q[r] = metering.LimitedInt(limit)
	}
	return q
}

func testPlan(id string, price string, trialDays int) billing.Plan {
	return billing.Plan{
		ID:        id,
		Name:      strings.ToUpper(id),
		Version:   1,
		Quotas:    quotas(1000),
		Prices:    map[string]decimal.Decimal{"USD": decimal.RequireFromString(price), "EUR": decimal.RequireFromString(price)},
		TrialDays: trialDays,
		CycleDays: 30,
		Active:    true,
	}
}

func TestPlan_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(p *billing.Plan)
		wantErr bool
	}{
		{name: "valid", mutate: func(*billing.Plan) {}},
		{name: "missing id", mutate: func(p *billing.Plan) { p.ID = "" }, wantErr: true},
		{name: "missing quota", mutate: func(p *billing.Plan) { delete(p.Quotas, metering.ResourceAITokens) }, wantErr: true},
		{name: "unknown resource", mutate: func(p *billing.Plan) { p.Quotas["gpu"] = metering.LimitedInt(1) }, wantErr: true},
		{name: "no prices", mutate: func(p *billing.Plan) { p.Prices = nil }, wantErr: true},
		{name: "negative price", mutate: func(p *billing.Plan) { p.Prices["USD"] = decimal.NewFromInt(-1) }, wantErr: true},
		{name: "negative trial", mutate: func(p *billing.Plan) { p.TrialDays = -1 }, wantErr: true},
		{name: "unlimited quota", mutate: func(p *billing.Plan) { p.Quotas[metering.ResourceStorage] = metering.Unlimited() }},
		{name: "zero quota", mutate: func(p *billing.Plan) { p.Quotas[metering.ResourceStorage] = metering.LimitedInt(0) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := testPlan("basic", "10", 0)
			tt.mutate(&p)
			err := p.Validate()
			if tt.wantErr {
				require.ErrorIs(t, err, billing.ErrInvalidPlan)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPlan_Price(t *testing.T) {
	t.Parallel()

	p := testPlan("basic", "10", 0)

	price, err := p.Price("usd")
	require.NoError(t, err)
	assert.Equal(t, "10", price.String())

	_, err = p.Price("JPY")
	require.ErrorIs(t, err, billing.ErrCurrencyNotSupported)

	p.CycleDays = 0
	assert.Equal(t, billing.DefaultCycleDays, p.DaysInCycle())
}

func TestMemoryPlanSource(t *testing.T) {
	t.Parallel()

	src, err := billing.NewMemoryPlanSource(testPlan("pro", "25", 0), testPlan("basic", "10", 0))
	require.NoError(t, err)

	plans, err := src.Plans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "basic", plans[0].ID)

	_, err = src.Plan(context.Background(), "enterprise")
	require.ErrorIs(t, err, billing.ErrPlanNotFound)
	require.ErrorIs(t, err, billing.ErrNotFound)

	got, err := src.Plan(context.Background(), "pro")
	require.NoError(t, err)
	got.Quotas[metering.ResourceStorage] = metering.Unlimited()
	again, err := src.Plan(context.Background(), "pro")
	require.NoError(t, err)
	assert.False(t, again.Quotas[metering.ResourceStorage].IsUnlimited())

	_, err = billing.NewMemoryPlanSource(testPlan("basic", "10", 0), testPlan("basic", "12", 0))
	require.ErrorIs(t, err, billing.ErrDuplicatePlan)
}

const catalogYAML = `
plans:
  - id: free-v1
    name: Free
    version: 1
    quotas:
      storage: 1073741824
      processing: 60
      apiCalls: 1000
      transcription: 30
      aiTokens: 50000
    prices:
      USD: "0"
  - id: pro-v2
    name: Pro
    version: 2
    trial_days: 14
    cycle_days: 30
    quotas:
      storage: 107374182400
      processing: 600
      apiCalls: unlimited
      transcription: 300
      aiTokens: 1000000
    prices:
      usd: "29.00"
      EUR: "27.50"
  - id: legacy
    active: false
    quotas:
      storage: 1
      processing: 1
      apiCalls: 1
      transcription: 1
      aiTokens: 1
    prices:
      USD: "5"
`

func TestNewYAMLSource(t *testing.T) {
	t.Parallel()

	t.Run("loads catalog", func(t *testing.T) {
		t.Parallel()

		src, err := billing.NewYAMLSource(strings.NewReader(catalogYAML))
		require.NoError(t, err)

		pro, err := src.Plan(context.Background(), "pro-v2")
		require.NoError(t, err)
		assert.Equal(t, 2, pro.Version)
		assert.True(t, pro.Active)
		assert.True(t, pro.HasTrial())
		assert.True(t, pro.Quotas[metering.ResourceAPICalls].IsUnlimited())
		assert.True(t, pro.Quotas[metering.ResourceProcessing].Equal(metering.LimitedInt(600)))
		assert.Equal(t, "29", pro.Prices["USD"].String())
		assert.Equal(t, "27.5", pro.Prices["EUR"].String())

		legacy, err := src.Plan(context.Background(), "legacy")
		require.NoError(t, err)
		assert.False(t, legacy.Active)
	})

	t.Run("rejects unknown resources", func(t *testing.T) {
		t.Parallel()

		doc := strings.Replace(catalogYAML, "aiTokens: 50000", "gpuHours: 5", 1)
		_, err := billing.NewYAMLSource(strings.NewReader(doc))
		require.ErrorIs(t, err, billing.ErrInvalidPlan)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		t.Parallel()

		_, err := billing.NewYAMLSource(strings.NewReader("plans:\n  - id: x\n    colour: red\n"))
		require.ErrorIs(t, err, billing.ErrFailedToLoadPlans)
	})

	t.Run("rejects bad prices", func(t *testing.T) {
		t.Parallel()

		doc := strings.Replace(catalogYAML, `USD: "5"`, `USD: "five"`, 1)
		_, err := billing.NewYAMLSource(strings.NewReader(doc))
		require.ErrorIs(t, err, billing.ErrInvalidPlan)
	})
}
