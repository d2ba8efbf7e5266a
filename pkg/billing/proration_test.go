package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/billing"
)

func TestProrate(t *testing.T) {
	t.Parallel()

	planA := testPlan("a", "1000", 0)
	planB := testPlan("b", "2500", 0)

	t.Run("upgrade scenario", func(t *testing.T) {
		t.Parallel()

		p, err := billing.Prorate(planA, planB, 15, "USD")
		require.NoError(t, err)

		assert.Equal(t, "33.33", p.DailyRateOld.String())
		assert.Equal(t, "83.33", p.DailyRateNew.String())
		assert.Equal(t, "500", p.UnusedCredit.String())
		assert.Equal(t, "1250", p.NewCost.String())
		assert.Equal(t, "750", p.ProratedAmount.String())
		assert.True(t, p.Credit.IsZero())
		assert.Equal(t, billing.DirectionCharge, p.Direction)
		assert.Equal(t, "2500", p.NewPlanPrice.String())
		assert.Equal(t, 15, p.RemainingDays)
	})

	t.Run("downgrade yields a credit", func(t *testing.T) {
		t.Parallel()

		p, err := billing.Prorate(planB, planA, 15, "USD")
		require.NoError(t, err)

		assert.True(t, p.ProratedAmount.IsZero())
		assert.Equal(t, "750", p.Credit.String())
		assert.Equal(t, billing.DirectionCredit, p.Direction)
	})

	t.Run("same plan is always zero", func(t *testing.T) {
		t.Parallel()

		remaining := make([]int, 0, planA.DaysInCycle()+3)
		for d := 0; d <= planA.DaysInCycle(); d++ {
			remaining = append(remaining, d)
		}
		remaining = append(remaining, 31, 45, 365)

		for _, days := range remaining {
			p, err := billing.Prorate(planA, planA, days, "USD")
			require.NoError(t, err)
			assert.True(t, p.ProratedAmount.IsZero(), "days=%d", days)
			assert.True(t, p.Credit.IsZero(), "days=%d", days)
			assert.Equal(t, billing.DirectionNone, p.Direction)
		}
	})

	t.Run("equal prices are neither charge nor credit", func(t *testing.T) {
		t.Parallel()

		p, err := billing.Prorate(planA, testPlan("a2", "1000", 0), 10, "USD")
		require.NoError(t, err)
		assert.Equal(t, billing.DirectionNone, p.Direction)
	})

	t.Run("zero remaining days", func(t *testing.T) {
		t.Parallel()

		p, err := billing.Prorate(planA, planB, 0, "USD")
		require.NoError(t, err)
		assert.True(t, p.ProratedAmount.IsZero())
		assert.Equal(t, billing.DirectionNone, p.Direction)
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()

		_, err := billing.Prorate(planA, planB, -1, "USD")
		require.ErrorIs(t, err, billing.ErrProrationInput)

		_, err = billing.Prorate(planA, planB, planA.DaysInCycle()+1, "USD")
		require.ErrorIs(t, err, billing.ErrProrationInput)

		_, err = billing.Prorate(planA, planB, 10, "JPY")
		require.ErrorIs(t, err, billing.ErrProrationInput)
		require.ErrorIs(t, err, billing.ErrCurrencyNotSupported)

		_, err = billing.Prorate(billing.Plan{}, planB, 10, "USD")
		require.ErrorIs(t, err, billing.ErrProrationInput)
	})
}

func TestService_CalculateUpgrade(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)

	p, err := svc.CalculateUpgrade(context.Background(), "basic", "pro", 15)
	require.NoError(t, err)
	assert.Equal(t, "750", p.ProratedAmount.String())

	_, err = svc.CalculateUpgrade(context.Background(), "basic", "missing", 15)
	require.ErrorIs(t, err, billing.ErrProrationInput)
	require.ErrorIs(t, err, billing.ErrPlanNotFound)

	eur, err := svc.CalculateUpgradeIn(context.Background(), "basic", "pro", 15, "eur")
	require.NoError(t, err)
	assert.Equal(t, "EUR", eur.Currency)

	same, err := svc.CalculateUpgrade(context.Background(), "basic", "basic", 31)
	require.NoError(t, err)
	assert.True(t, same.ProratedAmount.IsZero())
	assert.Equal(t, billing.DirectionNone, same.Direction)
}
