package billing_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/metering"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) PaymentFailed(ctx context.Context, f billing.PaymentFailure) error {
	args := m.Called(ctx, f)
	return args.Error(0)
}

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, opts ...billing.ServiceOption) (*billing.Service, *clock) {
	t.Helper()

	plans, err := billing.NewMemoryPlanSource(
		testPlan("basic", "1000", 0),
		testPlan("pro", "2500", 0),
		testPlan("trial", "1000", 14),
		func() billing.Plan {
			p := testPlan("retired", "500", 0)
			p.Active = false
			return p
		}(),
	)
	require.NoError(t, err)

	c := &clock{now: start}
	opts = append([]billing.ServiceOption{billing.WithClock(c.Now)}, opts...)
	return billing.NewService(billing.NewMemoryStore(), plans, opts...), c
}

func failed(subID uuid.UUID) billing.PaymentResult {
	return billing.PaymentResult{SubscriptionID: subID, Success: false, TransactionID: uuid.NewString(), FailureCode: "card_declined"}
}

func succeeded(subID uuid.UUID) billing.PaymentResult {
	return billing.PaymentResult{SubscriptionID: subID, Success: true, TransactionID: uuid.NewString()}
}

func TestService_CreateSubscription(t *testing.T) {
	t.Parallel()

	t.Run("plan without trial starts active", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "usd")
		require.NoError(t, err)

		assert.Equal(t, billing.StatusActive, sub.Status)
		assert.Equal(t, "USD", sub.Currency)
		assert.Equal(t, "1000", sub.Amount.String())
		assert.Equal(t, start, sub.CurrentPeriodStart)
		assert.Equal(t, start.AddDate(0, 0, 30), sub.CurrentPeriodEnd)
		assert.Nil(t, sub.TrialEndsAt)
	})

	t.Run("plan with trial starts trialing", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "")
		require.NoError(t, err)

		assert.Equal(t, billing.StatusTrialing, sub.Status)
		require.NotNil(t, sub.TrialEndsAt)
		assert.Equal(t, start.AddDate(0, 0, 14), *sub.TrialEndsAt)
		assert.True(t, sub.CurrentPeriodEnd.After(sub.CurrentPeriodStart))
	})

	t.Run("second live subscription is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		tenantID := uuid.New()
		first, err := svc.CreateSubscription(context.Background(), tenantID, "basic", "USD")
		require.NoError(t, err)

		_, err = svc.CreateSubscription(context.Background(), tenantID, "pro", "USD")
		require.ErrorIs(t, err, billing.ErrSubscriptionAlreadyExists)
		require.ErrorIs(t, err, billing.ErrInvalidState)

		_, err = svc.Cancel(context.Background(), first.ID, "switching")
		require.NoError(t, err)

		_, err = svc.CreateSubscription(context.Background(), tenantID, "pro", "USD")
		require.NoError(t, err)
	})

	t.Run("rejects bad input", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)

		_, err := svc.CreateSubscription(context.Background(), uuid.Nil, "basic", "USD")
		require.ErrorIs(t, err, billing.ErrMissingTenantID)

		_, err = svc.CreateSubscription(context.Background(), uuid.New(), "nope", "USD")
		require.ErrorIs(t, err, billing.ErrPlanNotFound)

		_, err = svc.CreateSubscription(context.Background(), uuid.New(), "retired", "USD")
		require.ErrorIs(t, err, billing.ErrPlanInactive)

		_, err = svc.CreateSubscription(context.Background(), uuid.New(), "basic", "GBP")
		require.ErrorIs(t, err, billing.ErrCurrencyNotSupported)
	})
}

func TestService_Cancel(t *testing.T) {
	t.Parallel()

	svc, c := newService(t)
	sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
	require.NoError(t, err)

	c.Advance(time.Hour)
	cancelled, err := svc.Cancel(context.Background(), sub.ID, "too expensive")
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, cancelled.Status)
	assert.Equal(t, "too expensive", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledAt)
	assert.Equal(t, start.Add(time.Hour), *cancelled.CancelledAt)

	_, err = svc.Cancel(context.Background(), sub.ID, "again")
	require.ErrorIs(t, err, billing.ErrAlreadyCancelled)
	require.ErrorIs(t, err, billing.ErrInvalidState)

	_, err = svc.Cancel(context.Background(), uuid.New(), "")
	require.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
}

func TestService_HandlePaymentResult(t *testing.T) {
	t.Parallel()

	t.Run("three consecutive failures cancel", func(t *testing.T) {
		t.Parallel()

		n := &mockNotifier{}
		n.On("PaymentFailed", mock.Anything, mock.Anything).Return(nil)

		svc, _ := newService(t, billing.WithNotifier(n))
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		got, err := svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
		assert.Equal(t, 1, got.ConsecutiveFailures)

		got, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
		assert.Equal(t, 2, got.ConsecutiveFailures)

		got, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, got.Status)
		assert.Equal(t, 3, got.ConsecutiveFailures)
		require.NotNil(t, got.CancelledAt)

		n.AssertNumberOfCalls(t, "PaymentFailed", 3)
		n.AssertCalled(t, "PaymentFailed", mock.Anything, mock.MatchedBy(func(f billing.PaymentFailure) bool {
			return f.Cancelled && f.FailureCode == "card_declined"
		}))

		_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.ErrorIs(t, err, billing.ErrTransitionNotAllowed)
	})

	t.Run("success resets the failure counter", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)

		got, err := svc.HandlePaymentResult(context.Background(), succeeded(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, got.Status)
		assert.Zero(t, got.ConsecutiveFailures)

		got, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
		assert.Equal(t, 1, got.ConsecutiveFailures)
	})

	t.Run("custom threshold", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, billing.WithMaxPaymentFailures(1))
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		got, err := svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusCancelled, got.Status)
	})

	t.Run("renewal advances the period", func(t *testing.T) {
		t.Parallel()

		m, err := billing.NewMetrics(nil)
		require.NoError(t, err)
		svc, _ := newService(t, billing.WithMetrics(m))
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		got, err := svc.HandlePaymentResult(context.Background(), succeeded(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, sub.CurrentPeriodEnd, got.CurrentPeriodStart)
		assert.Equal(t, sub.CurrentPeriodEnd.AddDate(0, 0, 30), got.CurrentPeriodEnd)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Payments.WithLabelValues("renewal", "completed")))
	})

	t.Run("recovery starts a fresh period", func(t *testing.T) {
		t.Parallel()

		m, err := billing.NewMetrics(nil)
		require.NoError(t, err)
		svc, c := newService(t, billing.WithMetrics(m))
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)

		c.Advance(72 * time.Hour)
		got, err := svc.HandlePaymentResult(context.Background(), succeeded(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, got.Status)
		assert.Equal(t, c.Now(), got.CurrentPeriodStart)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Transitions.WithLabelValues("past_due", "active", "payment_succeeded")))
	})

	t.Run("repeated transaction is a no-op", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		res := failed(sub.ID)
		first, err := svc.HandlePaymentResult(context.Background(), res)
		require.NoError(t, err)

		second, err := svc.HandlePaymentResult(context.Background(), res)
		require.NoError(t, err)
		assert.Equal(t, first.ConsecutiveFailures, second.ConsecutiveFailures)
		assert.Equal(t, 1, second.ConsecutiveFailures)
	})

	t.Run("failure while trialing is rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)

		_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.ErrorIs(t, err, billing.ErrTransitionNotAllowed)
	})

	t.Run("failure after the trial ended counts", func(t *testing.T) {
		t.Parallel()

		svc, c := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)

		c.Advance(15 * 24 * time.Hour)
		got, err := svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
	})

	t.Run("notifier errors do not fail the transition", func(t *testing.T) {
		t.Parallel()

		n := &mockNotifier{}
		n.On("PaymentFailed", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

		svc, _ := newService(t, billing.WithNotifier(n))
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		got, err := svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusPastDue, got.Status)
	})

	t.Run("validates input", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)

		_, err := svc.HandlePaymentResult(context.Background(), billing.PaymentResult{SubscriptionID: uuid.New()})
		require.ErrorIs(t, err, billing.ErrMissingTransactionID)

		_, err = svc.HandlePaymentResult(context.Background(), succeeded(uuid.New()))
		require.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
	})

	t.Run("concurrent results are serialized", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t, billing.WithMaxPaymentFailures(100))
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := svc.HandlePaymentResult(context.Background(), failed(sub.ID))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := svc.Subscription(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 20, got.ConsecutiveFailures)
	})
}

func TestService_Trials(t *testing.T) {
	t.Parallel()

	t.Run("lazy expiry on read", func(t *testing.T) {
		t.Parallel()

		svc, c := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)

		got, err := svc.Subscription(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusTrialing, got.Status)

		c.Advance(14 * 24 * time.Hour)
		got, err = svc.Subscription(context.Background(), sub.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, got.Status)
		assert.Equal(t, *sub.TrialEndsAt, got.CurrentPeriodStart)
		assert.Equal(t, sub.TrialEndsAt.AddDate(0, 0, 30), got.CurrentPeriodEnd)
	})

	t.Run("sweep expires due trials", func(t *testing.T) {
		t.Parallel()

		svc, c := newService(t)
		due, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)
		c.Advance(10 * 24 * time.Hour)
		later, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)

		c.Advance(5 * 24 * time.Hour)
		n, err := svc.ExpireTrials(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := svc.Subscription(context.Background(), due.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, got.Status)

		got, err = svc.Subscription(context.Background(), later.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusTrialing, got.Status)

		n, err = svc.ExpireTrials(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("payment during trial converts early", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)

		got, err := svc.HandlePaymentResult(context.Background(), succeeded(sub.ID))
		require.NoError(t, err)
		assert.Equal(t, billing.StatusActive, got.Status)
		assert.Equal(t, start, got.CurrentPeriodStart)
	})
}

func TestService_ActivePlan(t *testing.T) {
	t.Parallel()

	svc, _ := newService(t)
	tenantID := uuid.New()

	_, found, err := svc.ActivePlan(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, found)

	sub, err := svc.CreateSubscription(context.Background(), tenantID, "pro", "USD")
	require.NoError(t, err)

	plan, found, err := svc.ActivePlan(context.Background(), tenantID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "pro", plan.PlanID)
	assert.Equal(t, sub.CurrentPeriodStart, plan.PeriodStart)
	assert.True(t, plan.Limits[metering.ResourceStorage].Equal(metering.LimitedInt(1000)))

	_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
	require.NoError(t, err)

	_, found, err = svc.ActivePlan(context.Background(), tenantID)
	require.NoError(t, err)
	assert.False(t, found, "past due tenants fall back to the free tier")

	tenants, err := svc.ListActiveTenants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tenantID}, tenants)
}

func TestService_ChangePlan(t *testing.T) {
	t.Parallel()

	t.Run("upgrade records a pending charge", func(t *testing.T) {
		t.Parallel()

		store := billing.NewMemoryStore()
		plans, err := billing.NewMemoryPlanSource(testPlan("basic", "1000", 0), testPlan("pro", "2500", 0))
		require.NoError(t, err)
		c := &clock{now: start}
		svc := billing.NewService(store, plans, billing.WithClock(c.Now))

		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		c.Advance(15 * 24 * time.Hour)
		change, err := svc.ChangePlan(context.Background(), sub.ID, "pro")
		require.NoError(t, err)

		assert.Equal(t, "pro", change.Subscription.PlanID)
		assert.Equal(t, "2500", change.Subscription.Amount.String())
		assert.Equal(t, 15, change.Proration.RemainingDays)
		assert.Equal(t, "750", change.Proration.ProratedAmount.String())

		payments, err := store.ListPayments(context.Background(), sub.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, billing.PaymentKindProrationCharge, payments[0].Kind)
		assert.Equal(t, billing.PaymentPending, payments[0].Status)
		assert.Equal(t, "750", payments[0].Amount.String())
	})

	t.Run("downgrade records a credit", func(t *testing.T) {
		t.Parallel()

		svc, c := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "pro", "USD")
		require.NoError(t, err)

		c.Advance(20 * 24 * time.Hour)
		change, err := svc.ChangePlan(context.Background(), sub.ID, "basic")
		require.NoError(t, err)
		assert.Equal(t, billing.DirectionCredit, change.Proration.Direction)
		assert.Equal(t, "500", change.Proration.Credit.String())
	})

	t.Run("same plan changes nothing", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		change, err := svc.ChangePlan(context.Background(), sub.ID, "basic")
		require.NoError(t, err)
		assert.Equal(t, billing.DirectionNone, change.Proration.Direction)
		assert.True(t, change.Proration.ProratedAmount.IsZero())
		assert.Equal(t, sub.PlanID, change.Subscription.PlanID)
	})

	t.Run("trialing switches without proration", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "trial", "USD")
		require.NoError(t, err)

		change, err := svc.ChangePlan(context.Background(), sub.ID, "pro")
		require.NoError(t, err)
		assert.Equal(t, billing.StatusTrialing, change.Subscription.Status)
		assert.Equal(t, "pro", change.Subscription.PlanID)
		assert.Equal(t, billing.DirectionNone, change.Proration.Direction)
	})

	t.Run("past due and cancelled are rejected", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		_, err = svc.HandlePaymentResult(context.Background(), failed(sub.ID))
		require.NoError(t, err)
		_, err = svc.ChangePlan(context.Background(), sub.ID, "pro")
		require.ErrorIs(t, err, billing.ErrPlanChangeNotAllowed)

		_, err = svc.Cancel(context.Background(), sub.ID, "")
		require.NoError(t, err)
		_, err = svc.ChangePlan(context.Background(), sub.ID, "pro")
		require.ErrorIs(t, err, billing.ErrInvalidState)
	})

	t.Run("unknown or retired target plan", func(t *testing.T) {
		t.Parallel()

		svc, _ := newService(t)
		sub, err := svc.CreateSubscription(context.Background(), uuid.New(), "basic", "USD")
		require.NoError(t, err)

		_, err = svc.ChangePlan(context.Background(), sub.ID, "nope")
		require.ErrorIs(t, err, billing.ErrPlanNotFound)

		_, err = svc.ChangePlan(context.Background(), sub.ID, "retired")
		require.ErrorIs(t, err, billing.ErrPlanInactive)
	})
}
