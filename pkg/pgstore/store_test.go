package pgstore_test

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/notifications"
	"github.com/dmitrymomot/meterkit/pkg/pg"
	"github.com/dmitrymomot/meterkit/pkg/pgstore"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// testPool connects to the database in PG_TEST_URL and applies the schema.
// Tests that need it are skipped when the variable is not set.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := os.Getenv("PG_TEST_URL")
	if url == "" {
		t.Skip("PG_TEST_URL not set")
	}

	ctx := context.Background()
	cfg := pg.Config{
		ConnectionString: url,
		MaxOpenConns:     4,
		MaxIdleConns:     1,
		RetryAttempts:    1,
		MigrationsTable:  "meterkit_migrations",
	}
	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), slog.Default()))
	_, err = pool.Exec(ctx, `TRUNCATE notifications, payments, subscriptions, usage_snapshots, usage_events`)
	require.NoError(t, err)
	return pool
}

func TestUsageStore(t *testing.T) {
	pool := testPool(t)
	store := pgstore.NewUsageStore(pool)
	ctx := context.Background()

	tenantID := uuid.New()
	march := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	april := march.AddDate(0, 1, 0)

	for _, e := range []usage.Event{
		usage.NewEvent(tenantID, metering.ResourceAPICalls, decimal.NewFromInt(10), nil, march.Add(time.Hour)),
		usage.NewEvent(tenantID, metering.ResourceAPICalls, decimal.RequireFromString("2.5"), map[string]string{"route": "/v1"}, march.Add(2*time.Hour)),
		usage.NewEvent(tenantID, metering.ResourceAPICalls, decimal.NewFromInt(100), nil, april.Add(time.Hour)),
		usage.NewEvent(tenantID, metering.ResourceStorage, decimal.NewFromInt(1024), nil, march.Add(-time.Hour)),
	} {
		require.NoError(t, store.Append(ctx, e))
	}

	totals, err := store.Sum(ctx, tenantID, metering.AllResources(), march, april)
	require.NoError(t, err)
	assert.Equal(t, "12.5", totals.Get(metering.ResourceAPICalls).String())
	assert.True(t, totals.Get(metering.ResourceStorage).IsZero())

	totals, err = store.Sum(ctx, tenantID, []metering.Resource{metering.ResourceStorage}, time.Time{}, april)
	require.NoError(t, err)
	assert.Equal(t, "1024", totals.Get(metering.ResourceStorage).String())

	tenants, err := store.ActiveTenants(ctx, march, april)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{tenantID}, tenants)

	purged, err := store.PurgeBefore(ctx, tenantID, []metering.Resource{metering.ResourceAPICalls}, april)
	require.NoError(t, err)
	assert.Equal(t, int64(2), purged)

	snap := usage.Snapshot{
		TenantID:    tenantID,
		PlanID:      "pro",
		Period:      metering.PeriodMonthly,
		PeriodStart: march,
		PeriodEnd:   april,
		Usage:       metering.Totals{metering.ResourceAPICalls: decimal.RequireFromString("12.5")},
		Limits:      map[metering.Resource]metering.Limit{metering.ResourceAPICalls: metering.Unlimited()},
		TotalCost:   decimal.RequireFromString("0.01"),
		Currency:    "USD",
		CreatedAt:   april,
	}
	require.NoError(t, store.SaveSnapshot(ctx, snap))
	require.ErrorIs(t, store.SaveSnapshot(ctx, snap), usage.ErrSnapshotExists)

	ok, err := store.HasSnapshot(ctx, tenantID, metering.PeriodMonthly, march)
	require.NoError(t, err)
	assert.True(t, ok)

	snaps, err := store.ListSnapshots(ctx, tenantID, metering.PeriodMonthly, 0)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "12.5", snaps[0].Usage.Get(metering.ResourceAPICalls).String())
	assert.True(t, snaps[0].Limits[metering.ResourceAPICalls].IsUnlimited())
}

func TestBillingStore(t *testing.T) {
	pool := testPool(t)
	store := pgstore.NewBillingStore(pool)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	trialEnd := now.Add(-time.Minute)
	sub := billing.Subscription{
		ID:                 uuid.New(),
		TenantID:           uuid.New(),
		PlanID:             "pro",
		Status:             billing.StatusTrialing,
		CurrentPeriodStart: now.AddDate(0, 0, -14),
		CurrentPeriodEnd:   trialEnd,
		TrialEndsAt:        &trialEnd,
		Currency:           "USD",
		Amount:             decimal.RequireFromString("29.99"),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, store.CreateSubscription(ctx, sub))

	dup := sub
	dup.ID = uuid.New()
	require.ErrorIs(t, store.CreateSubscription(ctx, dup), billing.ErrSubscriptionAlreadyExists)

	got, err := store.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, "29.99", got.Amount.String())
	require.NotNil(t, got.TrialEndsAt)
	assert.True(t, trialEnd.Equal(*got.TrialEndsAt))

	expired, err := store.ExpiredTrials(ctx, now)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	latest, err := store.LatestSubscription(ctx, sub.TenantID, billing.StatusTrialing, billing.StatusActive)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, latest.ID)

	_, err = store.LatestSubscription(ctx, sub.TenantID, billing.StatusPastDue)
	require.ErrorIs(t, err, billing.ErrSubscriptionNotFound)

	record := func(txID string) (billing.Subscription, error) {
		return store.RecordPayment(ctx, sub.ID, txID, func(s *billing.Subscription) (billing.Payment, error) {
			s.ConsecutiveFailures++
			s.Status = billing.StatusPastDue
			return billing.Payment{
				ID:             uuid.New(),
				SubscriptionID: s.ID,
				Kind:           billing.PaymentKindRenewal,
				Amount:         s.Amount,
				Currency:       s.Currency,
				Status:         billing.PaymentFailed,
				TransactionID:  txID,
				CreatedAt:      now,
			}, nil
		})
	}

	updated, err := record("txn_1")
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ConsecutiveFailures)

	again, err := record("txn_1")
	require.ErrorIs(t, err, billing.ErrDuplicateTransaction)
	assert.Equal(t, 1, again.ConsecutiveFailures)

	p, err := store.PaymentByTransaction(ctx, "txn_1")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentFailed, p.Status)
	assert.Equal(t, "29.99", p.Amount.String())

	payments, err := store.ListPayments(ctx, sub.ID)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	cancelled, err := store.UpdateSubscription(ctx, sub.ID, func(s *billing.Subscription) error {
		s.Status = billing.StatusCancelled
		s.CancelledAt = &now
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, billing.StatusCancelled, cancelled.Status)

	tenants, err := store.ListActiveTenants(ctx)
	require.NoError(t, err)
	assert.Empty(t, tenants)

	require.NoError(t, store.CreateSubscription(ctx, dup), "a cancelled subscription frees the tenant")
}

func TestNotificationStore(t *testing.T) {
	pool := testPool(t)
	store := pgstore.NewNotificationStore(pool)
	ctx := context.Background()
	tenantID := uuid.NewString()

	past := time.Now().Add(-time.Hour)
	manager := notifications.NewManager(store, nil)
	require.NoError(t, manager.Send(ctx, notifications.Notification{
		TenantID:  tenantID,
		Kind:      notifications.KindQuotaWarning,
		Type:      notifications.TypeWarning,
		Title:     "api_calls usage at 85%",
		CreatedAt: time.Now().Add(-time.Minute),
		Data:      map[string]any{"resource": "api_calls"},
		Actions:   []notifications.Action{{Label: "Upgrade plan", URL: "https://app.example.com/billing", Style: "primary"}},
	}))
	require.NoError(t, manager.Send(ctx, notifications.Notification{
		TenantID: tenantID,
		Kind:     notifications.KindPaymentFailed,
		Type:     notifications.TypeError,
		Title:    "Payment failed",
	}))
	require.NoError(t, manager.Send(ctx, notifications.Notification{
		TenantID:  tenantID,
		Kind:      notifications.KindPaymentFailed,
		Title:     "expired",
		ExpiresAt: &past,
	}))

	all, err := store.List(ctx, tenantID, notifications.ListOptions{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Payment failed", all[0].Title)

	warnings, err := store.List(ctx, tenantID, notifications.ListOptions{Kinds: []notifications.Kind{notifications.KindQuotaWarning}})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, "api_calls", warnings[0].Data["resource"])
	assert.Equal(t, "Upgrade plan", warnings[0].Actions[0].Label)

	count, err := store.CountUnread(ctx, tenantID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.NoError(t, manager.MarkAllRead(ctx, tenantID))
	count, err = store.CountUnread(ctx, tenantID)
	require.NoError(t, err)
	assert.Zero(t, count)

	got, err := store.Get(ctx, tenantID, warnings[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	_, err = store.Get(ctx, tenantID, "missing")
	assert.ErrorIs(t, err, notifications.ErrNotificationNotFound)

	purged, err := store.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
