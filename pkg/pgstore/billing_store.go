package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/pg"
)

const (
	liveSubscriptionIndex  = "subscriptions_one_live_per_tenant"
	paymentTransactionKey  = "payments_transaction_id_key"
	subscriptionColumns    = `id, tenant_id, plan_id, status, current_period_start, current_period_end, trial_ends_at, currency, amount::text, consecutive_failures, cancellation_reason, cancelled_at, created_at, updated_at`
	paymentColumns         = `id, subscription_id, kind, amount::text, currency, status, transaction_id, failure_code, created_at`
	updateSubscriptionStmt = `UPDATE subscriptions SET
		plan_id = $2, status = $3, current_period_start = $4, current_period_end = $5,
		trial_ends_at = $6, currency = $7, amount = $8::numeric, consecutive_failures = $9,
		cancellation_reason = $10, cancelled_at = $11, updated_at = $12
		WHERE id = $1`
)

// BillingStore is a billing.Store on PostgreSQL.
type BillingStore struct {
	db DB
}

var _ billing.Store = (*BillingStore)(nil)

// NewBillingStore creates a BillingStore.
func NewBillingStore(db DB) *BillingStore {
	return &BillingStore{db: db}
}

func (s *BillingStore) CreateSubscription(ctx context.Context, sub billing.Subscription) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO subscriptions (id, tenant_id, plan_id, status, current_period_start, current_period_end,
			trial_ends_at, currency, amount, consecutive_failures, cancellation_reason, cancelled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13, $14)`,
		sub.ID, sub.TenantID, sub.PlanID, string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialEndsAt, sub.Currency, numeric(sub.Amount), sub.ConsecutiveFailures,
		sub.CancellationReason, sub.CancelledAt, sub.CreatedAt, sub.UpdatedAt,
	)
	if pg.IsConstraintViolation(err, liveSubscriptionIndex) {
		return fmt.Errorf("%w: tenant %s", billing.ErrSubscriptionAlreadyExists, sub.TenantID)
	}
	if err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (s *BillingStore) GetSubscription(ctx context.Context, id uuid.UUID) (billing.Subscription, error) {
	return getSubscription(ctx, s.db, id, false)
}

func (s *BillingStore) LatestSubscription(ctx context.Context, tenantID uuid.UUID, statuses ...billing.Status) (billing.Subscription, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	row := s.db.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE tenant_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		 ORDER BY created_at DESC
		 LIMIT 1`,
		tenantID, names,
	)
	sub, err := scanSubscription(row)
	if pg.IsNotFoundError(err) {
		return billing.Subscription{}, fmt.Errorf("%w: tenant %s", billing.ErrSubscriptionNotFound, tenantID)
	}
	return sub, err
}

func (s *BillingStore) UpdateSubscription(ctx context.Context, id uuid.UUID, fn func(sub *billing.Subscription) error) (billing.Subscription, error) {
	var out billing.Subscription
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		sub, err := getSubscription(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := fn(&sub); err != nil {
			return err
		}
		if err := updateSubscription(ctx, tx, sub); err != nil {
			return err
		}
		out = sub
		return nil
	})
	if err != nil {
		return billing.Subscription{}, err
	}
	return out, nil
}

func (s *BillingStore) RecordPayment(ctx context.Context, subID uuid.UUID, transactionID string, fn func(sub *billing.Subscription) (billing.Payment, error)) (billing.Subscription, error) {
	var out billing.Subscription
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		sub, err := getSubscription(ctx, tx, subID, true)
		if err != nil {
			return err
		}

		var seen bool
		if err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM payments WHERE transaction_id = $1)`, transactionID,
		).Scan(&seen); err != nil {
			return fmt.Errorf("check transaction: %w", err)
		}
		if seen {
			out = sub
			return billing.ErrDuplicateTransaction
		}

		p, err := fn(&sub)
		if err != nil {
			return err
		}
		if err := updateSubscription(ctx, tx, sub); err != nil {
			return err
		}
		if p.ID != uuid.Nil {
			if err := insertPayment(ctx, tx, p); err != nil {
				return err
			}
		}
		out = sub
		return nil
	})
	if errors.Is(err, billing.ErrDuplicateTransaction) {
		return out, err
	}
	if err != nil {
		return billing.Subscription{}, err
	}
	return out, nil
}

func (s *BillingStore) PaymentByTransaction(ctx context.Context, transactionID string) (billing.Payment, error) {
	row := s.db.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID)
	p, err := scanPayment(row)
	if pg.IsNotFoundError(err) {
		return billing.Payment{}, fmt.Errorf("%w: %s", billing.ErrPaymentNotFound, transactionID)
	}
	return p, err
}

func (s *BillingStore) ListPayments(ctx context.Context, subID uuid.UUID) ([]billing.Payment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE subscription_id = $1 ORDER BY created_at`, subID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Payment, error) {
		return scanPayment(row)
	})
}

func (s *BillingStore) ExpiredTrials(ctx context.Context, now time.Time) ([]billing.Subscription, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE status = $1 AND trial_ends_at <= $2
		 ORDER BY trial_ends_at`,
		string(billing.StatusTrialing), now,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired trials: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (billing.Subscription, error) {
		return scanSubscription(row)
	})
}

func (s *BillingStore) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT tenant_id FROM subscriptions WHERE status <> $1 ORDER BY tenant_id`,
		string(billing.StatusCancelled),
	)
	if err != nil {
		return nil, fmt.Errorf("list subscribed tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getSubscription(ctx context.Context, q querier, id uuid.UUID, lock bool) (billing.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sub, err := scanSubscription(q.QueryRow(ctx, query, id))
	if pg.IsNotFoundError(err) {
		return billing.Subscription{}, fmt.Errorf("%w: %s", billing.ErrSubscriptionNotFound, id)
	}
	return sub, err
}

func updateSubscription(ctx context.Context, tx pgx.Tx, sub billing.Subscription) error {
	_, err := tx.Exec(ctx, updateSubscriptionStmt,
		sub.ID, sub.PlanID, string(sub.Status), sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.TrialEndsAt, sub.Currency, numeric(sub.Amount), sub.ConsecutiveFailures,
		sub.CancellationReason, sub.CancelledAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

func insertPayment(ctx context.Context, tx pgx.Tx, p billing.Payment) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO payments (id, subscription_id, kind, amount, currency, status, transaction_id, failure_code, created_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)`,
		p.ID, p.SubscriptionID, string(p.Kind), numeric(p.Amount), p.Currency, string(p.Status),
		p.TransactionID, p.FailureCode, p.CreatedAt,
	)
	if pg.IsConstraintViolation(err, paymentTransactionKey) {
		return billing.ErrDuplicateTransaction
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (billing.Subscription, error) {
	var (
		sub    billing.Subscription
		status string
		amount string
	)
	err := row.Scan(
		&sub.ID, &sub.TenantID, &sub.PlanID, &status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.TrialEndsAt, &sub.Currency, &amount, &sub.ConsecutiveFailures,
		&sub.CancellationReason, &sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return billing.Subscription{}, err
	}
	sub.Status = billing.Status(status)
	if sub.Amount, err = parseNumeric(amount); err != nil {
		return billing.Subscription{}, fmt.Errorf("parse subscription amount %q: %w", amount, err)
	}
	return sub, nil
}

func scanPayment(row pgx.Row) (billing.Payment, error) {
	var (
		p            billing.Payment
		kind, status string
		amount       string
	)
	err := row.Scan(&p.ID, &p.SubscriptionID, &kind, &amount, &p.Currency, &status, &p.TransactionID, &p.FailureCode, &p.CreatedAt)
	if err != nil {
		return billing.Payment{}, err
	}
	p.Kind = billing.PaymentKind(kind)
	p.Status = billing.PaymentStatus(status)
	if p.Amount, err = parseNumeric(amount); err != nil {
		return billing.Payment{}, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	return p, nil
}
