package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists subscriptions and payments. Implementations must apply
// UpdateSubscription and RecordPayment atomically per subscription.
type Store interface {
	// CreateSubscription returns ErrSubscriptionAlreadyExists when the tenant
	// already has a subscription that is not cancelled.
	CreateSubscription(ctx context.Context, sub Subscription) error
	GetSubscription(ctx context.Context, id uuid.UUID) (Subscription, error)
	// LatestSubscription returns the tenant's most recently created subscription
	// whose status is one of statuses.
	LatestSubscription(ctx context.Context, tenantID uuid.UUID, statuses ...Status) (Subscription, error)
	// UpdateSubscription loads the subscription, applies fn and stores the
	// result. Nothing is stored when fn fails.
	UpdateSubscription(ctx context.Context, id uuid.UUID, fn func(sub *Subscription) error) (Subscription, error)
	// RecordPayment works like UpdateSubscription and stores the payment built
	// by fn in the same unit of work. When a payment with the same transaction
	// id already exists, fn is not called and ErrDuplicateTransaction is
	// returned together with the current subscription. A Payment with a nil
	// ID stores no payment.
	RecordPayment(ctx context.Context, subID uuid.UUID, transactionID string, fn func(sub *Subscription) (Payment, error)) (Subscription, error)
	PaymentByTransaction(ctx context.Context, transactionID string) (Payment, error)
	ListPayments(ctx context.Context, subID uuid.UUID) ([]Payment, error)
	// ExpiredTrials lists trialing subscriptions whose trial ended before now.
	ExpiredTrials(ctx context.Context, now time.Time) ([]Subscription, error)
	// ListActiveTenants lists tenants with a subscription that is not cancelled.
	ListActiveTenants(ctx context.Context) ([]uuid.UUID, error)
}
