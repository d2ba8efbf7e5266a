package billing

import "context"

// PaymentFailure is sent to the notifier after a failed billing attempt.
type PaymentFailure struct {
	Subscription Subscription
	FailureCode  string
	// Cancelled is true when this failure reached the cancellation threshold.
	Cancelled bool
}

// Notifier raises user-facing billing notifications.
type Notifier interface {
	PaymentFailed(ctx context.Context, f PaymentFailure) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, f PaymentFailure) error

func (fn NotifierFunc) PaymentFailed(ctx context.Context, f PaymentFailure) error {
	return fn(ctx, f)
}
