package billing

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is the family of lookup failures.
	ErrNotFound = errors.New("billing: not found")

	ErrPlanNotFound         = fmt.Errorf("%w: plan", ErrNotFound)
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", ErrNotFound)
	ErrPaymentNotFound      = fmt.Errorf("%w: payment", ErrNotFound)

	// ErrInvalidState is the family of operations rejected because of the
	// subscription's current lifecycle state.
	ErrInvalidState = errors.New("billing: invalid subscription state")

	ErrAlreadyCancelled          = fmt.Errorf("%w: subscription is already cancelled", ErrInvalidState)
	ErrSubscriptionAlreadyExists = fmt.Errorf("%w: tenant already has a subscription", ErrInvalidState)
	ErrTransitionNotAllowed      = fmt.Errorf("%w: transition not allowed", ErrInvalidState)
	ErrPlanChangeNotAllowed      = fmt.Errorf("%w: plan change not allowed", ErrInvalidState)

	// ErrProrationInput marks invalid arguments to the proration engine.
	ErrProrationInput = errors.New("billing: invalid proration input")

	ErrInvalidPlan          = errors.New("billing: invalid plan configuration")
	ErrPlanInactive         = errors.New("billing: plan is not available for new subscriptions")
	ErrCurrencyNotSupported = errors.New("billing: currency not supported by plan")
	ErrDuplicatePlan        = errors.New("billing: duplicate plan id")
	ErrDuplicateTransaction = errors.New("billing: transaction already recorded")
	ErrMissingTenantID      = errors.New("billing: tenant id is required")
	ErrMissingTransactionID = errors.New("billing: transaction id is required")
	ErrFailedToLoadPlans    = errors.New("billing: failed to load plans")

	ErrMissingWebhookSecret      = errors.New("billing: webhook secret is required")
	ErrWebhookVerificationFailed = errors.New("billing: webhook signature verification failed")
	ErrIgnoredWebhookEvent       = errors.New("billing: webhook event does not carry a payment result")
	ErrMalformedWebhook          = errors.New("billing: malformed webhook payload")
)
