package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/statemachine"
)

// Event drives a subscription through its lifecycle.
type Event string

const (
	EventTrialExpired     Event = "trial_expired"
	EventPaymentSucceeded Event = "payment_succeeded"
	EventPaymentFailed    Event = "payment_failed"
	EventCancel           Event = "cancel"
)

// DefaultMaxPaymentFailures is the number of consecutive failed payments that cancels a subscription.
const DefaultMaxPaymentFailures = 3

// transition is the data every guard and action of the lifecycle receives.
// Actions mutate sub in place; the caller persists it.
type transition struct {
	sub         *Subscription
	now         time.Time
	cycleDays   int
	maxFailures int
	reason      string
}

type (
	rule   = statemachine.Rule[Status, Event, *transition]
	action = statemachine.Action[Status, Event, *transition]
)

func failureThresholdReached(_ context.Context, _ Status, _ Event, t *transition) bool {
	return t.sub.ConsecutiveFailures+1 >= t.maxFailures
}

func countFailure(_ context.Context, _, _ Status, _ Event, t *transition) error {
	t.sub.ConsecutiveFailures++
	return nil
}

func resetFailures(_ context.Context, _, _ Status, _ Event, t *transition) error {
	t.sub.ConsecutiveFailures = 0
	return nil
}

func markCancelled(_ context.Context, _, _ Status, _ Event, t *transition) error {
	now := t.now
	t.sub.CancelledAt = &now
	t.sub.CancellationReason = t.reason
	return nil
}

// startPaidPeriod opens the first paid period where the trial ended.
func startPaidPeriod(_ context.Context, _, _ Status, _ Event, t *transition) error {
	start := t.now
	if t.sub.TrialEndsAt != nil {
		start = *t.sub.TrialEndsAt
	}
	t.sub.startPeriod(start, t.cycleDays)
	return nil
}

// renewPeriod advances an active subscription by one cycle.
func renewPeriod(_ context.Context, _, _ Status, _ Event, t *transition) error {
	t.sub.rollPeriod(t.cycleDays)
	return nil
}

// restartPeriod starts a fresh cycle at the time of payment.
func restartPeriod(_ context.Context, _, _ Status, _ Event, t *transition) error {
	t.sub.startPeriod(t.now, t.cycleDays)
	return nil
}

// lifecycle is the billing-cycle transition table. The cancelling branch of
// payment_failed is listed before the past_due one.
var lifecycle = statemachine.MustNew(
	rule{From: StatusTrialing, On: EventTrialExpired, To: StatusActive, Do: []action{startPaidPeriod}},
	rule{From: StatusTrialing, On: EventPaymentSucceeded, To: StatusActive, Do: []action{resetFailures, restartPeriod}},

	rule{From: StatusActive, On: EventPaymentSucceeded, To: StatusActive, Do: []action{resetFailures, renewPeriod}},
	rule{From: StatusActive, On: EventPaymentFailed, To: StatusCancelled, When: failureThresholdReached, Do: []action{countFailure, markCancelled}},
	rule{From: StatusActive, On: EventPaymentFailed, To: StatusPastDue, Do: []action{countFailure}},

	rule{From: StatusPastDue, On: EventPaymentSucceeded, To: StatusActive, Do: []action{resetFailures, restartPeriod}},
	rule{From: StatusPastDue, On: EventPaymentFailed, To: StatusCancelled, When: failureThresholdReached, Do: []action{countFailure, markCancelled}},
	rule{From: StatusPastDue, On: EventPaymentFailed, To: StatusPastDue, Do: []action{countFailure}},

	rule{From: StatusTrialing, On: EventCancel, To: StatusCancelled, Do: []action{markCancelled}},
	rule{From: StatusActive, On: EventCancel, To: StatusCancelled, Do: []action{markCancelled}},
	rule{From: StatusPastDue, On: EventCancel, To: StatusCancelled, Do: []action{markCancelled}},
)

// fire applies event to t.sub and sets its new status.
func fire(ctx context.Context, event Event, t *transition) error {
	from := t.sub.Status
	next, err := lifecycle.Fire(ctx, from, event, t)
	if err != nil {
		if errors.Is(err, statemachine.ErrUndefined) || errors.Is(err, statemachine.ErrRejected) {
			return fmt.Errorf("%w: %s from %s", ErrTransitionNotAllowed, event, from)
		}
		return err
	}
	t.sub.Status = next
	t.sub.UpdatedAt = t.now
	return nil
}
