package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/async"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/quota"
)

// PlanChange is the outcome of ChangePlan.
type PlanChange struct {
	Subscription Subscription
	Proration    Proration
}

// Service drives subscriptions through their billing cycle.
type Service struct {
	store       Store
	plans       PlanSource
	notifier    Notifier
	metrics     *Metrics
	maxFailures int
	currency    string
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a Service.
func NewService(store Store, plans PlanSource, opts ...ServiceOption) *Service {
	s := &Service{
		store:       store,
		plans:       plans,
		maxFailures: DefaultMaxPaymentFailures,
		currency:    "USD",
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// CreateSubscription subscribes tenantID to planID. The subscription starts
// trialing when the plan has trial days and active otherwise. It fails with
// ErrSubscriptionAlreadyExists when the tenant already has a subscription
// that is not cancelled.
func (s *Service) CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID, currency string) (Subscription, error) {
	if tenantID == uuid.Nil {
		return Subscription{}, ErrMissingTenantID
	}
	if currency == "" {
		currency = s.currency
	}
	currency = strings.ToUpper(currency)

	plan, err := s.plans.Plan(ctx, planID)
	if err != nil {
		return Subscription{}, err
	}
	if !plan.Active {
		return Subscription{}, fmt.Errorf("%w: %s", ErrPlanInactive, plan.ID)
	}
	price, err := plan.Price(currency)
	if err != nil {
		return Subscription{}, err
	}

	now := s.clock()
	sub := Subscription{
		ID:        uuid.New(),
		TenantID:  tenantID,
		PlanID:    plan.ID,
		Status:    StatusActive,
		Currency:  currency,
		Amount:    price,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if plan.HasTrial() {
		trialEnd := now.AddDate(0, 0, plan.TrialDays)
		sub.Status = StatusTrialing
		sub.TrialEndsAt = &trialEnd
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = trialEnd
	} else {
		sub.startPeriod(now, plan.DaysInCycle())
	}

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		return Subscription{}, err
	}

	s.logger.InfoContext(ctx, "subscription created",
		logger.TenantID(tenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(plan.ID),
		logger.Status(sub.Status.String()),
	)
	return sub, nil
}

// Subscription returns a subscription, expiring its trial first when due.
func (s *Service) Subscription(ctx context.Context, id uuid.UUID) (Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return Subscription{}, err
	}
	if !sub.TrialExpiredAt(s.clock()) {
		return sub, nil
	}
	return s.expireTrial(ctx, id)
}

// ActivePlan implements quota.PlanLookup: it returns the plan of the tenant's
// most recent trialing or active subscription.
func (s *Service) ActivePlan(ctx context.Context, tenantID uuid.UUID) (quota.ActivePlan, bool, error) {
	sub, err := s.store.LatestSubscription(ctx, tenantID, StatusTrialing, StatusActive)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return quota.ActivePlan{}, false, nil
	}
	if err != nil {
		return quota.ActivePlan{}, false, err
	}

	if sub.TrialExpiredAt(s.clock()) {
		if sub, err = s.expireTrial(ctx, sub.ID); err != nil {
			return quota.ActivePlan{}, false, err
		}
	}

	plan, err := s.plans.Plan(ctx, sub.PlanID)
	if err != nil {
		return quota.ActivePlan{}, false, err
	}

	return quota.ActivePlan{
		PlanID:      plan.ID,
		Limits:      plan.Quotas,
		PeriodStart: sub.CurrentPeriodStart,
		PeriodEnd:   sub.CurrentPeriodEnd,
	}, true, nil
}

// ListActiveTenants lists tenants with a subscription that is not cancelled.
func (s *Service) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	return s.store.ListActiveTenants(ctx)
}

// Plans returns the plan catalog.
func (s *Service) Plans(ctx context.Context) ([]Plan, error) {
	return s.plans.Plans(ctx)
}

// Cancel cancels a subscription on the tenant's request. Cancelling a
// cancelled subscription fails with ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (Subscription, error) {
	var from Status
	sub, err := s.store.UpdateSubscription(ctx, id, func(sub *Subscription) error {
		if sub.IsCancelled() {
			return ErrAlreadyCancelled
		}
		from = sub.Status
		return fire(ctx, EventCancel, &transition{
			sub:    sub,
			now:    s.clock(),
			reason: reason,
		})
	})
	if err != nil {
		return Subscription{}, err
	}

	s.metrics.transition(from, sub.Status, string(EventCancel))
	s.logger.InfoContext(ctx, "subscription cancelled",
		logger.TenantID(sub.TenantID),
		logger.SubscriptionID(sub.ID),
		slog.String("reason", reason),
	)
	return sub, nil
}

// HandlePaymentResult applies a payment outcome to the subscription. Results
// are idempotent on their transaction id: a repeated result returns the
// current subscription without changing it.
func (s *Service) HandlePaymentResult(ctx context.Context, res PaymentResult) (Subscription, error) {
	if res.TransactionID == "" {
		return Subscription{}, ErrMissingTransactionID
	}

	event := EventPaymentFailed
	if res.Success {
		event = EventPaymentSucceeded
	}

	var (
		from    Status
		payment Payment
	)
	sub, err := s.store.RecordPayment(ctx, res.SubscriptionID, res.TransactionID, func(sub *Subscription) (Payment, error) {
		now := s.clock()
		cycle := s.cycleDays(ctx, sub.PlanID)

		if sub.TrialExpiredAt(now) {
			if err := fire(ctx, EventTrialExpired, &transition{sub: sub, now: now, cycleDays: cycle}); err != nil {
				return Payment{}, err
			}
		}

		from = sub.Status
		if err := fire(ctx, event, &transition{
			sub:         sub,
			now:         now,
			cycleDays:   cycle,
			maxFailures: s.maxFailures,
			reason:      "payment_failed",
		}); err != nil {
			return Payment{}, err
		}

		amount := res.Amount
		if amount.IsZero() {
			amount = sub.Amount
		}
		payment = Payment{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			Kind:           PaymentKindRenewal,
			Amount:         amount,
			Currency:       sub.Currency,
			Status:         PaymentCompleted,
			TransactionID:  res.TransactionID,
			FailureCode:    res.FailureCode,
			CreatedAt:      now,
		}
		if !res.Success {
			payment.Status = PaymentFailed
		}
		return payment, nil
	})
	if errors.Is(err, ErrDuplicateTransaction) {
		s.logger.InfoContext(ctx, "payment result already processed",
			logger.SubscriptionID(res.SubscriptionID),
			logger.TransactionID(res.TransactionID),
		)
		return sub, nil
	}
	if err != nil {
		return Subscription{}, err
	}

	s.metrics.payment(payment)
	s.metrics.transition(from, sub.Status, string(event))

	log := s.logger.With(
		logger.TenantID(sub.TenantID),
		logger.SubscriptionID(sub.ID),
		logger.TransactionID(res.TransactionID),
		logger.Status(sub.Status.String()),
	)
	if res.Success {
		log.InfoContext(ctx, "payment succeeded")
		return sub, nil
	}

	log.WarnContext(ctx, "payment failed",
		slog.String("failure_code", res.FailureCode),
		slog.Int("consecutive_failures", sub.ConsecutiveFailures),
	)
	if s.notifier != nil {
		failure := PaymentFailure{
			Subscription: sub,
			FailureCode:  res.FailureCode,
			Cancelled:    sub.IsCancelled(),
		}
		async.BestEffort(ctx, log, "billing.payment_failed_notification", func(ctx context.Context) error {
			return s.notifier.PaymentFailed(ctx, failure)
		})
	}
	return sub, nil
}

// CalculateUpgrade prices a plan change in the default currency.
func (s *Service) CalculateUpgrade(ctx context.Context, fromPlanID, toPlanID string, remainingDays int) (Proration, error) {
	return s.CalculateUpgradeIn(ctx, fromPlanID, toPlanID, remainingDays, s.currency)
}

// CalculateUpgradeIn prices a plan change in currency. Unknown plans are
// reported as ErrProrationInput.
func (s *Service) CalculateUpgradeIn(ctx context.Context, fromPlanID, toPlanID string, remainingDays int, currency string) (Proration, error) {
	from, err := s.plans.Plan(ctx, fromPlanID)
	if err != nil {
		return Proration{}, fmt.Errorf("%w: %w", ErrProrationInput, err)
	}
	to, err := s.plans.Plan(ctx, toPlanID)
	if err != nil {
		return Proration{}, fmt.Errorf("%w: %w", ErrProrationInput, err)
	}
	return Prorate(from, to, remainingDays, strings.ToUpper(currency))
}

// ChangePlan moves a trialing or active subscription to toPlanID. Active
// subscriptions are prorated over the days left in the current period and a
// pending charge or a credit note is recorded. Trialing subscriptions switch
// without proration. Changing to the current plan changes nothing.
func (s *Service) ChangePlan(ctx context.Context, id uuid.UUID, toPlanID string) (PlanChange, error) {
	to, err := s.plans.Plan(ctx, toPlanID)
	if err != nil {
		return PlanChange{}, err
	}
	if !to.Active {
		return PlanChange{}, fmt.Errorf("%w: %s", ErrPlanInactive, to.ID)
	}

	var proration Proration
	txID := "proration:" + uuid.NewString()
	sub, err := s.store.RecordPayment(ctx, id, txID, func(sub *Subscription) (Payment, error) {
		now := s.clock()
		if sub.TrialExpiredAt(now) {
			if err := fire(ctx, EventTrialExpired, &transition{sub: sub, now: now, cycleDays: s.cycleDays(ctx, sub.PlanID)}); err != nil {
				return Payment{}, err
			}
		}
		if !sub.Status.Entitling() {
			return Payment{}, fmt.Errorf("%w: subscription is %s", ErrPlanChangeNotAllowed, sub.Status)
		}

		from, err := s.plans.Plan(ctx, sub.PlanID)
		if err != nil {
			return Payment{}, err
		}

		remaining := 0
		if sub.Status == StatusActive {
			remaining = min(sub.RemainingDaysAt(now), from.DaysInCycle())
		}
		proration, err = Prorate(from, to, remaining, sub.Currency)
		if err != nil {
			return Payment{}, err
		}
		if from.ID == to.ID {
			return Payment{}, nil
		}

		sub.PlanID = to.ID
		sub.Amount = proration.NewPlanPrice
		sub.UpdatedAt = now

		switch proration.Direction {
		case DirectionCharge:
			return prorationPayment(sub, txID, PaymentKindProrationCharge, PaymentPending, proration.ProratedAmount, now), nil
		case DirectionCredit:
			return prorationPayment(sub, txID, PaymentKindProrationCredit, PaymentCompleted, proration.Credit, now), nil
		default:
			return Payment{}, nil
		}
	})
	if err != nil {
		return PlanChange{}, err
	}

	s.logger.InfoContext(ctx, "subscription plan changed",
		logger.TenantID(sub.TenantID),
		logger.SubscriptionID(sub.ID),
		logger.PlanID(sub.PlanID),
		slog.String("direction", string(proration.Direction)),
		slog.String("prorated_amount", proration.ProratedAmount.String()),
		slog.String("credit", proration.Credit.String()),
	)
	return PlanChange{Subscription: sub, Proration: proration}, nil
}

// ExpireTrials moves every trialing subscription whose trial has ended to
// active. Failures are logged and skipped; the joined errors are returned
// together with the number of subscriptions expired.
func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	due, err := s.store.ExpiredTrials(ctx, s.clock())
	if err != nil {
		return 0, err
	}

	var (
		expired int
		errs    []error
	)
	for _, sub := range due {
		if _, err := s.expireTrial(ctx, sub.ID); err != nil {
			s.logger.ErrorContext(ctx, "failed to expire trial",
				logger.SubscriptionID(sub.ID),
				logger.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		expired++
	}
	return expired, errors.Join(errs...)
}

func (s *Service) expireTrial(ctx context.Context, id uuid.UUID) (Subscription, error) {
	changed := false
	sub, err := s.store.UpdateSubscription(ctx, id, func(sub *Subscription) error {
		now := s.clock()
		if !sub.TrialExpiredAt(now) {
			return nil
		}
		changed = true
		return fire(ctx, EventTrialExpired, &transition{
			sub:       sub,
			now:       now,
			cycleDays: s.cycleDays(ctx, sub.PlanID),
		})
	})
	if err != nil {
		return Subscription{}, err
	}
	if changed {
		s.metrics.transition(StatusTrialing, sub.Status, string(EventTrialExpired))
		s.logger.InfoContext(ctx, "trial expired",
			logger.TenantID(sub.TenantID),
			logger.SubscriptionID(sub.ID),
		)
	}
	return sub, nil
}

func (s *Service) cycleDays(ctx context.Context, planID string) int {
	plan, err := s.plans.Plan(ctx, planID)
	if err != nil {
		s.logger.WarnContext(ctx, "plan missing from catalog, using default cycle",
			logger.PlanID(planID),
			logger.Error(err),
		)
		return DefaultCycleDays
	}
	return plan.DaysInCycle()
}

func prorationPayment(sub *Subscription, txID string, kind PaymentKind, status PaymentStatus, amount decimal.Decimal, now time.Time) Payment {
	return Payment{
		ID:             uuid.New(),
		SubscriptionID: sub.ID,
		Kind:           kind,
		Amount:         amount,
		Currency:       sub.Currency,
		Status:         status,
		TransactionID:  txID,
		CreatedAt:      now,
	}
}
