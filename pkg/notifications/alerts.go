package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/quota"
)

// Alerts turns quota warnings and failed payments into tenant notifications.
// It implements quota.Notifier and billing.Notifier.
type Alerts struct {
	manager    *Manager
	billingURL string
}

var (
	_ quota.Notifier   = (*Alerts)(nil)
	_ billing.Notifier = (*Alerts)(nil)
)

// NewAlerts creates Alerts. billingURL, when set, is attached as the
// call-to-action of every alert.
func NewAlerts(m *Manager, billingURL string) *Alerts {
	return &Alerts{manager: m, billingURL: billingURL}
}

// QuotaWarning notifies a tenant that a resource is in the warning band.
// One warning is sent per tenant, resource and billing period.
func (a *Alerts) QuotaWarning(ctx context.Context, w quota.Warning) error {
	key := QuotaWarningKey(w)
	ttl := w.PeriodEnd.Sub(a.manager.now())
	if ttl < time.Hour {
		ttl = time.Hour
	}

	_, err := a.manager.SendOnce(ctx, key, ttl, Notification{
		TenantID: w.TenantID.String(),
		Kind:     KindQuotaWarning,
		Type:     TypeWarning,
		Priority: PriorityHigh,
		Title:    fmt.Sprintf("%s usage at %.0f%%", w.Resource, w.PercentUsed),
		Message: fmt.Sprintf("You have used %s of %s %s this period. %s",
			w.Current.String(), w.Limit.String(), w.Resource.Unit(), quota.Suggestion(w.Resource)),
		Data: map[string]any{
			"resource":     w.Resource.String(),
			"plan_id":      w.PlanID,
			"current":      w.Current.String(),
			"limit":        w.Limit.String(),
			"percent_used": w.PercentUsed,
			"period_start": w.PeriodStart,
			"period_end":   w.PeriodEnd,
		},
		Actions:   a.actions("Upgrade plan"),
		ExpiresAt: &w.PeriodEnd,
	})
	return err
}

// PaymentFailed notifies a tenant about a failed billing attempt, or about
// the cancellation it caused.
func (a *Alerts) PaymentFailed(ctx context.Context, f billing.PaymentFailure) error {
	sub := f.Subscription
	notif := Notification{
		TenantID: sub.TenantID.String(),
		Kind:     KindPaymentFailed,
		Type:     TypeError,
		Priority: PriorityHigh,
		Title:    "Payment failed",
		Message: fmt.Sprintf("We could not charge %s %s for your %s plan (attempt %d).",
			sub.Amount.StringFixed(2), sub.Currency, sub.PlanID, sub.ConsecutiveFailures),
		Data: map[string]any{
			"subscription_id":      sub.ID.String(),
			"plan_id":              sub.PlanID,
			"failure_code":         f.FailureCode,
			"consecutive_failures": sub.ConsecutiveFailures,
		},
		Actions: a.actions("Update payment method"),
	}
	if f.Cancelled {
		notif.Kind = KindCancelled
		notif.Priority = PriorityUrgent
		notif.Title = "Subscription cancelled"
		notif.Message = fmt.Sprintf("Your %s plan was cancelled after %d failed payments.",
			sub.PlanID, sub.ConsecutiveFailures)
	}
	return a.manager.Send(ctx, notif)
}

func (a *Alerts) actions(label string) []Action {
	if a.billingURL == "" {
		return nil
	}
	return []Action{{Label: label, URL: a.billingURL, Style: "primary"}}
}

// QuotaWarningKey is the dedup key of a warning: tenant, resource and the
// start of the billing period.
func QuotaWarningKey(w quota.Warning) string {
	return fmt.Sprintf("quota_warning:%s:%s:%s", w.TenantID, w.Resource, w.PeriodStart.UTC().Format(time.DateOnly))
}
