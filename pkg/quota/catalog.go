package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// ActivePlan is what a PlanLookup knows about the subscription a tenant is entitled through.
type ActivePlan struct {
	PlanID      string
	Limits      map[metering.Resource]metering.Limit
	PeriodStart time.Time
	PeriodEnd   time.Time
}

// PlanLookup finds the plan of the tenant's most recent entitling subscription.
// It returns found=false, not an error, when the tenant has none.
type PlanLookup interface {
	ActivePlan(ctx context.Context, tenantID uuid.UUID) (plan ActivePlan, found bool, err error)
}

// PlanLookupFunc adapts a function to PlanLookup.
type PlanLookupFunc func(ctx context.Context, tenantID uuid.UUID) (ActivePlan, bool, error)

func (f PlanLookupFunc) ActivePlan(ctx context.Context, tenantID uuid.UUID) (ActivePlan, bool, error) {
	return f(ctx, tenantID)
}

// Catalog resolves entitlements.
type Catalog struct {
	lookup   PlanLookup
	defaults map[metering.Resource]metering.Limit
	now      func() time.Time
	logger   *slog.Logger
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithDefaults replaces the free-tier limits. NewCatalog rejects maps that do
// not cover every resource.
func WithDefaults(limits map[metering.Resource]metering.Limit) CatalogOption {
	return func(c *Catalog) {
		if limits != nil {
			c.defaults = cloneLimits(limits)
		}
	}
}

// WithCatalogClock overrides the time source used for free-tier windows.
func WithCatalogClock(now func() time.Time) CatalogOption {
	return func(c *Catalog) {
		if now != nil {
			c.now = now
		}
	}
}

// WithCatalogLogger sets the logger.
func WithCatalogLogger(l *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog creates a Catalog. A nil lookup puts every tenant on the free tier.
func NewCatalog(lookup PlanLookup, opts ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		lookup:   lookup,
		defaults: FreeTierLimits(),
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, r := range metering.AllResources() {
		if _, ok := c.defaults[r]; !ok {
			return nil, fmt.Errorf("%w: missing %s", ErrIncompleteDefaults, r)
		}
	}

	return c, nil
}

// Resolve returns the tenant's entitlement. Tenants without an active or
// trialing subscription get the free tier. An error is returned only when the
// lookup itself fails; absence of a subscription is not a failure.
func (c *Catalog) Resolve(ctx context.Context, tenantID uuid.UUID) (Entitlement, error) {
	if c.lookup != nil {
		plan, found, err := c.lookup.ActivePlan(ctx, tenantID)
		if err != nil {
			return Entitlement{}, errors.Join(ErrFailedToResolvePlan, err)
		}
		if found {
			return c.fromPlan(ctx, tenantID, plan), nil
		}
	}

	return c.Default(tenantID), nil
}

// Default returns the free-tier entitlement windowed to the current calendar month.
func (c *Catalog) Default(tenantID uuid.UUID) Entitlement {
	start, end, _ := metering.PeriodMonthly.Bounds(c.now())
	return Entitlement{
		TenantID:    tenantID,
		PlanID:      FreeTierPlanID,
		Source:      SourceDefault,
		Limits:      cloneLimits(c.defaults),
		PeriodStart: start,
		PeriodEnd:   end,
	}
}

func (c *Catalog) fromPlan(ctx context.Context, tenantID uuid.UUID, plan ActivePlan) Entitlement {
	limits := cloneLimits(plan.Limits)
	for _, r := range metering.AllResources() {
		if _, ok := limits[r]; !ok {
			c.logger.WarnContext(ctx, "plan has no quota for resource, using free tier value",
				logger.TenantID(tenantID),
				logger.PlanID(plan.PlanID),
				logger.Resource(r.String()),
			)
			limits[r] = c.defaults[r]
		}
	}

	start, end := plan.PeriodStart, plan.PeriodEnd
	if start.IsZero() || !end.After(start) {
		start, end, _ = metering.PeriodMonthly.Bounds(c.now())
	}

	return Entitlement{
		TenantID:    tenantID,
		PlanID:      plan.PlanID,
		Source:      SourcePlan,
		Limits:      limits,
		PeriodStart: start,
		PeriodEnd:   end,
	}
}
