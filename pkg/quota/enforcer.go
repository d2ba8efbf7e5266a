package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/async"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Aggregator returns per-resource usage. Gauges are summed over all history,
// counters only inside [start, end).
type Aggregator interface {
	Aggregate(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (metering.Totals, error)
}

// Resolver returns a tenant's entitlement. *Catalog implements it.
type Resolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) (Entitlement, error)
}

// Check is the raw result of comparing projected usage against a limit.
type Check struct {
	Resource    metering.Resource
	Current     decimal.Decimal
	Increment   decimal.Decimal
	Projected   decimal.Decimal
	Limit       metering.Limit
	Exceeded    bool
	PercentUsed float64
}

// Decision is the outcome of Enforce. Reason and Suggestion are set only when
// the request is denied.
type Decision struct {
	Allowed    bool
	Reason     string
	Suggestion string
	FailedOpen bool
	Check      Check
}

// Enforcer decides whether tenants may consume more of a resource.
type Enforcer struct {
	resolver   Resolver
	aggregator Aggregator
	notifier   Notifier
	metrics    *Metrics
	logger     *slog.Logger
	background *async.Group
}

// EnforcerOption configures an Enforcer.
type EnforcerOption func(*Enforcer)

// WithNotifier sets the receiver of threshold warnings.
func WithNotifier(n Notifier) EnforcerOption {
	return func(e *Enforcer) {
		e.notifier = n
	}
}

// WithMetrics enables decision and warning counters.
func WithMetrics(m *Metrics) EnforcerOption {
	return func(e *Enforcer) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EnforcerOption {
	return func(e *Enforcer) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithBackground sets the group warnings are emitted on.
func WithBackground(g *async.Group) EnforcerOption {
	return func(e *Enforcer) {
		if g != nil {
			e.background = g
		}
	}
}

// NewEnforcer creates an Enforcer.
func NewEnforcer(resolver Resolver, aggregator Aggregator, opts ...EnforcerOption) *Enforcer {
	e := &Enforcer{
		resolver:   resolver,
		aggregator: aggregator,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.background == nil {
		e.background = async.NewGroup(async.WithLogger(e.logger))
	}
	return e
}

// Check computes the projected usage of r after adding increment.
// Infrastructure errors are returned as is.
func (e *Enforcer) Check(ctx context.Context, tenantID uuid.UUID, r metering.Resource, increment decimal.Decimal) (Check, error) {
	if err := validateRequest(r, increment); err != nil {
		return Check{}, err
	}

	ent, totals, err := e.load(ctx, tenantID)
	if err != nil {
		return Check{}, err
	}

	return evaluate(r, totals.Get(r), increment, ent.Limit(r)), nil
}

// CheckAll evaluates every resource with a zero increment.
func (e *Enforcer) CheckAll(ctx context.Context, tenantID uuid.UUID) (map[metering.Resource]Check, error) {
	ent, totals, err := e.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	out := make(map[metering.Resource]Check, len(ent.Limits))
	for _, r := range metering.AllResources() {
		out[r] = evaluate(r, totals.Get(r), decimal.Zero, ent.Limit(r))
	}
	return out, nil
}

// Enforce decides whether tenantID may consume increment more of r.
// It never fails: any internal error allows the request and is logged. An
// unknown resource or a negative increment is the caller's mistake and is
// denied with the validation error as the reason.
func (e *Enforcer) Enforce(ctx context.Context, tenantID uuid.UUID, r metering.Resource, increment decimal.Decimal) Decision {
	if err := validateRequest(r, increment); err != nil {
		e.logger.WarnContext(ctx, "quota check called with invalid arguments, denying",
			logger.TenantID(tenantID),
			logger.Resource(r.String()),
			slog.String("increment", increment.String()),
			logger.Error(err),
		)
		label := r.String()
		if !r.Valid() {
			label = "unknown"
		}
		e.metrics.decision(label, OutcomeInvalid)
		return Decision{Allowed: false, Reason: err.Error()}
	}

	ent, totals, err := e.load(ctx, tenantID)
	if err != nil {
		e.logger.ErrorContext(ctx, "quota check failed, allowing request",
			logger.TenantID(tenantID),
			logger.Resource(r.String()),
			logger.Error(err),
		)
		e.metrics.decision(r.String(), OutcomeFailedOpen)
		return Decision{Allowed: true, FailedOpen: true}
	}

	c := evaluate(r, totals.Get(r), increment, ent.Limit(r))
	if c.Exceeded {
		e.metrics.decision(r.String(), OutcomeDenied)
		return Decision{
			Allowed:    false,
			Reason:     denialReason(c),
			Suggestion: Suggestion(r),
			Check:      c,
		}
	}

	e.metrics.decision(r.String(), OutcomeAllowed)
	if InWarningBand(c.PercentUsed) {
		w := warningFor(ent, c)
		e.background.Go(ctx, "quota.warning", func(ctx context.Context) error {
			return e.emit(ctx, w)
		})
	}

	return Decision{Allowed: true, Check: c}
}

// CheckThresholds evaluates every resource at current usage and emits a
// warning for each one inside the warning band. It returns the warnings sent.
func (e *Enforcer) CheckThresholds(ctx context.Context, tenantID uuid.UUID) ([]Warning, error) {
	ent, totals, err := e.load(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var (
		sent []Warning
		errs []error
	)
	for _, r := range metering.AllResources() {
		c := evaluate(r, totals.Get(r), decimal.Zero, ent.Limit(r))
		if !InWarningBand(c.PercentUsed) {
			continue
		}
		w := warningFor(ent, c)
		if err := e.emit(ctx, w); err != nil {
			errs = append(errs, err)
			continue
		}
		sent = append(sent, w)
	}

	return sent, errors.Join(errs...)
}

// Wait blocks until background warnings have been emitted.
func (e *Enforcer) Wait() {
	e.background.Wait()
}

func (e *Enforcer) load(ctx context.Context, tenantID uuid.UUID) (Entitlement, metering.Totals, error) {
	ent, err := e.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return Entitlement{}, nil, err
	}

	totals, err := e.aggregator.Aggregate(ctx, tenantID, ent.PeriodStart, ent.PeriodEnd)
	if err != nil {
		return Entitlement{}, nil, errors.Join(ErrFailedToAggregateUsage, err)
	}

	return ent, totals, nil
}

func (e *Enforcer) emit(ctx context.Context, w Warning) error {
	if e.notifier == nil {
		return nil
	}
	if err := e.notifier.QuotaWarning(ctx, w); err != nil {
		return err
	}
	e.metrics.warning(w.Resource.String())
	e.logger.InfoContext(ctx, "quota warning emitted",
		logger.TenantID(w.TenantID),
		logger.Resource(w.Resource.String()),
		slog.Float64("percent_used", w.PercentUsed),
	)
	return nil
}

func validateRequest(r metering.Resource, increment decimal.Decimal) error {
	if !r.Valid() {
		return fmt.Errorf("%w: %q", metering.ErrUnknownResource, r)
	}
	if increment.IsNegative() {
		return ErrNegativeIncrement
	}
	return nil
}

func evaluate(r metering.Resource, current, increment decimal.Decimal, limit metering.Limit) Check {
	projected := current.Add(increment)
	return Check{
		Resource:    r,
		Current:     current,
		Increment:   increment,
		Projected:   projected,
		Limit:       limit,
		Exceeded:    limit.Exceeded(projected),
		PercentUsed: limit.Percent(projected),
	}
}

func warningFor(ent Entitlement, c Check) Warning {
	return Warning{
		TenantID:    ent.TenantID,
		PlanID:      ent.PlanID,
		Resource:    c.Resource,
		Current:     c.Projected,
		Limit:       c.Limit,
		PercentUsed: c.PercentUsed,
		PeriodStart: ent.PeriodStart,
		PeriodEnd:   ent.PeriodEnd,
	}
}
