package metering

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/async"
	"github.com/dmitrymomot/meterkit/pkg/billing"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	mtr "github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// UsageWindow is the result of Usage.
type UsageWindow struct {
	TenantID uuid.UUID
	PlanID   string
	Start    time.Time
	End      time.Time
	Totals   mtr.Totals
}

// Service is the caller-facing metering API. It wires the quota catalog and
// enforcer, the usage aggregator, recorder and reporter, and the billing
// service around one usage store and one billing store.
type Service struct {
	catalog    *quota.Catalog
	enforcer   *quota.Enforcer
	aggregator *usage.Aggregator
	recorder   *usage.Recorder
	reporter   *usage.Reporter
	billing    *billing.Service
	background *async.Group
	logger     *slog.Logger
	now        func() time.Time
}

// New builds a Service. usageStore holds events and snapshots, billingStore
// holds subscriptions and payments, plans is the plan catalog.
func New(usageStore usage.Store, billingStore billing.Store, plans billing.PlanSource, opts ...Option) (*Service, error) {
	if usageStore == nil {
		return nil, ErrMissingUsageStore
	}
	if billingStore == nil {
		return nil, ErrMissingBillingStore
	}
	if plans == nil {
		return nil, ErrMissingPlanSource
	}

	o := &options{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}

	var (
		quotaMetrics   *quota.Metrics
		usageMetrics   *usage.Metrics
		billingMetrics *billing.Metrics
	)
	if o.registerer != nil {
		var err error
		if quotaMetrics, err = quota.NewMetrics(o.registerer); err != nil {
			return nil, errors.Join(ErrFailedToInit, err)
		}
		if usageMetrics, err = usage.NewMetrics(o.registerer); err != nil {
			return nil, errors.Join(ErrFailedToInit, err)
		}
		if billingMetrics, err = billing.NewMetrics(o.registerer); err != nil {
			return nil, errors.Join(ErrFailedToInit, err)
		}
	}

	background := async.NewGroup(async.WithLogger(o.logger))

	billingOpts := []billing.ServiceOption{
		billing.WithLogger(o.logger),
		billing.WithClock(o.now),
		billing.WithMetrics(billingMetrics),
		billing.WithMaxPaymentFailures(o.maxFailures),
		billing.WithDefaultCurrency(o.currency),
	}
	if o.alerts != nil {
		billingOpts = append(billingOpts, billing.WithNotifier(o.alerts))
	}
	billingSvc := billing.NewService(billingStore, plans, billingOpts...)

	catalogOpts := []quota.CatalogOption{
		quota.WithCatalogLogger(o.logger),
		quota.WithCatalogClock(o.now),
	}
	if o.freeTier != nil {
		catalogOpts = append(catalogOpts, quota.WithDefaults(o.freeTier))
	}
	catalog, err := quota.NewCatalog(billingSvc, catalogOpts...)
	if err != nil {
		return nil, errors.Join(ErrFailedToInit, err)
	}

	aggOpts := []usage.AggregatorOption{usage.WithAggregatorLogger(o.logger)}
	for _, src := range o.extraSources {
		aggOpts = append(aggOpts, usage.WithSource(src))
	}
	aggregator := usage.NewAggregator(usageStore, aggOpts...)

	enforcerOpts := []quota.EnforcerOption{
		quota.WithLogger(o.logger),
		quota.WithMetrics(quotaMetrics),
		quota.WithBackground(background),
	}
	if o.alerts != nil {
		enforcerOpts = append(enforcerOpts, quota.WithNotifier(o.alerts))
	}
	enforcer := quota.NewEnforcer(catalog, aggregator, enforcerOpts...)

	recorder := usage.NewRecorder(usageStore,
		usage.WithThresholdChecker(enforcer),
		usage.WithRecorderBackground(background),
		usage.WithRecorderMetrics(usageMetrics),
		usage.WithRecorderLogger(o.logger),
		usage.WithRecorderClock(o.now),
	)

	reporterOpts := []usage.ReporterOption{
		usage.WithTenantLister(usage.UnionTenants(billingSvc, eventTenants(usageStore, o.now))),
		usage.WithReporterMetrics(usageMetrics),
		usage.WithReporterLogger(o.logger),
		usage.WithReporterClock(o.now),
		usage.WithConcurrency(o.concurrency),
	}
	if o.pricing != nil {
		reporterOpts = append(reporterOpts, usage.WithPricing(*o.pricing))
	}
	if o.sink != nil {
		reporterOpts = append(reporterOpts, usage.WithArchiveSink(o.sink))
	}
	if o.purge {
		reporterOpts = append(reporterOpts, usage.WithCounterPurge(usageStore))
	}
	reporter, err := usage.NewReporter(aggregator, catalog, usageStore, reporterOpts...)
	if err != nil {
		return nil, errors.Join(ErrFailedToInit, err)
	}

	return &Service{
		catalog:    catalog,
		enforcer:   enforcer,
		aggregator: aggregator,
		recorder:   recorder,
		reporter:   reporter,
		billing:    billingSvc,
		background: background,
		logger:     o.logger,
		now:        o.now,
	}, nil
}

// eventTenants lists every tenant with usage recorded before the end of the
// last completed month.
func eventTenants(events usage.EventStore, now func() time.Time) usage.TenantLister {
	return usage.TenantListerFunc(func(ctx context.Context) ([]uuid.UUID, error) {
		_, end, err := mtr.PeriodMonthly.Previous(now())
		if err != nil {
			return nil, err
		}
		return events.ActiveTenants(ctx, time.Time{}, end)
	})
}

// Enforce decides whether tenantID may consume amount more of r. It never
// fails; see quota.Enforcer.Enforce.
func (s *Service) Enforce(ctx context.Context, tenantID uuid.UUID, r mtr.Resource, amount decimal.Decimal) quota.Decision {
	return s.enforcer.Enforce(ctx, tenantID, r, amount)
}

// Record stores a usage event. Failures are logged and swallowed.
func (s *Service) Record(ctx context.Context, tenantID uuid.UUID, r mtr.Resource, amount decimal.Decimal, metadata map[string]string) {
	s.recorder.Record(ctx, tenantID, r, amount, metadata)
}

// Correct stores a compensating event, for example a storage release.
func (s *Service) Correct(ctx context.Context, tenantID uuid.UUID, r mtr.Resource, amount decimal.Decimal, reason string) error {
	return s.recorder.Correct(ctx, tenantID, r, amount, reason)
}

// Entitlement returns the limits tenantID is currently entitled to.
func (s *Service) Entitlement(ctx context.Context, tenantID uuid.UUID) (quota.Entitlement, error) {
	return s.catalog.Resolve(ctx, tenantID)
}

// Usage returns the totals of tenantID between start and end. A zero bound
// defaults to the matching bound of the tenant's current entitlement window:
// the subscription period, or the calendar month on the free tier.
func (s *Service) Usage(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (UsageWindow, error) {
	w := UsageWindow{TenantID: tenantID, Start: start, End: end}
	if start.IsZero() || end.IsZero() {
		ent, err := s.catalog.Resolve(ctx, tenantID)
		if err != nil {
			return UsageWindow{}, err
		}
		w.PlanID = ent.PlanID
		if w.Start.IsZero() {
			w.Start = ent.PeriodStart
		}
		if w.End.IsZero() {
			w.End = ent.PeriodEnd
		}
	}

	totals, err := s.aggregator.Aggregate(ctx, tenantID, w.Start, w.End)
	if err != nil {
		return UsageWindow{}, err
	}
	w.Totals = totals
	return w, nil
}

// CheckAll evaluates every resource of tenantID at current usage.
func (s *Service) CheckAll(ctx context.Context, tenantID uuid.UUID) (map[mtr.Resource]quota.Check, error) {
	return s.enforcer.CheckAll(ctx, tenantID)
}

// GenerateReport builds an unpersisted report for the current period window.
func (s *Service) GenerateReport(ctx context.Context, tenantID uuid.UUID, period mtr.Period) (usage.Snapshot, error) {
	return s.reporter.GenerateReport(ctx, tenantID, period)
}

// HistoricalReports returns archived snapshots, newest first.
func (s *Service) HistoricalReports(ctx context.Context, tenantID uuid.UUID, period mtr.Period, limit int) ([]usage.Snapshot, error) {
	return s.reporter.HistoricalReports(ctx, tenantID, period, limit)
}

// Trend compares the last months archived monthly snapshots.
func (s *Service) Trend(ctx context.Context, tenantID uuid.UUID, months int) (usage.Trend, error) {
	return s.reporter.TrendAnalysis(ctx, tenantID, months)
}

// ExportCSV writes archived snapshots of tenantID as CSV.
func (s *Service) ExportCSV(ctx context.Context, w io.Writer, tenantID uuid.UUID, period mtr.Period, limit int) error {
	return s.reporter.ExportCSV(ctx, w, tenantID, period, limit)
}

// ArchiveAll snapshots the last completed month for every active tenant.
// Running it twice for the same month stores nothing new.
func (s *Service) ArchiveAll(ctx context.Context) (usage.ArchiveResult, error) {
	res, err := s.reporter.ArchiveAll(ctx)
	if err != nil {
		return res, err
	}
	s.logger.InfoContext(ctx, "usage archived",
		slog.Int("archived", res.Archived),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed()),
	)
	return res, nil
}

// CalculateUpgrade prices a change between two plans in the default currency.
func (s *Service) CalculateUpgrade(ctx context.Context, fromPlanID, toPlanID string, remainingDays int) (billing.Proration, error) {
	return s.billing.CalculateUpgrade(ctx, fromPlanID, toPlanID, remainingDays)
}

// CreateSubscription subscribes tenantID to planID. An empty currency uses the default.
func (s *Service) CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID, currency string) (billing.Subscription, error) {
	return s.billing.CreateSubscription(ctx, tenantID, planID, currency)
}

// Subscription returns a subscription by id.
func (s *Service) Subscription(ctx context.Context, id uuid.UUID) (billing.Subscription, error) {
	return s.billing.Subscription(ctx, id)
}

// ChangePlan moves a subscription to another plan with proration.
func (s *Service) ChangePlan(ctx context.Context, id uuid.UUID, toPlanID string) (billing.PlanChange, error) {
	return s.billing.ChangePlan(ctx, id, toPlanID)
}

// Cancel cancels a subscription. A second call fails with billing.ErrAlreadyCancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (billing.Subscription, error) {
	return s.billing.Cancel(ctx, id, reason)
}

// HandlePaymentResult applies the outcome of a billing attempt.
func (s *Service) HandlePaymentResult(ctx context.Context, res billing.PaymentResult) (billing.Subscription, error) {
	return s.billing.HandlePaymentResult(ctx, res)
}

// HandleWebhook parses a gateway callback and applies it. handled is false
// for events that carry no payment outcome.
func (s *Service) HandleWebhook(ctx context.Context, p billing.WebhookParser, req *http.Request) (billing.Subscription, bool, error) {
	return s.billing.HandleWebhook(ctx, p, req)
}

// ExpireTrials activates every subscription whose trial has ended.
func (s *Service) ExpireTrials(ctx context.Context) (int, error) {
	n, err := s.billing.ExpireTrials(ctx)
	if n > 0 {
		s.logger.InfoContext(ctx, "trials expired", slog.Int("count", n))
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "trial sweep incomplete", logger.Error(err))
	}
	return n, err
}

// Plans lists the plan catalog.
func (s *Service) Plans(ctx context.Context) ([]billing.Plan, error) {
	return s.billing.Plans(ctx)
}

// Wait blocks until background warnings and threshold checks have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// Shutdown waits for background work until ctx is done.
func (s *Service) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
