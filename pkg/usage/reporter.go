package usage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/meterkit/pkg/async"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/quota"
)

// UsageAggregator is implemented by *Aggregator.
type UsageAggregator interface {
	Aggregate(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (metering.Totals, error)
}

// ArchiveSink stores the CSV export of an archival run.
type ArchiveSink interface {
	Put(ctx context.Context, key string, body []byte) error
}

// ArchiveResult summarizes one archival run.
type ArchiveResult struct {
	Period      metering.Period
	PeriodStart time.Time
	PeriodEnd   time.Time
	Archived    int
	Skipped     int
	Purged      int64
	Failures    map[uuid.UUID]error
}

// Failed returns the number of tenants that could not be archived.
func (r ArchiveResult) Failed() int {
	return len(r.Failures)
}

// Reporter builds usage reports and archives them.
type Reporter struct {
	aggregator  UsageAggregator
	resolver    quota.Resolver
	snapshots   SnapshotStore
	events      EventStore
	tenants     TenantLister
	sink        ArchiveSink
	pricing     Pricing
	concurrency int
	purge       bool
	metrics     *Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithPricing replaces the default price table. NewReporter validates it.
func WithPricing(p Pricing) ReporterOption {
	return func(r *Reporter) {
		r.pricing = p
	}
}

// WithTenantLister sets the tenants ArchiveAll iterates.
func WithTenantLister(l TenantLister) ReporterOption {
	return func(r *Reporter) {
		r.tenants = l
	}
}

// WithArchiveSink uploads the CSV of every archival run.
func WithArchiveSink(s ArchiveSink) ReporterOption {
	return func(r *Reporter) {
		r.sink = s
	}
}

// WithConcurrency bounds how many tenants ArchiveAll processes at once.
func WithConcurrency(n int) ReporterOption {
	return func(r *Reporter) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// WithCounterPurge deletes counter events of an archived window once its
// snapshot is stored. Storage events are never purged since they define the
// current gauge level. Requires an EventStore.
func WithCounterPurge(events EventStore) ReporterOption {
	return func(r *Reporter) {
		if events != nil {
			r.events = events
			r.purge = true
		}
	}
}

// WithReporterMetrics enables archival outcome counters.
func WithReporterMetrics(m *Metrics) ReporterOption {
	return func(r *Reporter) {
		r.metrics = m
	}
}

// WithReporterLogger sets the logger.
func WithReporterLogger(l *slog.Logger) ReporterOption {
	return func(r *Reporter) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithReporterClock overrides the time source.
func WithReporterClock(now func() time.Time) ReporterOption {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReporter creates a Reporter.
func NewReporter(aggregator UsageAggregator, resolver quota.Resolver, snapshots SnapshotStore, opts ...ReporterOption) (*Reporter, error) {
	r := &Reporter{
		aggregator:  aggregator,
		resolver:    resolver,
		snapshots:   snapshots,
		pricing:     DefaultPricing(),
		concurrency: 4,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.pricing.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// GenerateReport builds a report for the period window containing now.
// The report is not persisted.
func (r *Reporter) GenerateReport(ctx context.Context, tenantID uuid.UUID, period metering.Period) (Snapshot, error) {
	return r.ReportAt(ctx, tenantID, period, r.now())
}

// ReportAt builds a report for the period window containing at.
func (r *Reporter) ReportAt(ctx context.Context, tenantID uuid.UUID, period metering.Period, at time.Time) (Snapshot, error) {
	start, end, err := period.Bounds(at)
	if err != nil {
		return Snapshot{}, err
	}

	ent, err := r.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return Snapshot{}, err
	}
	return r.report(ctx, tenantID, period, start, end, ent)
}

func (r *Reporter) report(ctx context.Context, tenantID uuid.UUID, period metering.Period, start, end time.Time, ent quota.Entitlement) (Snapshot, error) {
	totals, err := r.aggregator.Aggregate(ctx, tenantID, start, end)
	if err != nil {
		return Snapshot{}, err
	}

	limits := make(map[metering.Resource]metering.Limit, len(ent.Limits))
	percent := make(map[metering.Resource]float64, len(ent.Limits))
	for _, res := range metering.AllResources() {
		l := ent.Limit(res)
		limits[res] = l
		percent[res] = l.Percent(totals.Get(res))
	}

	costs, total := r.pricing.Breakdown(totals)

	return Snapshot{
		ID:          uuid.New(),
		TenantID:    tenantID,
		PlanID:      ent.PlanID,
		Period:      period,
		PeriodStart: start,
		PeriodEnd:   end,
		Usage:       totals,
		Limits:      limits,
		PercentUsed: percent,
		Costs:       costs,
		TotalCost:   total,
		Currency:    r.pricing.Currency,
		CreatedAt:   r.now().UTC(),
	}, nil
}

// ArchiveAll archives the monthly window that ended most recently.
func (r *Reporter) ArchiveAll(ctx context.Context) (ArchiveResult, error) {
	start, _, err := metering.PeriodMonthly.Previous(r.now())
	if err != nil {
		return ArchiveResult{}, err
	}
	return r.ArchivePeriod(ctx, metering.PeriodMonthly, start)
}

// ArchivePeriod stores a snapshot of the period window containing at for every
// active tenant. Tenants that already have one are skipped. Per-tenant failures
// are collected in the result and never abort the run; the returned error is
// reserved for failures that prevent the run from starting.
func (r *Reporter) ArchivePeriod(ctx context.Context, period metering.Period, at time.Time) (ArchiveResult, error) {
	start, end, err := period.Bounds(at)
	if err != nil {
		return ArchiveResult{}, err
	}
	if r.tenants == nil {
		return ArchiveResult{}, ErrFailedToListTenant
	}

	tenants, err := r.tenants.ListActiveTenants(ctx)
	if err != nil {
		return ArchiveResult{}, errors.Join(ErrFailedToListTenant, err)
	}

	res := ArchiveResult{
		Period:      period,
		PeriodStart: start,
		PeriodEnd:   end,
		Failures:    make(map[uuid.UUID]error),
	}

	var (
		mu       sync.Mutex
		archived []Snapshot
		g        errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for _, tenantID := range tenants {
		g.Go(func() error {
			snap, skipped, purged, err := r.archiveTenant(ctx, tenantID, period, start, end)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Failures[tenantID] = err
				r.metrics.archived(OutcomeFailed)
				r.logger.ErrorContext(ctx, "failed to archive tenant usage",
					logger.TenantID(tenantID),
					logger.Error(err),
				)
			case skipped:
				res.Skipped++
				r.metrics.archived(OutcomeSkipped)
			default:
				res.Archived++
				res.Purged += purged
				archived = append(archived, snap)
				r.metrics.archived(OutcomeArchived)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.InfoContext(ctx, "usage archival finished",
		slog.String("period", string(period)),
		slog.Time("period_start", start),
		slog.Int("archived", res.Archived),
		slog.Int("skipped", res.Skipped),
		slog.Int("failed", res.Failed()),
	)

	if r.sink != nil && len(archived) > 0 {
		key := archiveKey(period, start)
		async.BestEffort(ctx, r.logger, "usage.archive_upload", func(ctx context.Context) error {
			var buf bytes.Buffer
			if err := WriteCSV(&buf, archived); err != nil {
				return err
			}
			return r.sink.Put(ctx, key, buf.Bytes())
		})
	}

	return res, nil
}

func (r *Reporter) archiveTenant(ctx context.Context, tenantID uuid.UUID, period metering.Period, start, end time.Time) (snap Snapshot, skipped bool, purged int64, err error) {
	exists, err := r.snapshots.HasSnapshot(ctx, tenantID, period, start)
	if err != nil {
		return Snapshot{}, false, 0, err
	}
	if exists {
		return Snapshot{}, true, 0, nil
	}

	ent, err := r.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return Snapshot{}, false, 0, err
	}
	snap, err = r.report(ctx, tenantID, period, start, end, ent)
	if err != nil {
		return Snapshot{}, false, 0, err
	}

	if err := r.snapshots.SaveSnapshot(ctx, snap); err != nil {
		if errors.Is(err, ErrSnapshotExists) {
			return Snapshot{}, true, 0, nil
		}
		return Snapshot{}, false, 0, errors.Join(ErrFailedToSave, err)
	}

	if r.purge && period == metering.PeriodMonthly {
		purged, err = r.purgeCounters(ctx, tenantID, purgeCutoff(end, ent))
		if err != nil {
			r.logger.WarnContext(ctx, "failed to purge archived counter events",
				logger.TenantID(tenantID),
				logger.Error(err),
			)
		}
	}

	return snap, false, purged, nil
}

// purgeCutoff keeps every event of the tenant's current enforcement window.
// A billing period that started before the archived month ended still counts
// those events against its limits.
func purgeCutoff(end time.Time, ent quota.Entitlement) time.Time {
	if !ent.PeriodStart.IsZero() && ent.PeriodStart.Before(end) {
		return ent.PeriodStart
	}
	return end
}

func (r *Reporter) purgeCounters(ctx context.Context, tenantID uuid.UUID, before time.Time) (int64, error) {
	var counters []metering.Resource
	for _, res := range metering.AllResources() {
		if !res.IsGauge() {
			counters = append(counters, res)
		}
	}
	return r.events.PurgeBefore(ctx, tenantID, counters, before)
}

// HistoricalReports returns up to limit archived snapshots, newest first.
func (r *Reporter) HistoricalReports(ctx context.Context, tenantID uuid.UUID, period metering.Period, limit int) ([]Snapshot, error) {
	if !period.Valid() {
		return nil, metering.ErrUnknownPeriod
	}
	return r.snapshots.ListSnapshots(ctx, tenantID, period, limit)
}

// TrendAnalysis compares the two most recent monthly snapshots. months bounds
// how many snapshots are returned alongside the comparison and is raised to
// two when smaller.
func (r *Reporter) TrendAnalysis(ctx context.Context, tenantID uuid.UUID, months int) (Trend, error) {
	months = max(months, 2)

	snaps, err := r.snapshots.ListSnapshots(ctx, tenantID, metering.PeriodMonthly, months)
	if err != nil {
		return Trend{}, err
	}

	t := Trend{TenantID: tenantID, Snapshots: snaps}
	if len(snaps) < 2 {
		return t, nil
	}

	cur, prev := snaps[0], snaps[1]
	t.Sufficient = true
	t.Growth = make(map[metering.Resource]Growth, len(metering.AllResources()))
	for _, res := range metering.AllResources() {
		t.Growth[res] = growth(prev.Usage.Get(res), cur.Usage.Get(res))
	}
	return t, nil
}

func archiveKey(period metering.Period, start time.Time) string {
	return fmt.Sprintf("usage/%s/%s.csv", period, start.Format("2006-01-02"))
}
