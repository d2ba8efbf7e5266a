package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Aggregator sums usage across one or more sources.
//
// Gauges (storage) are summed over all history up to the window end, so a
// tenant is charged for space it still occupies no matter when it uploaded.
// Counters are summed inside [start, end).
type Aggregator struct {
	sources []Source
	logger  *slog.Logger
}

// AggregatorOption configures an Aggregator.
type AggregatorOption func(*Aggregator)

// WithSource adds another record source, for example a legacy table that
// still holds part of the usage history.
func WithSource(s Source) AggregatorOption {
	return func(a *Aggregator) {
		if s != nil {
			a.sources = append(a.sources, s)
		}
	}
}

// WithAggregatorLogger sets the logger.
func WithAggregatorLogger(l *slog.Logger) AggregatorOption {
	return func(a *Aggregator) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAggregator creates an Aggregator over primary and any extra sources.
func NewAggregator(primary Source, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		sources: []Source{primary},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate returns the per-resource totals of tenantID. Every resource is
// present in the result, zero when there was no activity.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID uuid.UUID, start, end time.Time) (metering.Totals, error) {
	if tenantID == uuid.Nil {
		return nil, ErrInvalidTenant
	}
	if !start.IsZero() && !end.After(start) {
		return nil, ErrInvalidWindow
	}

	var gauges, counters []metering.Resource
	for _, r := range metering.AllResources() {
		if r.IsGauge() {
			gauges = append(gauges, r)
		} else {
			counters = append(counters, r)
		}
	}

	totals := metering.NewTotals()
	for _, src := range a.sources {
		g, err := src.Sum(ctx, tenantID, gauges, time.Time{}, end)
		if err != nil {
			return nil, errors.Join(ErrFailedToAggregate, err)
		}
		c, err := src.Sum(ctx, tenantID, counters, start, end)
		if err != nil {
			return nil, errors.Join(ErrFailedToAggregate, err)
		}
		for _, r := range gauges {
			totals.Add(r, g.Get(r))
		}
		for _, r := range counters {
			totals.Add(r, c.Get(r))
		}
	}

	for _, r := range gauges {
		if totals.Get(r).IsNegative() {
			a.logger.WarnContext(ctx, "gauge total is negative, clamping to zero",
				logger.TenantID(tenantID),
				logger.Resource(r.String()),
				slog.String("total", totals.Get(r).String()),
			)
			totals[r] = decimal.Zero
		}
	}

	return totals, nil
}
