package usage

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/meterkit/pkg/async"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/quota"
)

// ThresholdChecker runs the post-record warning check. *quota.Enforcer implements it.
type ThresholdChecker interface {
	CheckThresholds(ctx context.Context, tenantID uuid.UUID) ([]quota.Warning, error)
}

// Recorder appends usage events.
type Recorder struct {
	store      EventStore
	checker    ThresholdChecker
	background *async.Group
	metrics    *Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithThresholdChecker enables the background warning check after each append.
func WithThresholdChecker(c ThresholdChecker) RecorderOption {
	return func(r *Recorder) {
		r.checker = c
	}
}

// WithRecorderBackground sets the group background checks run on.
func WithRecorderBackground(g *async.Group) RecorderOption {
	return func(r *Recorder) {
		if g != nil {
			r.background = g
		}
	}
}

// WithRecorderMetrics enables recorded/dropped counters.
func WithRecorderMetrics(m *Metrics) RecorderOption {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRecorderClock overrides the event timestamp source.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRecorder creates a Recorder.
func NewRecorder(store EventStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.background == nil {
		r.background = async.NewGroup(async.WithLogger(r.logger))
	}
	return r
}

// Record appends a usage event. It never fails the caller: invalid input and
// store errors are logged and the event is dropped.
func (r *Recorder) Record(ctx context.Context, tenantID uuid.UUID, resource metering.Resource, quantity decimal.Decimal, metadata map[string]string) {
	e := NewEvent(tenantID, resource, quantity, metadata, r.now())
	if !r.append(ctx, e) {
		return
	}
	r.checkThresholds(ctx, tenantID)
}

// Correct appends a compensating event. The quantity may be negative, which
// is how storage is released. Unlike Record it reports failures.
func (r *Recorder) Correct(ctx context.Context, tenantID uuid.UUID, resource metering.Resource, quantity decimal.Decimal, reason string) error {
	meta := map[string]string{MetaCorrection: "true"}
	if reason != "" {
		meta[MetaReason] = reason
	}

	e := NewEvent(tenantID, resource, quantity, meta, r.now())
	if err := e.Validate(); err != nil {
		return err
	}
	if err := r.store.Append(ctx, e); err != nil {
		r.metrics.dropped(resource.String())
		return err
	}

	r.metrics.recorded(resource.String())
	r.checkThresholds(ctx, tenantID)
	return nil
}

// Wait blocks until background threshold checks have finished.
func (r *Recorder) Wait() {
	r.background.Wait()
}

func (r *Recorder) append(ctx context.Context, e Event) bool {
	log := r.logger.With(logger.TenantID(e.TenantID), logger.Resource(e.Resource.String()))

	ok := async.BestEffort(ctx, log, "usage.record", func(ctx context.Context) error {
		if err := e.Validate(); err != nil {
			return err
		}
		return r.store.Append(ctx, e)
	})
	if !ok {
		r.metrics.dropped(e.Resource.String())
		return false
	}

	r.metrics.recorded(e.Resource.String())
	return true
}

func (r *Recorder) checkThresholds(ctx context.Context, tenantID uuid.UUID) {
	if r.checker == nil {
		return
	}
	r.background.Go(ctx, "usage.threshold_check", func(ctx context.Context) error {
		_, err := r.checker.CheckThresholds(ctx, tenantID)
		return err
	})
}
