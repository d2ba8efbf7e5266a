package usage_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/quota"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

type brokenStore struct {
	*usage.MemoryStore
	err error
}

func (s brokenStore) Append(context.Context, usage.Event) error {
	return s.err
}

type countingChecker struct {
	calls atomic.Int32
	err   error
}

func (c *countingChecker) CheckThresholds(context.Context, uuid.UUID) ([]quota.Warning, error) {
	c.calls.Add(1)
	return nil, c.err
}

func TestRecorder_Record(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("appends and triggers threshold check", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		checker := &countingChecker{}
		m, err := usage.NewMetrics(nil)
		require.NoError(t, err)

		rec := usage.NewRecorder(store,
			usage.WithThresholdChecker(checker),
			usage.WithRecorderMetrics(m),
			usage.WithRecorderClock(func() time.Time { return now }),
		)

		tenantID := uuid.New()
		rec.Record(context.Background(), tenantID, metering.ResourceAPICalls, decimal.NewFromInt(1), map[string]string{"endpoint": "/v1/jobs"})
		rec.Wait()

		assert.Equal(t, 1, store.Len())
		assert.Equal(t, int32(1), checker.calls.Load())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Recorded.WithLabelValues("apiCalls")))

		totals, err := store.Sum(context.Background(), tenantID, metering.AllResources(), time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, "1", totals.Get(metering.ResourceAPICalls).String())
	})

	t.Run("swallows store failures", func(t *testing.T) {
		t.Parallel()

		checker := &countingChecker{}
		m, err := usage.NewMetrics(nil)
		require.NoError(t, err)

		rec := usage.NewRecorder(brokenStore{MemoryStore: usage.NewMemoryStore(), err: errors.New("db down")},
			usage.WithThresholdChecker(checker),
			usage.WithRecorderMetrics(m),
		)

		assert.NotPanics(t, func() {
			rec.Record(context.Background(), uuid.New(), metering.ResourceStorage, decimal.NewFromInt(1024), nil)
		})
		rec.Wait()

		assert.Zero(t, checker.calls.Load())
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Dropped.WithLabelValues("storage")))
	})

	t.Run("drops invalid input", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		rec := usage.NewRecorder(store)

		rec.Record(context.Background(), uuid.New(), metering.ResourceStorage, decimal.NewFromInt(-1), nil)
		rec.Record(context.Background(), uuid.New(), metering.Resource("gpu"), decimal.NewFromInt(1), nil)
		rec.Record(context.Background(), uuid.Nil, metering.ResourceAPICalls, decimal.NewFromInt(1), nil)

		assert.Zero(t, store.Len())
	})

	t.Run("threshold check failures are swallowed", func(t *testing.T) {
		t.Parallel()

		checker := &countingChecker{err: errors.New("notifier down")}
		rec := usage.NewRecorder(usage.NewMemoryStore(), usage.WithThresholdChecker(checker))

		rec.Record(context.Background(), uuid.New(), metering.ResourceAITokens, decimal.NewFromInt(10), nil)
		rec.Wait()

		assert.Equal(t, int32(1), checker.calls.Load())
	})
}

func TestRecorder_Correct(t *testing.T) {
	t.Parallel()

	t.Run("releases storage", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		rec := usage.NewRecorder(store)
		tenantID := uuid.New()

		rec.Record(context.Background(), tenantID, metering.ResourceStorage, decimal.NewFromInt(4096), nil)
		require.NoError(t, rec.Correct(context.Background(), tenantID, metering.ResourceStorage, decimal.NewFromInt(-1024), "file deleted"))

		totals, err := usage.NewAggregator(store).Aggregate(context.Background(), tenantID, time.Time{}, time.Now().Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "3072", totals.Get(metering.ResourceStorage).String())
	})

	t.Run("rejects zero corrections", func(t *testing.T) {
		t.Parallel()

		rec := usage.NewRecorder(usage.NewMemoryStore())
		err := rec.Correct(context.Background(), uuid.New(), metering.ResourceAPICalls, decimal.Zero, "noop")
		require.ErrorIs(t, err, usage.ErrZeroCorrection)
	})

	t.Run("reports store failures", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("db down")
		rec := usage.NewRecorder(brokenStore{MemoryStore: usage.NewMemoryStore(), err: boom})
		err := rec.Correct(context.Background(), uuid.New(), metering.ResourceAPICalls, decimal.NewFromInt(-3), "refund")
		require.ErrorIs(t, err, boom)
	})
}
