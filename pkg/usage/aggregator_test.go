package usage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

var (
	marchStart = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	aprilStart = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
)

func appendEvent(t *testing.T, s *usage.MemoryStore, tenantID uuid.UUID, r metering.Resource, q int64, at time.Time) {
	t.Helper()
	require.NoError(t, s.Append(context.Background(), usage.NewEvent(tenantID, r, decimal.NewFromInt(q), nil, at)))
}

func appendCorrection(t *testing.T, s *usage.MemoryStore, tenantID uuid.UUID, r metering.Resource, q int64, at time.Time) {
	t.Helper()
	e := usage.NewEvent(tenantID, r, decimal.NewFromInt(q), map[string]string{usage.MetaCorrection: "true"}, at)
	require.NoError(t, s.Append(context.Background(), e))
}

type failingSource struct{ err error }

func (f failingSource) Sum(context.Context, uuid.UUID, []metering.Resource, time.Time, time.Time) (metering.Totals, error) {
	return nil, f.err
}

func TestAggregator_Aggregate(t *testing.T) {
	t.Parallel()

	t.Run("storage is a gauge and counters are windowed", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		tenantID := uuid.New()

		appendEvent(t, store, tenantID, metering.ResourceStorage, 500, marchStart.AddDate(0, -2, 0))
		appendEvent(t, store, tenantID, metering.ResourceStorage, 300, marchStart.AddDate(0, 0, 3))
		appendEvent(t, store, tenantID, metering.ResourceAPICalls, 10, marchStart.AddDate(0, -1, 0))
		appendEvent(t, store, tenantID, metering.ResourceAPICalls, 7, marchStart.AddDate(0, 0, 1))
		appendEvent(t, store, tenantID, metering.ResourceAPICalls, 4, aprilStart)

		agg := usage.NewAggregator(store)
		totals, err := agg.Aggregate(context.Background(), tenantID, marchStart, aprilStart)
		require.NoError(t, err)

		assert.Equal(t, "800", totals.Get(metering.ResourceStorage).String())
		assert.Equal(t, "7", totals.Get(metering.ResourceAPICalls).String())
	})

	t.Run("every resource is present", func(t *testing.T) {
		t.Parallel()

		agg := usage.NewAggregator(usage.NewMemoryStore())
		totals, err := agg.Aggregate(context.Background(), uuid.New(), marchStart, aprilStart)
		require.NoError(t, err)

		for _, r := range metering.AllResources() {
			v, ok := totals[r]
			require.True(t, ok, "missing %s", r)
			assert.True(t, v.IsZero())
		}
	})

	t.Run("deletions reduce storage", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		tenantID := uuid.New()
		appendEvent(t, store, tenantID, metering.ResourceStorage, 1000, marchStart)
		appendCorrection(t, store, tenantID, metering.ResourceStorage, -400, marchStart.Add(time.Hour))

		totals, err := usage.NewAggregator(store).Aggregate(context.Background(), tenantID, marchStart, aprilStart)
		require.NoError(t, err)
		assert.Equal(t, "600", totals.Get(metering.ResourceStorage).String())
	})

	t.Run("negative storage is clamped", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		tenantID := uuid.New()
		appendCorrection(t, store, tenantID, metering.ResourceStorage, -10, marchStart)

		totals, err := usage.NewAggregator(store).Aggregate(context.Background(), tenantID, marchStart, aprilStart)
		require.NoError(t, err)
		assert.True(t, totals.Get(metering.ResourceStorage).IsZero())
	})

	t.Run("sums additional sources", func(t *testing.T) {
		t.Parallel()

		tenantID := uuid.New()
		primary := usage.NewMemoryStore()
		legacy := usage.NewMemoryStore()
		appendEvent(t, primary, tenantID, metering.ResourceTranscription, 12, marchStart)
		appendEvent(t, legacy, tenantID, metering.ResourceTranscription, 8, marchStart)

		totals, err := usage.NewAggregator(primary, usage.WithSource(legacy)).
			Aggregate(context.Background(), tenantID, marchStart, aprilStart)
		require.NoError(t, err)
		assert.Equal(t, "20", totals.Get(metering.ResourceTranscription).String())
	})

	t.Run("isolates tenants", func(t *testing.T) {
		t.Parallel()

		store := usage.NewMemoryStore()
		a, b := uuid.New(), uuid.New()
		appendEvent(t, store, a, metering.ResourceAITokens, 100, marchStart)
		appendEvent(t, store, b, metering.ResourceAITokens, 900, marchStart)

		totals, err := usage.NewAggregator(store).Aggregate(context.Background(), a, marchStart, aprilStart)
		require.NoError(t, err)
		assert.Equal(t, "100", totals.Get(metering.ResourceAITokens).String())
	})

	t.Run("validates arguments", func(t *testing.T) {
		t.Parallel()

		agg := usage.NewAggregator(usage.NewMemoryStore())

		_, err := agg.Aggregate(context.Background(), uuid.Nil, marchStart, aprilStart)
		require.ErrorIs(t, err, usage.ErrInvalidTenant)

		_, err = agg.Aggregate(context.Background(), uuid.New(), aprilStart, marchStart)
		require.ErrorIs(t, err, usage.ErrInvalidWindow)
	})

	t.Run("wraps source errors", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("db down")
		_, err := usage.NewAggregator(failingSource{err: boom}).
			Aggregate(context.Background(), uuid.New(), marchStart, aprilStart)
		require.ErrorIs(t, err, usage.ErrFailedToAggregate)
		require.ErrorIs(t, err, boom)
	})
}

func TestEvent_Validate(t *testing.T) {
	t.Parallel()

	tenantID := uuid.New()
	tests := []struct {
		name    string
		event   usage.Event
		wantErr error
	}{
		{
			name:  "positive usage",
			event: usage.NewEvent(tenantID, metering.ResourceAPICalls, decimal.NewFromInt(1), nil, marchStart),
		},
		{
			name:    "missing tenant",
			event:   usage.NewEvent(uuid.Nil, metering.ResourceAPICalls, decimal.NewFromInt(1), nil, marchStart),
			wantErr: usage.ErrInvalidTenant,
		},
		{
			name:    "unknown resource",
			event:   usage.NewEvent(tenantID, metering.Resource("gpu"), decimal.NewFromInt(1), nil, marchStart),
			wantErr: metering.ErrUnknownResource,
		},
		{
			name:    "negative usage without correction",
			event:   usage.NewEvent(tenantID, metering.ResourceStorage, decimal.NewFromInt(-5), nil, marchStart),
			wantErr: usage.ErrInvalidQuantity,
		},
		{
			name:    "zero usage",
			event:   usage.NewEvent(tenantID, metering.ResourceStorage, decimal.Zero, nil, marchStart),
			wantErr: usage.ErrInvalidQuantity,
		},
		{
			name:  "negative correction",
			event: usage.NewEvent(tenantID, metering.ResourceStorage, decimal.NewFromInt(-5), map[string]string{usage.MetaCorrection: "true"}, marchStart),
		},
		{
			name:    "zero correction",
			event:   usage.NewEvent(tenantID, metering.ResourceStorage, decimal.Zero, map[string]string{usage.MetaCorrection: "true"}, marchStart),
			wantErr: usage.ErrZeroCorrection,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.event.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestUnionTenants(t *testing.T) {
	t.Parallel()

	a, b, c := uuid.New(), uuid.New(), uuid.New()
	first := usage.TenantListerFunc(func(context.Context) ([]uuid.UUID, error) { return []uuid.UUID{a, b}, nil })
	second := usage.TenantListerFunc(func(context.Context) ([]uuid.UUID, error) { return []uuid.UUID{b, c}, nil })

	ids, err := usage.UnionTenants(first, second).ListActiveTenants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b, c}, ids)

	boom := errors.New("boom")
	failing := usage.TenantListerFunc(func(context.Context) ([]uuid.UUID, error) { return nil, boom })
	_, err = usage.UnionTenants(first, failing).ListActiveTenants(context.Background())
	require.ErrorIs(t, err, boom)
}
