package usage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

// Source sums usage from one underlying record source. A zero from means
// "since the beginning"; to is exclusive.
type Source interface {
	Sum(ctx context.Context, tenantID uuid.UUID, resources []metering.Resource, from, to time.Time) (metering.Totals, error)
}

// EventStore persists usage events.
type EventStore interface {
	Source
	Append(ctx context.Context, e Event) error
	// PurgeBefore deletes events of the given resources that occurred before the cutoff.
	PurgeBefore(ctx context.Context, tenantID uuid.UUID, resources []metering.Resource, before time.Time) (int64, error)
	// ActiveTenants lists tenants with at least one event in [from, to).
	ActiveTenants(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

// SnapshotStore persists archived reports. SaveSnapshot returns
// ErrSnapshotExists when (tenant, period, period start) is already stored.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, s Snapshot) error
	HasSnapshot(ctx context.Context, tenantID uuid.UUID, period metering.Period, periodStart time.Time) (bool, error)
	// ListSnapshots returns at most limit snapshots, newest period first.
	ListSnapshots(ctx context.Context, tenantID uuid.UUID, period metering.Period, limit int) ([]Snapshot, error)
}

// Store is everything the package persists.
type Store interface {
	EventStore
	SnapshotStore
}

// TenantLister yields the tenants archival should cover.
type TenantLister interface {
	ListActiveTenants(ctx context.Context) ([]uuid.UUID, error)
}

// TenantListerFunc adapts a function to TenantLister.
type TenantListerFunc func(ctx context.Context) ([]uuid.UUID, error)

func (f TenantListerFunc) ListActiveTenants(ctx context.Context) ([]uuid.UUID, error) {
	return f(ctx)
}

// UnionTenants merges the results of several listers without duplicates.
// Any lister error fails the whole call.
func UnionTenants(listers ...TenantLister) TenantLister {
	return TenantListerFunc(func(ctx context.Context) ([]uuid.UUID, error) {
		seen := make(map[uuid.UUID]struct{})
		var out []uuid.UUID
		for _, l := range listers {
			ids, err := l.ListActiveTenants(ctx)
			if err != nil {
				return nil, err
			}
			for _, id := range ids {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				out = append(out, id)
			}
		}
		return out, nil
	})
}
