package usage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

type snapshotKey struct {
	tenantID    uuid.UUID
	period      metering.Period
	periodStart int64
}

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu        sync.RWMutex
	events    []Event
	snapshots map[snapshotKey]Snapshot
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots: make(map[snapshotKey]Snapshot),
	}
}

func (s *MemoryStore) Append(_ context.Context, e Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *MemoryStore) Sum(_ context.Context, tenantID uuid.UUID, resources []metering.Resource, from, to time.Time) (metering.Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := metering.NewTotals()
	for _, e := range s.events {
		if e.TenantID != tenantID || !slices.Contains(resources, e.Resource) {
			continue
		}
		if !inWindow(e.OccurredAt, from, to) {
			continue
		}
		totals.Add(e.Resource, e.Quantity)
	}
	return totals, nil
}

func (s *MemoryStore) PurgeBefore(_ context.Context, tenantID uuid.UUID, resources []metering.Resource, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	kept := s.events[:0]
	for _, e := range s.events {
		if e.TenantID == tenantID && slices.Contains(resources, e.Resource) && e.OccurredAt.Before(before) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return purged, nil
}

func (s *MemoryStore) ActiveTenants(_ context.Context, from, to time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, e := range s.events {
		if !inWindow(e.OccurredAt, from, to) {
			continue
		}
		if _, ok := seen[e.TenantID]; ok {
			continue
		}
		seen[e.TenantID] = struct{}{}
		out = append(out, e.TenantID)
	}
	return out, nil
}

func (s *MemoryStore) SaveSnapshot(_ context.Context, snap Snapshot) error {
	key := snapshotKey{snap.TenantID, snap.Period, snap.PeriodStart.UnixNano()}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[key]; ok {
		return ErrSnapshotExists
	}
	s.snapshots[key] = snap
	return nil
}

func (s *MemoryStore) HasSnapshot(_ context.Context, tenantID uuid.UUID, period metering.Period, periodStart time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.snapshots[snapshotKey{tenantID, period, periodStart.UnixNano()}]
	return ok, nil
}

func (s *MemoryStore) ListSnapshots(_ context.Context, tenantID uuid.UUID, period metering.Period, limit int) ([]Snapshot, error) {
	s.mu.RLock()
	var out []Snapshot
	for key, snap := range s.snapshots {
		if key.tenantID == tenantID && key.period == period {
			out = append(out, snap)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b Snapshot) int {
		return b.PeriodStart.Compare(a.PeriodStart)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

func inWindow(at, from, to time.Time) bool {
	if !from.IsZero() && at.Before(from) {
		return false
	}
	if !to.IsZero() && !at.Before(to) {
		return false
	}
	return true
}
