package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/usage"
)

// UsageStore is a usage.Store on PostgreSQL.
type UsageStore struct {
	db DB
}

var _ usage.Store = (*UsageStore)(nil)

// NewUsageStore creates a UsageStore.
func NewUsageStore(db DB) *UsageStore {
	return &UsageStore{db: db}
}

func (s *UsageStore) Append(ctx context.Context, e usage.Event) error {
	if err := e.Validate(); err != nil {
		return err
	}
	metadata := e.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO usage_events (id, tenant_id, resource, quantity, metadata, occurred_at)
		 VALUES ($1, $2, $3, $4::numeric, $5, $6)`,
		e.ID, e.TenantID, string(e.Resource), numeric(e.Quantity), metadata, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage event: %w", err)
	}
	return nil
}

func (s *UsageStore) Sum(ctx context.Context, tenantID uuid.UUID, resources []metering.Resource, from, to time.Time) (metering.Totals, error) {
	rows, err := s.db.Query(ctx,
		`SELECT resource, COALESCE(SUM(quantity), 0)::text
		 FROM usage_events
		 WHERE tenant_id = $1
		   AND resource = ANY($2)
		   AND ($3::timestamptz IS NULL OR occurred_at >= $3)
		   AND ($4::timestamptz IS NULL OR occurred_at < $4)
		 GROUP BY resource`,
		tenantID, resourceNames(resources), nullTime(from), nullTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("sum usage: %w", err)
	}
	defer rows.Close()

	totals := metering.NewTotals()
	for rows.Next() {
		var name, sum string
		if err := rows.Scan(&name, &sum); err != nil {
			return nil, fmt.Errorf("scan usage sum: %w", err)
		}
		q, err := parseNumeric(sum)
		if err != nil {
			return nil, fmt.Errorf("parse usage sum %q: %w", sum, err)
		}
		totals.Add(metering.Resource(name), q)
	}
	return totals, rows.Err()
}

func (s *UsageStore) PurgeBefore(ctx context.Context, tenantID uuid.UUID, resources []metering.Resource, before time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM usage_events WHERE tenant_id = $1 AND resource = ANY($2) AND occurred_at < $3`,
		tenantID, resourceNames(resources), before,
	)
	if err != nil {
		return 0, fmt.Errorf("purge usage events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *UsageStore) ActiveTenants(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT tenant_id FROM usage_events
		 WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		   AND ($2::timestamptz IS NULL OR occurred_at < $2)
		 ORDER BY tenant_id`,
		nullTime(from), nullTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

func (s *UsageStore) SaveSnapshot(ctx context.Context, snap usage.Snapshot) error {
	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO usage_snapshots (id, tenant_id, period, period_start, period_end, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT ON CONSTRAINT usage_snapshots_window_key DO NOTHING`,
		snap.ID, snap.TenantID, string(snap.Period), snap.PeriodStart, snap.PeriodEnd, payload, snap.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return usage.ErrSnapshotExists
	}
	return nil
}

func (s *UsageStore) HasSnapshot(ctx context.Context, tenantID uuid.UUID, period metering.Period, periodStart time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM usage_snapshots WHERE tenant_id = $1 AND period = $2 AND period_start = $3)`,
		tenantID, string(period), periodStart,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check snapshot: %w", err)
	}
	return exists, nil
}

func (s *UsageStore) ListSnapshots(ctx context.Context, tenantID uuid.UUID, period metering.Period, limit int) ([]usage.Snapshot, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx,
		`SELECT payload FROM usage_snapshots
		 WHERE tenant_id = $1 AND period = $2
		 ORDER BY period_start DESC
		 LIMIT $3`,
		tenantID, string(period), lim,
	)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	payloads, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return nil, fmt.Errorf("scan snapshots: %w", err)
	}
	out := make([]usage.Snapshot, 0, len(payloads))
	for _, p := range payloads {
		var snap usage.Snapshot
		if err := json.Unmarshal(p, &snap); err != nil {
			return nil, fmt.Errorf("decode snapshot: %w", err)
		}
		out = append(out, snap)
	}
	return out, nil
}

func resourceNames(resources []metering.Resource) []string {
	names := make([]string, len(resources))
	for i, r := range resources {
		names[i] = string(r)
	}
	return names
}
