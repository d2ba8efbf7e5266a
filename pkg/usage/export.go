package usage

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/meterkit/pkg/metering"
)

var csvHeader = []string{
	"tenant_id", "plan_id", "period", "period_start", "period_end",
	"resource", "unit", "usage", "limit", "percent_used", "cost", "currency",
}

// WriteCSV writes one row per snapshot and resource.
func WriteCSV(w io.Writer, snaps []Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for _, s := range snaps {
		for _, r := range metering.AllResources() {
			limit := metering.LimitedInt(0)
			if l, ok := s.Limits[r]; ok {
				limit = l
			}
			cost := s.Costs[r]
			row := []string{
				s.TenantID.String(),
				s.PlanID,
				string(s.Period),
				s.PeriodStart.Format(time.RFC3339),
				s.PeriodEnd.Format(time.RFC3339),
				r.String(),
				r.Unit(),
				s.Usage.Get(r).String(),
				limit.String(),
				strconv.FormatFloat(s.PercentUsed[r], 'f', 2, 64),
				cost.StringFixed(2),
				s.Currency,
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

// ExportCSV writes up to limit archived snapshots of tenantID as CSV, newest first.
func (r *Reporter) ExportCSV(ctx context.Context, w io.Writer, tenantID uuid.UUID, period metering.Period, limit int) error {
	snaps, err := r.HistoricalReports(ctx, tenantID, period, limit)
	if err != nil {
		return err
	}
	return WriteCSV(w, snaps)
}
