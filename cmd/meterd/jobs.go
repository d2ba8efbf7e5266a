package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/scheduler"
	"github.com/dmitrymomot/meterkit/svc/metering"
)

const (
	jobArchive      = "usage.archive"
	jobExpireTrials = "billing.expire_trials"
	jobPurgeNotices = "notifications.purge"
)

// expiredPurger deletes expired notifications. *pgstore.NotificationStore implements it.
type expiredPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// registerJobs adds the maintenance jobs: archival at 00:05 UTC on the first
// of the month, the trial sweep every hour and the notification purge daily.
func registerJobs(s *scheduler.Scheduler, svc *metering.Service, notices expiredPurger, log *slog.Logger) error {
	err := s.AddJob(jobArchive, scheduler.MonthlyOn(1, 0, 5), func(ctx context.Context) error {
		res, err := svc.ArchiveAll(ctx)
		if err != nil {
			return err
		}
		if n := res.Failed(); n > 0 {
			for tenantID, terr := range res.Failures {
				log.WarnContext(ctx, "tenant not archived", logger.TenantID(tenantID), logger.Error(terr))
			}
			return fmt.Errorf("%d of %d tenants not archived", n, n+res.Archived+res.Skipped)
		}
		return nil
	}, scheduler.WithTimeout(time.Hour))
	if err != nil {
		return err
	}

	err = s.AddJob(jobExpireTrials, scheduler.HourlyAt(0), func(ctx context.Context) error {
		_, err := svc.ExpireTrials(ctx)
		return err
	}, scheduler.WithTimeout(10*time.Minute))
	if err != nil {
		return err
	}

	if notices == nil {
		return nil
	}
	return s.AddJob(jobPurgeNotices, scheduler.DailyAt(3, 30), func(ctx context.Context) error {
		n, err := notices.PurgeExpired(ctx)
		if n > 0 {
			log.InfoContext(ctx, "expired notifications purged", slog.Int64("count", n))
		}
		return err
	})
}
