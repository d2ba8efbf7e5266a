// Package scheduler runs periodic maintenance jobs in process: monthly usage
// archival and the trial-expiry sweep.
//
// Schedules are evaluated in UTC. A job whose previous run is still going is
// not started again, and runs missed while the process was down are not
// replayed; the archival and sweep jobs are idempotent and catch up on their
// next run.
//
// Every run claims a named lock for the job's timeout. The default
// MemoryLocker only coordinates one process; pass a redis.Locker with
// WithLocker when several replicas run the scheduler.
//
//	s := scheduler.New(scheduler.WithLocker(redis.NewLocker(rdb, "meterkit:")))
//	_ = s.AddJob("usage.archive", scheduler.MonthlyOn(1, 0, 5), archive)
//	_ = s.AddJob("billing.expire_trials", scheduler.HourlyAt(0), sweep)
//	go s.Start(ctx)
package scheduler
