// Package async centralizes the fail-soft policy for best-effort work such as
// usage telemetry and threshold notifications.
//
// BestEffort runs a function synchronously and logs instead of returning its
// error. Group runs functions in the background, detached from the caller's
// cancellation and bounded by a timeout, and offers Wait for graceful shutdown:
//
//	g := async.NewGroup(async.WithLogger(log))
//	g.Go(ctx, "usage.threshold_check", func(ctx context.Context) error {
//	    return checker.CheckThresholds(ctx, tenantID)
//	})
//	defer g.Wait()
//
// Neither helper ever propagates an error to the caller. Use them only where
// losing the work is preferable to failing the triggering operation.
package async
