// Package usage records metered consumption and turns it into totals, reports
// and archived snapshots.
//
// Events are append-only. Corrections are new events with a negative quantity
// (Recorder.Correct), which is also how storage is released when objects are
// deleted: storage is a gauge whose level is the sum of every storage event,
// while all other resources are counters summed inside a window.
//
// Recording is best-effort. Recorder.Record never returns an error; a failed
// append is logged, counted and dropped so the business operation that
// produced the usage is never aborted by it. After a successful append the
// recorder runs a threshold check in the background.
//
// Reporter builds point-in-time reports, archives monthly snapshots for every
// active tenant and answers historical and trend queries. Archival is
// idempotent per (tenant, period, period start): existing snapshots are
// skipped and a failure for one tenant never stops the others.
package usage
