// Package quota resolves a tenant's entitlements and decides whether a metered
// operation may proceed.
//
// The Catalog maps a tenant to the limits of the plan it is currently entitled
// to (an active or trialing subscription) and falls back to a fixed free tier
// when there is none. Having no subscription is never an error.
//
// The Enforcer combines an entitlement with current usage from an Aggregator:
//
//	projected := current + increment
//	exceeded  := projected > limit
//	percent   := projected / limit * 100   // not clamped, may exceed 100
//
// Check returns the raw numbers and propagates infrastructure errors. Enforce
// turns them into a Decision value and never returns an error.
//
// # Fail-open policy
//
// Enforce deliberately fails open: when the catalog or the aggregator cannot be
// reached, the operation is allowed and the failure is logged and counted.
// Availability of the metered operation wins over quota accuracy, because the
// usage plane is observability, not authority. Decision.FailedOpen marks such
// decisions so callers can tell them apart.
//
// Invalid arguments are not outages. An unknown resource or a negative
// increment is denied with the validation error as Decision.Reason, leaves
// FailedOpen false and is counted with the "invalid" outcome.
//
// # Soft limits
//
// Enforce and the usage recorder are independent steps. Two concurrent requests
// can both pass Enforce against the same pre-increment total and then both
// record, overshooting the quota. This is accepted: quotas here are soft
// business limits, not hard resource caps, and the next request after the
// overshoot is denied. Closing the race would need an atomic reserve/commit
// counter, which this package intentionally does not implement.
//
// # Threshold warnings
//
// When the projected percentage lands in [80, 100], Enforce emits a Warning to
// the configured Notifier in the background. Warnings are emitted on every
// qualifying call; de-duplication is the notifier's responsibility (see
// notifications.RedisDeduper).
package quota
