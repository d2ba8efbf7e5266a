// Package metering is the caller-facing API of meterkit. It composes the quota
// catalog and enforcer, the usage aggregator, recorder and reporter, and the
// billing service on top of a usage store, a billing store and a plan source.
//
// Typical request flow:
//
//	d := svc.Enforce(ctx, tenantID, mtr.ResourceTranscription, minutes)
//	if !d.Allowed {
//		return fmt.Errorf("%s. %s", d.Reason, d.Suggestion)
//	}
//	// ... perform the work ...
//	svc.Record(ctx, tenantID, mtr.ResourceTranscription, minutes, nil)
//
// Enforce never fails and Record never reports errors; both degrade to logs so
// metering can not block the operation being metered. Subscription mutations
// (CreateSubscription, ChangePlan, Cancel, HandlePaymentResult) are strict and
// return billing errors.
//
// The tenant set for ArchiveAll is the union of tenants with a live
// subscription and tenants with recorded usage.
package metering
