// Package statemachine is a typed transition table for entities whose state
// lives in storage.
//
// A Table holds rules, never a current state. Callers load the entity, Fire
// the event with the stored state and persist the returned one:
//
//	type status string
//	type event string
//
//	table := statemachine.MustNew(
//		statemachine.Rule[status, event, *Sub]{From: "past_due", On: "payment_failed", To: "cancelled", When: tooManyFailures},
//		statemachine.Rule[status, event, *Sub]{From: "past_due", On: "payment_failed", To: "past_due"},
//	)
//	next, err := table.Fire(ctx, sub.Status, "payment_failed", sub)
//
// Rules sharing a state and event are tried in order; the first whose guard
// passes is taken. errors.Is distinguishes ErrUndefined (no rule) from
// ErrRejected (every guard refused) and ErrAction (an action failed).
package statemachine
