// Package pgstore implements usage.Store, billing.Store and
// notifications.Storage on PostgreSQL with pgx/v5.
//
// Quantities and money are NUMERIC columns. They cross the driver as text
// and are parsed with shopspring/decimal, so no value passes through a float.
//
// Billing writes run in a transaction that locks the subscription row with
// SELECT ... FOR UPDATE. The unique index on payments.transaction_id makes a
// repeated payment result a no-op even across replicas, and a partial unique
// index allows one non-cancelled subscription per tenant.
//
// The schema ships as goose migrations; apply them with
//
//	pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), log)
package pgstore
