// Package pg opens the PostgreSQL pool meterkit stores run on and applies the
// schema.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, pgstore.Migrations(), log); err != nil {
//		return err
//	}
//
// Config is read from PG_* variables. IsConstraintViolation lets stores map a
// named unique index (one live subscription per tenant, one payment per
// transaction id) to a domain error.
package pg
