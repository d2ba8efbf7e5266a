package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrEmptyConnectionString = errors.New("pg: PG_CONN_URL is empty")
	ErrInvalidConfig         = errors.New("pg: invalid connection string")
	ErrConnect               = errors.New("pg: database unreachable")
	ErrUnhealthy             = errors.New("pg: ping failed")
	ErrMigrate               = errors.New("pg: migrations failed")
	ErrNoMigrations          = errors.New("pg: no migrations filesystem")
)

// IsNotFoundError reports whether err is pgx.ErrNoRows.
func IsNotFoundError(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsConstraintViolation reports whether err violates the named constraint or
// unique index.
func IsConstraintViolation(err error, name string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.ConstraintName == name
}
