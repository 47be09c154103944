package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries holds every SQL statement the service issues. Errors are returned
// as domain failures.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx returns a Queries bound to tx.
func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const uniqueViolation = "23505"

// mapError converts driver errors into domain failures.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wrap(domain.ErrNotFound, wrapped)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.Wrap(domain.ErrDuplicate, wrapped)
	}
	var f *domain.Failure
	if errors.As(err, &f) {
		return wrapped
	}
	return domain.Wrap(domain.ErrUnknown, wrapped)
}
