package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// GetLatestRate returns the most recent rate for pair effective at or before asOf.
func (q *Queries) GetLatestRate(ctx context.Context, pair string, asOf time.Time) (*models.ExchangeRate, error) {
	const query = `
		SELECT id, currency_pair, rate, effective_date, created_at
		FROM exchange_rates
		WHERE currency_pair = $1 AND effective_date <= $2
		ORDER BY effective_date DESC
		LIMIT 1`

	var r models.ExchangeRate
	err := q.db.QueryRow(ctx, query, pair, asOf).Scan(&r.ID, &r.CurrencyPair, &r.Rate, &r.EffectiveDate, &r.CreatedAt)
	if err != nil {
		return nil, mapError("get latest rate", err)
	}
	return &r, nil
}

// GetNewestRate returns the rate with the greatest effective date for pair,
// including rates that are not yet effective.
func (q *Queries) GetNewestRate(ctx context.Context, pair string) (*models.ExchangeRate, error) {
	const query = `
		SELECT id, currency_pair, rate, effective_date, created_at
		FROM exchange_rates
		WHERE currency_pair = $1
		ORDER BY effective_date DESC
		LIMIT 1`

	var r models.ExchangeRate
	err := q.db.QueryRow(ctx, query, pair).Scan(&r.ID, &r.CurrencyPair, &r.Rate, &r.EffectiveDate, &r.CreatedAt)
	if err != nil {
		return nil, mapError("get newest rate", err)
	}
	return &r, nil
}

// InsertRate appends a rate for pair unless a rate effective at or after
// effective is already stored, in which case it returns ErrOldFxRate. The
// pair is serialised with a transaction-scoped advisory lock, so callers must
// run it inside a transaction; Store.InsertRate does that.
func (q *Queries) InsertRate(ctx context.Context, pair string, rate decimal.Decimal, effective time.Time) (*models.ExchangeRate, error) {
	const lockQuery = `SELECT pg_advisory_xact_lock(hashtext('exchange_rates:' || $1::text))`
	const query = `
		INSERT INTO exchange_rates (currency_pair, rate, effective_date)
		SELECT $1::text, $2::numeric, $3::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM exchange_rates
			WHERE currency_pair = $1::text AND effective_date >= $3::timestamptz
		)
		RETURNING id, currency_pair, rate, effective_date, created_at`

	if _, err := q.db.Exec(ctx, lockQuery, pair); err != nil {
		return nil, mapError("lock rate pair", err)
	}

	var r models.ExchangeRate
	err := q.db.QueryRow(ctx, query, pair, rate, effective).Scan(&r.ID, &r.CurrencyPair, &r.Rate, &r.EffectiveDate, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.Wrap(domain.ErrOldFxRate, fmt.Errorf("%s effective %s is not after the newest stored rate", pair, effective.Format(time.RFC3339Nano)))
	}
	if err != nil {
		return nil, mapError("insert rate", err)
	}
	return &r, nil
}

// GetLatestRate reads through the non-transactional query set.
func (s *Store) GetLatestRate(ctx context.Context, pair string, asOf time.Time) (*models.ExchangeRate, error) {
	return s.queries.GetLatestRate(ctx, pair, asOf)
}

// GetNewestRate reads through the non-transactional query set.
func (s *Store) GetNewestRate(ctx context.Context, pair string) (*models.ExchangeRate, error) {
	return s.queries.GetNewestRate(ctx, pair)
}

// InsertRate runs Queries.InsertRate in its own transaction.
func (s *Store) InsertRate(ctx context.Context, pair string, rate decimal.Decimal, effective time.Time) (*models.ExchangeRate, error) {
	var inserted *models.ExchangeRate
	err := s.RunInTx(ctx, func(q *Queries) error {
		r, err := q.InsertRate(ctx, pair, rate, effective)
		if err != nil {
			return err
		}
		inserted = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inserted, nil
}
