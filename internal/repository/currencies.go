package repository

import (
	"context"
	"time"

	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/shopspring/decimal"
)

func (q *Queries) ListEnabledCurrencies(ctx context.Context) ([]models.Currency, error) {
	const query = `
		SELECT code, settlement_time_seconds, enabled, precision, margin_rate
		FROM currencies
		WHERE enabled
		ORDER BY code`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, mapError("list currencies", err)
	}
	defer rows.Close()

	var out []models.Currency
	for rows.Next() {
		var (
			c          models.Currency
			seconds    int32
			marginRate decimal.NullDecimal
		)
		if err := rows.Scan(&c.Code, &seconds, &c.Enabled, &c.Precision, &marginRate); err != nil {
			return nil, mapError("scan currency", err)
		}
		c.SettlementWindow = time.Duration(seconds) * time.Second
		if marginRate.Valid {
			c.MarginRate = &marginRate.Decimal
		}
		out = append(out, c)
	}
	return out, mapError("list currencies", rows.Err())
}

// UpsertCurrency creates or replaces a currency configuration.
func (q *Queries) UpsertCurrency(ctx context.Context, c models.Currency) error {
	const query = `
		INSERT INTO currencies (code, settlement_time_seconds, enabled, precision, margin_rate)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE
		SET settlement_time_seconds = EXCLUDED.settlement_time_seconds,
			enabled = EXCLUDED.enabled,
			precision = EXCLUDED.precision,
			margin_rate = EXCLUDED.margin_rate`

	var marginRate decimal.NullDecimal
	if c.MarginRate != nil {
		marginRate = decimal.NewNullDecimal(*c.MarginRate)
	}
	_, err := q.db.Exec(ctx, query, c.Code, int32(c.SettlementWindow/time.Second), c.Enabled, c.Precision, marginRate)
	return mapError("upsert currency", err)
}
