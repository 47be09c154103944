package repository

import (
	"context"

	"github.com/ayo6706/crossborder-liquidity/internal/domain"
	"github.com/ayo6706/crossborder-liquidity/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const poolColumns = `currency_code, available_balance, locked_balance, updated_at`

func scanPool(row pgx.Row) (*models.PoolBalance, error) {
	var p models.PoolBalance
	if err := row.Scan(&p.CurrencyCode, &p.Available, &p.Locked, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// LockPool reads a pool row with an exclusive row lock held until the
// surrounding transaction ends.
func (q *Queries) LockPool(ctx context.Context, currency string) (*models.PoolBalance, error) {
	p, err := scanPool(q.db.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM liquidity_pools WHERE currency_code = $1 FOR UPDATE`, currency))
	if err != nil {
		return nil, mapError("lock pool", err)
	}
	return p, nil
}

func (q *Queries) GetPool(ctx context.Context, currency string) (*models.PoolBalance, error) {
	p, err := scanPool(q.db.QueryRow(ctx,
		`SELECT `+poolColumns+` FROM liquidity_pools WHERE currency_code = $1`, currency))
	if err != nil {
		return nil, mapError("get pool", err)
	}
	return p, nil
}

func (q *Queries) ListPools(ctx context.Context) ([]models.PoolBalance, error) {
	rows, err := q.db.Query(ctx, `SELECT `+poolColumns+` FROM liquidity_pools ORDER BY currency_code`)
	if err != nil {
		return nil, mapError("list pools", err)
	}
	defer rows.Close()

	var out []models.PoolBalance
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, mapError("scan pool", err)
		}
		out = append(out, *p)
	}
	return out, mapError("list pools", rows.Err())
}

// EnsurePool creates an empty pool for currency if none exists.
func (q *Queries) EnsurePool(ctx context.Context, currency string) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO liquidity_pools (currency_code) VALUES ($1) ON CONFLICT (currency_code) DO NOTHING`, currency)
	return mapError("ensure pool", err)
}

// AdjustPool applies signed deltas to a pool's buckets.
func (q *Queries) AdjustPool(ctx context.Context, currency string, availableDelta, lockedDelta decimal.Decimal) (*models.PoolBalance, error) {
	const query = `
		UPDATE liquidity_pools
		SET available_balance = available_balance + $2,
			locked_balance = locked_balance + $3,
			updated_at = NOW()
		WHERE currency_code = $1
		RETURNING ` + poolColumns

	p, err := scanPool(q.db.QueryRow(ctx, query, currency, availableDelta, lockedDelta))
	if err != nil {
		return nil, mapError("adjust pool", err)
	}
	return p, nil
}

type InsertLedgerEntryParams struct {
	TransactionID    uuid.UUID
	CurrencyCode     string
	Kind             domain.EntryKind
	Amount           decimal.Decimal
	Margin           decimal.Decimal
	FromAccount      string
	ToAccount        string
	ReferenceEntryID *int64
	// Release marks the entry that consumes its referenced lock.
	Release     bool
	Description string
}

func (q *Queries) InsertLedgerEntry(ctx context.Context, arg InsertLedgerEntryParams) (int64, error) {
	const query = `
		INSERT INTO ledger_entries (
			transaction_id, currency_code, kind, amount, margin, from_account, to_account,
			reference_entry_id, release, description
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`

	var txID *uuid.UUID
	if arg.TransactionID != uuid.Nil {
		txID = &arg.TransactionID
	}
	var id int64
	err := q.db.QueryRow(ctx, query,
		txID, arg.CurrencyCode, string(arg.Kind), arg.Amount, arg.Margin, arg.FromAccount, arg.ToAccount,
		arg.ReferenceEntryID, arg.Release, arg.Description,
	).Scan(&id)
	if err != nil {
		return 0, mapError("insert ledger entry", err)
	}
	return id, nil
}

const ledgerColumns = `id, transaction_id, currency_code, kind, amount, margin, from_account, to_account,
	reference_entry_id, description, created_at`

func scanLedgerEntry(row pgx.Row) (*models.LedgerEntry, error) {
	var (
		e    models.LedgerEntry
		txID *uuid.UUID
		kind string
	)
	err := row.Scan(&e.ID, &txID, &e.CurrencyCode, &kind, &e.Amount, &e.Margin, &e.FromAccount, &e.ToAccount,
		&e.ReferenceEntryID, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	if txID != nil {
		e.TransactionID = *txID
	}
	e.Kind = domain.EntryKind(kind)
	return &e, nil
}

// GetLockEntry returns the entry with id when it is of kind lock.
func (q *Queries) GetLockEntry(ctx context.Context, id int64) (*models.LedgerEntry, error) {
	e, err := scanLedgerEntry(q.db.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE id = $1 AND kind = 'lock'`, id))
	if err != nil {
		return nil, mapError("get lock entry", err)
	}
	return e, nil
}

// GetRelease returns the entry that released lockID, if any.
func (q *Queries) GetRelease(ctx context.Context, lockID int64) (*models.LedgerEntry, error) {
	e, err := scanLedgerEntry(q.db.QueryRow(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE reference_entry_id = $1 AND release`, lockID))
	if err != nil {
		return nil, mapError("get release", err)
	}
	return e, nil
}

func (q *Queries) ListEntriesByTransaction(ctx context.Context, transactionID uuid.UUID) ([]models.LedgerEntry, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`, transactionID)
	if err != nil {
		return nil, mapError("list ledger entries", err)
	}
	defer rows.Close()

	var out []models.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, mapError("scan ledger entry", err)
		}
		out = append(out, *e)
	}
	return out, mapError("list ledger entries", rows.Err())
}

// SumJournal returns per-kind totals for every currency with journal entries.
func (q *Queries) SumJournal(ctx context.Context) ([]models.JournalTotals, error) {
	const query = `
		SELECT currency_code,
			COALESCE(SUM(amount) FILTER (WHERE kind IN ('lock', 'margin_lock')), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind IN ('unlock', 'margin_unlock')), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'debit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'fee'), 0),
			COALESCE(SUM(amount) FILTER (WHERE kind = 'rebalance'), 0)
		FROM ledger_entries
		GROUP BY currency_code
		ORDER BY currency_code`

	rows, err := q.db.Query(ctx, query)
	if err != nil {
		return nil, mapError("sum journal", err)
	}
	defer rows.Close()

	var out []models.JournalTotals
	for rows.Next() {
		var t models.JournalTotals
		if err := rows.Scan(&t.CurrencyCode, &t.Locked, &t.Released, &t.Debited, &t.Fees, &t.Rebalanced); err != nil {
			return nil, mapError("scan journal totals", err)
		}
		out = append(out, t)
	}
	return out, mapError("sum journal", rows.Err())
}
